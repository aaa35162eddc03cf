package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/wingmanlabs/wingman-backend/internal/auth"
	"github.com/wingmanlabs/wingman-backend/internal/core"
	"github.com/wingmanlabs/wingman-backend/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	orchestrator *core.Orchestrator
	dbStore      *store.SQLiteStore
	limiter      *UserRateLimiter
	logger       *logrus.Logger
}

func NewAPIHandler(orchestrator *core.Orchestrator, dbStore *store.SQLiteStore, limiter *UserRateLimiter, logger *logrus.Logger) *APIHandler {
	return &APIHandler{
		orchestrator: orchestrator,
		dbStore:      dbStore,
		limiter:      limiter,
		logger:       logger,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a service-layer error onto the HTTP surface.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	var httpErr *core.BackendHTTPError
	switch {
	case errors.Is(err, core.ErrEmptyPrompt):
		respondError(w, http.StatusBadRequest, "Prompt is required")
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, core.ErrBackendUnreachable):
		respondError(w, http.StatusServiceUnavailable, "Could not connect to Ollama server. Is it running?")
	case errors.Is(err, core.ErrBackendTimeout):
		respondError(w, http.StatusGatewayTimeout, "Request to Ollama timed out. Try again or increase timeout.")
	case errors.As(err, &httpErr):
		respondError(w, httpErr.Status, "Ollama returned an error")
	case errors.Is(err, core.ErrBackendProtocol):
		respondError(w, http.StatusBadGateway, "Ollama returned malformed output")
	default:
		h.logger.WithError(err).Error("unexpected error")
		respondError(w, http.StatusInternalServerError, "Unexpected error")
	}
}

// authorizeUser rejects a request whose user_id does not match the
// authenticated token subject. Payloads keep carrying user_id for client
// compatibility, but the token decides whose data may be touched.
func (h *APIHandler) authorizeUser(w http.ResponseWriter, r *http.Request, userID int64) bool {
	authedID, ok := r.Context().Value(userIDKey).(int64)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing authenticated user")
		return false
	}
	if authedID != userID {
		respondError(w, http.StatusForbidden, "user_id does not match authenticated user")
		return false
	}
	return true
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if _, err := h.dbStore.GetUserByID(userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusUnauthorized, "User not found")
				return
			}
			h.logger.WithError(err).Error("failed to resolve token user")
			respondError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Account handlers

type CreateUserRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Age         int    `json:"age"`
	Sex         string `json:"sex"`
	Orientation string `json:"orientation"`
}

func (h *APIHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		respondError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.dbStore.CreateUser(req.Name, req.Email, hashedPassword, req.Age, req.Sex, req.Orientation)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			respondError(w, http.StatusConflict, "Email already registered")
			return
		}
		h.logger.WithError(err).WithField("email", req.Email).Error("failed to create user")
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.dbStore.GetUserByEmail(req.Email)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to generate token")
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, userID) {
		return
	}

	user, err := h.dbStore.GetUserByID(userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type UpdateUserRequest struct {
	UserID      int64   `json:"user_id"`
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Sex         *string `json:"sex,omitempty"`
	Orientation *string `json:"orientation,omitempty"`
	Password    *string `json:"password,omitempty"`
}

func (h *APIHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, req.UserID) {
		return
	}

	user, err := h.dbStore.GetUserByID(req.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Age != nil {
		user.Age = *req.Age
	}
	if req.Sex != nil {
		user.Sex = *req.Sex
	}
	if req.Orientation != nil {
		user.Orientation = *req.Orientation
	}
	if req.Password != nil {
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.WithError(err).Error("failed to hash password")
			respondError(w, http.StatusInternalServerError, "Failed to process password")
			return
		}
		user.PasswordHash = hashed
	}

	if err := h.dbStore.UpdateUser(user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			respondError(w, http.StatusConflict, "Email already registered")
			return
		}
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Generate and history handlers

type GenerateRequest struct {
	Prompt          string `json:"prompt"`
	UserID          int64  `json:"user_id"`
	ChatID          string `json:"chat_id,omitempty"`
	Mode            string `json:"mode,omitempty"`
	Orientation     string `json:"orientation,omitempty"`
	IsContextActive bool   `json:"isContextActive,omitempty"`
	Stream          bool   `json:"stream,omitempty"`
}

func (h *APIHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, req.UserID) {
		return
	}
	if !h.limiter.allow(req.UserID) {
		respondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
		return
	}

	turnReq := core.TurnRequest{
		UserID:        req.UserID,
		Prompt:        req.Prompt,
		ChatID:        req.ChatID,
		Mode:          req.Mode,
		Orientation:   req.Orientation,
		ContextActive: req.IsContextActive,
	}

	if req.Stream {
		h.streamTurn(w, r, turnReq)
		return
	}

	result, err := h.orchestrator.CompleteTurn(r.Context(), turnReq)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"response": result.Response,
		"user_id":  req.UserID,
		"chat_id":  result.WindowID,
	})
}

func (h *APIHandler) streamTurn(w http.ResponseWriter, r *http.Request, turnReq core.TurnRequest) {
	sink, err := newSSESink(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	if err := h.orchestrator.StreamTurn(r.Context(), turnReq, sink); err != nil {
		if !sink.Started() {
			h.writeServiceError(w, err)
			return
		}
		// Headers are committed; the relay already emitted a terminal error
		// event if the client was still listening.
		h.logger.WithError(err).WithField("user_id", turnReq.UserID).Warn("streamed turn failed")
	}
}

func (h *APIHandler) ResponsesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, userID) {
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	turns, err := h.dbStore.ListTurns(userID, chatID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	type turnView struct {
		ID        string `json:"id"`
		Prompt    string `json:"prompt"`
		Response  string `json:"response"`
		CreatedAt string `json:"created_at"`
	}
	views := make([]turnView, 0, len(turns))
	for _, turn := range turns {
		views = append(views, turnView{
			ID:        turn.ID,
			Prompt:    turn.Prompt,
			Response:  turn.Response,
			CreatedAt: turn.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

// Chat window handlers

type CreateChatWindowRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *APIHandler) CreateChatWindowHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, req.UserID) {
		return
	}

	if _, err := h.dbStore.GetUserByID(req.UserID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	window, err := h.dbStore.CreateChatWindow(req.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, window)
}

func (h *APIHandler) GetChatWindowsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, userID) {
		return
	}

	windows, err := h.dbStore.GetChatWindowsByUserID(userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if windows == nil {
		windows = []store.ChatWindow{}
	}
	respondJSON(w, http.StatusOK, windows)
}

func (h *APIHandler) DeleteChatWindowHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, userID) {
		return
	}
	chatID := chi.URLParam(r, "chatID")

	if err := h.dbStore.DeleteChatWindow(chatID, userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deterministic utility handlers

type LoveCalculatorRequest struct {
	Name1 string `json:"name1"`
	Name2 string `json:"name2"`
}

func (h *APIHandler) LoveCalculatorHandler(w http.ResponseWriter, r *http.Request) {
	var req LoveCalculatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name1) == "" || strings.TrimSpace(req.Name2) == "" {
		respondError(w, http.StatusBadRequest, "Both names are required")
		return
	}

	score, message := core.LoveScore(req.Name1, req.Name2)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"love_score": score,
		"message":    message,
	})
}

// Tinder utility handlers

type TinderRepliesRequest struct {
	TinderMessage string `json:"tinderMessage"`
	UserIntention string `json:"userIntention"`
	ResponseStyle string `json:"responseStyle"`
	UserID        int64  `json:"user_id"`
}

func (h *APIHandler) TinderRepliesHandler(w http.ResponseWriter, r *http.Request) {
	var req TinderRepliesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.TinderMessage) == "" {
		respondError(w, http.StatusBadRequest, "tinderMessage is required")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, req.UserID) {
		return
	}
	if !h.limiter.allow(req.UserID) {
		respondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
		return
	}

	metadata := turnMetadata("tinder_replies", map[string]string{
		"intention": req.UserIntention,
		"style":     req.ResponseStyle,
	})
	turnReq := core.TurnRequest{
		UserID:     req.UserID,
		Prompt:     core.TinderReplyPrompt(req.TinderMessage, req.UserIntention, req.ResponseStyle),
		System:     core.TinderReplySystem,
		Windowless: true,
		Metadata:   metadata,
	}
	h.streamTurn(w, r, turnReq)
}

type TinderDescriptionRequest struct {
	UserID     int64  `json:"user_id"`
	Age        string `json:"age"`
	Occupation string `json:"occupation"`
	Interests  string `json:"interests"`
	Tone       string `json:"tone"`
	Length     string `json:"length"`
	Focus      string `json:"focus"`
	Humor      string `json:"humor"`
}

func (h *APIHandler) GenerateTinderDescriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req TinderDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, req.UserID) {
		return
	}
	if !h.limiter.allow(req.UserID) {
		respondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
		return
	}

	prompt := core.TinderDescriptionPrompt(
		core.TinderDescriptionBasics{Age: req.Age, Occupation: req.Occupation, Interests: req.Interests},
		core.TinderDescriptionOptions{Tone: req.Tone, Length: req.Length, Focus: req.Focus, Humor: req.Humor},
	)
	h.completeUtilityTurn(w, r, req.UserID, prompt, "tinder_description")
}

type UpdateTinderDescriptionRequest struct {
	UserID      int64  `json:"user_id"`
	Description string `json:"description"`
	Adjustments string `json:"adjustments"`
}

func (h *APIHandler) UpdateTinderDescriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateTinderDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !h.authorizeUser(w, r, req.UserID) {
		return
	}
	if strings.TrimSpace(req.Description) == "" || strings.TrimSpace(req.Adjustments) == "" {
		respondError(w, http.StatusBadRequest, "description and adjustments are required")
		return
	}
	if !h.limiter.allow(req.UserID) {
		respondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
		return
	}

	prompt := core.TinderDescriptionUpdatePrompt(req.Description, req.Adjustments)
	h.completeUtilityTurn(w, r, req.UserID, prompt, "tinder_description_update")
}

func (h *APIHandler) completeUtilityTurn(w http.ResponseWriter, r *http.Request, userID int64, prompt, feature string) {
	turnReq := core.TurnRequest{
		UserID:     userID,
		Prompt:     prompt,
		System:     core.TinderReplySystem,
		Windowless: true,
		Metadata:   turnMetadata(feature, nil),
	}

	result, err := h.orchestrator.CompleteTurn(r.Context(), turnReq)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"description": result.Response,
		"user_id":     userID,
	})
}

func turnMetadata(feature string, extra map[string]string) *string {
	payload := map[string]string{"feature": feature}
	for k, v := range extra {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func queryUserID(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}
