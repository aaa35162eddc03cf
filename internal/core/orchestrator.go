package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wingmanlabs/wingman-backend/internal/store"
)

const defaultTemperature = 0.7

// Orchestrator runs one chat turn end to end: it resolves the target chat
// window, loads the prior continuation token when continuity is requested,
// dispatches to the inference backend and persists the finished turn.
type Orchestrator struct {
	store  *store.SQLiteStore
	llm    *OllamaClient
	logger *logrus.Logger
}

func NewOrchestrator(dbStore *store.SQLiteStore, llm *OllamaClient, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{store: dbStore, llm: llm, logger: logger}
}

// TurnRequest describes one requested exchange.
type TurnRequest struct {
	UserID        int64
	Prompt        string
	ChatID        string
	Mode          string
	Orientation   string
	ContextActive bool

	// System overrides the mode/orientation preamble when non-empty. Used by
	// the Tinder utilities, which bring their own persona text.
	System string
	// Windowless turns belong to the user but to no chat window.
	Windowless bool
	// Metadata is free-form side-channel data stored with the turn.
	Metadata *string
}

// TurnResult is a finished non-streaming turn.
type TurnResult struct {
	Response string
	WindowID string
	Turn     *store.Turn
}

type preparedTurn struct {
	window *store.ChatWindow
	genReq GenerateRequest
}

func (o *Orchestrator) prepare(req TurnRequest) (*preparedTurn, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	if _, err := o.store.GetUserByID(req.UserID); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var window *store.ChatWindow
	if !req.Windowless {
		var err error
		window, err = o.store.ResolveWindow(req.UserID, req.ChatID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve chat window: %w", err)
		}
	}

	genReq := GenerateRequest{
		Prompt:      req.Prompt,
		System:      req.System,
		Temperature: defaultTemperature,
	}
	if genReq.System == "" {
		genReq.System = BuildSystemPreamble(req.Mode, req.Orientation)
	}

	// Continuity is strictly opt-in: without the flag no token is read even
	// if the window has history.
	if req.ContextActive && window != nil {
		genReq.Context = o.store.LoadLatestToken(window.ID)
	}

	return &preparedTurn{window: window, genReq: genReq}, nil
}

// CompleteTurn runs a non-streaming turn and returns the full response.
func (o *Orchestrator) CompleteTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	prepared, err := o.prepare(req)
	if err != nil {
		return nil, err
	}

	result, err := o.llm.Generate(ctx, prepared.genReq)
	if err != nil {
		return nil, err
	}

	turn, err := o.persistCompleted(prepared.window, req, result.Text, result.Token)
	if err != nil {
		return nil, err
	}

	windowID := ""
	if prepared.window != nil {
		windowID = prepared.window.ID
	}
	return &TurnResult{Response: result.Text, WindowID: windowID, Turn: turn}, nil
}

// StreamTurn runs a streamed turn, forwarding chunks to the sink as they
// arrive. The turn is persisted only after the terminal chunk has been
// emitted; an abandoned or failed stream persists nothing.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest, sink EventSink) error {
	prepared, err := o.prepare(req)
	if err != nil {
		return err
	}

	stream, err := o.llm.GenerateStream(ctx, prepared.genReq)
	if err != nil {
		return err
	}
	defer stream.Close()

	acc := NewAccumulator(o.logger)
	relay := NewRelay(sink, o.logger)
	if err := relay.Run(stream, acc); err != nil {
		return err
	}

	fullText, token := acc.Finalize()
	if _, err := o.persistCompleted(prepared.window, req, fullText, token); err != nil {
		return err
	}
	return nil
}

// persistCompleted stores exactly one turn for the exchange and, when
// continuity was requested, appends the new continuation token. Losing a turn
// is an error; losing a token only degrades continuity and is swallowed.
func (o *Orchestrator) persistCompleted(window *store.ChatWindow, req TurnRequest, fullText string, token []byte) (*store.Turn, error) {
	windowID := ""
	if window != nil {
		windowID = window.ID
	}

	turn, err := o.store.PersistTurn(windowID, req.UserID, req.Prompt, fullText, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}

	if req.ContextActive && window != nil {
		if err := o.store.PersistToken(window.ID, token); err != nil {
			o.logger.WithError(err).WithField("window_id", window.ID).Warn("failed to persist continuation token")
		}
	}
	return turn, nil
}
