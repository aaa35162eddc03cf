package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wingmanlabs/wingman-backend/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	return dbStore
}

func newTestUser(t *testing.T, dbStore *store.SQLiteStore) *store.User {
	t.Helper()
	user, err := dbStore.CreateUser("Test User", fmt.Sprintf("user%d@example.com", len(t.Name())), "hash", 25, "m", "hetero")
	require.NoError(t, err)
	return user
}

func fakeBackend(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newTestClient(server.URL)
}

func TestCompleteTurnCreatesWindowAndPersistsTurn(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "nice opener!", Done: true})
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	result, err := orch.CompleteTurn(context.Background(), TurnRequest{
		UserID: user.ID,
		Prompt: "help me open",
	})
	require.NoError(t, err)
	assert.Equal(t, "nice opener!", result.Response)
	require.NotEmpty(t, result.WindowID)

	windows, err := dbStore.GetChatWindowsByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, result.WindowID, windows[0].ID)

	turns, err := dbStore.ListTurns(user.ID, result.WindowID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "help me open", turns[0].Prompt)
	assert.Equal(t, "nice opener!", turns[0].Response)
}

func TestCompleteTurnStoresTokenWhenContextActive(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true, Context: json.RawMessage(`[9,9]`)})
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	result, err := orch.CompleteTurn(context.Background(), TurnRequest{
		UserID:        user.ID,
		Prompt:        "hello",
		ContextActive: true,
	})
	require.NoError(t, err)

	token := dbStore.LoadLatestToken(result.WindowID)
	assert.JSONEq(t, `[9,9]`, string(token))
}

func TestCompleteTurnForwardsPriorTokenWhenContextActive(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)
	window, err := dbStore.CreateChatWindow(user.ID)
	require.NoError(t, err)
	require.NoError(t, dbStore.PersistToken(window.ID, json.RawMessage(`[4,2]`)))

	var received json.RawMessage
	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		received = req.Context
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	_, err = orch.CompleteTurn(context.Background(), TurnRequest{
		UserID:        user.ID,
		Prompt:        "hello again",
		ChatID:        window.ID,
		ContextActive: true,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[4,2]`, string(received))
}

func TestCompleteTurnIgnoresTokensWhenContextInactive(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)
	window, err := dbStore.CreateChatWindow(user.ID)
	require.NoError(t, err)
	require.NoError(t, dbStore.PersistToken(window.ID, json.RawMessage(`[4,2]`)))

	var received json.RawMessage
	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		received = req.Context
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true, Context: json.RawMessage(`[5]`)})
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	_, err = orch.CompleteTurn(context.Background(), TurnRequest{
		UserID: user.ID,
		Prompt: "no continuity please",
		ChatID: window.ID,
		// ContextActive deliberately false despite stored history.
	})
	require.NoError(t, err)

	assert.Nil(t, received, "prior token must not be read")
	assert.JSONEq(t, `[4,2]`, string(dbStore.LoadLatestToken(window.ID)), "new token must not be written")
}

func TestCompleteTurnNoTokenRowWhenBackendReturnsNone(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	result, err := orch.CompleteTurn(context.Background(), TurnRequest{
		UserID:        user.ID,
		Prompt:        "hello",
		ContextActive: true,
	})
	require.NoError(t, err)

	assert.Nil(t, dbStore.LoadLatestToken(result.WindowID))

	turns, err := dbStore.ListTurns(user.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1, "turn is still persisted")
}

func TestCompleteTurnBackendUnreachablePersistsNothing(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	orch := NewOrchestrator(dbStore, newTestClient(url), testLogger())

	_, err := orch.CompleteTurn(context.Background(), TurnRequest{UserID: user.ID, Prompt: "hi"})
	assert.ErrorIs(t, err, ErrBackendUnreachable)

	turns, listErr := dbStore.ListTurns(user.ID, "", 0)
	require.NoError(t, listErr)
	assert.Empty(t, turns)
}

func TestCompleteTurnRejectsEmptyPrompt(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)
	orch := NewOrchestrator(dbStore, newTestClient("http://127.0.0.1:1"), testLogger())

	_, err := orch.CompleteTurn(context.Background(), TurnRequest{UserID: user.ID, Prompt: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestCompleteTurnUnknownUser(t *testing.T) {
	dbStore := newTestStore(t)
	orch := NewOrchestrator(dbStore, newTestClient("http://127.0.0.1:1"), testLogger())

	_, err := orch.CompleteTurn(context.Background(), TurnRequest{UserID: 999, Prompt: "hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteTurnForeignWindowNotFound(t *testing.T) {
	dbStore := newTestStore(t)
	owner, err := dbStore.CreateUser("Owner", "owner@example.com", "hash", 30, "f", "bi")
	require.NoError(t, err)
	intruder, err := dbStore.CreateUser("Intruder", "intruder@example.com", "hash", 30, "m", "hetero")
	require.NoError(t, err)

	window, err := dbStore.CreateChatWindow(owner.ID)
	require.NoError(t, err)

	orch := NewOrchestrator(dbStore, newTestClient("http://127.0.0.1:1"), testLogger())
	_, err = orch.CompleteTurn(context.Background(), TurnRequest{
		UserID: intruder.ID,
		Prompt: "hi",
		ChatID: window.ID,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStreamTurnPersistsAccumulatedText(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"Hel","done":false}`)
		fmt.Fprintln(w, `{"response":"lo","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"context":[9,9]}`)
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	sink := &recordingSink{}
	err := orch.StreamTurn(context.Background(), TurnRequest{
		UserID:        user.ID,
		Prompt:        "say hello",
		ContextActive: true,
	}, sink)
	require.NoError(t, err)

	require.Len(t, sink.events, 3)
	assert.True(t, sink.events[2].Done)

	turns, err := dbStore.ListTurns(user.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Hello", turns[0].Response)

	windows, err := dbStore.GetChatWindowsByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.JSONEq(t, `[9,9]`, string(dbStore.LoadLatestToken(windows[0].ID)))
}

func TestStreamTurnAbandonedClientPersistsNothing(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"a","done":false}`)
		fmt.Fprintln(w, `{"response":"b","done":false}`)
		fmt.Fprintln(w, `{"response":"c","done":true}`)
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	sink := &recordingSink{failAt: 2}
	err := orch.StreamTurn(context.Background(), TurnRequest{UserID: user.ID, Prompt: "hi"}, sink)
	assert.ErrorIs(t, err, ErrClientGone)

	turns, listErr := dbStore.ListTurns(user.ID, "", 0)
	require.NoError(t, listErr)
	assert.Empty(t, turns)
}

func TestStreamTurnWindowlessTurnHasNoWindow(t *testing.T) {
	dbStore := newTestStore(t)
	user := newTestUser(t, dbStore)

	llm := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"1. hey!","done":true}`)
	})
	orch := NewOrchestrator(dbStore, llm, testLogger())

	metadata := `{"feature":"tinder_replies"}`
	sink := &recordingSink{}
	err := orch.StreamTurn(context.Background(), TurnRequest{
		UserID:     user.ID,
		Prompt:     "reply to this",
		System:     TinderReplySystem,
		Windowless: true,
		Metadata:   &metadata,
	}, sink)
	require.NoError(t, err)

	windows, err := dbStore.GetChatWindowsByUserID(user.ID)
	require.NoError(t, err)
	assert.Empty(t, windows, "windowless turns create no chat window")

	turns, err := dbStore.ListTurns(user.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.NotNil(t, turns[0].Metadata)
	assert.JSONEq(t, metadata, *turns[0].Metadata)
}
