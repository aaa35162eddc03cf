package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a row is absent or owned by another user.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewSQLiteStore(dataSourceName string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        email TEXT UNIQUE NOT NULL,
        age INTEGER NOT NULL DEFAULT 0,
        sex TEXT NOT NULL DEFAULT '',
        orientation TEXT NOT NULL DEFAULT '',
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS chat_windows (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS turns (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        prompt TEXT NOT NULL,
        response TEXT NOT NULL,
        metadata TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS chat_window_turns (
        window_id TEXT NOT NULL,
        turn_id TEXT NOT NULL,
        PRIMARY KEY (window_id, turn_id),
        FOREIGN KEY (window_id) REFERENCES chat_windows (id),
        FOREIGN KEY (turn_id) REFERENCES turns (id)
    );

    CREATE TABLE IF NOT EXISTS contexts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        window_id TEXT NOT NULL,
        payload TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (window_id) REFERENCES chat_windows (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(name, email, passwordHash string, age int, sex, orientation string) (*User, error) {
	res, err := s.db.Exec(
		"INSERT INTO users (name, email, age, sex, orientation, password_hash) VALUES (?, ?, ?, ?, ?, ?)",
		name, email, age, sex, orientation, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, name, email, age, sex, orientation, password_hash, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Age, &user.Sex, &user.Orientation, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, name, email, age, sex, orientation, password_hash, created_at FROM users WHERE email = ?", email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Age, &user.Sex, &user.Orientation, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) UpdateUser(user *User) error {
	res, err := s.db.Exec(
		"UPDATE users SET name = ?, email = ?, age = ?, sex = ?, orientation = ?, password_hash = ? WHERE id = ?",
		user.Name, user.Email, user.Age, user.Sex, user.Orientation, user.PasswordHash, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Chat window methods

func (s *SQLiteStore) CreateChatWindow(userID int64) (*ChatWindow, error) {
	windowID := uuid.NewString()
	now := time.Now()
	_, err := s.db.Exec("INSERT INTO chat_windows (id, user_id, created_at) VALUES (?, ?, ?)", windowID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat window: %w", err)
	}
	return &ChatWindow{ID: windowID, UserID: userID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetChatWindowsByUserID(userID int64) ([]ChatWindow, error) {
	rows, err := s.db.Query("SELECT id, user_id, created_at FROM chat_windows WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat windows: %w", err)
	}
	defer rows.Close()

	var windows []ChatWindow
	for rows.Next() {
		var window ChatWindow
		if err := rows.Scan(&window.ID, &window.UserID, &window.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat window row: %w", err)
		}
		windows = append(windows, window)
	}
	return windows, nil
}

// ResolveWindow returns the window identified by explicitID after verifying it
// belongs to userID. With no explicitID it returns the user's most recently
// created window, creating a fresh one if the user has none yet.
func (s *SQLiteStore) ResolveWindow(userID int64, explicitID string) (*ChatWindow, error) {
	if explicitID != "" {
		var window ChatWindow
		err := s.db.QueryRow(
			"SELECT id, user_id, created_at FROM chat_windows WHERE id = ? AND user_id = ?", explicitID, userID,
		).Scan(&window.ID, &window.UserID, &window.CreatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to get chat window: %w", err)
		}
		return &window, nil
	}

	var window ChatWindow
	err := s.db.QueryRow(
		"SELECT id, user_id, created_at FROM chat_windows WHERE user_id = ? ORDER BY created_at DESC LIMIT 1", userID,
	).Scan(&window.ID, &window.UserID, &window.CreatedAt)
	if err == sql.ErrNoRows {
		return s.CreateChatWindow(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest chat window: %w", err)
	}
	return &window, nil
}

// DeleteChatWindow removes a window together with its turns and stored
// continuation tokens. The window must belong to userID.
func (s *SQLiteStore) DeleteChatWindow(windowID string, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	err = tx.QueryRow("SELECT user_id FROM chat_windows WHERE id = ?", windowID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to verify chat window: %w", err)
	}
	if ownerID != userID {
		return ErrNotFound
	}

	// Children go first so the foreign keys stay satisfied.
	if _, err := tx.Exec("DELETE FROM contexts WHERE window_id = ?", windowID); err != nil {
		return fmt.Errorf("failed to delete contexts: %w", err)
	}

	rows, err := tx.Query("SELECT turn_id FROM chat_window_turns WHERE window_id = ?", windowID)
	if err != nil {
		return fmt.Errorf("failed to query turn associations: %w", err)
	}
	var turnIDs []string
	for rows.Next() {
		var turnID string
		if err := rows.Scan(&turnID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan turn association: %w", err)
		}
		turnIDs = append(turnIDs, turnID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read turn associations: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM chat_window_turns WHERE window_id = ?", windowID); err != nil {
		return fmt.Errorf("failed to delete turn associations: %w", err)
	}
	for _, turnID := range turnIDs {
		if _, err := tx.Exec("DELETE FROM turns WHERE id = ?", turnID); err != nil {
			return fmt.Errorf("failed to delete turn: %w", err)
		}
	}
	if _, err := tx.Exec("DELETE FROM chat_windows WHERE id = ?", windowID); err != nil {
		return fmt.Errorf("failed to delete chat window: %w", err)
	}

	return tx.Commit()
}

// Turn methods

// PersistTurn inserts one finished turn. When windowID is non-empty the turn
// is also associated with that window. Callers must invoke this at most once
// per logical exchange.
func (s *SQLiteStore) PersistTurn(windowID string, userID int64, prompt, response string, metadata *string) (*Turn, error) {
	turn := Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		Response:  response,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO turns (id, user_id, prompt, response, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		turn.ID, turn.UserID, turn.Prompt, turn.Response, turn.Metadata, turn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}

	if windowID != "" {
		if _, err := tx.Exec("INSERT INTO chat_window_turns (window_id, turn_id) VALUES (?, ?)", windowID, turn.ID); err != nil {
			return nil, fmt.Errorf("failed to associate turn with window: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}
	return &turn, nil
}

// ListTurns returns a user's turns newest-first. When windowID is non-empty
// only turns associated with that window are returned.
func (s *SQLiteStore) ListTurns(userID int64, windowID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if windowID != "" {
		rows, err = s.db.Query(`
            SELECT t.id, t.user_id, t.prompt, t.response, t.metadata, t.created_at
            FROM turns t
            JOIN chat_window_turns cwt ON cwt.turn_id = t.id
            WHERE t.user_id = ? AND cwt.window_id = ?
            ORDER BY t.created_at DESC
            LIMIT ?`, userID, windowID, limit)
	} else {
		rows, err = s.db.Query(`
            SELECT id, user_id, prompt, response, metadata, created_at
            FROM turns
            WHERE user_id = ?
            ORDER BY created_at DESC
            LIMIT ?`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var metadata sql.NullString
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.Prompt, &turn.Response, &metadata, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		if metadata.Valid {
			turn.Metadata = &metadata.String
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Continuation token methods

// LoadLatestToken returns the payload of the newest continuation token stored
// for the window. Lookup failures degrade to "no token": continuity is
// best-effort and must never fail a turn.
func (s *SQLiteStore) LoadLatestToken(windowID string) json.RawMessage {
	if windowID == "" {
		return nil
	}
	var payload string
	err := s.db.QueryRow(
		"SELECT payload FROM contexts WHERE window_id = ? ORDER BY created_at DESC, id DESC LIMIT 1", windowID,
	).Scan(&payload)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.WithError(err).WithField("window_id", windowID).Warn("failed to load continuation token")
		}
		return nil
	}
	return json.RawMessage(payload)
}

// PersistToken appends a continuation token for the window. A nil payload or
// empty window is a no-op. Prior tokens are kept as history, never rewritten.
func (s *SQLiteStore) PersistToken(windowID string, payload json.RawMessage) error {
	if windowID == "" || len(payload) == 0 {
		return nil
	}
	_, err := s.db.Exec("INSERT INTO contexts (window_id, payload) VALUES (?, ?)", windowID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert continuation token: %w", err)
	}
	return nil
}
