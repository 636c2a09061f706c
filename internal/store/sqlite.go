package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the document-store boundary on SQLite. The
// original product kept messages and vectors under
// companies/{companyId}/users/{userId}/{messages|vectors}; here the
// same partitioning is expressed as composite-keyed tables queried
// through a Partition value.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
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
    CREATE TABLE IF NOT EXISTS companies (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS users (
        company_id TEXT NOT NULL,
        id TEXT NOT NULL, -- identity-provider subject id
        email TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('employee', 'admin', 'developer')),
        bot_id TEXT,
        must_reset_password BOOLEAN DEFAULT FALSE,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (company_id, id),
        FOREIGN KEY (company_id) REFERENCES companies (id)
    );

    CREATE TABLE IF NOT EXISTS bots (
        company_id TEXT NOT NULL,
        name TEXT NOT NULL,
        prompt TEXT NOT NULL,
        PRIMARY KEY (company_id, name),
        FOREIGN KEY (company_id) REFERENCES companies (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        company_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        sender TEXT NOT NULL,
        receiver TEXT NOT NULL,
        bot_id TEXT NOT NULL,
        text TEXT NOT NULL,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_messages_partition
        ON messages (company_id, user_id, timestamp);

    CREATE TABLE IF NOT EXISTS embeddings (
        id TEXT PRIMARY KEY, -- UUID
        company_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        bot_id TEXT NOT NULL,
        message_id TEXT NOT NULL,
        text TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON-encoded []float32
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_embeddings_partition
        ON embeddings (company_id, user_id, bot_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Company methods

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c Company) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, created_at) VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name, c.CreatedAt)
	return storeErr("upsert company", err)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*Company, error) {
	var c Company
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM companies WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get company", err)
	}
	return &c, nil
}

// User methods

func (s *SQLiteStore) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (company_id, id, email, name, role, bot_id, must_reset_password, password_hash, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.CompanyID, u.ID, u.Email, u.Name, u.Role, nullable(u.BotID), u.MustResetPassword, u.PasswordHash, u.CreatedAt)
	return storeErr("create user", err)
}

func (s *SQLiteStore) GetUser(ctx context.Context, companyID, userID string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		userColumns+" WHERE company_id = ? AND id = ?", companyID, userID))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		userColumns+" WHERE email = ?", email))
}

const userColumns = `SELECT company_id, id, email, name, role, bot_id, must_reset_password, password_hash, created_at FROM users`

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var botID sql.NullString
	err := row.Scan(&u.CompanyID, &u.ID, &u.Email, &u.Name, &u.Role, &botID, &u.MustResetPassword, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if botID.Valid {
		u.BotID = botID.String
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsersByRole(ctx context.Context, companyID, role string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		userColumns+" WHERE company_id = ? AND role = ? ORDER BY name ASC", companyID, role)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var botID sql.NullString
		if err := rows.Scan(&u.CompanyID, &u.ID, &u.Email, &u.Name, &u.Role, &botID, &u.MustResetPassword, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, storeErr("scan user row", err)
		}
		if botID.Valid {
			u.BotID = botID.String
		}
		users = append(users, u)
	}
	return users, storeErr("list users", rows.Err())
}

// Bot methods

func (s *SQLiteStore) PutBot(ctx context.Context, b Bot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (company_id, name, prompt) VALUES (?, ?, ?)
         ON CONFLICT(company_id, name) DO UPDATE SET prompt = excluded.prompt`,
		b.CompanyID, b.Name, b.Prompt)
	return storeErr("put bot", err)
}

func (s *SQLiteStore) GetBot(ctx context.Context, companyID, name string) (*Bot, error) {
	var b Bot
	err := s.db.QueryRowContext(ctx,
		"SELECT company_id, name, prompt FROM bots WHERE company_id = ? AND name = ?",
		companyID, name).Scan(&b.CompanyID, &b.Name, &b.Prompt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get bot", err)
	}
	return &b, nil
}

func (s *SQLiteStore) ListBots(ctx context.Context, companyID string) ([]Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT company_id, name, prompt FROM bots WHERE company_id = ? ORDER BY name ASC", companyID)
	if err != nil {
		return nil, storeErr("list bots", err)
	}
	defer rows.Close()

	var bots []Bot
	for rows.Next() {
		var b Bot
		if err := rows.Scan(&b.CompanyID, &b.Name, &b.Prompt); err != nil {
			return nil, storeErr("scan bot row", err)
		}
		bots = append(bots, b)
	}
	return bots, storeErr("list bots", rows.Err())
}

// Message methods

// AppendMessage durably appends msg to the partition's ordered log.
// The id and timestamp are assigned here when unset. Messages are never
// updated or deleted.
func (s *SQLiteStore) AppendMessage(ctx context.Context, p Partition, msg *Message) error {
	if err := p.Validate(); err != nil {
		return storeErr("append message", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, company_id, user_id, sender, receiver, bot_id, text, timestamp)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, p.CompanyID, p.UserID, msg.Sender, msg.Receiver, msg.BotID, msg.Text, msg.Timestamp)
	return storeErr("append message", err)
}

// ListMessages returns the partition's messages sorted ascending by
// timestamp (message id breaks exact-timestamp ties so the order stays
// deterministic).
func (s *SQLiteStore) ListMessages(ctx context.Context, p Partition, f MessageFilter) ([]Message, error) {
	if err := p.Validate(); err != nil {
		return nil, storeErr("list messages", err)
	}

	query := `SELECT id, sender, receiver, bot_id, text, timestamp FROM messages
              WHERE company_id = ? AND user_id = ?`
	args := []any{p.CompanyID, p.UserID}

	if f.BotID != "" {
		query += " AND bot_id = ?"
		args = append(args, f.BotID)
		if f.PairOnly {
			query += ` AND ((sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?))`
			args = append(args, p.UserID, f.BotID, f.BotID, p.UserID)
		}
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since)
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.BotID, &msg.Text, &msg.Timestamp); err != nil {
			return nil, storeErr("scan message row", err)
		}
		messages = append(messages, msg)
	}
	return messages, storeErr("list messages", rows.Err())
}

// ListRecentMessages returns the newest n pair-filtered messages for
// one conversation, oldest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, p Partition, botID string, n int) ([]Message, error) {
	if err := p.Validate(); err != nil {
		return nil, storeErr("list recent messages", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, bot_id, text, timestamp FROM messages
         WHERE company_id = ? AND user_id = ? AND bot_id = ?
           AND ((sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?))
         ORDER BY timestamp DESC, id DESC
         LIMIT ?`,
		p.CompanyID, p.UserID, botID, p.UserID, botID, botID, p.UserID, n)
	if err != nil {
		return nil, storeErr("list recent messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.BotID, &msg.Text, &msg.Timestamp); err != nil {
			return nil, storeErr("scan message row", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list recent messages", err)
	}

	// reverse to ascending, oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Embedding methods

func (s *SQLiteStore) AppendEmbedding(ctx context.Context, p Partition, rec *EmbeddingRecord) error {
	if err := p.Validate(); err != nil {
		return storeErr("append embedding", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	embeddingBytes, err := json.Marshal(rec.Vector)
	if err != nil {
		return storeErr("marshal embedding", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO embeddings (id, company_id, user_id, bot_id, message_id, text, embedding_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, p.CompanyID, p.UserID, rec.BotID, rec.MessageID, rec.Text, string(embeddingBytes), rec.CreatedAt)
	return storeErr("append embedding", err)
}

func (s *SQLiteStore) ListEmbeddings(ctx context.Context, p Partition, botID string) ([]EmbeddingRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, storeErr("list embeddings", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, bot_id, text, embedding_json, created_at FROM embeddings
         WHERE company_id = ? AND user_id = ? AND bot_id = ?
         ORDER BY created_at ASC, id ASC`,
		p.CompanyID, p.UserID, botID)
	if err != nil {
		return nil, storeErr("list embeddings", err)
	}
	defer rows.Close()

	var records []EmbeddingRecord
	for rows.Next() {
		var rec EmbeddingRecord
		var embeddingJSON string
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.BotID, &rec.Text, &embeddingJSON, &rec.CreatedAt); err != nil {
			return nil, storeErr("scan embedding row", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &rec.Vector); err != nil {
			slog.Warn("skipping embedding with undecodable vector", "id", rec.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, storeErr("list embeddings", rows.Err())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
