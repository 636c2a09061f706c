package store

import "time"

// Role values a User record may carry. The chat pipeline treats role as
// read-only input; it is assigned at provisioning time.
const (
	RoleEmployee  = "employee"
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
)

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID                string    `json:"id"` // identity-provider subject id
	CompanyID         string    `json:"company_id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	BotID             string    `json:"bot_id,omitempty"` // assigned avatar, set for admins
	MustResetPassword bool      `json:"must_reset_password"`
	PasswordHash      string    `json:"-"` // never exposed in JSON responses
	CreatedAt         time.Time `json:"created_at"`
}

// Bot is a named persona: a system prompt under which the LLM answers.
// Bots are created by provisioning or admin tooling and are read-only
// from the chat pipeline.
type Bot struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"` // unique within a company
	Prompt    string `json:"prompt"`
}

// Message is one side of a conversation turn. Exactly one of
// Sender/Receiver is the partition's user, the other is the bot.
// Messages are append-only.
type Message struct {
	ID        string    `json:"id"` // UUID; timestamp stays a sortable attribute, not the key
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	BotID     string    `json:"bot_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EmbeddingRecord is the derived vector for one Message, written
// best-effort right after the message itself. One-to-one with its
// source message, never mutated.
type EmbeddingRecord struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	BotID     string    `json:"bot_id"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageFilter narrows ListMessages. The zero value returns the whole
// partition. PairOnly additionally requires the sender/receiver pair to
// be exactly {partition user, BotID}, which is how one conversation is
// isolated from other bots' traffic in the same partition.
type MessageFilter struct {
	BotID    string
	PairOnly bool
	Since    time.Time // inclusive lower bound when non-zero
}
