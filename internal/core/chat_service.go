package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aimine/bunshin/internal/llm"
	"github.com/aimine/bunshin/internal/store"
)

// Validation failures, rejected before any side effect.
var (
	ErrEmptyMessage  = errors.New("message text must not be empty")
	ErrNoBotSelected = errors.New("no bot selected")
)

// Persona used when the referenced bot record is missing, matching the
// original product's fallback.
const defaultPersonaPrompt = "あなたは親切なAIです。"

// ApologyReply is the fixed user-visible reply substituted when the
// completion call fails. It is displayed but not persisted.
const ApologyReply = "申し訳ありません。うまく応答できませんでした。少し時間をおいて、もう一度お試しください。"

// ConversationStore is the slice of the store contract the orchestrator
// needs. The orchestrator never touches storage except through it.
type ConversationStore interface {
	AppendMessage(ctx context.Context, p store.Partition, msg *store.Message) error
	ListRecentMessages(ctx context.Context, p store.Partition, botID string, n int) ([]store.Message, error)
	AppendEmbedding(ctx context.Context, p store.Partition, rec *store.EmbeddingRecord) error
	ListEmbeddings(ctx context.Context, p store.Partition, botID string) ([]store.EmbeddingRecord, error)
	GetBot(ctx context.Context, companyID, name string) (*store.Bot, error)
}

// Options are the pipeline knobs; zero values fall back to the
// defaults below.
type Options struct {
	ContextBudget   int
	RecencyWindow   int
	SimilarityTopK  int
	ProviderTimeout time.Duration
}

const (
	defaultRecencyWindow   = 10
	defaultSimilarityTopK  = 5
	defaultProviderTimeout = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ContextBudget <= 0 {
		o.ContextBudget = DefaultContextBudget
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = defaultRecencyWindow
	}
	if o.SimilarityTopK <= 0 {
		o.SimilarityTopK = defaultSimilarityTopK
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = defaultProviderTimeout
	}
	return o
}

// ChatService drives one conversation turn: persist the user message,
// gather recency + similarity context, generate a persona reply,
// persist and embed it. Provider handles are injected; the service
// holds no ambient clients.
type ChatService struct {
	store     ConversationStore
	embedder  llm.Embedder
	completer llm.Completer
	ranker    Ranker
	opts      Options
}

func NewChatService(st ConversationStore, embedder llm.Embedder, completer llm.Completer, opts Options) *ChatService {
	return &ChatService{
		store:     st,
		embedder:  embedder,
		completer: completer,
		ranker:    CosineRanker{},
		opts:      opts.withDefaults(),
	}
}

// TurnResult reports one completed (or degraded) conversation turn.
type TurnResult struct {
	UserMessage store.Message `json:"user_message"`
	Reply       store.Message `json:"reply"`
	// Failed marks the apology path: the completion call failed and
	// Reply carries the fixed, unpersisted apology.
	Failed bool `json:"failed"`
	// ContextDegraded marks a turn that proceeded with recency-only or
	// empty context after an embedding/ranking failure.
	ContextDegraded bool `json:"context_degraded"`
	ReplyPersisted  bool `json:"reply_persisted"`
}

// SendMessage processes one user turn against the given bot.
//
// The user's message is durable before any provider is called, so a
// failed turn never loses it: completion failure yields the apology
// reply, and a failed reply write is logged while the user still sees
// the generated text.
func (s *ChatService) SendMessage(ctx context.Context, p store.Partition, botID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if botID == "" {
		return nil, ErrNoBotSelected
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	userMsg := store.Message{
		Sender:   p.UserID,
		Receiver: botID,
		BotID:    botID,
		Text:     text,
	}
	if err := s.store.AppendMessage(ctx, p, &userMsg); err != nil {
		// fatal: the caller must be told the message was not sent
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	result := &TurnResult{UserMessage: userMsg}

	// The query embedding and the recency window are independent;
	// fetch them concurrently before joining for prompt assembly.
	embedCh := make(chan embedResult, 1)
	go func() {
		ectx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
		defer cancel()
		vec, err := s.embedder.Embed(ectx, text)
		embedCh <- embedResult{vec: vec, err: err}
	}()

	recent, err := s.store.ListRecentMessages(ctx, p, botID, s.opts.RecencyWindow)
	if err != nil {
		slog.Warn("recency window unavailable, degrading context", "partition", p.String(), "error", err)
		result.ContextDegraded = true
		recent = nil
	}

	contextEntries := make([]string, 0, len(recent)+s.opts.SimilarityTopK)
	seen := make(map[string]bool, len(recent))
	for _, msg := range recent {
		contextEntries = append(contextEntries, msg.Sender+": "+msg.Text)
		seen[msg.ID] = true
	}

	embedded := <-embedCh
	if embedded.err != nil {
		slog.Warn("query embedding failed, degrading to recency-only context", "partition", p.String(), "error", embedded.err)
		result.ContextDegraded = true
	} else {
		similar, err := s.similarEntries(ctx, p, botID, embedded.vec, seen)
		if err != nil {
			slog.Warn("similarity search failed, degrading to recency-only context", "partition", p.String(), "error", err)
			result.ContextDegraded = true
		} else {
			contextEntries = append(contextEntries, similar...)
		}

		// best-effort: make this turn's input retrievable for future turns
		s.appendEmbedding(ctx, p, userMsg, embedded.vec)
	}

	persona := s.personaPrompt(ctx, p.CompanyID, botID)
	prompt := AssemblePrompt(persona, contextEntries, text, s.opts.ContextBudget)

	cctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	reply, err := s.completer.Complete(cctx, prompt)
	cancel()
	if err != nil {
		slog.Error("completion failed, substituting apology reply", "partition", p.String(), "bot", botID, "error", err)
		result.Failed = true
		result.Reply = store.Message{
			Sender:    botID,
			Receiver:  p.UserID,
			BotID:     botID,
			Text:      ApologyReply,
			Timestamp: time.Now(),
		}
		return result, nil
	}

	botMsg := store.Message{
		Sender:   botID,
		Receiver: p.UserID,
		BotID:    botID,
		Text:     FormatReply(reply),
	}
	if err := s.store.AppendMessage(ctx, p, &botMsg); err != nil {
		// non-fatal: the user still sees the reply
		slog.Error("failed to persist bot reply", "partition", p.String(), "bot", botID, "error", err)
	} else {
		result.ReplyPersisted = true
		ectx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
		if vec, err := s.embedder.Embed(ectx, botMsg.Text); err != nil {
			slog.Warn("reply embedding failed, reply will not be retrievable by similarity", "message_id", botMsg.ID, "error", err)
		} else {
			s.appendEmbedding(ctx, p, botMsg, vec)
		}
		cancel()
	}

	result.Reply = botMsg
	return result, nil
}

type embedResult struct {
	vec []float32
	err error
}

// similarEntries ranks the partition's stored embeddings for this bot
// against the query vector. Entries whose source message is already in
// the recency window are skipped so the same past message never
// appears twice in context.
func (s *ChatService) similarEntries(ctx context.Context, p store.Partition, botID string, query []float32, seen map[string]bool) ([]string, error) {
	records, err := s.store.ListEmbeddings(ctx, p, botID)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, Candidate{
			Vector:    rec.Vector,
			Text:      rec.Text,
			MessageID: rec.MessageID,
		})
	}

	var entries []string
	for _, scored := range s.ranker.Rank(query, candidates, s.opts.SimilarityTopK) {
		if seen[scored.MessageID] {
			continue
		}
		entries = append(entries, scored.Text)
	}
	return entries, nil
}

func (s *ChatService) appendEmbedding(ctx context.Context, p store.Partition, msg store.Message, vec []float32) {
	rec := store.EmbeddingRecord{
		MessageID: msg.ID,
		BotID:     msg.BotID,
		Text:      msg.Text,
		Vector:    vec,
	}
	if err := s.store.AppendEmbedding(ctx, p, &rec); err != nil {
		// non-fatal: the message simply won't be retrievable later
		slog.Warn("failed to persist embedding", "message_id", msg.ID, "error", err)
	}
}

func (s *ChatService) personaPrompt(ctx context.Context, companyID, botID string) string {
	bot, err := s.store.GetBot(ctx, companyID, botID)
	if err != nil {
		if !store.IsNotFound(err) {
			slog.Warn("bot lookup failed, using default persona", "company", companyID, "bot", botID, "error", err)
		} else {
			slog.Warn("bot not found, using default persona", "company", companyID, "bot", botID)
		}
		return defaultPersonaPrompt
	}
	return bot.Prompt
}
