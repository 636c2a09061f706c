package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aimine/bunshin/internal/auth"
	"github.com/aimine/bunshin/internal/core"
	"github.com/aimine/bunshin/internal/store"
)

type ctxKey int

const identityKey ctxKey = iota

// IdentityFromContext returns the authenticated identity placed by the
// JWT middleware.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

type APIHandler struct {
	store     *store.SQLiteStore
	chat      *core.ChatService
	analysis  *core.AnalysisService
	provision *core.ProvisionService
}

func NewAPIHandler(st *store.SQLiteStore, chat *core.ChatService, analysis *core.AnalysisService, provision *core.ProvisionService) *APIHandler {
	return &APIHandler{store: st, chat: chat, analysis: analysis, provision: provision}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		identity, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route group to one role.
func (h *APIHandler) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || identity.Role != role {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token             string `json:"token"`
	UserID            string `json:"user_id"`
	CompanyID         string `json:"company_id"`
	Role              string `json:"role"`
	Name              string `json:"name"`
	MustResetPassword bool   `json:"must_reset_password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		if err != nil && !store.IsNotFound(err) {
			slog.Error("login lookup failed", "email", req.Email, "error", err)
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(auth.Identity{UserID: user.ID, CompanyID: user.CompanyID, Role: user.Role})
	if err != nil {
		slog.Error("failed to generate JWT", "user", user.ID, "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:             token,
		UserID:            user.ID,
		CompanyID:         user.CompanyID,
		Role:              user.Role,
		Name:              user.Name,
		MustResetPassword: user.MustResetPassword,
	})
}

func (h *APIHandler) ListBotsHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	bots, err := h.store.ListBots(r.Context(), identity.CompanyID)
	if err != nil {
		slog.Error("failed to list bots", "company", identity.CompanyID, "error", err)
		http.Error(w, "Failed to list bots", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bots)
}

func (h *APIHandler) ListChatMessagesHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	botID := r.URL.Query().Get("bot")
	if botID == "" {
		http.Error(w, "bot query parameter is required", http.StatusBadRequest)
		return
	}

	p := store.Partition{CompanyID: identity.CompanyID, UserID: identity.UserID}
	msgs, err := h.store.ListMessages(r.Context(), p, store.MessageFilter{BotID: botID, PairOnly: true})
	if err != nil {
		slog.Error("failed to list messages", "partition", p.String(), "error", err)
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type PostMessageRequest struct {
	BotID string `json:"bot_id"`
	Text  string `json:"text"`
}

func (h *APIHandler) PostChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	p := store.Partition{CompanyID: identity.CompanyID, UserID: identity.UserID}
	result, err := h.chat.SendMessage(r.Context(), p, req.BotID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrNoBotSelected):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			// the user's message was not persisted; report a failed send
			slog.Error("message send failed", "partition", p.String(), "error", err)
			http.Error(w, "Failed to send message", http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListEmployeesHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	employees, err := h.analysis.ListEmployees(r.Context(), identity.CompanyID)
	if err != nil {
		slog.Error("failed to list employees", "company", identity.CompanyID, "error", err)
		http.Error(w, "Failed to list employees", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

func (h *APIHandler) EmployeeMessagesHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	botID, err := h.resolveBot(r, identity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msgs, err := h.analysis.EmployeeMessages(r.Context(), identity.CompanyID, employeeID, botID)
	if err != nil {
		slog.Error("failed to load employee log", "employee", employeeID, "error", err)
		http.Error(w, "Failed to load employee log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *APIHandler) EmployeeSummaryHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	botID, err := h.resolveBot(r, identity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.analysis.SummarizeEmployee(r.Context(), identity.CompanyID, employeeID, botID)
	h.writeAnalysis(w, summary, err)
}

func (h *APIHandler) SelfAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	botID, err := h.resolveBot(r, identity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := store.Partition{CompanyID: identity.CompanyID, UserID: identity.UserID}
	result, err := h.analysis.SelfAnalysis(r.Context(), p, botID)
	h.writeAnalysis(w, result, err)
}

func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	botID, err := h.resolveBot(r, identity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := store.Partition{CompanyID: identity.CompanyID, UserID: identity.UserID}
	result, err := h.analysis.MonthlyFeedback(r.Context(), p, botID)
	h.writeAnalysis(w, result, err)
}

func (h *APIHandler) writeAnalysis(w http.ResponseWriter, result string, err error) {
	if err != nil {
		if errors.Is(err, core.ErrEmptyLog) {
			http.Error(w, "No conversation log to analyze", http.StatusUnprocessableEntity)
			return
		}
		slog.Error("analysis failed", "error", err)
		http.Error(w, "Analysis failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": result})
}

// resolveBot picks the admin's assigned bot, overridable with ?bot=.
func (h *APIHandler) resolveBot(r *http.Request, identity auth.Identity) (string, error) {
	if botID := r.URL.Query().Get("bot"); botID != "" {
		return botID, nil
	}
	user, err := h.store.GetUser(r.Context(), identity.CompanyID, identity.UserID)
	if err != nil || user.BotID == "" {
		return "", errors.New("no bot assigned; pass ?bot=")
	}
	return user.BotID, nil
}

type ImportUsersRequest struct {
	Users []core.UserUpload `json:"users"`
}

// ImportUsersHandler accepts either a JSON body {"users": [...]} or a
// text/csv upload with columns companyId,companyName,email,name,role.
func (h *APIHandler) ImportUsersHandler(w http.ResponseWriter, r *http.Request) {
	var uploads []core.UserUpload

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		parsed, err := parseUserCSV(r.Body)
		if err != nil {
			http.Error(w, "Invalid CSV: "+err.Error(), http.StatusBadRequest)
			return
		}
		uploads = parsed
	} else {
		var req ImportUsersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		uploads = req.Users
	}

	if len(uploads) == 0 {
		http.Error(w, "No users to import", http.StatusBadRequest)
		return
	}

	results := h.provision.RegisterUsers(r.Context(), uploads)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func parseUserCSV(body io.Reader) ([]core.UserUpload, error) {
	reader := csv.NewReader(body)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var uploads []core.UserUpload
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "companyId") {
			continue // header row
		}
		if len(row) < 5 {
			continue
		}
		uploads = append(uploads, core.UserUpload{
			CompanyID:   strings.TrimSpace(row[0]),
			CompanyName: strings.TrimSpace(row[1]),
			Email:       strings.TrimSpace(row[2]),
			Name:        strings.TrimSpace(row[3]),
			Role:        strings.TrimSpace(row[4]),
		})
	}
	return uploads, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
