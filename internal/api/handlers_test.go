package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimine/bunshin/internal/auth"
	"github.com/aimine/bunshin/internal/config"
	"github.com/aimine/bunshin/internal/core"
	"github.com/aimine/bunshin/internal/store"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubCompleter struct {
	reply string
}

func (s stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	config.AppConfig = config.Config{JWTSecret: "test-secret", DefaultPassword: "default1234"}

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	chat := core.NewChatService(st, stubEmbedder{}, stubCompleter{reply: "こんにちは。"}, core.Options{})
	analysis := core.NewAnalysisService(st, stubCompleter{reply: "分析結果です。"}, 0)
	provision := core.NewProvisionService(st, config.AppConfig.DefaultPassword)

	srv := httptest.NewServer(NewRouter(NewAPIHandler(st, chat, analysis, provision)))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedUser(t *testing.T, st *store.SQLiteStore, companyID, userID, email, role, password string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertCompany(ctx, store.Company{ID: companyID, Name: companyID}))
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, st.CreateUser(ctx, store.User{
		ID: userID, CompanyID: companyID, Email: email,
		Name: userID, Role: role, PasswordHash: hash,
	}))
}

func loginToken(t *testing.T, srv *httptest.Server, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Email: email, Password: password})
	resp, err := http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lr LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	return lr.Token
}

func authedRequest(t *testing.T, method, url, token, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogin(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "alice", "alice@acme.jp", store.RoleEmployee, "secret-pw")

	token := loginToken(t, srv, "alice@acme.jp", "secret-pw")
	assert.NotEmpty(t, token)

	identity, err := auth.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
	assert.Equal(t, "acme", identity.CompanyID)
	assert.Equal(t, store.RoleEmployee, identity.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "alice", "alice@acme.jp", store.RoleEmployee, "secret-pw")

	body, _ := json.Marshal(LoginRequest{Email: "alice@acme.jp", Password: "wrong"})
	resp, err := http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/chat/messages?bot=mentor")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPostChatMessage(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "alice", "alice@acme.jp", store.RoleEmployee, "secret-pw")
	token := loginToken(t, srv, "alice@acme.jp", "secret-pw")

	body, _ := json.Marshal(PostMessageRequest{BotID: "mentor", Text: "おはようございます"})
	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/chat/messages", token, "application/json", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result core.TurnResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Failed)
	assert.Equal(t, "こんにちは。", result.Reply.Text)

	listResp := authedRequest(t, http.MethodGet, srv.URL+"/api/chat/messages?bot=mentor", token, "", nil)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var msgs []store.Message
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "おはようございます", msgs[0].Text)
}

func TestPostChatMessageValidation(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "alice", "alice@acme.jp", store.RoleEmployee, "secret-pw")
	token := loginToken(t, srv, "alice@acme.jp", "secret-pw")

	body, _ := json.Marshal(PostMessageRequest{BotID: "mentor", Text: "   "})
	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/chat/messages", token, "application/json", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRoutesForbiddenForEmployees(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "alice", "alice@acme.jp", store.RoleEmployee, "secret-pw")
	token := loginToken(t, srv, "alice@acme.jp", "secret-pw")

	resp := authedRequest(t, http.MethodGet, srv.URL+"/api/admin/employees", token, "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListEmployeesAsAdmin(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "boss", "boss@acme.jp", store.RoleAdmin, "secret-pw")
	seedUser(t, st, "acme", "alice", "alice@acme.jp", store.RoleEmployee, "secret-pw")
	token := loginToken(t, srv, "boss@acme.jp", "secret-pw")

	resp := authedRequest(t, http.MethodGet, srv.URL+"/api/admin/employees", token, "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var employees []store.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&employees))
	require.Len(t, employees, 1)
	assert.Equal(t, "alice", employees[0].ID)
}

func TestImportUsersCSV(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "hq", "dev", "dev@hq.jp", store.RoleDeveloper, "secret-pw")
	token := loginToken(t, srv, "dev@hq.jp", "secret-pw")

	csvBody := strings.Join([]string{
		"companyId,companyName,email,name,role",
		"acme,アクメ社,tanaka@acme.jp,田中,employee",
		"acme,アクメ社,sato@acme.jp,佐藤,admin",
	}, "\n")
	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/admin/users/import", token, "text/csv", []byte(csvBody))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Results []core.ProvisionResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 2)

	user, err := st.GetUserByEmail(context.Background(), "tanaka@acme.jp")
	require.NoError(t, err)
	assert.True(t, user.MustResetPassword)

	bot, err := st.GetBot(context.Background(), "acme", "佐藤")
	require.NoError(t, err)
	assert.Contains(t, bot.Prompt, "管理職")
}

func TestImportUsersForbiddenForAdmins(t *testing.T) {
	srv, st := newTestServer(t)
	seedUser(t, st, "acme", "boss", "boss@acme.jp", store.RoleAdmin, "secret-pw")
	token := loginToken(t, srv, "boss@acme.jp", "secret-pw")

	resp := authedRequest(t, http.MethodPost, srv.URL+"/api/admin/users/import", token, "application/json", []byte(`{"users":[]}`))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
