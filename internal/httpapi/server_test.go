package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadithya-v/focusflow"
	"github.com/aadithya-v/focusflow/internal/assistant"
	"github.com/aadithya-v/focusflow/store"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fixture struct {
	handler http.Handler
	svc     *focusflow.Service
	ledger  store.SessionLedger
	auth    *Authenticator
}

func newFixture(t *testing.T, cfg Config, opts ...func(*Deps)) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	nop := zerolog.Nop()

	svc, err := focusflow.New(focusflow.Config{
		Store:          store.NewMemoryStore(store.WithClock(clock.Now)),
		Now:            clock.Now,
		RetryBaseDelay: time.Millisecond,
		Logger:         &nop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	ledger, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	auth, err := NewAuthenticator(testSecret, "focusflow-test")
	require.NoError(t, err)

	deps := Deps{Service: svc, Ledger: ledger, Auth: auth}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := New(deps, cfg)
	return &fixture{handler: srv.Router(), svc: svc, ledger: ledger, auth: auth}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.auth.IssueToken(userID, "User "+userID, "", time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/v1/health/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	bad := httptest.NewRecorder()
	f.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	other, err := NewAuthenticator("another-secret-that-is-at-least-32-bytes", "focusflow-test")
	require.NoError(t, err)
	tok, err := other.IssueToken("u1", "", "", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	forged := httptest.NewRecorder()
	f.handler.ServeHTTP(forged, req)
	assert.Equal(t, http.StatusUnauthorized, forged.Code)
}

func TestAuthenticatorVerify(t *testing.T) {
	auth, err := NewAuthenticator(testSecret, "focusflow-test")
	require.NoError(t, err)

	tok, err := auth.IssueToken("u1", "Ada", "a.png", time.Hour)
	require.NoError(t, err)

	claims, err := auth.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "Ada", claims.Name)

	expired, err := auth.IssueToken("u1", "", "", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(expired)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewAuthenticator("", "")
	assert.Error(t, err)
}

func TestSessionFlow(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/start", "u1", map[string]any{
		"type": "FOCUS", "duration": 25,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sessionID := decode(t, rec)["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/timer", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 25*60, decode(t, rec)["remainingSeconds"])

	// Another user cannot see the timer.
	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/timer", "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/pause", "u1", map[string]any{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/pause", "u1", map[string]any{"sessionId": sessionID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/resume", "u1", map[string]any{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/complete", "u1", map[string]any{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 50, body["points"])
	assert.Equal(t, true, body["awarded"])

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/timer", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TIMER_NOT_FOUND", errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/sessions/history", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode(t, rec)["sessions"].([]any)
	require.Len(t, sessions, 1)
	assert.Equal(t, "COMPLETED", sessions[0].(map[string]any)["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/stats", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.EqualValues(t, 1, stats["rank"])
	assert.EqualValues(t, 1, stats["currentStreak"])
	today := stats["today"].(map[string]any)
	assert.EqualValues(t, 25, today["focusMinutes"])
	assert.EqualValues(t, 50, today["points"])
}

func TestSessionValidation(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name string
		body any
	}{
		{"missing type", map[string]any{"duration": 25}},
		{"unknown type", map[string]any{"type": "NAP", "duration": 25}},
		{"zero duration", map[string]any{"type": "FOCUS", "duration": 0}},
		{"too long", map[string]any{"type": "FOCUS", "duration": 181}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/sessions/start", "u1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/start", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+f.token(t, "u1"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_BODY", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/complete", "u1", map[string]any{"sessionId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelDistractionLimit(t *testing.T) {
	f := newFixture(t, Config{})

	for i := 0; i < 6; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/sessions/start", "u1", map[string]any{"type": "FOCUS", "duration": 25})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		id := decode(t, rec)["sessionId"].(string)

		rec = f.do(t, http.MethodPost, "/api/v1/sessions/cancel", "u1", map[string]any{"sessionId": id})
		if i < 5 {
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.EqualValues(t, 4-i, decode(t, rec)["remaining"])
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		body := decode(t, rec)
		assert.EqualValues(t, 0, body["remaining"])
		assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])
	}
}

func TestRooms(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/v1/rooms/join", "u1", map[string]any{"roomId": "r1", "status": "focus"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/rooms/r1/presence", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["activeMembers"])
	users := body["users"].(map[string]any)
	require.Contains(t, users, "u1")
	u1 := users["u1"].(map[string]any)
	assert.Equal(t, "User u1", u1["name"])
	assert.Equal(t, "focus", u1["status"])

	rec = f.do(t, http.MethodPut, "/api/v1/rooms/r1/status", "u1", map[string]any{"status": "break"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := f.svc.GetUserStatus(t.Context(), "u1")
	require.NotNil(t, status)
	assert.Equal(t, "break", status.Status)

	rec = f.do(t, http.MethodPut, "/api/v1/rooms/r1/status", "u1", map[string]any{"status": "asleep"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/rooms/leave", "u1", map[string]any{"roomId": "r1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/rooms/r1/presence", "u2", nil)
	body = decode(t, rec)
	assert.Empty(t, body["users"])
	assert.EqualValues(t, 0, body["activeMembers"])
}

func TestRoomEvents(t *testing.T) {
	f := newFixture(t, Config{PingInterval: time.Second})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/rooms/r1/events?access_token=" + f.token(t, "u2")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	rec := f.do(t, http.MethodPost, "/api/v1/rooms/join", "u1", map[string]any{"roomId": "r1"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev focusflow.RoomEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "user_joined", ev.Type)
	assert.Equal(t, "u1", ev.UserID)
}

func TestRoomEventsRequiresToken(t *testing.T) {
	f := newFixture(t, Config{})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/rooms/r1/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := t.Context()

	require.NoError(t, f.svc.AddToLeaderboard(ctx, "u1", 30, ""))
	require.NoError(t, f.svc.AddToLeaderboard(ctx, "u2", 50, ""))

	rec := f.do(t, http.MethodGet, "/api/v1/leaderboard", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "2024-01-15", body["date"])
	assert.Equal(t, "daily", body["timeframe"])
	assert.EqualValues(t, 2, body["userRank"])
	assert.EqualValues(t, 30, body["userScore"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "u2", entries[0].(map[string]any)["userId"])

	rec = f.do(t, http.MethodGet, "/api/v1/leaderboard?timeframe=weekly&limit=1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["entries"], 1)

	rec = f.do(t, http.MethodGet, "/api/v1/leaderboard?date=yesterday", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/leaderboard?timeframe=monthly", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/leaderboard?limit=-1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	f := newFixture(t, Config{ChatLimit: 2, ChatWindow: time.Minute})

	rec := f.do(t, http.MethodPost, "/api/v1/ai/chat", "u1", map[string]any{"message": "I keep getting distracted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["response"])

	rec = f.do(t, http.MethodPost, "/api/v1/ai/chat", "u1", map[string]any{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/ai/chat", "u1", map[string]any{"message": strings.Repeat("a", 501)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/ai/chat", "u1", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/ai/chat", "u1", map[string]any{"message": "hello again"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Limits are per user.
	rec = f.do(t, http.MethodPost, "/api/v1/ai/chat", "u2", map[string]any{"message": "hello"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOracleOncePerDay(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/v1/ai/oracle/today", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["oracle"])

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle", "u1", map[string]any{"prompt": "What should I focus on?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	oracle := decode(t, rec)["oracle"].(map[string]any)
	assert.Equal(t, "2024-01-15", oracle["date"])
	message := oracle["message"].(string)
	assert.NotEmpty(t, message)

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle", "u1", map[string]any{"prompt": "Again?"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "DAILY_LIMIT_REACHED", body["error"].(map[string]any)["code"])
	assert.Equal(t, message, body["oracle"].(map[string]any)["message"])

	rec = f.do(t, http.MethodGet, "/api/v1/ai/oracle/today", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, message, decode(t, rec)["oracle"].(map[string]any)["message"])

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle", "u1", map[string]any{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOracleHistoryAndFeedback(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/api/v1/ai/oracle/history", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["history"])

	for day := 1; day <= 9; day++ {
		require.NoError(t, f.ledger.SaveOracleMessage(ctx, &store.OracleMessage{
			UserID:    "u1",
			Date:      fmt.Sprintf("2024-01-%02d", day),
			Prompt:    "focus?",
			Message:   fmt.Sprintf("message %d", day),
			CreatedAt: time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC),
		}))
	}

	rec = f.do(t, http.MethodGet, "/api/v1/ai/oracle/history", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode(t, rec)["history"].([]any)
	require.Len(t, history, 7)
	newest := history[0].(map[string]any)
	assert.Equal(t, "2024-01-09", newest["date"])
	assert.Nil(t, newest["resonates"])

	rec = f.do(t, http.MethodGet, "/api/v1/ai/oracle/history?limit=2", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["history"], 2)

	rec = f.do(t, http.MethodGet, "/api/v1/ai/oracle/history?limit=zero", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/ai/oracle/history", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["history"])

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle/feedback", "u1", map[string]any{"date": "2024-01-09", "resonates": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	msg, err := f.ledger.GetOracleMessage(ctx, "u1", "2024-01-09")
	require.NoError(t, err)
	require.NotNil(t, msg.Resonates)
	assert.False(t, *msg.Resonates)

	rec = f.do(t, http.MethodGet, "/api/v1/ai/oracle/history?limit=1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["history"].([]any)[0].(map[string]any)["resonates"])

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle/feedback", "u2", map[string]any{"date": "2024-01-09", "resonates": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORACLE_NOT_FOUND", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle/feedback", "u1", map[string]any{"date": "2024-01-09"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/ai/oracle/feedback", "u1", map[string]any{"date": "January 9", "resonates": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", errors.New("model offline")
}

func TestDeepWorkQuote(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/v1/ai/deep-work-quote", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode(t, rec)["quote"].(string)
	assert.NotEmpty(t, quote)
	assert.LessOrEqual(t, len([]rune(quote)), assistant.MaxQuote)

	rec = f.do(t, http.MethodPost, "/api/v1/ai/deep-work-quote", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f = newFixture(t, Config{}, func(d *Deps) { d.Quote = failingGenerator{} })
	rec = f.do(t, http.MethodPost, "/api/v1/ai/deep-work-quote", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, assistant.DefaultQuote, decode(t, rec)["quote"])
}

func TestRequestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodGet, "/api/v1/stats", "u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/stats", "u1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{})

	f.do(t, http.MethodGet, "/api/v1/health/", "", nil)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "focusflow_http_request_duration_seconds")
}
