package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"peer-match/internal/config"
	"peer-match/internal/domain/match"
	"peer-match/internal/domain/member"
	"peer-match/internal/domain/reminder"
	"peer-match/internal/infrastructure/cache"
	"peer-match/internal/repository/memstore"
	ucauth "peer-match/internal/usecase/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testCronSecret = "cron-secret"
	testBotToken   = "100:test-token"
)

var (
	idA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	idD = uuid.MustParse("00000000-0000-0000-0000-00000000000d")
)

type telegramStub struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (s *telegramStub) handler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.sent[body.ChatID] = append(s.sent[body.ChatID], body.Text)
	s.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (s *telegramStub) to(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[chatID]...)
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	app   *App
	store *memstore.Store
	tg    *telegramStub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tg := &telegramStub{sent: map[int64][]string{}}
	srv := httptest.NewServer(http.HandlerFunc(tg.handler))
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testCronSecret), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Config{
		App:      config.AppConfig{AppName: "peer-match-test"},
		JWT:      config.JWTConfig{AccessSecret: "a", RefreshSecret: "r", AccessExpiresIn: time.Hour, RefreshExpiresIn: time.Hour, InitDataMaxAge: time.Hour},
		Cron:     config.CronConfig{SecretHash: string(hash)},
		Matching: config.DefaultMatching(),
		Notify:   config.DefaultNotify(),
	}
	cfg.Notify.BotToken = testBotToken
	cfg.Notify.APIBaseURL = srv.URL
	cfg.Notify.RatePerSecond = 1000

	store := memstore.New()
	seed := []struct {
		id        uuid.UUID
		addr      int64
		name      string
		skills    []string
		interests []string
	}{
		{idA, 1, "ada", []string{"s1", "s2"}, []string{"i1"}},
		{idB, 2, "bob", []string{"s1", "s3"}, []string{"i1", "i2"}},
		{idC, 3, "cy", []string{"s4"}, []string{"i3"}},
		{idD, 4, "dee", []string{"s4", "s5"}, []string{"i3"}},
	}
	for _, s := range seed {
		store.PutMember(
			member.Member{ID: s.id, OptIn: true, Skills: member.NewTagSet(s.skills...), Interests: member.NewTagSet(s.interests...), MessagingAddress: s.addr},
			member.Profile{FirstName: s.name, Username: s.name},
		)
	}

	stores := Stores{
		Members:   store.Members,
		Matches:   store.Matches,
		Consents:  store.Consents,
		Reminders: store.Reminders,
		Outbox:    store.Outbox,
	}
	c, err := Wire(cfg, stores, cache.NewRedisFromClient(client, 5*time.Second, nil), nil)
	require.NoError(t, err)

	return &testServer{app: New(c), store: store, tg: tg}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Fiber.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (s *testServer) bearer(t *testing.T, id uuid.UUID) map[string]string {
	t.Helper()
	tok, err := s.app.Container.JWT.GenerateAccessToken(id, 0)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func cron() map[string]string {
	return map[string]string{"X-Cron-Secret": testCronSecret}
}

func TestApp_Health(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.JSONEq(t, `{"status":"up","cache":"up"}`, string(env.Data))
}

func TestApp_Metrics(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Fiber.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "go_goroutines")
}

func TestApp_TriggersRequireCronSecret(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/matching/run", "/api/v1/reminders/sweep", "/api/v1/notifications/redeliver"} {
		code, _ := s.do(t, http.MethodPost, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)

		code, _ = s.do(t, http.MethodPost, path, nil, map[string]string{"X-Cron-Secret": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, code, path)
	}
}

func TestApp_MatchAndConsentFlow(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/matching/run", nil, cron())
	require.Equal(t, http.StatusOK, code)
	var run struct {
		Status   string   `json:"status"`
		Matched  int      `json:"matched"`
		MatchIDs []string `json:"match_ids"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, "matched", run.Status)
	assert.Equal(t, 2, run.Matched)
	require.Len(t, run.MatchIDs, 2)

	code, env = s.do(t, http.MethodGet, "/api/v1/matches", nil, s.bearer(t, idA))
	require.Equal(t, http.StatusOK, code)
	var views []struct {
		ID              string `json:"id"`
		CounterpartName string `json:"counterpart_name"`
		Status          string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 1)
	assert.Contains(t, run.MatchIDs, views[0].ID)
	assert.Equal(t, "bob", views[0].CounterpartName)
	assert.Equal(t, "pending", views[0].Status)
	abID := views[0].ID

	consent := func(id uuid.UUID, matchID string, v bool) (int, string) {
		code, env := s.do(t, http.MethodPost, "/api/v1/matches/consent", map[string]any{"match_id": matchID, "consent": v}, s.bearer(t, id))
		var out struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(env.Data, &out)
		return code, out.Status
	}

	code, st := consent(idA, abID, true)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", st)

	code, _ = consent(idC, abID, true)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = consent(idA, uuid.NewString(), true)
	assert.Equal(t, http.StatusNotFound, code)

	code, st = consent(idB, abID, true)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "consented", st)

	require.Len(t, s.tg.to(1), 1)
	assert.Contains(t, s.tg.to(1)[0], "https://t.me/bob")
	require.Len(t, s.tg.to(2), 1)

	code, _ = consent(idB, abID, false)
	assert.Equal(t, http.StatusConflict, code)
}

func TestApp_ConsentValidation(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/matches/consent", map[string]any{"match_id": uuid.NewString(), "consent": true}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	for _, body := range []map[string]any{
		{"match_id": "not-a-uuid", "consent": true},
		{"match_id": uuid.NewString()},
		{"consent": true},
	} {
		code, _ := s.do(t, http.MethodPost, "/api/v1/matches/consent", body, s.bearer(t, idA))
		assert.Equal(t, http.StatusBadRequest, code, "%v", body)
	}
}

func TestApp_ReminderSweep(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/matching/run", nil, cron())
	require.Equal(t, http.StatusOK, code)

	var cd match.Match
	for _, m := range s.store.AllMatches() {
		if m.HasParty(idC) {
			cd = m
		}
	}
	require.True(t, cd.HasParty(idD))

	s.store.PutEvent(reminder.Event{
		ID:       uuid.New(),
		MatchID:  cd.ID,
		StartsAt: time.Now().Add(time.Hour),
		RemindAt: time.Now().Add(-time.Minute),
		Status:   reminder.StatusScheduled,
	})

	code, env := s.do(t, http.MethodPost, "/api/v1/reminders/sweep", nil, cron())
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Sent int `json:"sent"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out.Sent)
	assert.Len(t, s.tg.to(3), 1)
	assert.Len(t, s.tg.to(4), 1)
}

func TestApp_Redeliver(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/notifications/redeliver", map[string]any{"limit": 10}, cron())
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Zero(t, out.Sent)

	code, _ = s.do(t, http.MethodPost, "/api/v1/notifications/redeliver", map[string]any{"limit": 1000}, cron())
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestApp_TelegramLogin(t *testing.T) {
	s := newTestServer(t)

	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	v.Set("user", `{"id":9001,"first_name":"New","username":"newbie"}`)
	v.Set("hash", ucauth.Sign(ucauth.SecretFor(testBotToken), v))

	code, env := s.do(t, http.MethodPost, "/api/v1/auth/telegram", map[string]any{"init_data": v.Encode()}, nil)
	require.Equal(t, http.StatusOK, code)
	var sess struct {
		MemberID     string `json:"member_id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	assert.NotEmpty(t, sess.AccessToken)

	code, env = s.do(t, http.MethodGet, "/api/v1/matches", nil, map[string]string{"Authorization": "Bearer " + sess.AccessToken})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))

	code, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, map[string]string{"Authorization": "Bearer " + sess.RefreshToken})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/auth/telegram", map[string]any{"init_data": "user=x&hash=00"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
