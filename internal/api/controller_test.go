package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/auth"
	"github.com/Europeia/eurocore/internal/nation"
	"github.com/Europeia/eurocore/internal/ratelimit"
	"github.com/Europeia/eurocore/internal/remote"
	"github.com/Europeia/eurocore/internal/store"
	"github.com/Europeia/eurocore/internal/worker"
)

type testClaims struct {
	jwt.RegisteredClaims
	Claims []string `json:"claims"`
}

const testSchema = `
CREATE TABLE dispatch_queue (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	dispatch_id INTEGER,
	error       TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE rmbpost_queue (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	nation      TEXT NOT NULL,
	region      TEXT NOT NULL,
	content     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	rmbpost_id  INTEGER,
	error       TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE dispatches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dispatch_id INTEGER NOT NULL UNIQUE,
	nation      TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE dispatch_content (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dispatch_id INTEGER NOT NULL REFERENCES dispatches(id),
	category    SMALLINT NOT NULL,
	subcategory SMALLINT NOT NULL,
	title       TEXT NOT NULL,
	text        TEXT NOT NULL,
	created_by  TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const testSecret = "test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	_, err = conn.Exec(testSchema)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	db := store.OpenConn(conn)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	limiter := ratelimit.Start(ctx, ratelimit.DefaultConfig())
	dispatchNations := nation.Start(ctx, map[string]string{"testlandia": "pw"})
	rmbpostNations := nation.Start(ctx, map[string]string{"testlandia": "pw"})

	noopRemote := remote.New("eurocore-test", "tgkey", limiter, dispatchNations)
	log := zap.NewNop()

	dispatchWorker := worker.StartDispatchWorker(ctx, limiter, dispatchNations, noopRemote, db, log)
	rmbpostWorker := worker.StartRmbPostWorker(ctx, limiter, rmbpostNations, noopRemote, db, log)
	telegramWorker := worker.StartTelegramWorker(ctx, limiter, noopRemote, log)

	controller := NewController(db, dispatchNations, rmbpostNations, limiter, dispatchWorker, rmbpostWorker, telegramWorker, log)
	verifier := auth.New(testSecret)
	return NewRouter(controller, verifier, log)
}

func bearerToken(t *testing.T, claim string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Claims: []string{claim},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestCreateDispatchRequiresClaim(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"nation": "testlandia", "title": "T", "text": "hi", "category": 1, "subcategory": 100})
	req := httptest.NewRequest(http.MethodPost, "/dispatches", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateDispatchAcceptedWithValidClaim(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"nation": "testlandia", "title": "T", "text": "hi", "category": 1, "subcategory": 100})
	req := httptest.NewRequest(http.MethodPost, "/dispatches", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "dispatches.create"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Location"))
	require.NotEmpty(t, rec.Header().Get("dispatch-nations"))
}

func TestCreateDispatchRejectsUnknownFactbookCategory(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"nation": "testlandia", "title": "T", "text": "hi", "category": 99, "subcategory": 1})
	req := httptest.NewRequest(http.MethodPost, "/dispatches", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "dispatches.create"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDispatchJobNotFoundReturns404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/queue/dispatches/999", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsNeedsNoAuthAndExposesCounters(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "eurocore_ratelimit_bucket_depth{bucket=\"global\"}")
	require.Contains(t, body, "eurocore_worker_queue_depth{worker=\"dispatch\"}")
	require.Contains(t, body, "eurocore_worker_queue_depth{worker=\"telegram\",kind=\"recruitment\"}")
}

func TestPollDispatchAfterAcceptEventuallySucceeds(t *testing.T) {
	remoteServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("mode") == "prepare" {
			_, _ = w.Write([]byte(`<NATIONSTATES><SUCCESS>TOKEN</SUCCESS></NATIONSTATES>`))
			return
		}
		_, _ = w.Write([]byte(`<NATIONSTATES><SUCCESS>id=42 created</SUCCESS></NATIONSTATES>`))
	}))
	defer remoteServer.Close()

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(testSchema)
	require.NoError(t, err)
	db := store.OpenConn(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ratelimit.Start(ctx, ratelimit.DefaultConfig())
	dispatchNations := nation.Start(ctx, map[string]string{"testlandia": "pw"})
	rmbpostNations := nation.Start(ctx, map[string]string{"testlandia": "pw"})
	client := remote.New("eurocore-test", "tgkey", limiter, dispatchNations)
	client.SetBaseURL(remoteServer.URL)
	log := zap.NewNop()

	dispatchWorker := worker.StartDispatchWorker(ctx, limiter, dispatchNations, client, db, log)
	rmbpostWorker := worker.StartRmbPostWorker(ctx, limiter, rmbpostNations, client, db, log)
	telegramWorker := worker.StartTelegramWorker(ctx, limiter, client, log)
	controller := NewController(db, dispatchNations, rmbpostNations, limiter, dispatchWorker, rmbpostWorker, telegramWorker, log)
	router := NewRouter(controller, auth.New(testSecret), log)

	body, _ := json.Marshal(map[string]any{"nation": "testlandia", "title": "T", "text": "hi", "category": 1, "subcategory": 100})
	req := httptest.NewRequest(http.MethodPost, "/dispatches", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "dispatches.create"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)

	require.Eventually(t, func() bool {
		pollReq := httptest.NewRequest(http.MethodGet, location, nil)
		pollRec := httptest.NewRecorder()
		router.ServeHTTP(pollRec, pollReq)
		if pollRec.Code != http.StatusOK {
			return false
		}
		var got map[string]any
		_ = json.Unmarshal(pollRec.Body.Bytes(), &got)
		return got["status"] == "success"
	}, 2*time.Second, 20*time.Millisecond)
}
