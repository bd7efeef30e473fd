package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipdash/internal/api"
)

const (
	testEncKey  = "0123456789abcdef0123456789abcdef"
	testSignKey = "fedcba9876543210fedcba9876543210"
)

// fakeBackend answers the handful of endpoints slipctl talks to.
type fakeBackend struct {
	mu      sync.Mutex
	patched map[string]map[string]any
	queries []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, string) {
	t.Helper()
	fb := &fakeBackend{patched: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Incorrect username or password"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"tok-`+r.FormValue("username")+`","token_type":"bearer"}`)
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /upload/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"extracted": {"bank":"KBank","date":"11/01/26","time":"9:05","amount":"100","text":"coffee"},
			"suggested_category": "Food&Drink",
			"transaction_id": 42
		}`)
	})
	mux.HandleFunc("PATCH /transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-alice" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fb.mu.Lock()
		fb.patched[r.PathValue("id")] = body
		fb.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
				return
			}
			fb.mu.Lock()
			fb.queries = append(fb.queries, r.URL.Path+"?"+r.URL.RawQuery)
			fb.mu.Unlock()
			h(w, r)
		}
	}
	mux.HandleFunc("GET /dashboard/", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"cards":{}}`)
	}))
	mux.HandleFunc("GET /stats", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"cards":{"total_transactions":3}}`)
	}))
	mux.HandleFunc("GET /transactions/", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"rows":[{"id":7,"bank":"","amount":"12.5","category":"transport"}]}`)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv.URL
}

func (fb *fakeBackend) patch(id string) map[string]any {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.patched[id]
}

func (fb *fakeBackend) lastQuery() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.queries) == 0 {
		return ""
	}
	return fb.queries[len(fb.queries)-1]
}

type runner struct {
	t       *testing.T
	apiURL  string
	db      string
	persist bool
	now     time.Time
}

func (r runner) run(stdin string, args ...string) (string, error) {
	r.t.Helper()
	var cmd command
	parser, err := kong.New(&cmd, kong.Name("slipctl"), kong.Exit(func(int) { r.t.Fatal("unexpected exit") }))
	require.NoError(r.t, err)

	global := []string{"--api-url", r.apiURL, "--log-level", "error", "--db", r.db}
	if r.persist {
		global = append(global, "--enc-key", testEncKey, "--sign-key", testSignKey)
	}
	kctx, err := parser.Parse(append(global, args...))
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	a, err := newApp(context.Background(), cmd.Globals, strings.NewReader(stdin), &out, io.Discard)
	require.NoError(r.t, err)
	if !r.now.IsZero() {
		a.now = func() time.Time { return r.now }
	}
	err = kctx.Run(a)
	require.NoError(r.t, a.Close())
	return out.String(), err
}

func newRunner(t *testing.T, apiURL string, persist bool) runner {
	t.Helper()
	return runner{t: t, apiURL: apiURL, db: filepath.Join(t.TempDir(), "slipdash.db"), persist: persist}
}

func TestLoginRemembersAcrossInvocations(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "")
	_, url := newFakeBackend(t)
	r := newRunner(t, url, true)

	out, err := r.run("secret\n", "login", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as alice (persistent)")

	out, err = r.run("", "dashboard", "--view", "month")
	require.NoError(t, err)
	assert.Contains(t, out, `"cards"`)

	_, err = r.run("", "logout")
	require.NoError(t, err)

	_, err = r.run("", "dashboard")
	assert.Error(t, err, "token is gone after logout")
}

func TestLoginWithoutRememberDoesNotPersist(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "secret")
	_, url := newFakeBackend(t)
	r := newRunner(t, url, true)

	out, err := r.run("", "login", "alice", "--no-remember")
	require.NoError(t, err)
	assert.Contains(t, out, "(session)")

	_, err = r.run("", "stats")
	assert.Error(t, err)
}

func TestLoginRejected(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "")
	_, url := newFakeBackend(t)
	r := newRunner(t, url, false)

	_, err := r.run("wrong\n", "login", "alice")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	_, err = r.run("", "login", "alice")
	assert.EqualError(t, err, "password is required")
}

func TestRegister(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "pw")
	_, url := newFakeBackend(t)
	out, err := newRunner(t, url, false).run("", "register", "bob", "b@x.io")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered bob")
}

func TestUploadReviewAndSave(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "secret")
	fb, url := newFakeBackend(t)
	r := newRunner(t, url, true)
	_, err := r.run("", "login", "alice")
	require.NoError(t, err)

	slip := filepath.Join(t.TempDir(), "slip.png")
	require.NoError(t, os.WriteFile(slip, []byte("\x89PNG\r\n\x1a\nDATA"), 0o600))

	out, err := r.run("", "upload", slip,
		"--date", "2026-01-11", "--time", "09:05", "--category", "transport", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, `"transaction_id": "42"`)
	assert.Contains(t, out, `"category_source": "selected"`)
	assert.Contains(t, out, "Saved transaction 42")

	body := fb.patch("42")
	require.NotNil(t, body)
	assert.Equal(t, "Transport", body["category"])
	assert.Equal(t, "KBank", body["bank"])
}

func TestUploadEmptyFlagClearsField(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "secret")
	fb, url := newFakeBackend(t)
	r := newRunner(t, url, true)
	_, err := r.run("", "login", "alice")
	require.NoError(t, err)

	slip := filepath.Join(t.TempDir(), "slip.png")
	require.NoError(t, os.WriteFile(slip, []byte("\x89PNG\r\n\x1a\nDATA"), 0o600))

	out, err := r.run("", "upload", slip, "--amount=", "--category", "transport", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, `"amount": ""`)
	assert.Contains(t, out, `"bank": "KBank"`, "flags left off keep the extracted value")

	body := fb.patch("42")
	require.NotNil(t, body)
	amount, ok := body["amount"]
	assert.True(t, ok)
	assert.Nil(t, amount)
	assert.Equal(t, "KBank", body["bank"])
}

func TestUploadWithoutSaveLeavesBackendUntouched(t *testing.T) {
	fb, url := newFakeBackend(t)
	r := newRunner(t, url, false)

	slip := filepath.Join(t.TempDir(), "slip.jpg")
	require.NoError(t, os.WriteFile(slip, []byte("jpegdata"), 0o600))

	out, err := r.run("", "upload", slip)
	require.NoError(t, err)
	assert.Contains(t, out, `"category": "Food&Drink"`)
	assert.Contains(t, out, `"can_save": false`, "not logged in")
	assert.Nil(t, fb.patch("42"))
}

func TestUploadRejectsUnknownCategory(t *testing.T) {
	_, url := newFakeBackend(t)
	r := newRunner(t, url, false)
	slip := filepath.Join(t.TempDir(), "slip.png")
	require.NoError(t, os.WriteFile(slip, []byte("x"), 0o600))

	_, err := r.run("", "upload", slip, "--category", "groceries")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	_, url := newFakeBackend(t)
	out, err := newRunner(t, url, false).run("", "classify", "grab", "ride")
	require.NoError(t, err)
	assert.Equal(t, "🚌 Transport (guessed)\n", out)
}

func TestTransactionsAndStatsRanges(t *testing.T) {
	t.Setenv("SLIPDASH_PASSWORD", "secret")
	fb, url := newFakeBackend(t)
	r := newRunner(t, url, true)
	r.now = time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	_, err := r.run("", "login", "alice")
	require.NoError(t, err)

	out, err := r.run("", "transactions", "--range", "month", "--bank", "KBank")
	require.NoError(t, err)
	assert.Contains(t, out, `"Transport"`)
	q := fb.lastQuery()
	assert.Contains(t, q, "/transactions/?")
	assert.Contains(t, q, "month=3")
	assert.Contains(t, q, "year=2026")
	assert.Contains(t, q, "bank=KBank")

	_, err = r.run("", "stats", "--range", "year", "--year", "2025")
	require.NoError(t, err)
	q = fb.lastQuery()
	assert.Contains(t, q, "range=year")
	assert.Contains(t, q, "year=2025")
	assert.NotContains(t, q, "month=")

	_, err = r.run("", "stats", "--range", "month", "--month", "13")
	assert.ErrorIs(t, err, api.ErrInvalidRange)
}

func TestRangeFlagsQuery(t *testing.T) {
	now := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)

	q, err := rangeFlags{Range: "all", Year: 2020, Month: 4}.query(now)
	require.NoError(t, err)
	assert.Equal(t, api.RangeQuery{Kind: api.RangeAll}, q)

	q, err = rangeFlags{Range: "month"}.query(now)
	require.NoError(t, err)
	assert.Equal(t, api.RangeQuery{Kind: api.RangeMonth, Year: 2026, Month: 7}, q)

	q, err = rangeFlags{Range: "year", Month: 2}.query(now)
	require.NoError(t, err)
	assert.Equal(t, api.RangeQuery{Kind: api.RangeYear, Year: 2026}, q)
}

func TestBadKeysFailFast(t *testing.T) {
	_, err := newApp(context.Background(), globals{
		APIURL:  "http://localhost:8000",
		EncKey:  "short",
		SignKey: testSignKey,
		DB:      filepath.Join(t.TempDir(), "x.db"),
	}, strings.NewReader(""), io.Discard, io.Discard)
	assert.ErrorContains(t, err, "credential keys")
}
