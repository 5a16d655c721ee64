package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/viperadnan-git/qrunner/internal/core/compute/local"
	"github.com/viperadnan-git/qrunner/internal/core/event"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
	"github.com/viperadnan-git/qrunner/internal/core/pipeline"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

type testEnv struct {
	e     *echo.Echo
	jobs  *job.Registry
	board *leaderboard.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := local.New(local.Config{Device: quantum.NewDevice(6, 9), Seed: 1})
	jobs := job.NewRegistry(100, time.Hour)
	board := leaderboard.NewStore(10)
	p := pipeline.New(pipeline.Config{}, backend, nil, event.NewBus(), jobs)

	e := echo.New()
	SetupRouter(e, RouterConfig{
		Pipeline:    p,
		Jobs:        jobs,
		Leaderboard: board,
	})
	return &testEnv{e: e, jobs: jobs, board: board}
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestSubmitReturnsTaskID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/submit", `{"username":"alice","q1":0,"q2":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("body should only carry task_id: %v", body)
	}
	id, _ := body["task_id"].(string)
	if id == "" {
		t.Fatalf("missing task_id: %v", body)
	}

	rec = env.do(http.MethodGet, "/jobs/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get job status = %d", rec.Code)
	}
	var snap job.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ID != id || snap.Status != job.StatusQueued || snap.Username != "alice" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing username", `{"q1":0,"q2":1}`, http.StatusUnprocessableEntity},
		{"empty username", `{"username":"","q1":0,"q2":1}`, http.StatusUnprocessableEntity},
		{"blank username", `{"username":"   ","q1":0,"q2":1}`, http.StatusUnprocessableEntity},
		{"negative qubit", `{"username":"bob","q1":-1,"q2":1}`, http.StatusUnprocessableEntity},
		{"malformed", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/submit", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body)
			}
			var body struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Error == "" {
				t.Fatalf("error body = %s", rec.Body)
			}
		})
	}
}

func TestOutOfRangeQubitsAreAccepted(t *testing.T) {
	env := newTestEnv(t)

	// Device range is checked when the job is prepared, not at submit.
	rec := env.do(http.MethodPost, "/submit", `{"username":"dave","q1":0,"q2":99}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/leaderboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("empty leaderboard = %s", got)
	}

	env.board.Append(leaderboard.Entry{Username: "low", Q1: 0, Q2: 53, Result: job.Counts{"00": 300, "01": 400}})
	env.board.Append(leaderboard.Entry{Username: "high", Q1: 0, Q2: 1, Result: job.Counts{"00": 500, "11": 500}})

	var entries []leaderboard.Entry
	rec = env.do(http.MethodGet, "/leaderboard", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[0].Username != "low" {
		t.Fatalf("recent order = %+v", entries)
	}

	rec = env.do(http.MethodGet, "/leaderboard?order=score", "")
	entries = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[0].Username != "high" {
		t.Fatalf("score order = %+v", entries)
	}

	if rec := env.do(http.MethodGet, "/leaderboard?order=bogus", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad order status = %d", rec.Code)
	}
}

func TestUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/jobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		Queued  int    `json:"queued"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Backend != local.Name {
		t.Fatalf("health = %+v", body)
	}
}

func TestHistoryDisabledWithoutArchive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
