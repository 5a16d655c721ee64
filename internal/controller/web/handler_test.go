package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndexPage(t *testing.T) {
	board := leaderboard.NewStore(10)
	board.Append(leaderboard.Entry{
		Username: "alice",
		Q1:       0,
		Q2:       1,
		Result:   job.Counts{"00": 510, "11": 490, "01": 24},
		Image:    "data:image/svg+xml;base64,PHN2Zy8+",
	})

	e := echo.New()
	NewHandler(board, quantum.NewDevice(6, 9)).RegisterRoutes(e)

	rec := get(e, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Quantum Bell State Simulator", "grid-6x9", `max="53"`, "alice", "<td>1000</td>", "data:image/svg+xml;base64,PHN2Zy8+"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestLeaderboardFragmentEmpty(t *testing.T) {
	e := echo.New()
	NewHandler(leaderboard.NewStore(10), quantum.NewDevice(2, 2)).RegisterRoutes(e)

	rec := get(e, "/web/leaderboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No entries yet") {
		t.Fatalf("body = %s", rec.Body)
	}
}
