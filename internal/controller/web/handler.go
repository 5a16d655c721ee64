package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

//go:embed templates
var templateFS embed.FS

// Handler serves the bundled single-page client and the leaderboard
// fragment it refreshes after each finished job.
type Handler struct {
	templates *template.Template
	board     *leaderboard.Store
	device    quantum.Device
}

func NewHandler(board *leaderboard.Store, device quantum.Device) *Handler {
	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"score": func(c job.Counts) int { return c.Score() },
		"safeURL": func(s string) template.URL {
			// rendered diagrams are always data:image/svg+xml URIs
			return template.URL(s)
		},
	}).ParseFS(templateFS, "templates/*.html"))

	return &Handler{templates: tmpl, board: board, device: device}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.indexPage)
	e.GET("/web/leaderboard", h.leaderboardFragment)
}

type pageData struct {
	Title    string
	Device   string
	MaxQubit int
	Entries  []leaderboard.Entry
}

func (h *Handler) render(c echo.Context, page string, data pageData) error {
	data.Device = h.device.Name()
	data.MaxQubit = h.device.NumQubits() - 1
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return h.templates.ExecuteTemplate(c.Response(), page, data)
}

func (h *Handler) indexPage(c echo.Context) error {
	return h.render(c, "index.html", pageData{
		Title:   "Quantum Bell State Simulator",
		Entries: h.board.ByScore(),
	})
}

func (h *Handler) leaderboardFragment(c echo.Context) error {
	return h.render(c, "leaderboard.html", pageData{Entries: h.board.ByScore()})
}
