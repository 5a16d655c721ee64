package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/viperadnan-git/qrunner/internal/archive"
	"github.com/viperadnan-git/qrunner/internal/controller/api/handlers"
	"github.com/viperadnan-git/qrunner/internal/controller/api/middleware"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
)

// Pipeline is what the API needs from the job pipeline.
type Pipeline interface {
	handlers.Submitter
	handlers.PipelineStatus
}

type RouterConfig struct {
	Pipeline       Pipeline
	Jobs           *job.Registry
	Leaderboard    *leaderboard.Store
	History        archive.Store // nil disables /history
	RateLimit      float64
	AllowedOrigins []string
	Version        string
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) huma.API {
	handlers.InitErrors()
	e.HTTPErrorHandler = errorHandler(e)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger())
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	if cfg.RateLimit > 0 {
		e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	config := huma.DefaultConfig("qrunner API", version)
	config.Info.Description = "Bell-state job submission, status streaming and leaderboard"
	// Responses are the bare documents clients expect, without $schema links.
	config.CreateHooks = nil

	api := humaecho.New(e, config)

	healthHandler := handlers.NewHealthHandler(cfg.Pipeline)
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness and pipeline counters",
		Tags:        []string{"System"},
	}, healthHandler.Get)

	jobsHandler := handlers.NewJobsHandler(cfg.Pipeline, cfg.Jobs)
	huma.Register(api, huma.Operation{
		OperationID: "submit-job",
		Method:      http.MethodPost,
		Path:        "/submit",
		Summary:     "Submit a Bell-state job",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get the latest status of a job",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Get)

	leaderboardHandler := handlers.NewLeaderboardHandler(cfg.Leaderboard)
	huma.Register(api, huma.Operation{
		OperationID: "list-leaderboard",
		Method:      http.MethodGet,
		Path:        "/leaderboard",
		Summary:     "List completed jobs",
		Tags:        []string{"Leaderboard"},
	}, leaderboardHandler.List)

	if cfg.History != nil {
		historyHandler := handlers.NewHistoryHandler(cfg.History)
		huma.Register(api, huma.Operation{
			OperationID: "list-history",
			Method:      http.MethodGet,
			Path:        "/history",
			Summary:     "List archived job outcomes",
			Tags:        []string{"Leaderboard"},
		}, historyHandler.List)
	}

	return api
}

// errorHandler renders echo-level errors (404 routes, rate limiting, ws
// lookups) in the same {success, error} shape as huma operations.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		} else {
			e.Logger.Error(err)
		}
		body := &handlers.APIError{Success: false, Err: msg}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			e.Logger.Error(err)
		}
	}
}
