package ws

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/notify"
)

const maxClientMessage = 512

type Config struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Handler upgrades /ws/:id requests and attaches the connection to the
// broker as the job's live channel.
type Handler struct {
	broker   *notify.Broker
	jobs     *job.Registry
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler builds the websocket endpoint. An id is accepted while either
// the job registry or the broker still knows it; jobs may be nil, in which
// case any id is accepted.
func NewHandler(broker *notify.Broker, jobs *job.Registry, cfg Config) *Handler {
	h := &Handler{broker: broker, jobs: jobs, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/:id", h.Serve)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

func (h *Handler) Serve(c echo.Context) error {
	jobID := c.Param("id")
	if h.jobs != nil {
		if _, err := h.jobs.Get(jobID); err != nil && !h.broker.Known(jobID) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		log.Debug().Err(err).Str("job_id", jobID).Msg("websocket upgrade failed")
		return nil
	}

	ch := NewChannel(conn, jobID, h.cfg.SendBuffer, h.cfg.WriteTimeout, h.requeue)
	drained, closed, err := h.broker.Attach(jobID, ch)
	if err != nil {
		log.Debug().Err(err).Str("job_id", jobID).Msg("attach failed")
	}
	log.Debug().Str("job_id", jobID).Int("drained", drained).Bool("finished", closed).Msg("websocket attached")

	readUntilClosed(conn)

	h.broker.Detach(jobID, ch)
	_ = ch.Close()
	<-ch.Done()
	return nil
}

func (h *Handler) requeue(c *Channel, msgs []job.Message) {
	h.broker.Requeue(c.jobID, c, msgs)
}

// readUntilClosed discards client frames until the connection fails or is
// closed by the writer.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(maxClientMessage)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
