package handlers

import (
	"context"
	"time"

	"github.com/viperadnan-git/qrunner/internal/core/compute"
	"github.com/viperadnan-git/qrunner/internal/core/pipeline"
)

// PipelineStatus is the part of the pipeline the health endpoint reads.
type PipelineStatus interface {
	Stats() pipeline.Stats
	Backend() compute.Backend
}

type HealthHandler struct {
	pipeline PipelineStatus
	timeout  time.Duration
}

func NewHealthHandler(p PipelineStatus) *HealthHandler {
	return &HealthHandler{pipeline: p, timeout: 3 * time.Second}
}

type HealthBody struct {
	Status    string `json:"status" enum:"ok,degraded"`
	Backend   string `json:"backend"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	pipeline.Stats
}

type HealthOutput struct {
	Body HealthBody
}

func (h *HealthHandler) Get(ctx context.Context, _ *EmptyInput) (*HealthOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	backend := h.pipeline.Backend()
	hs := backend.Health(ctx)
	body := HealthBody{
		Status:    "ok",
		Backend:   backend.Name(),
		Message:   hs.Message,
		LatencyMS: hs.Latency.Milliseconds(),
		Stats:     h.pipeline.Stats(),
	}
	if !hs.OK {
		body.Status = "degraded"
	}
	return &HealthOutput{Body: body}, nil
}
