package rpc

import (
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

type PrepareRequest struct {
	Params job.Params `json:"params"`
}

type PrepareResponse struct {
	Circuit *quantum.Circuit `json:"circuit"`
}

type ExecuteBatchRequest struct {
	Circuits []*quantum.Circuit `json:"circuits"`
}

type ExecuteBatchResponse struct {
	Results []job.Counts `json:"results"`
}

type HealthRequest struct{}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Backend string `json:"backend"`
}
