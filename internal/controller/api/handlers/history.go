package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/archive"
)

type HistoryHandler struct {
	store archive.Store
}

func NewHistoryHandler(store archive.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

type ListHistoryInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Max records"`
}

type ListHistoryOutput struct {
	Body []archive.Record
}

func (h *HistoryHandler) List(ctx context.Context, input *ListHistoryInput) (*ListHistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = archive.DefaultRecentLimit
	}
	records, err := h.store.Recent(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read job history")
		return nil, huma.Error500InternalServerError("failed to read job history")
	}
	if records == nil {
		records = []archive.Record{}
	}
	return &ListHistoryOutput{Body: records}, nil
}
