package handlers

import (
	"context"

	"github.com/viperadnan-git/qrunner/internal/core/leaderboard"
)

type LeaderboardHandler struct {
	store *leaderboard.Store
}

func NewLeaderboardHandler(store *leaderboard.Store) *LeaderboardHandler {
	return &LeaderboardHandler{store: store}
}

type ListLeaderboardInput struct {
	Order string `query:"order" enum:"recent,score" default:"recent" doc:"recent keeps insertion order, score sorts by count(00)+count(11)"`
}

type ListLeaderboardOutput struct {
	Body []leaderboard.Entry
}

func (h *LeaderboardHandler) List(_ context.Context, input *ListLeaderboardInput) (*ListLeaderboardOutput, error) {
	if input.Order == "score" {
		return &ListLeaderboardOutput{Body: h.store.ByScore()}, nil
	}
	return &ListLeaderboardOutput{Body: h.store.List()}, nil
}
