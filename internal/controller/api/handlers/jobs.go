package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/viperadnan-git/qrunner/internal/core/job"
)

// Submitter accepts jobs into the pipeline.
type Submitter interface {
	Submit(ctx context.Context, params job.Params) (*job.Job, error)
}

type JobsHandler struct {
	pipeline Submitter
	jobs     *job.Registry
}

func NewJobsHandler(p Submitter, jobs *job.Registry) *JobsHandler {
	return &JobsHandler{pipeline: p, jobs: jobs}
}

type SubmitInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" maxLength:"64" doc:"Name shown on the leaderboard"`
		Q1       int    `json:"q1" minimum:"0" doc:"Physical qubit for the control"`
		Q2       int    `json:"q2" minimum:"0" doc:"Physical qubit for the target"`
	}
}

type SubmitBody struct {
	TaskID string `json:"task_id" doc:"Job ID to follow on /ws/{task_id}"`
}

type SubmitOutput struct {
	Body SubmitBody
}

func (h *JobsHandler) Submit(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	j, err := h.pipeline.Submit(ctx, job.Params{
		Username: input.Body.Username,
		Q1:       input.Body.Q1,
		Q2:       input.Body.Q2,
	})
	if err != nil {
		return nil, submitError(err)
	}
	return &SubmitOutput{Body: SubmitBody{TaskID: j.ID}}, nil
}

type JobIDInput struct {
	ID string `path:"id" doc:"Job ID"`
}

type JobOutput struct {
	Body job.Snapshot
}

func (h *JobsHandler) Get(_ context.Context, input *JobIDInput) (*JobOutput, error) {
	snap, err := h.jobs.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("job not found")
	}
	return &JobOutput{Body: snap}, nil
}
