// Package schedule runs recurring site checks on Temporal.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/model"
)

// activityTimeout bounds one full check cycle.
const activityTimeout = 10 * time.Minute

// CheckSummary is the workflow result: the headline numbers of a cycle.
type CheckSummary struct {
	CheckID           string `json:"check_id"`
	VisibilityPercent int    `json:"visibility_percent"`
	APIsCalled        int    `json:"apis_called"`
	ScoreUpdated      bool   `json:"score_updated"`
	RunningScore      int    `json:"running_score"`
	Opportunities     int    `json:"opportunities"`
	Warnings          int    `json:"warnings"`
}

// Runner executes a check cycle.
type Runner interface {
	RunCheck(ctx context.Context, req model.CheckRequest) (*model.CheckCycleResult, error)
}

// Activities holds the activity implementations registered on the worker.
type Activities struct {
	Runner Runner
}

// RunCheck runs one cycle and summarizes it.
func (a *Activities) RunCheck(ctx context.Context, req model.CheckRequest) (*CheckSummary, error) {
	res, err := a.Runner.RunCheck(ctx, req)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidCheckRequest", err)
	}
	return &CheckSummary{
		CheckID:           res.CheckID,
		VisibilityPercent: res.VisibilityPercent,
		APIsCalled:        res.APIsCalled,
		ScoreUpdated:      res.ScoreUpdated,
		RunningScore:      res.RunningScore,
		Opportunities:     len(res.Opportunities),
		Warnings:          len(res.Warnings),
	}, nil
}

// SiteCheckWorkflow runs the RunCheck activity once. Provider failures are
// absorbed inside the cycle, so the activity is never retried; the next
// scheduled run is the retry.
func SiteCheckWorkflow(ctx workflow.Context, req model.CheckRequest) (*CheckSummary, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var a *Activities
	var summary CheckSummary
	if err := workflow.ExecuteActivity(ctx, a.RunCheck, req).Get(ctx, &summary); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("schedule: site check complete",
		"site_id", req.SiteID,
		"check_id", summary.CheckID,
		"visibility_percent", summary.VisibilityPercent,
	)
	return &summary, nil
}

// ScheduleCreator is the subset of client.ScheduleClient used here.
type ScheduleCreator interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
}

// ScheduleID is the Temporal schedule ID of a site.
func ScheduleID(siteID string) string {
	return "geo-check-" + siteID
}

// EnsureSchedule creates the interval schedule of a site. An existing
// schedule is left untouched and reported as created=false.
func EnsureSchedule(ctx context.Context, sc ScheduleCreator, taskQueue string, every time.Duration, req model.CheckRequest) (created bool, err error) {
	if req.SiteID == "" {
		return false, eris.New("schedule: site id is required")
	}
	if every <= 0 {
		return false, eris.Errorf("schedule: interval must be positive, got %s", every)
	}

	id := ScheduleID(req.SiteID)
	_, err = sc.Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: every}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        id,
			Workflow:  SiteCheckWorkflow,
			Args:      []any{req},
			TaskQueue: taskQueue,
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		zap.L().Info("schedule: already exists", zap.String("schedule_id", id))
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "schedule: create %s", id)
	}
	zap.L().Info("schedule: created",
		zap.String("schedule_id", id),
		zap.String("domain", req.Domain),
		zap.Duration("every", every),
	)
	return true, nil
}
