package engine

import (
	"context"
	"fmt"
	"time"

	"sprintline/internal/domain"
	"sprintline/internal/repo"
	"sprintline/internal/sprint"
	"sprintline/internal/timelog"
	"sprintline/internal/workload"
)

// SnapshotStats summarizes an org's tasks and the sprint in effect now.
type SnapshotStats struct {
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
	PendingTasks   int    `json:"pending_tasks"`
	SprintIndex    int    `json:"sprint_index"`
	SprintStart    string `json:"sprint_start" format:"date-time"`
	SprintEnd      string `json:"sprint_end" format:"date-time"`
}

// SprintInfo describes one sprint of an organization.
type SprintInfo struct {
	Index int    `json:"index"`
	Start string `json:"start" format:"date-time"`
	End   string `json:"end" format:"date-time"`
}

// Timeline is the per-weekday minute histogram for one week.
type Timeline struct {
	WeekStart string           `json:"week_start" format:"date-time"`
	WeekEnd   string           `json:"week_end" format:"date-time"`
	Minutes   map[string]int64 `json:"minutes"`
}

func (e Engine) orgAnchor(ctx context.Context, orgID string) (domain.Organization, time.Time, error) {
	org, err := e.Repo.GetOrganization(ctx, orgID)
	if err != nil {
		return org, time.Time{}, err
	}
	created, err := time.Parse(time.RFC3339, org.CreatedAt)
	if err != nil {
		return org, time.Time{}, fmt.Errorf("org created_at: %w", err)
	}
	return org, created, nil
}

func (e Engine) Snapshot(ctx context.Context, orgID string) (SnapshotStats, error) {
	_, created, err := e.orgAnchor(ctx, orgID)
	if err != nil {
		return SnapshotStats{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OrgID: orgID})
	if err != nil {
		return SnapshotStats{}, err
	}
	counts := workload.Counts(tasks)
	idx := sprint.IndexFor(e.now(), created)
	start, end := sprint.RangeFor(idx, created)
	return SnapshotStats{
		TotalTasks:     counts.Total,
		CompletedTasks: counts.Completed,
		PendingTasks:   counts.Pending,
		SprintIndex:    idx,
		SprintStart:    start.Format(time.RFC3339),
		SprintEnd:      end.Format(time.RFC3339),
	}, nil
}

func (e Engine) Distribution(ctx context.Context, orgID string) ([]workload.AssigneeAggregate, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OrgID: orgID})
	if err != nil {
		return nil, err
	}
	names, err := e.Repo.UserNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return workload.Distribution(tasks, names), nil
}

func (e Engine) Performance(ctx context.Context, orgID string) ([]workload.AssigneeAggregate, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OrgID: orgID})
	if err != nil {
		return nil, err
	}
	names, err := e.Repo.UserNames(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return workload.Performance(tasks, names), nil
}

// WeeklyTimeline buckets the org's logged time for the sprint containing
// the given instant. A zero instant means the current sprint.
func (e Engine) WeeklyTimeline(ctx context.Context, orgID string, week time.Time) (Timeline, error) {
	_, created, err := e.orgAnchor(ctx, orgID)
	if err != nil {
		return Timeline{}, err
	}
	at := week
	if at.IsZero() {
		at = e.now()
	}
	idx := sprint.IndexFor(at, created)
	start, end := sprint.Window(idx, created)
	entries, err := e.Repo.ListTimeEntriesForOrg(ctx, orgID,
		start.Format(time.RFC3339), end.Format(time.RFC3339))
	if err != nil {
		return Timeline{}, err
	}
	return Timeline{
		WeekStart: start.Format(time.RFC3339),
		WeekEnd:   end.Format(time.RFC3339),
		Minutes:   timelog.WeeklyHistogram(entries, start, end),
	}, nil
}

// CurrentSprint returns the sprint in effect at the engine clock.
func (e Engine) CurrentSprint(ctx context.Context, orgID string) (SprintInfo, error) {
	_, created, err := e.orgAnchor(ctx, orgID)
	if err != nil {
		return SprintInfo{}, err
	}
	idx := sprint.IndexFor(e.now(), created)
	return e.sprintInfo(idx, created), nil
}

// SprintByIndex returns the display range of a given sprint.
func (e Engine) SprintByIndex(ctx context.Context, orgID string, index int) (SprintInfo, error) {
	_, created, err := e.orgAnchor(ctx, orgID)
	if err != nil {
		return SprintInfo{}, err
	}
	if index < 1 {
		index = 1
	}
	return e.sprintInfo(index, created), nil
}

func (e Engine) sprintInfo(index int, created time.Time) SprintInfo {
	start, end := sprint.RangeFor(index, created)
	return SprintInfo{
		Index: index,
		Start: start.Format(time.RFC3339),
		End:   end.Format(time.RFC3339),
	}
}
