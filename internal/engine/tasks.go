package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sprintline/internal/domain"
	"sprintline/internal/events"
	"sprintline/internal/repo"
	"sprintline/internal/sprint"
	"sprintline/internal/timelog"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	OrgID       string
	Title       string
	Description string
	Status      string
	Priority    string
	Points      int
	AssigneeID  string
	StartDate   string
	DueDate     string
	ActorID     string
}

func validStatus(s string) bool {
	return s == domain.StatusTodo || s == domain.StatusInProgress || s == domain.StatusDone
}

func validPriority(p string) bool {
	return p == domain.PriorityLow || p == domain.PriorityMedium || p == domain.PriorityHigh
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.OrgID == "" {
		return domain.Task{}, errors.New("organization is required")
	}
	if opts.Points < 0 {
		return domain.Task{}, errors.New("points must be non-negative")
	}
	if opts.Status == "" {
		opts.Status = domain.StatusTodo
	}
	if !validStatus(opts.Status) {
		return domain.Task{}, fmt.Errorf("invalid status %s", opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !validPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("invalid priority %s", opts.Priority)
	}
	org, err := e.Repo.GetOrganization(ctx, opts.OrgID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.AssigneeID != "" {
		if err := e.RequireMembership(ctx, opts.OrgID, opts.AssigneeID); err != nil {
			return domain.Task{}, fmt.Errorf("assignee: %w", err)
		}
	}
	nowT := e.now().UTC()
	now := nowT.Format(time.RFC3339)
	start := opts.StartDate
	startT := nowT
	if start == "" {
		start = now
	} else {
		startT, err = time.Parse(time.RFC3339, start)
		if err != nil {
			return domain.Task{}, fmt.Errorf("invalid start_date: %w", err)
		}
	}
	if opts.DueDate != "" {
		if _, err := time.Parse(time.RFC3339, opts.DueDate); err != nil {
			return domain.Task{}, fmt.Errorf("invalid due_date: %w", err)
		}
	}
	orgCreated, err := time.Parse(time.RFC3339, org.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("org created_at: %w", err)
	}
	t := domain.Task{
		ID:          uuid.New().String(),
		OrgID:       opts.OrgID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		Points:      opts.Points,
		AssigneeID:  optionalString(opts.AssigneeID),
		CreatedBy:   opts.ActorID,
		StartDate:   start,
		DueDate:     optionalString(opts.DueDate),
		SprintIndex: sprint.IndexFor(startT, orgCreated),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Status == domain.StatusDone {
		t.CompletedAt = &now
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.OrgID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status": t.Status, "sprint_index": t.SprintIndex}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are untouched.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Points      *int
	Assign      *string
	StartDate   *string
	DueDate     *string
	ActorID     string
}

// UpdateTask applies partial updates. The sprint index is recomputed only
// when StartDate is explicitly set; status moving to done stamps
// CompletedAt, moving away clears it.
func (e Engine) UpdateTask(ctx context.Context, orgID string, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.getOrgTask(ctx, orgID, opts.ID)
	if err != nil {
		return t, err
	}
	original := t

	if opts.Title != nil {
		if *opts.Title == "" {
			return t, errors.New("title cannot be empty")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		if !validPriority(*opts.Priority) {
			return t, fmt.Errorf("invalid priority %s", *opts.Priority)
		}
		t.Priority = *opts.Priority
	}
	if opts.Points != nil {
		if *opts.Points < 0 {
			return t, errors.New("points must be non-negative")
		}
		t.Points = *opts.Points
	}
	if opts.Assign != nil {
		if *opts.Assign == "" {
			t.AssigneeID = nil
		} else {
			if err := e.RequireMembership(ctx, orgID, *opts.Assign); err != nil {
				return t, fmt.Errorf("assignee: %w", err)
			}
			t.AssigneeID = opts.Assign
		}
	}
	if opts.StartDate != nil {
		startT, err := time.Parse(time.RFC3339, *opts.StartDate)
		if err != nil {
			return t, fmt.Errorf("invalid start_date: %w", err)
		}
		org, err := e.Repo.GetOrganization(ctx, orgID)
		if err != nil {
			return t, err
		}
		orgCreated, err := time.Parse(time.RFC3339, org.CreatedAt)
		if err != nil {
			return t, fmt.Errorf("org created_at: %w", err)
		}
		t.StartDate = *opts.StartDate
		t.SprintIndex = sprint.IndexFor(startT, orgCreated)
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			if _, err := time.Parse(time.RFC3339, *opts.DueDate); err != nil {
				return t, fmt.Errorf("invalid due_date: %w", err)
			}
			t.DueDate = opts.DueDate
		}
	}
	if opts.Status != nil && *opts.Status != t.Status {
		if !validStatus(*opts.Status) {
			return t, fmt.Errorf("invalid status %s", *opts.Status)
		}
		t.Status = *opts.Status
		if t.Status == domain.StatusDone {
			now := e.now().UTC().Format(time.RFC3339)
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.OrgID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, orgID, taskID, actorID string) error {
	t, err := e.getOrgTask(ctx, orgID, taskID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.OrgID, "task", t.ID, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetTask(ctx context.Context, orgID, taskID string) (domain.Task, error) {
	return e.getOrgTask(ctx, orgID, taskID)
}

// getOrgTask reads a task and enforces tenancy. A task in another org is
// indistinguishable from a missing one.
func (e Engine) getOrgTask(ctx context.Context, orgID, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if orgID != "" && t.OrgID != orgID {
		return domain.Task{}, repo.ErrNotFound
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) AddComment(ctx context.Context, orgID, taskID, text, actorID string) (domain.Comment, error) {
	if text == "" {
		return domain.Comment{}, errors.New("comment text is required")
	}
	t, err := e.getOrgTask(ctx, orgID, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.New().String(),
		TaskID:    t.ID,
		AuthorID:  actorID,
		Text:      text,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Events.Append(ctx, tx, "comment.added", t.OrgID, "task", t.ID, actorID, nil); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (e Engine) ListComments(ctx context.Context, orgID, taskID string) ([]domain.Comment, error) {
	if _, err := e.getOrgTask(ctx, orgID, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, taskID)
}

// LogSession appends an immutable time entry and folds it into the task's
// running total. The task row is re-read inside the transaction so the
// total stays equal to the ledger sum under concurrent writers.
func (e Engine) LogSession(ctx context.Context, orgID, taskID, startedAt, endedAt string, durationSeconds int64, actorID string) (domain.TimeLogEntry, int64, error) {
	// Omitted timestamps describe a session ending now.
	if endedAt == "" {
		endedAt = e.now().UTC().Format(time.RFC3339)
	}
	end, err := time.Parse(time.RFC3339, endedAt)
	if err != nil {
		return domain.TimeLogEntry{}, 0, fmt.Errorf("invalid ended_at: %w", err)
	}
	// Stored timestamps are always UTC so the string ordering in the
	// ledger queries matches chronological order.
	endedAt = end.UTC().Format(time.RFC3339)
	if startedAt == "" {
		startedAt = end.Add(-time.Duration(durationSeconds) * time.Second).UTC().Format(time.RFC3339)
	}
	start, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return domain.TimeLogEntry{}, 0, fmt.Errorf("invalid started_at: %w", err)
	}
	startedAt = start.UTC().Format(time.RFC3339)
	if _, err := e.getOrgTask(ctx, orgID, taskID); err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	entry := domain.TimeLogEntry{
		ID:              uuid.New().String(),
		TaskID:          taskID,
		UserID:          actorID,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: durationSeconds,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	total, err := timelog.ApplyEntry(t.TimeSpentSeconds, entry)
	if err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	if err := e.Repo.InsertTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	t.TimeSpentSeconds = total
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	if err := e.Events.Append(ctx, tx, "time.logged", t.OrgID, "task", t.ID, actorID, events.EventPayload{
		"duration_seconds": durationSeconds,
		"total_seconds":    total,
	}); err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeLogEntry{}, 0, err
	}
	return entry, total, nil
}

func (e Engine) ListTimeEntries(ctx context.Context, orgID, taskID string) ([]domain.TimeLogEntry, error) {
	if _, err := e.getOrgTask(ctx, orgID, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListTimeEntriesForTask(ctx, taskID)
}
