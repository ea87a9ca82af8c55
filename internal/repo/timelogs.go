package repo

import (
	"context"
	"database/sql"

	"sprintline/internal/domain"
)

func (r Repo) InsertTimeEntry(ctx context.Context, tx *sql.Tx, e domain.TimeLogEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_entries(id,task_id,user_id,started_at,ended_at,duration_seconds) VALUES (?,?,?,?,?,?)`,
		e.ID, e.TaskID, e.UserID, e.StartedAt, e.EndedAt, e.DurationSeconds)
	return err
}

func (r Repo) ListTimeEntriesForTask(ctx context.Context, taskID string) ([]domain.TimeLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,user_id,started_at,ended_at,duration_seconds FROM time_entries WHERE task_id=? ORDER BY started_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTimeEntries(rows)
}

// ListTimeEntriesForOrg returns entries for every task in the org whose
// start instant falls in [from, to). Bounds are RFC3339 strings; an empty
// bound is open.
func (r Repo) ListTimeEntriesForOrg(ctx context.Context, orgID, from, to string) ([]domain.TimeLogEntry, error) {
	query := `SELECT e.id,e.task_id,e.user_id,e.started_at,e.ended_at,e.duration_seconds
FROM time_entries e JOIN tasks t ON t.id=e.task_id WHERE t.org_id=?`
	args := []any{orgID}
	if from != "" {
		query += ` AND e.started_at >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND e.started_at < ?`
		args = append(args, to)
	}
	query += ` ORDER BY e.started_at ASC, e.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTimeEntries(rows)
}

func collectTimeEntries(rows *sql.Rows) ([]domain.TimeLogEntry, error) {
	var res []domain.TimeLogEntry
	for rows.Next() {
		var e domain.TimeLogEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.StartedAt, &e.EndedAt, &e.DurationSeconds); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,text,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Text, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,text,created_at FROM comments WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}
