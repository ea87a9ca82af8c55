package repo

import (
	"context"
	"database/sql"

	"sprintline/internal/domain"
)

func (r Repo) InsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(org_id,user_id,role,joined_at) VALUES (?,?,?,?)`,
		m.OrgID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r Repo) GetMembership(ctx context.Context, orgID, userID string) (domain.Membership, error) {
	var m domain.Membership
	err := r.DB.QueryRowContext(ctx, `SELECT org_id,user_id,role,joined_at FROM memberships WHERE org_id=? AND user_id=?`, orgID, userID).
		Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMemberships(ctx context.Context, orgID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id,user_id,role,joined_at FROM memberships WHERE org_id=? ORDER BY joined_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) InsertInvite(ctx context.Context, tx *sql.Tx, inv domain.Invite) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO invites(org_id,email,created_at) VALUES (?,?,?)`,
		inv.OrgID, inv.Email, inv.CreatedAt)
	return err
}

func (r Repo) ListInvitesForEmail(ctx context.Context, tx *sql.Tx, email string) ([]domain.Invite, error) {
	rows, err := tx.QueryContext(ctx, `SELECT org_id,email,created_at FROM invites WHERE email=?`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invite
	for rows.Next() {
		var inv domain.Invite
		if err := rows.Scan(&inv.OrgID, &inv.Email, &inv.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, nil
}

func (r Repo) ListInvites(ctx context.Context, orgID string) ([]domain.Invite, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id,email,created_at FROM invites WHERE org_id=? ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invite
	for rows.Next() {
		var inv domain.Invite
		if err := rows.Scan(&inv.OrgID, &inv.Email, &inv.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, nil
}

func (r Repo) DeleteInvite(ctx context.Context, tx *sql.Tx, orgID, email string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM invites WHERE org_id=? AND email=?`, orgID, email)
	return err
}
