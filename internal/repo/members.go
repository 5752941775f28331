package repo

import (
	"context"
	"database/sql"

	"siteline/internal/domain"
)

// UpsertMember sets a user's permission tier on a project.
func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO members(project_id,user_id,permission,can_edit_timeline,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET permission=excluded.permission, can_edit_timeline=excluded.can_edit_timeline`,
		m.ProjectID, m.UserID, m.Permission, m.CanEditTimeline, m.CreatedAt)
	return err
}

// GetMember resolves a user's membership on a project.
func (r Repo) GetMember(ctx context.Context, projectID, userID string) (domain.Member, error) {
	var m domain.Member
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,user_id,permission,can_edit_timeline,created_at FROM members WHERE project_id=? AND user_id=?`,
		projectID, userID).Scan(&m.ProjectID, &m.UserID, &m.Permission, &m.CanEditTimeline, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,permission,can_edit_timeline,created_at FROM members WHERE project_id=? ORDER BY created_at ASC, user_id ASC`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Permission, &m.CanEditTimeline, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) DeleteMember(ctx context.Context, projectID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
