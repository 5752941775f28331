package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"siteline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,status,created_by,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.Status, p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_by,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Status, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_by,created_at FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Timelines are stored one row per revision with the whole task tree and the
// progress maps in a single JSON document. Every mutation rewrites the
// document in one UPDATE, so readers always observe a consistent snapshot.

func (r Repo) InsertTimeline(ctx context.Context, tx *sql.Tx, tl domain.Timeline) error {
	doc, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO timelines(id,project_id,name,created_at,doc_json) VALUES (?,?,?,?,?)`,
		tl.ID, tl.ProjectID, tl.Name, tl.CreatedAt, string(doc))
	return err
}

func (r Repo) UpdateTimelineDoc(ctx context.Context, tx *sql.Tx, tl domain.Timeline) error {
	doc, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE timelines SET name=?, doc_json=? WHERE id=? AND project_id=?`,
		tl.Name, string(doc), tl.ID, tl.ProjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTimeline(doc string) (domain.Timeline, error) {
	var tl domain.Timeline
	if err := json.Unmarshal([]byte(doc), &tl); err != nil {
		return tl, fmt.Errorf("unmarshal timeline: %w", err)
	}
	return tl, nil
}

func (r Repo) GetTimeline(ctx context.Context, projectID, id string) (domain.Timeline, error) {
	var doc string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM timelines WHERE id=? AND project_id=?`, id, projectID).Scan(&doc)
	if err == sql.ErrNoRows {
		return domain.Timeline{}, ErrNotFound
	}
	if err != nil {
		return domain.Timeline{}, err
	}
	return scanTimeline(doc)
}

// ListTimelines returns all revisions of a project, newest first.
func (r Repo) ListTimelines(ctx context.Context, projectID string) ([]domain.Timeline, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT doc_json FROM timelines WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Timeline
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		tl, err := scanTimeline(doc)
		if err != nil {
			return nil, err
		}
		res = append(res, tl)
	}
	return res, rows.Err()
}

// LatestTimeline returns the newest revision of a project.
func (r Repo) LatestTimeline(ctx context.Context, projectID string) (domain.Timeline, error) {
	var doc string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM timelines WHERE project_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, projectID).Scan(&doc)
	if err == sql.ErrNoRows {
		return domain.Timeline{}, ErrNotFound
	}
	if err != nil {
		return domain.Timeline{}, err
	}
	return scanTimeline(doc)
}

// EarliestTimeline returns the oldest revision of a project, skipping the
// given id. Used as the dashboard baseline.
func (r Repo) EarliestTimeline(ctx context.Context, projectID, skipID string) (domain.Timeline, error) {
	var doc string
	err := r.DB.QueryRowContext(ctx, `SELECT doc_json FROM timelines WHERE project_id=? AND id != ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		projectID, skipID).Scan(&doc)
	if err == sql.ErrNoRows {
		return domain.Timeline{}, ErrNotFound
	}
	if err != nil {
		return domain.Timeline{}, err
	}
	return scanTimeline(doc)
}

func (r Repo) DeleteTimeline(ctx context.Context, tx *sql.Tx, projectID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM timelines WHERE id=? AND project_id=?`, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Events

func (r Repo) ListEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with an id greater than cursor, oldest first.
// An empty projectID spans all projects.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json
FROM events WHERE id > ?`
	args := []any{cursor}
	if projectID != "" {
		query += ` AND project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT MAX(id) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
