package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = domain.ErrNotFound

// timeLayout is fixed width so text comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	userColumns    = `u.id,u.team_id,u.first_name,u.last_name,u.email,u.registered_at,u.birth_day`
	teamColumns    = `t.id,t.name,t.created_at`
	projectColumns = `p.id,p.author_id,p.team_id,p.name,p.description,p.created_at,p.deadline`
	taskColumns    = `k.id,k.project_id,k.performer_id,k.name,k.description,k.state,k.created_at,k.finished_at`
)

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var teamID sql.NullInt64
	var registered, birth string
	if err := row.Scan(&u.ID, &teamID, &u.FirstName, &u.LastName, &u.Email, &registered, &birth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrNotFound
		}
		return u, err
	}
	if teamID.Valid {
		id := teamID.Int64
		u.TeamID = &id
	}
	var err error
	if u.RegisteredAt, err = parseTime(registered); err != nil {
		return u, err
	}
	if u.BirthDay, err = parseTime(birth); err != nil {
		return u, err
	}
	return u, nil
}

func scanTeam(row scanner) (domain.Team, error) {
	var t domain.Team
	var created string
	if err := row.Scan(&t.ID, &t.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	var err error
	t.CreatedAt, err = parseTime(created)
	return t, err
}

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var created, deadline string
	if err := row.Scan(&p.ID, &p.AuthorID, &p.TeamID, &p.Name, &p.Description, &created, &deadline); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	if p.Deadline, err = parseTime(deadline); err != nil {
		return p, err
	}
	return p, nil
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var created string
	var finished sql.NullString
	if err := row.Scan(&t.ID, &t.ProjectID, &t.PerformerID, &t.Name, &t.Description, &t.State, &created, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return t, err
		}
		t.FinishedAt = &ft
	}
	return t, nil
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var res []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO teams(id,name,created_at) VALUES (?,?,?)`,
		nullableID(t.ID), t.Name, formatTime(t.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert team: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO users(id,team_id,first_name,last_name,email,registered_at,birth_day) VALUES (?,?,?,?,?,?,?)`,
		nullableID(u.ID), nullableIDPtr(u.TeamID), u.FirstName, u.LastName, u.Email, formatTime(u.RegisteredAt), formatTime(domain.CalendarDate(u.BirthDay)))
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO projects(id,author_id,team_id,name,description,created_at,deadline) VALUES (?,?,?,?,?,?,?)`,
		nullableID(p.ID), p.AuthorID, p.TeamID, p.Name, p.Description, formatTime(p.CreatedAt), formatTime(p.Deadline))
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,performer_id,name,description,state,created_at,finished_at) VALUES (?,?,?,?,?,?,?,?)`,
		nullableID(t.ID), t.ProjectID, t.PerformerID, t.Name, t.Description, int(t.State), formatTime(t.CreatedAt), nullableTime(t.FinishedAt))
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTaskState(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET state=?, finished_at=? WHERE id=?`,
		int(t.State), nullableTime(t.FinishedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return getUser(ctx, r.DB, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id int64) (domain.User, error) {
	return getUser(ctx, tx, id)
}

func getUser(ctx context.Context, q queryer, id int64) (domain.User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id=?`, id))
}

func (r Repo) GetTeamTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Team, error) {
	return scanTeam(tx.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.id=?`, id))
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id=?`, id))
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks k WHERE k.id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks k WHERE k.id=?`, id))
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (domain.Event, error) {
		var e domain.Event
		err := s.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload)
		return e, err
	})
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func nullableID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func nullableIDPtr(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// inClause renders "col IN (?,?)" for ids; ok is false when ids is empty and nothing can match.
func inClause(col string, ids []int64) (string, []any, bool) {
	if len(ids) == 0 {
		return "", nil, false
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args, true
}
