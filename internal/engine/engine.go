package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/repo"
)

// Engine is the write path. Every change and its outbox event commit together.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// inTx runs fn in a write transaction and commits when it returns nil.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateTeam(ctx context.Context, t domain.Team, actorID string) (domain.Team, error) {
	err := e.inTx(ctx, func(tx *sql.Tx) (err error) {
		t, err = e.createTeam(ctx, tx, t, actorID)
		return err
	})
	return t, err
}

func (e Engine) createTeam(ctx context.Context, tx *sql.Tx, t domain.Team, actorID string) (domain.Team, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, invalid("team name is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = e.now()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	id, err := e.Repo.InsertTeam(ctx, tx, t)
	if err != nil {
		return t, err
	}
	t.ID = id
	if err := e.events().Append(ctx, tx, events.TeamCreated, "team", t.ID, actorID, events.EventPayload{"name": t.Name}); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) CreateUser(ctx context.Context, u domain.User, actorID string) (domain.User, error) {
	err := e.inTx(ctx, func(tx *sql.Tx) (err error) {
		u, err = e.createUser(ctx, tx, u, actorID)
		return err
	})
	return u, err
}

func (e Engine) createUser(ctx context.Context, tx *sql.Tx, u domain.User, actorID string) (domain.User, error) {
	u.FirstName, u.LastName, u.Email = strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName), strings.TrimSpace(u.Email)
	if u.FirstName == "" || u.LastName == "" {
		return u, invalid("first and last name are required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return u, invalid("email %q", u.Email)
	}
	if u.BirthDay.IsZero() {
		return u, invalid("birth day is required")
	}
	if u.TeamID != nil {
		if _, err := e.Repo.GetTeamTx(ctx, tx, *u.TeamID); err != nil {
			return u, fmt.Errorf("team %d: %w", *u.TeamID, err)
		}
	}
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = e.now()
	}
	u.RegisteredAt, u.BirthDay = u.RegisteredAt.UTC(), domain.CalendarDate(u.BirthDay)
	id, err := e.Repo.InsertUser(ctx, tx, u)
	if err != nil {
		return u, err
	}
	u.ID = id
	if err := e.events().Append(ctx, tx, events.UserCreated, "user", u.ID, actorID, events.EventPayload{"email": u.Email, "team_id": u.TeamID}); err != nil {
		return u, err
	}
	return u, nil
}

func (e Engine) CreateProject(ctx context.Context, p domain.Project, actorID string) (domain.Project, error) {
	err := e.inTx(ctx, func(tx *sql.Tx) (err error) {
		p, err = e.createProject(ctx, tx, p, actorID)
		return err
	})
	return p, err
}

func (e Engine) createProject(ctx context.Context, tx *sql.Tx, p domain.Project, actorID string) (domain.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, invalid("project name is required")
	}
	if p.Deadline.IsZero() {
		return p, invalid("deadline is required")
	}
	if _, err := e.Repo.GetUserTx(ctx, tx, p.AuthorID); err != nil {
		return p, fmt.Errorf("author %d: %w", p.AuthorID, err)
	}
	if _, err := e.Repo.GetTeamTx(ctx, tx, p.TeamID); err != nil {
		return p, fmt.Errorf("team %d: %w", p.TeamID, err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = e.now()
	}
	p.CreatedAt, p.Deadline = p.CreatedAt.UTC(), p.Deadline.UTC()
	id, err := e.Repo.InsertProject(ctx, tx, p)
	if err != nil {
		return p, err
	}
	p.ID = id
	if err := e.events().Append(ctx, tx, events.ProjectCreated, "project", p.ID, actorID,
		events.EventPayload{"name": p.Name, "author_id": p.AuthorID, "team_id": p.TeamID}); err != nil {
		return p, err
	}
	return p, nil
}

// CreateTask inserts a task in its requested state. A terminal state without FinishedAt is
// stamped with now; a non-terminal one drops any FinishedAt it was given.
func (e Engine) CreateTask(ctx context.Context, t domain.Task, actorID string) (domain.Task, error) {
	err := e.inTx(ctx, func(tx *sql.Tx) (err error) {
		t, err = e.createTask(ctx, tx, t, actorID)
		return err
	})
	return t, err
}

func (e Engine) createTask(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string) (domain.Task, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, invalid("task name is required")
	}
	if _, err := e.Repo.GetProjectTx(ctx, tx, t.ProjectID); err != nil {
		return t, fmt.Errorf("project %d: %w", t.ProjectID, err)
	}
	if _, err := e.Repo.GetUserTx(ctx, tx, t.PerformerID); err != nil {
		return t, fmt.Errorf("performer %d: %w", t.PerformerID, err)
	}
	now := e.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if err := t.Transition(t.State, now); err != nil {
		return t, err
	}
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return t, err
	}
	t.ID = id
	if err := e.events().Append(ctx, tx, events.TaskCreated, "task", t.ID, actorID,
		events.EventPayload{"name": t.Name, "project_id": t.ProjectID, "performer_id": t.PerformerID, "state": t.State.String()}); err != nil {
		return t, err
	}
	return t, nil
}

// SetTaskState moves a task to state. FinishedAt follows domain.Task.Transition.
func (e Engine) SetTaskState(ctx context.Context, id int64, state domain.TaskState, actorID string) (domain.Task, error) {
	var t domain.Task
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("task %d: %w", id, err)
		}
		prev := t.State
		if err := t.Transition(state, e.now()); err != nil {
			return err
		}
		if err := e.Repo.UpdateTaskState(ctx, tx, t); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.TaskStateChanged, "task", t.ID, actorID,
			events.EventPayload{"from": prev.String(), "to": t.State.String(), "finished_at": t.FinishedAt})
	})
	return t, err
}

// Dataset is a batch of records loaded in dependency order.
type Dataset struct {
	Teams    []domain.Team    `yaml:"teams" json:"teams"`
	Users    []domain.User    `yaml:"users" json:"users"`
	Projects []domain.Project `yaml:"projects" json:"projects"`
	Tasks    []domain.Task    `yaml:"tasks" json:"tasks"`
}

type ImportResult struct {
	Teams, Users, Projects, Tasks int
}

// Import creates every record of d in one transaction; any failure leaves the store untouched.
func (e Engine) Import(ctx context.Context, d Dataset, actorID string) (ImportResult, error) {
	var res ImportResult
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range d.Teams {
			if _, err := e.createTeam(ctx, tx, t, actorID); err != nil {
				return fmt.Errorf("team %q: %w", t.Name, err)
			}
			res.Teams++
		}
		for _, u := range d.Users {
			if _, err := e.createUser(ctx, tx, u, actorID); err != nil {
				return fmt.Errorf("user %q: %w", u.Email, err)
			}
			res.Users++
		}
		for _, p := range d.Projects {
			if _, err := e.createProject(ctx, tx, p, actorID); err != nil {
				return fmt.Errorf("project %q: %w", p.Name, err)
			}
			res.Projects++
		}
		for _, t := range d.Tasks {
			if _, err := e.createTask(ctx, tx, t, actorID); err != nil {
				return fmt.Errorf("task %q: %w", t.Name, err)
			}
			res.Tasks++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}
