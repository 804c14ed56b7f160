package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid task state")
	ErrValidation   = errors.New("validation failed")
)

type User struct {
	ID           int64     `json:"id" yaml:"id"`
	TeamID       *int64    `json:"team_id,omitempty" yaml:"team_id,omitempty"`
	FirstName    string    `json:"first_name" yaml:"first_name"`
	LastName     string    `json:"last_name" yaml:"last_name"`
	Email        string    `json:"email" yaml:"email"`
	RegisteredAt time.Time `json:"registered_at" yaml:"registered_at"`
	BirthDay     time.Time `json:"birth_day" yaml:"birth_day"`
}

// CalendarDate keeps the year, month and day t has in its own zone, at midnight UTC.
// Birthdays are stored and compared as calendar dates.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Team struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type Project struct {
	ID          int64     `json:"id" yaml:"id"`
	AuthorID    int64     `json:"author_id" yaml:"author_id"`
	TeamID      int64     `json:"team_id" yaml:"team_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Deadline    time.Time `json:"deadline" yaml:"deadline"`
}

type Task struct {
	ID          int64      `json:"id" yaml:"id"`
	ProjectID   int64      `json:"project_id" yaml:"project_id"`
	PerformerID int64      `json:"performer_id" yaml:"performer_id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	State       TaskState  `json:"state" yaml:"state"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Transition moves the task into next and keeps FinishedAt consistent:
// entering Done/Canceled stamps now only when FinishedAt is unset, leaving them clears it.
func (t *Task) Transition(next TaskState, now time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidState, next)
	}
	if next.Terminal() {
		if t.FinishedAt == nil {
			ts := now.UTC()
			t.FinishedAt = &ts
		}
	} else {
		t.FinishedAt = nil
	}
	t.State = next
	return nil
}

// TaskState is stored as its integer value; text form is used on every API boundary.
type TaskState int

const (
	ToDo TaskState = iota
	InProgress
	Done
	Canceled
)

func (s TaskState) Valid() bool {
	return s >= ToDo && s <= Canceled
}

func (s TaskState) Terminal() bool {
	return s == Done || s == Canceled
}

func (s TaskState) String() string {
	switch s {
	case ToDo:
		return "ToDo"
	case InProgress:
		return "InProgress"
	case Done:
		return "Done"
	case Canceled:
		return "Canceled"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// ParseTaskState accepts the display names case-insensitively, plus snake_case aliases.
func ParseTaskState(v string) (TaskState, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "todo", "to_do":
		return ToDo, nil
	case "inprogress", "in_progress":
		return InProgress, nil
	case "done":
		return Done, nil
	case "canceled", "cancelled":
		return Canceled, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, v)
}

func (s TaskState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidState, s)
	}
	return []byte(s.String()), nil
}

func (s *TaskState) UnmarshalText(b []byte) error {
	v, err := ParseTaskState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Event is an outbox row written alongside every change.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json"`
}
