package report

import (
	"context"

	"taskboard/internal/domain"
)

// Source is read-only access to the four entity collections. repo.Repo answers it
// with SQL, Snapshot answers it from memory; Engine produces the same reports over either.
//
// Every listing comes back in ascending Id unless the selector orders it otherwise,
// and that sequence is what "first encountered" means in tie rules.
type Source interface {
	// QueryProjects filters, sorts and pages projects. total is the size of the filtered set.
	QueryProjects(ctx context.Context, q domain.ProjectQuery) (items []domain.Project, total int, err error)
	Projects(ctx context.Context, sel domain.ProjectSelector) ([]domain.Project, error)
	// LatestProject returns nil when the user authored nothing.
	LatestProject(ctx context.Context, authorID int64) (*domain.Project, error)
	Users(ctx context.Context, sel domain.UserSelector) ([]domain.User, error)
	// Teams with nil ids lists every team.
	Teams(ctx context.Context, ids []int64) ([]domain.Team, error)
	Tasks(ctx context.Context, sel domain.TaskSelector) ([]domain.Task, error)
	TaskCounts(ctx context.Context, projectIDs []int64) (map[int64]int, error)
	MemberCounts(ctx context.Context, teamIDs []int64) (map[int64]int, error)
}
