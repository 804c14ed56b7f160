package report

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"taskboard/internal/domain"
)

// assembler resolves author, team and performer references for a batch of rows.
// Lookups are loaded once per batch and indexed by id.
type assembler struct {
	users map[int64]domain.UserView
	teams map[int64]domain.TeamView
}

type refs struct {
	users []int64
	teams []int64
}

func (r *refs) user(id int64) { r.users = append(r.users, id) }
func (r *refs) team(id int64) { r.teams = append(r.teams, id) }

func (r *refs) project(p domain.Project, tasks []domain.Task) {
	r.user(p.AuthorID)
	r.team(p.TeamID)
	for _, t := range tasks {
		r.user(t.PerformerID)
	}
}

func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func (e Engine) assembler(ctx context.Context, r refs) (*assembler, error) {
	a := &assembler{users: map[int64]domain.UserView{}, teams: map[int64]domain.TeamView{}}
	userIDs, teamIDs := uniqueIDs(r.users), uniqueIDs(r.teams)
	g, ctx := errgroup.WithContext(ctx)
	var users []domain.User
	var teams []domain.Team
	if len(userIDs) > 0 {
		g.Go(func() (err error) {
			users, err = e.Source.Users(ctx, domain.UserSelector{IDs: userIDs})
			return err
		})
	}
	if len(teamIDs) > 0 {
		g.Go(func() (err error) {
			teams, err = e.Source.Teams(ctx, teamIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, u := range users {
		a.users[u.ID] = domain.UserViewOf(u)
	}
	for _, t := range teams {
		a.teams[t.ID] = domain.TeamViewOf(t)
	}
	return a, nil
}

func (a *assembler) user(id int64) *domain.UserView {
	u, ok := a.users[id]
	if !ok {
		return nil
	}
	return &u
}

func (a *assembler) team(id int64) *domain.TeamView {
	t, ok := a.teams[id]
	if !ok {
		return nil
	}
	return &t
}

func (a *assembler) task(t domain.Task) domain.TaskView {
	return domain.TaskViewOf(t, a.user(t.PerformerID))
}

func (a *assembler) taskPtr(t *domain.Task) *domain.TaskView {
	if t == nil {
		return nil
	}
	v := a.task(*t)
	return &v
}

func (a *assembler) tasks(ts []domain.Task) []domain.TaskView {
	out := make([]domain.TaskView, 0, len(ts))
	for _, t := range ts {
		out = append(out, a.task(t))
	}
	return out
}

func (a *assembler) project(p domain.Project, tasks []domain.Task) domain.ProjectView {
	return domain.ProjectView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		Deadline:    p.Deadline,
		Tasks:       a.tasks(tasks),
		Author:      a.user(p.AuthorID),
		Team:        a.team(p.TeamID),
	}
}
