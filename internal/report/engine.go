package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"taskboard/internal/domain"
)

// Engine computes reports over a Source. It holds no state between calls and never writes.
type Engine struct {
	Source Source
	Now    func() time.Time
}

func New(src Source) Engine {
	return Engine{Source: src, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func projectIDs(ps []domain.Project) []int64 {
	ids := make([]int64, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}

func taskProject(t domain.Task) int64   { return t.ProjectID }
func taskPerformer(t domain.Task) int64 { return t.PerformerID }

// ProjectsPage returns one page of the filtered and sorted project listing with every
// task of each project attached. TotalCount is the size of the filtered set.
func (e Engine) ProjectsPage(ctx context.Context, q domain.ProjectQuery) (domain.PagedProjects, error) {
	items, total, err := e.Source.QueryProjects(ctx, q)
	if err != nil {
		return domain.PagedProjects{}, fmt.Errorf("query projects: %w", err)
	}
	out := domain.PagedProjects{Items: make([]domain.ProjectView, 0, len(items)), TotalCount: total}
	if len(items) == 0 {
		return out, nil
	}
	tasks, err := e.Source.Tasks(ctx, domain.TaskSelector{ProjectIDs: projectIDs(items)})
	if err != nil {
		return domain.PagedProjects{}, fmt.Errorf("load page tasks: %w", err)
	}
	byProject := groupBy(tasks, taskProject)
	var r refs
	for _, p := range items {
		r.project(p, byProject[p.ID])
	}
	a, err := e.assembler(ctx, r)
	if err != nil {
		return domain.PagedProjects{}, err
	}
	for _, p := range items {
		out.Items = append(out.Items, a.project(p, byProject[p.ID]))
	}
	return out, nil
}

// ProjectTeamSizes lists projects whose team currently has at least minMembers users.
func (e Engine) ProjectTeamSizes(ctx context.Context, minMembers int) ([]domain.ProjectTeamSize, error) {
	projects, err := e.Source.Projects(ctx, domain.ProjectSelector{})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var r refs
	for _, p := range projects {
		r.team(p.TeamID)
	}
	teamIDs := uniqueIDs(r.teams)
	counts, err := e.Source.MemberCounts(ctx, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	a, err := e.assembler(ctx, r)
	if err != nil {
		return nil, err
	}
	out := []domain.ProjectTeamSize{}
	for _, p := range projects {
		n := counts[p.TeamID]
		if n < minMembers {
			continue
		}
		row := domain.ProjectTeamSize{ProjectID: p.ID, ProjectName: p.Name, TeamID: p.TeamID, MembersCount: n}
		if t := a.team(p.TeamID); t != nil {
			row.TeamName = t.Name
		}
		out = append(out, row)
	}
	return out, nil
}

// ProjectsInfo reports per-project task extremes and, when disclosed, the team size.
func (e Engine) ProjectsInfo(ctx context.Context) ([]domain.ProjectInfo, error) {
	projects, err := e.Source.Projects(ctx, domain.ProjectSelector{})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]domain.ProjectInfo, 0, len(projects))
	if len(projects) == 0 {
		return out, nil
	}
	tasks, err := e.Source.Tasks(ctx, domain.TaskSelector{ProjectIDs: projectIDs(projects)})
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	byProject := groupBy(tasks, taskProject)
	var r refs
	for _, p := range projects {
		r.project(p, byProject[p.ID])
	}
	members, err := e.Source.MemberCounts(ctx, uniqueIDs(r.teams))
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	a, err := e.assembler(ctx, r)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		own := byProject[p.ID]
		info := domain.ProjectInfo{
			Project:                  a.project(p, own),
			LongestTaskByDescription: a.taskPtr(longestByDescription(own)),
			ShortestTaskByName:       a.taskPtr(shortestByName(own)),
		}
		if discloseTeamSize(p, len(own)) {
			n := members[p.TeamID]
			info.TeamMembersCount = &n
		}
		out = append(out, info)
	}
	return out, nil
}

func (e Engine) requireUser(ctx context.Context, userID int64) (domain.User, error) {
	users, err := e.Source.Users(ctx, domain.UserSelector{IDs: []int64{userID}})
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 {
		return domain.User{}, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return users[0], nil
}

func (e Engine) UserInfo(ctx context.Context, userID int64) (domain.UserInfo, error) {
	user, err := e.requireUser(ctx, userID)
	if err != nil {
		return domain.UserInfo{}, err
	}
	last, err := e.Source.LatestProject(ctx, userID)
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("latest project: %w", err)
	}
	performed, err := e.Source.Tasks(ctx, domain.TaskSelector{PerformerIDs: []int64{userID}})
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("load user tasks: %w", err)
	}

	var r refs
	r.user(userID)
	var lastTasks []domain.Task
	if last != nil {
		lastTasks, err = e.Source.Tasks(ctx, domain.TaskSelector{ProjectIDs: []int64{last.ID}})
		if err != nil {
			return domain.UserInfo{}, fmt.Errorf("load project tasks: %w", err)
		}
		r.project(*last, lastTasks)
	}
	a, err := e.assembler(ctx, r)
	if err != nil {
		return domain.UserInfo{}, err
	}

	info := domain.UserInfo{
		User:                            domain.UserViewOf(user),
		LastProjectTasksCount:           len(lastTasks),
		NotFinishedOrCanceledTasksCount: countNotFinished(performed),
		LongestTask:                     a.taskPtr(longestRunning(performed, e.now())),
	}
	if last != nil {
		pv := a.project(*last, lastTasks)
		info.LastProject = &pv
	}
	return info, nil
}

// TasksCountByProject keys counts by "{ProjectId}: {ProjectName}". A project that
// cannot be resolved keeps its id with an empty name.
func (e Engine) TasksCountByProject(ctx context.Context, userID int64) (map[string]int, error) {
	if _, err := e.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	tasks, err := e.Source.Tasks(ctx, domain.TaskSelector{PerformerIDs: []int64{userID}})
	if err != nil {
		return nil, fmt.Errorf("load user tasks: %w", err)
	}
	out := map[string]int{}
	if len(tasks) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ProjectID)
	}
	projects, err := e.Source.Projects(ctx, domain.ProjectSelector{IDs: uniqueIDs(ids)})
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	names := make(map[int64]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	for _, t := range tasks {
		out[fmt.Sprintf("%d: %s", t.ProjectID, names[t.ProjectID])]++
	}
	return out, nil
}

// CapitalTasks lists the user's tasks whose name starts with an uppercase letter.
func (e Engine) CapitalTasks(ctx context.Context, userID int64) ([]domain.TaskView, error) {
	if _, err := e.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	tasks, err := e.Source.Tasks(ctx, domain.TaskSelector{PerformerIDs: []int64{userID}})
	if err != nil {
		return nil, fmt.Errorf("load user tasks: %w", err)
	}
	var r refs
	r.user(userID)
	a, err := e.assembler(ctx, r)
	if err != nil {
		return nil, err
	}
	return a.tasks(capitalized(tasks)), nil
}

// TeamsWithMembers lists teams by name with their members born before cutoffYear,
// most recently registered first. Teams without such members are left out.
func (e Engine) TeamsWithMembers(ctx context.Context, cutoffYear int) ([]domain.TeamMembers, error) {
	out := []domain.TeamMembers{}
	if cutoffYear <= 0 {
		// a zero BornBefore is unconstrained in a selector
		return out, nil
	}
	users, err := e.Source.Users(ctx, domain.UserSelector{HasTeam: true, BornBefore: cutoffYear, Order: domain.UsersByRegisteredDesc})
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if len(users) == 0 {
		return out, nil
	}
	byTeam := groupBy(users, func(u domain.User) int64 { return *u.TeamID })
	ids := make([]int64, 0, len(byTeam))
	for id := range byTeam {
		ids = append(ids, id)
	}
	teams, err := e.Source.Teams(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	slices.SortStableFunc(teams, func(a, b domain.Team) int { return strings.Compare(a.Name, b.Name) })
	for _, t := range teams {
		members := make([]domain.UserView, 0, len(byTeam[t.ID]))
		for _, u := range byTeam[t.ID] {
			members = append(members, domain.UserViewOf(u))
		}
		out = append(out, domain.TeamMembers{ID: t.ID, Name: t.Name, Members: members})
	}
	return out, nil
}

// UsersWithTasks lists every user by first name with their tasks ordered by name length,
// longest first.
func (e Engine) UsersWithTasks(ctx context.Context) ([]domain.UserTasks, error) {
	users, err := e.Source.Users(ctx, domain.UserSelector{Order: domain.UsersByFirstName})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	tasks, err := e.Source.Tasks(ctx, domain.TaskSelector{})
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	byPerformer := groupBy(tasks, taskPerformer)
	out := make([]domain.UserTasks, 0, len(users))
	for _, u := range users {
		own := byPerformer[u.ID]
		slices.SortStableFunc(own, func(a, b domain.Task) int {
			return domain.TextLen(b.Name) - domain.TextLen(a.Name)
		})
		uv := domain.UserViewOf(u)
		views := make([]domain.TaskView, 0, len(own))
		for _, t := range own {
			views = append(views, domain.TaskViewOf(t, &uv))
		}
		out = append(out, domain.UserTasks{User: uv, Tasks: views})
	}
	return out, nil
}
