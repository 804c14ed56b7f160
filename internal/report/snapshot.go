package report

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"taskboard/internal/domain"
)

// Snapshot holds fully materialized collections and evaluates every Source query in memory.
// It is never mutated after construction and is safe for concurrent use.
type Snapshot struct {
	users    []domain.User
	teams    []domain.Team
	projects []domain.Project
	tasks    []domain.Task

	userByID  map[int64]int
	teamByID  map[int64]int
	taskCount map[int64]int
}

func NewSnapshot(users []domain.User, teams []domain.Team, projects []domain.Project, tasks []domain.Task) *Snapshot {
	s := &Snapshot{
		users:     sortedByID(users, func(u domain.User) int64 { return u.ID }),
		teams:     sortedByID(teams, func(t domain.Team) int64 { return t.ID }),
		projects:  sortedByID(projects, func(p domain.Project) int64 { return p.ID }),
		tasks:     sortedByID(tasks, func(t domain.Task) int64 { return t.ID }),
		userByID:  map[int64]int{},
		teamByID:  map[int64]int{},
		taskCount: map[int64]int{},
	}
	for i, u := range s.users {
		s.users[i].BirthDay = domain.CalendarDate(u.BirthDay)
		s.userByID[u.ID] = i
	}
	for i, t := range s.teams {
		s.teamByID[t.ID] = i
	}
	for _, t := range s.tasks {
		s.taskCount[t.ProjectID]++
	}
	return s
}

// LoadSnapshot materializes all four collections from src concurrently.
func LoadSnapshot(ctx context.Context, src Source) (*Snapshot, error) {
	var (
		users    []domain.User
		teams    []domain.Team
		projects []domain.Project
		tasks    []domain.Task
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = src.Users(ctx, domain.UserSelector{})
		return err
	})
	g.Go(func() (err error) {
		teams, err = src.Teams(ctx, nil)
		return err
	})
	g.Go(func() (err error) {
		projects, err = src.Projects(ctx, domain.ProjectSelector{})
		return err
	})
	g.Go(func() (err error) {
		tasks, err = src.Tasks(ctx, domain.TaskSelector{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewSnapshot(users, teams, projects, tasks), nil
}

func sortedByID[T any](in []T, id func(T) int64) []T {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	return out
}

func (s *Snapshot) user(id int64) (domain.User, bool) {
	i, ok := s.userByID[id]
	if !ok {
		return domain.User{}, false
	}
	return s.users[i], true
}

func (s *Snapshot) team(id int64) (domain.Team, bool) {
	i, ok := s.teamByID[id]
	if !ok {
		return domain.Team{}, false
	}
	return s.teams[i], true
}

// authorName and teamName resolve through the current records; a dangling reference reads as "".
func (s *Snapshot) authorName(p domain.Project, last bool) string {
	u, ok := s.user(p.AuthorID)
	if !ok {
		return ""
	}
	if last {
		return u.LastName
	}
	return u.FirstName
}

func (s *Snapshot) teamName(p domain.Project) string {
	t, _ := s.team(p.TeamID)
	return t.Name
}

func (s *Snapshot) QueryProjects(_ context.Context, q domain.ProjectQuery) ([]domain.Project, int, error) {
	filtered := s.filterProjects(q.Filter)
	prop, desc := q.Sort.Normalize()
	compare := s.projectComparator(prop)
	if desc {
		asc := compare
		compare = func(a, b domain.Project) int { return asc(b, a) }
	}
	slices.SortStableFunc(filtered, compare)
	return paginate(filtered, q.Page), len(filtered), nil
}

func (s *Snapshot) filterProjects(f *domain.ProjectFilter) []domain.Project {
	if f.Empty() {
		return slices.Clone(s.projects)
	}
	type field struct {
		pattern string
		value   func(domain.Project) string
	}
	fields := []field{
		{f.Name, func(p domain.Project) string { return p.Name }},
		{f.Description, func(p domain.Project) string { return p.Description }},
		{f.AuthorFirstName, func(p domain.Project) string { return s.authorName(p, false) }},
		{f.AuthorLastName, func(p domain.Project) string { return s.authorName(p, true) }},
		{f.TeamName, s.teamName},
	}
	out := make([]domain.Project, 0, len(s.projects))
next:
	for _, p := range s.projects {
		for _, fl := range fields {
			if fl.pattern != "" && !domain.ContainsFold(fl.value(p), fl.pattern) {
				continue next
			}
		}
		out = append(out, p)
	}
	return out
}

// projectComparator is the ascending order for one sort key. Ties compare equal so
// a stable sort keeps them in Id order.
func (s *Snapshot) projectComparator(prop domain.SortProperty) func(a, b domain.Project) int {
	switch prop {
	case domain.SortByDescription:
		return func(a, b domain.Project) int { return strings.Compare(a.Description, b.Description) }
	case domain.SortByDeadline:
		return func(a, b domain.Project) int { return a.Deadline.Compare(b.Deadline) }
	case domain.SortByCreatedAt:
		return func(a, b domain.Project) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case domain.SortByTasksCount:
		return func(a, b domain.Project) int { return cmp.Compare(s.taskCount[a.ID], s.taskCount[b.ID]) }
	case domain.SortByAuthorFirstName:
		return func(a, b domain.Project) int { return strings.Compare(s.authorName(a, false), s.authorName(b, false)) }
	case domain.SortByAuthorLastName:
		return func(a, b domain.Project) int { return strings.Compare(s.authorName(a, true), s.authorName(b, true)) }
	case domain.SortByTeamName:
		return func(a, b domain.Project) int { return strings.Compare(s.teamName(a), s.teamName(b)) }
	default:
		return func(a, b domain.Project) int { return strings.Compare(a.Name, b.Name) }
	}
}

func paginate[T any](items []T, page *domain.Page) []T {
	start, end := page.Window(len(items))
	return items[start:end]
}

// idSet is nil for an unconstrained selector.
func idSet(ids []int64) map[int64]bool {
	if ids == nil {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func matches(set map[int64]bool, id int64) bool {
	return set == nil || set[id]
}

func (s *Snapshot) Projects(_ context.Context, sel domain.ProjectSelector) ([]domain.Project, error) {
	ids, authors := idSet(sel.IDs), idSet(sel.AuthorIDs)
	var out []domain.Project
	for _, p := range s.projects {
		if matches(ids, p.ID) && matches(authors, p.AuthorID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Snapshot) LatestProject(_ context.Context, authorID int64) (*domain.Project, error) {
	var latest *domain.Project
	for i := range s.projects {
		p := &s.projects[i]
		if p.AuthorID != authorID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	p := *latest
	return &p, nil
}

func (s *Snapshot) Users(_ context.Context, sel domain.UserSelector) ([]domain.User, error) {
	ids, teams := idSet(sel.IDs), idSet(sel.TeamIDs)
	var out []domain.User
	for _, u := range s.users {
		if !matches(ids, u.ID) {
			continue
		}
		if (teams != nil || sel.HasTeam) && u.TeamID == nil {
			continue
		}
		if teams != nil && !teams[*u.TeamID] {
			continue
		}
		if sel.BornBefore != 0 && u.BirthDay.Year() >= sel.BornBefore {
			continue
		}
		out = append(out, u)
	}
	switch sel.Order {
	case domain.UsersByFirstName:
		slices.SortStableFunc(out, func(a, b domain.User) int { return strings.Compare(a.FirstName, b.FirstName) })
	case domain.UsersByRegisteredDesc:
		slices.SortStableFunc(out, func(a, b domain.User) int { return b.RegisteredAt.Compare(a.RegisteredAt) })
	}
	return out, nil
}

func (s *Snapshot) Teams(_ context.Context, ids []int64) ([]domain.Team, error) {
	set := idSet(ids)
	var out []domain.Team
	for _, t := range s.teams {
		if matches(set, t.ID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Snapshot) Tasks(_ context.Context, sel domain.TaskSelector) ([]domain.Task, error) {
	projects, performers := idSet(sel.ProjectIDs), idSet(sel.PerformerIDs)
	var out []domain.Task
	for _, t := range s.tasks {
		if matches(projects, t.ProjectID) && matches(performers, t.PerformerID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Snapshot) TaskCounts(_ context.Context, projectIDs []int64) (map[int64]int, error) {
	set := idSet(projectIDs)
	counts := map[int64]int{}
	for id, n := range s.taskCount {
		if matches(set, id) {
			counts[id] = n
		}
	}
	return counts, nil
}

func (s *Snapshot) MemberCounts(_ context.Context, teamIDs []int64) (map[int64]int, error) {
	set := idSet(teamIDs)
	counts := map[int64]int{}
	for _, u := range s.users {
		if u.TeamID != nil && matches(set, *u.TeamID) {
			counts[*u.TeamID]++
		}
	}
	return counts, nil
}
