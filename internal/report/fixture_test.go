package report_test

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/migrate"
	"taskboard/internal/report"
	"taskboard/internal/repo"
)

var _ report.Source = repo.Repo{}
var _ report.Source = (*report.Snapshot)(nil)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ref(v int64) *int64 { return &v }

func finished(t time.Time) *time.Time { return &t }

type dataset struct {
	users    []domain.User
	teams    []domain.Team
	projects []domain.Project
	tasks    []domain.Task
}

// board is the shared fixture:
//
//	team 1 Backend: Ann (1995), bob (2001), Carl (1990)
//	team 2 Alpha Squad: Dana (1999)
//	team 3 Design: Fred (2003)
//	Eve has no team.
func board() dataset {
	return dataset{
		teams: []domain.Team{
			{ID: 1, Name: "Backend", CreatedAt: day(2019, 1, 1)},
			{ID: 2, Name: "Alpha Squad", CreatedAt: day(2019, 2, 1)},
			{ID: 3, Name: "Design", CreatedAt: day(2019, 3, 1)},
		},
		users: []domain.User{
			{ID: 1, TeamID: ref(1), FirstName: "Ann", LastName: "Smith", Email: "ann@example.com", RegisteredAt: day(2020, 1, 1), BirthDay: day(1995, 4, 2)},
			{ID: 2, TeamID: ref(1), FirstName: "bob", LastName: "Jones", Email: "bob@example.com", RegisteredAt: day(2020, 2, 1), BirthDay: day(2001, 7, 9)},
			{ID: 3, TeamID: ref(1), FirstName: "Carl", LastName: "Brown", Email: "carl@example.com", RegisteredAt: day(2021, 1, 1), BirthDay: day(1990, 12, 31)},
			{ID: 4, TeamID: ref(2), FirstName: "Dana", LastName: "White", Email: "dana@example.com", RegisteredAt: day(2019, 5, 5), BirthDay: day(1999, 1, 1)},
			{ID: 5, FirstName: "Eve", LastName: "Black", Email: "eve@example.com", RegisteredAt: day(2018, 1, 1), BirthDay: day(1985, 6, 6)},
			{ID: 6, TeamID: ref(3), FirstName: "Fred", LastName: "Green", Email: "fred@example.com", RegisteredAt: day(2022, 1, 1), BirthDay: day(2003, 3, 3)},
		},
		projects: []domain.Project{
			{ID: 1, AuthorID: 1, TeamID: 1, Name: "Alpha", Description: strings.Repeat("x", 25), CreatedAt: day(2021, 1, 1), Deadline: day(2022, 1, 1)},
			{ID: 2, AuthorID: 1, TeamID: 2, Name: "Beta", Description: "short", CreatedAt: day(2022, 3, 1), Deadline: day(2021, 6, 1)},
			{ID: 3, AuthorID: 4, TeamID: 1, Name: "gamma", Description: "Gamma project description", CreatedAt: day(2020, 5, 1), Deadline: day(2023, 1, 1)},
			{ID: 4, AuthorID: 2, TeamID: 3, Name: "Alpha Two", Description: "beta notes", CreatedAt: day(2022, 3, 1), Deadline: day(2024, 1, 1)},
		},
		tasks: []domain.Task{
			{ID: 1, ProjectID: 1, PerformerID: 1, Name: "AB", Description: "long description here", State: domain.Done, CreatedAt: day(2021, 1, 5), FinishedAt: finished(day(2021, 1, 10))},
			{ID: 2, ProjectID: 1, PerformerID: 2, Name: "a", Description: "short", State: domain.ToDo, CreatedAt: day(2021, 2, 1)},
			{ID: 3, ProjectID: 2, PerformerID: 1, Name: "A", Description: "d", State: domain.Canceled, CreatedAt: day(2022, 3, 2), FinishedAt: finished(day(2022, 3, 3))},
			{ID: 4, ProjectID: 2, PerformerID: 3, Name: "Write docs", State: domain.InProgress, CreatedAt: day(2022, 4, 1)},
			{ID: 5, ProjectID: 2, PerformerID: 1, Name: "fix", State: domain.ToDo, CreatedAt: day(2023, 6, 1)},
			{ID: 6, ProjectID: 2, PerformerID: 4, Name: "Review", Description: "ok", State: domain.Done, CreatedAt: day(2022, 5, 1), FinishedAt: finished(day(2022, 5, 2))},
			{ID: 7, ProjectID: 2, PerformerID: 4, Name: "Plan", Description: "ok", State: domain.ToDo, CreatedAt: day(2022, 5, 3)},
			{ID: 8, ProjectID: 3, PerformerID: 1, Name: "Deploy", State: domain.ToDo, CreatedAt: day(2020, 6, 1)},
			{ID: 9, ProjectID: 4, PerformerID: 6, Name: "AB", State: domain.Done, CreatedAt: day(2022, 4, 1), FinishedAt: finished(day(2022, 4, 2))},
			{ID: 10, ProjectID: 4, PerformerID: 6, Name: "A", State: domain.Canceled, CreatedAt: day(2022, 4, 3), FinishedAt: finished(day(2022, 4, 4))},
		},
	}
}

// zonedBirthdays is the board with birthdays written in non-UTC zones on either
// side of the 2000 boundary. Dana's day is 2000-01-01 locally but still 1999 in UTC;
// Carl's is 1999-12-31 locally but already 2000 in UTC.
func zonedBirthdays() dataset {
	d := board()
	d.users = slices.Clone(d.users)
	d.users[3].BirthDay = time.Date(2000, 1, 1, 2, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	d.users[2].BirthDay = time.Date(1999, 12, 31, 22, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))
	return d
}

func (d dataset) snapshot() *report.Snapshot {
	return report.NewSnapshot(d.users, d.teams, d.projects, d.tasks)
}

// sqlSource loads d into a fresh migrated sqlite workspace.
func (d dataset) sqlSource(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	r := repo.Repo{DB: conn}
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	for _, tm := range d.teams {
		_, err := r.InsertTeam(ctx, tx, tm)
		require.NoError(t, err)
	}
	for _, u := range d.users {
		_, err := r.InsertUser(ctx, tx, u)
		require.NoError(t, err)
	}
	for _, p := range d.projects {
		_, err := r.InsertProject(ctx, tx, p)
		require.NoError(t, err)
	}
	for _, tk := range d.tasks {
		_, err := r.InsertTask(ctx, tx, tk)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	return r
}

type namedSource struct {
	name string
	src  report.Source
}

func (d dataset) sources(t *testing.T) []namedSource {
	return []namedSource{
		{name: "memory", src: d.snapshot()},
		{name: "sql", src: d.sqlSource(t)},
	}
}

// forEachSource runs fn once per adapter with an engine over the board fixture.
func forEachSource(t *testing.T, fn func(t *testing.T, eng report.Engine)) {
	t.Helper()
	board().forEachSource(t, fn)
}

func (d dataset) forEachSource(t *testing.T, fn func(t *testing.T, eng report.Engine)) {
	t.Helper()
	for _, s := range d.sources(t) {
		t.Run(s.name, func(t *testing.T) {
			eng := report.New(s.src)
			eng.Now = func() time.Time { return testNow }
			fn(t, eng)
		})
	}
}

func viewIDs(items []domain.ProjectView) []int64 {
	ids := make([]int64, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	return ids
}

func taskIDs(items []domain.TaskView) []int64 {
	ids := make([]int64, 0, len(items))
	for _, t := range items {
		ids = append(ids, t.ID)
	}
	return ids
}
