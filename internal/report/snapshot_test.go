package report_test

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/domain"
	"taskboard/internal/report"
)

func reversed[T any](in []T) []T {
	out := slices.Clone(in)
	slices.Reverse(out)
	return out
}

func TestSnapshotIgnoresInputOrder(t *testing.T) {
	d := board()
	shuffled := report.NewSnapshot(reversed(d.users), reversed(d.teams), reversed(d.projects), reversed(d.tasks))
	ctx := context.Background()

	q := domain.ProjectQuery{Sort: &domain.ProjectSort{Property: domain.SortByCreatedAt, Order: domain.Descending}}
	want, err := report.New(d.snapshot()).ProjectsPage(ctx, q)
	require.NoError(t, err)
	got, err := report.New(shuffled).ProjectsPage(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []int64{2, 4, 1, 3}, viewIDs(got.Items))
}

func TestSnapshotDanglingReferences(t *testing.T) {
	snap := report.NewSnapshot(
		[]domain.User{{ID: 1, FirstName: "Ann", RegisteredAt: day(2020, 1, 1), BirthDay: day(1990, 1, 1)}},
		[]domain.Team{{ID: 1, Name: "Core"}},
		[]domain.Project{
			{ID: 1, AuthorID: 42, TeamID: 77, Name: "orphan", CreatedAt: day(2023, 1, 1)},
			{ID: 2, AuthorID: 1, TeamID: 1, Name: "owned", CreatedAt: day(2023, 1, 2)},
		},
		[]domain.Task{
			{ID: 1, ProjectID: 1, PerformerID: 55, Name: "ghost", CreatedAt: day(2023, 1, 1)},
			{ID: 2, ProjectID: 999, PerformerID: 1, Name: "lost", CreatedAt: day(2023, 1, 1)},
		},
	)
	eng := report.New(snap)
	ctx := context.Background()

	page, err := eng.ProjectsPage(ctx, domain.ProjectQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	orphan := page.Items[0]
	assert.Equal(t, "orphan", orphan.Name)
	assert.Nil(t, orphan.Author)
	assert.Nil(t, orphan.Team)
	require.Len(t, orphan.Tasks, 1)
	assert.Nil(t, orphan.Tasks[0].Performer)

	ids, total := queryIDs(t, eng, domain.ProjectQuery{Filter: &domain.ProjectFilter{AuthorFirstName: "a"}})
	assert.Equal(t, []int64{2}, ids)
	assert.Equal(t, 1, total)

	ids, _ = queryIDs(t, eng, domain.ProjectQuery{Sort: &domain.ProjectSort{Property: domain.SortByTeamName}})
	assert.Equal(t, []int64{1, 2}, ids)

	counts, err := eng.TasksCountByProject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"999: ": 1}, counts)

	sizes, err := eng.ProjectTeamSizes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sizes, 2)
	assert.Equal(t, "", sizes[0].TeamName)
	assert.Zero(t, sizes[0].MembersCount)

	infos, err := eng.ProjectsInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, infos[0].LongestTaskByDescription)
	assert.Nil(t, infos[0].LongestTaskByDescription.Performer)
}

func TestSnapshotSelectors(t *testing.T) {
	snap := board().snapshot()
	ctx := context.Background()

	users, err := snap.Users(ctx, domain.UserSelector{IDs: []int64{}})
	require.NoError(t, err)
	assert.Empty(t, users, "empty id list matches nothing")

	users, err = snap.Users(ctx, domain.UserSelector{TeamIDs: []int64{1}, Order: domain.UsersByFirstName})
	require.NoError(t, err)
	var names []string
	for _, u := range users {
		names = append(names, u.FirstName)
	}
	assert.Equal(t, []string{"Ann", "Carl", "bob"}, names)

	latest, err := snap.LatestProject(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.ID)

	latest, err = snap.LatestProject(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, latest)

	counts, err := snap.TaskCounts(ctx, []int64{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 5, 4: 2}, counts)

	members, err := snap.MemberCounts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 3, 2: 1, 3: 1}, members)
}

func TestLoadSnapshotFromSQL(t *testing.T) {
	d := board()
	loaded, err := report.LoadSnapshot(context.Background(), d.sqlSource(t))
	require.NoError(t, err)

	ctx := context.Background()
	want, err := report.New(d.snapshot()).UsersWithTasks(ctx)
	require.NoError(t, err)
	got, err := report.New(loaded).UsersWithTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
