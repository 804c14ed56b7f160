package report_test

import (
	"context"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/domain"
	"taskboard/internal/report"
)

func queryIDs(t *testing.T, eng report.Engine, q domain.ProjectQuery) ([]int64, int) {
	t.Helper()
	res, err := eng.ProjectsPage(context.Background(), q)
	require.NoError(t, err)
	return viewIDs(res.Items), res.TotalCount
}

func intersect(a, b []int64) []int64 {
	out := []int64{}
	for _, id := range a {
		if slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	return out
}

func TestFilterScenarios(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		cases := []struct {
			filter domain.ProjectFilter
			want   []int64
		}{
			{domain.ProjectFilter{Description: "x"}, []int64{1}},
			{domain.ProjectFilter{Name: "Beta"}, []int64{2}},
			{domain.ProjectFilter{Name: "ALPHA"}, []int64{1, 4}},
			{domain.ProjectFilter{TeamName: "back"}, []int64{1, 3}},
			{domain.ProjectFilter{AuthorFirstName: "an"}, []int64{1, 2, 3}},
			{domain.ProjectFilter{AuthorLastName: "S"}, []int64{1, 2, 4}},
			{domain.ProjectFilter{Name: "zzz"}, []int64{}},
		}
		for _, tc := range cases {
			got, total := queryIDs(t, eng, domain.ProjectQuery{
				Filter: &tc.filter,
				Sort:   &domain.ProjectSort{Property: domain.SortByName},
			})
			slices.Sort(got)
			assert.Equal(t, tc.want, got, "%+v", tc.filter)
			assert.Equal(t, len(tc.want), total)
		}

		all, total := queryIDs(t, eng, domain.ProjectQuery{Filter: &domain.ProjectFilter{}})
		assert.Len(t, all, 4)
		assert.Equal(t, 4, total)
	})
}

func TestFilterANDComposition(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		single := func(f domain.ProjectFilter) []int64 {
			ids, _ := queryIDs(t, eng, domain.ProjectQuery{Filter: &f})
			slices.Sort(ids)
			return ids
		}
		combos := []struct {
			parts []domain.ProjectFilter
			want  []int64
		}{
			{[]domain.ProjectFilter{{Name: "alpha"}, {TeamName: "back"}}, []int64{1}},
			{[]domain.ProjectFilter{{AuthorFirstName: "an"}, {AuthorLastName: "s"}}, []int64{1, 2}},
			{[]domain.ProjectFilter{{Name: "a"}, {Description: "e"}}, []int64{3, 4}},
			{[]domain.ProjectFilter{{AuthorFirstName: "an"}, {TeamName: "a"}, {Description: "s"}}, []int64{2, 3}},
		}
		for _, c := range combos {
			var combined domain.ProjectFilter
			expected := single(c.parts[0])
			for _, p := range c.parts {
				expected = intersect(expected, single(p))
				if p.Name != "" {
					combined.Name = p.Name
				}
				if p.Description != "" {
					combined.Description = p.Description
				}
				if p.AuthorFirstName != "" {
					combined.AuthorFirstName = p.AuthorFirstName
				}
				if p.AuthorLastName != "" {
					combined.AuthorLastName = p.AuthorLastName
				}
				if p.TeamName != "" {
					combined.TeamName = p.TeamName
				}
			}
			got := single(combined)
			assert.Equal(t, expected, got, "%+v", combined)
			assert.Equal(t, c.want, got, "%+v", combined)
		}
	})
}

func TestPaginationTotalInvariance(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		filter := &domain.ProjectFilter{TeamName: "a"}

		ids, total := queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: &domain.Page{Number: 2, Size: 1}})
		assert.Equal(t, []int64{2}, ids)
		assert.Equal(t, 3, total)

		for n := 1; n <= 5; n++ {
			_, total := queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: &domain.Page{Number: n, Size: 1}})
			assert.Equal(t, 3, total, "page %d", n)
		}

		ids, total = queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: &domain.Page{Number: 2, Size: 2}})
		assert.Equal(t, []int64{3}, ids)
		assert.Equal(t, 3, total)

		ids, total = queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: &domain.Page{Number: 4, Size: 1}})
		assert.Empty(t, ids)
		assert.Equal(t, 3, total)

		for _, p := range []*domain.Page{
			{Number: math.MaxInt64/2 + 2, Size: 4},
			{Number: math.MaxInt, Size: math.MaxInt},
			{Number: 2, Size: math.MaxInt},
		} {
			ids, total = queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: p})
			assert.Empty(t, ids, "%+v", p)
			assert.Equal(t, 3, total, "%+v", p)
		}

		ids, total = queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: &domain.Page{Number: 1, Size: math.MaxInt}})
		assert.Equal(t, []int64{1, 2, 3}, ids)
		assert.Equal(t, 3, total)

		for _, p := range []*domain.Page{nil, {Number: 0, Size: 1}, {Number: 1, Size: 0}, {Number: -3, Size: -1}} {
			ids, total := queryIDs(t, eng, domain.ProjectQuery{Filter: filter, Page: p})
			assert.Equal(t, []int64{1, 2, 3}, ids)
			assert.Equal(t, len(ids), total)
		}
	})
}

func TestSortKeysAndStableTies(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		cases := []struct {
			prop  domain.SortProperty
			order domain.SortOrder
			want  []int64
		}{
			{domain.SortByName, domain.Ascending, []int64{1, 4, 2, 3}},
			{domain.SortByName, domain.Descending, []int64{3, 2, 4, 1}},
			{domain.SortByDescription, domain.Ascending, []int64{3, 4, 2, 1}},
			{domain.SortByDeadline, domain.Ascending, []int64{2, 1, 3, 4}},
			{domain.SortByCreatedAt, domain.Ascending, []int64{3, 1, 2, 4}},
			{domain.SortByCreatedAt, domain.Descending, []int64{2, 4, 1, 3}},
			{domain.SortByTasksCount, domain.Ascending, []int64{3, 1, 4, 2}},
			{domain.SortByTasksCount, domain.Descending, []int64{2, 1, 4, 3}},
			{domain.SortByAuthorFirstName, domain.Ascending, []int64{1, 2, 3, 4}},
			{domain.SortByAuthorFirstName, domain.Descending, []int64{4, 3, 1, 2}},
			{domain.SortByAuthorLastName, domain.Ascending, []int64{4, 1, 2, 3}},
			{domain.SortByTeamName, domain.Ascending, []int64{2, 1, 3, 4}},
			{domain.SortByTeamName, domain.Descending, []int64{4, 1, 3, 2}},
			{"teamname", domain.Ascending, []int64{2, 1, 3, 4}},
		}
		for _, tc := range cases {
			ids, _ := queryIDs(t, eng, domain.ProjectQuery{Sort: &domain.ProjectSort{Property: tc.prop, Order: tc.order}})
			assert.Equal(t, tc.want, ids, "%s %s", tc.prop, tc.order)
		}
	})
}

func TestSortFallsBackToName(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		for _, order := range []domain.SortOrder{domain.Ascending, domain.Descending} {
			want, _ := queryIDs(t, eng, domain.ProjectQuery{Sort: &domain.ProjectSort{Property: domain.SortByName, Order: order}})
			got, _ := queryIDs(t, eng, domain.ProjectQuery{Sort: &domain.ProjectSort{Property: "Budget", Order: order}})
			assert.Equal(t, want, got, order)
		}
		none, _ := queryIDs(t, eng, domain.ProjectQuery{})
		assert.Equal(t, []int64{1, 4, 2, 3}, none)
	})
}

func TestProjectsPageAssembly(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		res, err := eng.ProjectsPage(context.Background(), domain.ProjectQuery{Page: &domain.Page{Number: 1, Size: 2}})
		require.NoError(t, err)
		assert.Equal(t, 4, res.TotalCount)
		require.Len(t, res.Items, 2)

		alpha := res.Items[0]
		assert.Equal(t, "Alpha", alpha.Name)
		require.NotNil(t, alpha.Author)
		assert.Equal(t, "Ann", alpha.Author.FirstName)
		require.NotNil(t, alpha.Team)
		assert.Equal(t, "Backend", alpha.Team.Name)
		assert.Equal(t, []int64{1, 2}, taskIDs(alpha.Tasks))
		assert.Equal(t, "Done", alpha.Tasks[0].State)
		assert.Equal(t, "ToDo", alpha.Tasks[1].State)
		require.NotNil(t, alpha.Tasks[1].Performer)
		assert.Equal(t, "bob", alpha.Tasks[1].Performer.FirstName)

		two := res.Items[1]
		assert.Equal(t, int64(4), two.ID)
		assert.Equal(t, "Design", two.Team.Name)
		assert.Equal(t, []int64{9, 10}, taskIDs(two.Tasks))
	})
}

func TestProjectTeamSizes(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		ctx := context.Background()
		rows, err := eng.ProjectTeamSizes(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []domain.ProjectTeamSize{
			{ProjectID: 1, ProjectName: "Alpha", TeamID: 1, TeamName: "Backend", MembersCount: 3},
			{ProjectID: 3, ProjectName: "gamma", TeamID: 1, TeamName: "Backend", MembersCount: 3},
		}, rows)

		rows, err = eng.ProjectTeamSizes(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, rows, 4)

		rows, err = eng.ProjectTeamSizes(ctx, 4)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestProjectsInfo(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		infos, err := eng.ProjectsInfo(context.Background())
		require.NoError(t, err)
		require.Len(t, infos, 4)

		byID := map[int64]domain.ProjectInfo{}
		for _, in := range infos {
			byID[in.Project.ID] = in
		}

		p1 := byID[1]
		assert.Equal(t, int64(1), p1.LongestTaskByDescription.ID)
		assert.Equal(t, int64(2), p1.ShortestTaskByName.ID)
		require.NotNil(t, p1.TeamMembersCount)
		assert.Equal(t, 3, *p1.TeamMembersCount)

		// short description and five tasks: team size withheld
		p2 := byID[2]
		assert.Equal(t, int64(6), p2.LongestTaskByDescription.ID, "tie resolves to the first task")
		assert.Equal(t, int64(3), p2.ShortestTaskByName.ID)
		assert.Nil(t, p2.TeamMembersCount)

		p4 := byID[4]
		assert.Equal(t, int64(9), p4.LongestTaskByDescription.ID)
		assert.Equal(t, int64(10), p4.ShortestTaskByName.ID)
		require.NotNil(t, p4.TeamMembersCount)
		assert.Equal(t, 1, *p4.TeamMembersCount)
		require.NotNil(t, p4.ShortestTaskByName.Performer)
		assert.Equal(t, "Fred", p4.ShortestTaskByName.Performer.FirstName)
	})
}

func TestTeamMembersCountDisclosure(t *testing.T) {
	five := func(projectID, firstID int64) []domain.Task {
		var out []domain.Task
		for i := int64(0); i < 5; i++ {
			out = append(out, domain.Task{ID: firstID + i, ProjectID: projectID, PerformerID: 1, Name: "t", CreatedAt: day(2023, 1, 1)})
		}
		return out
	}
	d := dataset{
		teams: []domain.Team{{ID: 1, Name: "Core", CreatedAt: day(2020, 1, 1)}},
		users: []domain.User{{ID: 1, TeamID: ref(1), FirstName: "Ann", LastName: "A", Email: "a@x", RegisteredAt: day(2020, 1, 1), BirthDay: day(1990, 1, 1)}},
		projects: []domain.Project{
			{ID: 1, AuthorID: 1, TeamID: 1, Name: "long", Description: strings.Repeat("d", 21), CreatedAt: day(2023, 1, 1), Deadline: day(2024, 1, 1)},
			{ID: 2, AuthorID: 1, TeamID: 1, Name: "short", Description: "ddddd", CreatedAt: day(2023, 1, 1), Deadline: day(2024, 1, 1)},
			{ID: 3, AuthorID: 1, TeamID: 1, Name: "edge", Description: strings.Repeat("d", 20), CreatedAt: day(2023, 1, 1), Deadline: day(2024, 1, 1)},
		},
		tasks: slices.Concat(five(1, 1), five(2, 10), five(3, 20)),
	}
	for _, s := range d.sources(t) {
		t.Run(s.name, func(t *testing.T) {
			infos, err := report.New(s.src).ProjectsInfo(context.Background())
			require.NoError(t, err)
			require.Len(t, infos, 3)
			require.NotNil(t, infos[0].TeamMembersCount)
			assert.Equal(t, 1, *infos[0].TeamMembersCount)
			assert.Nil(t, infos[1].TeamMembersCount)
			assert.Nil(t, infos[2].TeamMembersCount)
		})
	}
}

func TestUserInfo(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		ctx := context.Background()

		ann, err := eng.UserInfo(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Ann", ann.User.FirstName)
		require.NotNil(t, ann.LastProject)
		assert.Equal(t, int64(2), ann.LastProject.ID)
		assert.Len(t, ann.LastProject.Tasks, 5)
		assert.Equal(t, 5, ann.LastProjectTasksCount)
		assert.Equal(t, 3, ann.NotFinishedOrCanceledTasksCount)
		require.NotNil(t, ann.LongestTask)
		assert.Equal(t, int64(8), ann.LongestTask.ID, "unfinished task measured up to now")

		// Done excluded, Canceled counted
		fred, err := eng.UserInfo(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, 1, fred.NotFinishedOrCanceledTasksCount)
		assert.Nil(t, fred.LastProject)
		assert.Zero(t, fred.LastProjectTasksCount)
		require.NotNil(t, fred.LongestTask)
		assert.Equal(t, int64(9), fred.LongestTask.ID)

		eve, err := eng.UserInfo(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, eve.LongestTask)
		assert.Zero(t, eve.NotFinishedOrCanceledTasksCount)

		_, err = eng.UserInfo(ctx, 99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTasksCountByProject(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		ctx := context.Background()
		counts, err := eng.TasksCountByProject(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"1: Alpha": 1, "2: Beta": 2, "3: gamma": 1}, counts)

		counts, err = eng.TasksCountByProject(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, counts)

		_, err = eng.TasksCountByProject(ctx, 99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCapitalTasks(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		tasks, err := eng.CapitalTasks(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 8}, taskIDs(tasks))
		for _, tk := range tasks {
			require.NotNil(t, tk.Performer)
			assert.Equal(t, int64(1), tk.Performer.ID)
		}

		tasks, err = eng.CapitalTasks(context.Background(), 2)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestTeamsWithMembers(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		ctx := context.Background()
		teams, err := eng.TeamsWithMembers(ctx, 2000)
		require.NoError(t, err)
		require.Len(t, teams, 2)
		assert.Equal(t, "Alpha Squad", teams[0].Name)
		assert.Equal(t, "Backend", teams[1].Name)
		ids := func(members []domain.UserView) []int64 {
			out := []int64{}
			for _, m := range members {
				out = append(out, m.ID)
			}
			return out
		}
		assert.Equal(t, []int64{4}, ids(teams[0].Members))
		assert.Equal(t, []int64{3, 1}, ids(teams[1].Members), "most recently registered first")

		// Dana was born on 1999-01-01, not before 1999
		teams, err = eng.TeamsWithMembers(ctx, 1999)
		require.NoError(t, err)
		require.Len(t, teams, 1)
		assert.Equal(t, "Backend", teams[0].Name)

		teams, err = eng.TeamsWithMembers(ctx, 1980)
		require.NoError(t, err)
		assert.Empty(t, teams)

		teams, err = eng.TeamsWithMembers(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, teams)
	})
}

func TestTeamsWithMembersUsesLocalBirthYear(t *testing.T) {
	zonedBirthdays().forEachSource(t, func(t *testing.T, eng report.Engine) {
		teams, err := eng.TeamsWithMembers(context.Background(), 2000)
		require.NoError(t, err)
		require.Len(t, teams, 1, "Dana's local birth year is 2000")
		assert.Equal(t, "Backend", teams[0].Name)
		ids := []int64{}
		for _, m := range teams[0].Members {
			ids = append(ids, m.ID)
			assert.Less(t, m.BirthDay.Year(), 2000)
		}
		assert.Equal(t, []int64{3, 1}, ids)
	})
}

func TestUsersWithTasks(t *testing.T) {
	forEachSource(t, func(t *testing.T, eng report.Engine) {
		rows, err := eng.UsersWithTasks(context.Background())
		require.NoError(t, err)
		var names []string
		got := map[string][]int64{}
		for _, r := range rows {
			names = append(names, r.User.FirstName)
			got[r.User.FirstName] = taskIDs(r.Tasks)
		}
		assert.Equal(t, []string{"Ann", "Carl", "Dana", "Eve", "Fred", "bob"}, names)
		assert.Equal(t, []int64{8, 5, 1, 3}, got["Ann"])
		assert.Equal(t, []int64{6, 7}, got["Dana"])
		assert.Equal(t, []int64{}, got["Eve"])
		assert.Equal(t, []int64{9, 10}, got["Fred"])
	})
}

func TestAdaptersProduceIdenticalReports(t *testing.T) {
	d := board()
	mem := report.New(d.snapshot())
	sql := report.New(d.sqlSource(t))
	mem.Now = func() time.Time { return testNow }
	sql.Now = mem.Now
	ctx := context.Background()

	queries := []domain.ProjectQuery{
		{},
		{Page: &domain.Page{Number: 2, Size: 2}, Sort: &domain.ProjectSort{Property: domain.SortByTasksCount, Order: domain.Descending}},
		{Filter: &domain.ProjectFilter{AuthorFirstName: "AN"}, Sort: &domain.ProjectSort{Property: domain.SortByDeadline}},
		{Filter: &domain.ProjectFilter{TeamName: "a", Description: "s"}, Sort: &domain.ProjectSort{Property: "nope", Order: domain.Descending}},
	}
	for _, q := range queries {
		want, err := mem.ProjectsPage(ctx, q)
		require.NoError(t, err)
		got, err := sql.ProjectsPage(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	wantInfo, err := mem.ProjectsInfo(ctx)
	require.NoError(t, err)
	gotInfo, err := sql.ProjectsInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantInfo, gotInfo)

	for _, id := range []int64{1, 4, 6} {
		want, err := mem.UserInfo(ctx, id)
		require.NoError(t, err)
		got, err := sql.UserInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	wantUsers, err := mem.UsersWithTasks(ctx)
	require.NoError(t, err)
	gotUsers, err := sql.UsersWithTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantUsers, gotUsers)
}

func TestAdaptersAgreeOnEdgeInputs(t *testing.T) {
	d := zonedBirthdays()
	mem := report.New(d.snapshot())
	sql := report.New(d.sqlSource(t))
	mem.Now = func() time.Time { return testNow }
	sql.Now = mem.Now
	ctx := context.Background()

	for _, p := range []*domain.Page{
		{Number: math.MaxInt64/2 + 2, Size: 4},
		{Number: math.MaxInt, Size: 1},
		{Number: 1, Size: math.MaxInt},
		{Number: 5, Size: 1},
	} {
		q := domain.ProjectQuery{Page: p, Sort: &domain.ProjectSort{Property: domain.SortByTasksCount}}
		want, err := mem.ProjectsPage(ctx, q)
		require.NoError(t, err)
		got, err := sql.ProjectsPage(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%+v", p)
		assert.Equal(t, 4, got.TotalCount)
	}

	for _, year := range []int{1999, 2000, 2001} {
		want, err := mem.TeamsWithMembers(ctx, year)
		require.NoError(t, err)
		got, err := sql.TeamsWithMembers(ctx, year)
		require.NoError(t, err)
		assert.Equal(t, want, got, "cutoff %d", year)
	}

	for _, id := range []int64{3, 4} {
		want, err := mem.UserInfo(ctx, id)
		require.NoError(t, err)
		got, err := sql.UserInfo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
