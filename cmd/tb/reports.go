package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/report"
)

func withReports(ctx context.Context, fn func(context.Context, report.Engine, *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source := strings.ToLower(strings.TrimSpace(viper.GetString("source")))
	if source == "" {
		source = cfg.Reports.Source
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		var src report.Source = e.Repo
		switch source {
		case config.SourceSQL:
		case config.SourceMemory:
			snap, err := report.LoadSnapshot(ctx, e.Repo)
			if err != nil {
				return err
			}
			src = snap
		default:
			return fmt.Errorf("unknown source %q (want sql or memory)", source)
		}
		logrus.WithField("source", source).Debug("running report")
		return fn(ctx, report.New(src), cfg)
	})
}

func userArg(args []string) (int64, error) {
	return parseID(args[0])
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Run reports (use --source to pick sql or memory)"}
	rep.AddCommand(reportProjectsCmd())
	rep.AddCommand(reportTeamSizesCmd())
	rep.AddCommand(reportProjectsInfoCmd())
	rep.AddCommand(reportUserCmd())
	rep.AddCommand(reportTasksByProjectCmd())
	rep.AddCommand(reportCapitalTasksCmd())
	rep.AddCommand(reportTeamsCmd())
	rep.AddCommand(reportUsersTasksCmd())
	return rep
}

func reportProjectsCmd() *cobra.Command {
	var f domain.ProjectFilter
	var page, size int
	var sortBy, order string
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Filter, sort and page projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := domain.ProjectQuery{Filter: &f}
			if page != 0 || size != 0 {
				q.Page = &domain.Page{Number: page, Size: size}
			}
			if sortBy != "" || order != "" {
				q.Sort = &domain.ProjectSort{Property: domain.ParseSortProperty(sortBy), Order: domain.ParseSortOrder(order)}
			}
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, _ *config.Config) error {
				res, err := r.ProjectsPage(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				rows := make([]table.Row, 0, len(res.Items))
				for _, p := range res.Items {
					author, team := "", ""
					if p.Author != nil {
						author = p.Author.FirstName + " " + p.Author.LastName
					}
					if p.Team != nil {
						team = p.Team.Name
					}
					rows = append(rows, table.Row{p.ID, p.Name, author, team, len(p.Tasks), fmtDate(p.Deadline)})
				}
				renderTable(table.Row{"ID", "Name", "Author", "Team", "Tasks", "Deadline"}, rows)
				fmt.Printf("total: %d\n", res.TotalCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "name contains (case-insensitive)")
	cmd.Flags().StringVar(&f.Description, "description", "", "description contains")
	cmd.Flags().StringVar(&f.AuthorFirstName, "author-first-name", "", "author first name contains")
	cmd.Flags().StringVar(&f.AuthorLastName, "author-last-name", "", "author last name contains")
	cmd.Flags().StringVar(&f.TeamName, "team-name", "", "team name contains")
	cmd.Flags().IntVar(&page, "page", 0, "1-based page number")
	cmd.Flags().IntVar(&size, "size", 0, "page size")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Name, Description, Deadline, CreatedAt, TasksCount, AuthorFirstName, AuthorLastName, TeamName")
	cmd.Flags().StringVar(&order, "order", "", "Ascending or Descending")
	return cmd
}

func reportTeamSizesCmd() *cobra.Command {
	var minMembers int
	cmd := &cobra.Command{
		Use:   "team-sizes",
		Short: "Projects whose team has at least --min-members members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, cfg *config.Config) error {
				threshold := cfg.Reports.MinTeamSize
				if cmd.Flags().Changed("min-members") {
					threshold = minMembers
				}
				rows, err := r.ProjectTeamSizes(ctx, threshold)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				out := make([]table.Row, 0, len(rows))
				for _, s := range rows {
					out = append(out, table.Row{s.ProjectID, s.ProjectName, s.TeamName, s.MembersCount})
				}
				renderTable(table.Row{"Project", "Name", "Team", "Members"}, out)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&minMembers, "min-members", 0, "member threshold (defaults to reports.min_team_size)")
	return cmd
}

func reportProjectsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects-info",
		Short: "Per-project task highlights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, _ *config.Config) error {
				infos, err := r.ProjectsInfo(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(infos)
				}
				rows := make([]table.Row, 0, len(infos))
				for _, in := range infos {
					longest, shortest, members := "", "", "-"
					if in.LongestTaskByDescription != nil {
						longest = in.LongestTaskByDescription.Name
					}
					if in.ShortestTaskByName != nil {
						shortest = in.ShortestTaskByName.Name
					}
					if in.TeamMembersCount != nil {
						members = fmt.Sprint(*in.TeamMembersCount)
					}
					rows = append(rows, table.Row{in.Project.ID, in.Project.Name, longest, shortest, members})
				}
				renderTable(table.Row{"ID", "Project", "Longest description", "Shortest name", "Team members"}, rows)
				return nil
			})
		},
	}
}

func reportUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "User summary with latest project and longest running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, _ *config.Config) error {
				info, err := r.UserInfo(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(info)
			})
		},
	}
}

func reportTasksByProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks-by-project <user-id>",
		Short: "Task counts of the user per project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, _ *config.Config) error {
				counts, err := r.TasksCountByProject(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				keys := make([]string, 0, len(counts))
				for k := range counts {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, table.Row{k, counts[k]})
				}
				renderTable(table.Row{"Project", "Tasks"}, rows)
				return nil
			})
		},
	}
}

func reportCapitalTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capital-tasks <user-id>",
		Short: "Tasks of the user whose name starts with an uppercase letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, _ *config.Config) error {
				tasks, err := r.CapitalTasks(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTable(table.Row{"ID", "Project", "Name", "State"}, taskRows(tasks))
				return nil
			})
		},
	}
}

func taskRows(tasks []domain.TaskView) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{t.ID, t.ProjectID, t.Name, t.State})
	}
	return rows
}

func reportTeamsCmd() *cobra.Command {
	var cutoff int
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "Teams with their members born before --cutoff-year",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, cfg *config.Config) error {
				year := cfg.Reports.CutoffYear
				if cmd.Flags().Changed("cutoff-year") {
					year = cutoff
				}
				teams, err := r.TeamsWithMembers(ctx, year)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				var rows []table.Row
				for _, t := range teams {
					for _, m := range t.Members {
						rows = append(rows, table.Row{t.Name, m.ID, m.FirstName + " " + m.LastName, fmtDate(m.BirthDay)})
					}
				}
				renderTable(table.Row{"Team", "User", "Name", "Born"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&cutoff, "cutoff-year", 0, "members must be born before this year (defaults to reports.cutoff_year)")
	return cmd
}

func reportUsersTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users-tasks",
		Short: "Users by first name with their tasks, longest name first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReports(cmd.Context(), func(ctx context.Context, r report.Engine, _ *config.Config) error {
				users, err := r.UsersWithTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				var rows []table.Row
				for _, u := range users {
					name := u.User.FirstName + " " + u.User.LastName
					if len(u.Tasks) == 0 {
						rows = append(rows, table.Row{name, "", ""})
					}
					for _, t := range u.Tasks {
						rows = append(rows, table.Row{name, t.Name, t.State})
					}
				}
				renderTable(table.Row{"User", "Task", "State"}, rows)
				return nil
			})
		},
	}
}
