package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/repo"
)

const dateLayout = "2006-01-02"

// parseDate accepts a calendar date or a full RFC3339 timestamp.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want %s or RFC3339)", v, dateLayout)
	}
	return t, nil
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", v)
	}
	return id, nil
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

func seedCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import teams, users, projects and tasks from a YAML or JSON file in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var ds engine.Dataset
			if strings.EqualFold(filepath.Ext(filePath), ".json") {
				err = json.Unmarshal(data, &ds)
			} else {
				err = yaml.Unmarshal(data, &ds)
			}
			if err != nil {
				return fmt.Errorf("parse %s: %w", filePath, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Import(ctx, ds, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{
					"teams": res.Teams, "users": res.Users, "projects": res.Projects, "tasks": res.Tasks,
				}).Info("seed imported")
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to a dataset file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}
	team.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTeam(ctx, domain.Team{Name: args[0]}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	team.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				teams, err := r.Teams(ctx, nil)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				rows := make([]table.Row, 0, len(teams))
				for _, t := range teams {
					rows = append(rows, table.Row{t.ID, t.Name, fmtDate(t.CreatedAt)})
				}
				renderTable(table.Row{"ID", "Name", "Created"}, rows)
				return nil
			})
		},
	})
	return team
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var first, last, email, birthDay string
	var teamID int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			born, err := parseDate(birthDay)
			if err != nil {
				return err
			}
			u := domain.User{FirstName: first, LastName: last, Email: email, BirthDay: born}
			if teamID > 0 {
				u.TeamID = &teamID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateUser(ctx, u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&first, "first-name", "", "first name")
	create.Flags().StringVar(&last, "last-name", "", "last name")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&birthDay, "birth-day", "", "birth date (YYYY-MM-DD)")
	create.Flags().Int64Var(&teamID, "team", 0, "team id")
	for _, f := range []string{"first-name", "last-name", "email", "birth-day"} {
		_ = create.MarkFlagRequired(f)
	}
	user.AddCommand(create)

	user.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.Users(ctx, domain.UserSelector{})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					team := ""
					if u.TeamID != nil {
						team = strconv.FormatInt(*u.TeamID, 10)
					}
					rows = append(rows, table.Row{u.ID, u.FirstName, u.LastName, u.Email, team, fmtDate(u.BirthDay)})
				}
				renderTable(table.Row{"ID", "First", "Last", "Email", "Team", "Born"}, rows)
				return nil
			})
		},
	})
	return user
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}

	var name, description, deadline string
	var authorID, teamID int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseDate(deadline)
			if err != nil {
				return err
			}
			p := domain.Project{AuthorID: authorID, TeamID: teamID, Name: name, Description: description, Deadline: due}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateProject(ctx, p, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "project name")
	create.Flags().StringVar(&description, "description", "", "project description")
	create.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	create.Flags().Int64Var(&authorID, "author", 0, "author user id")
	create.Flags().Int64Var(&teamID, "team", 0, "team id")
	for _, f := range []string{"name", "deadline", "author", "team"} {
		_ = create.MarkFlagRequired(f)
	}
	prj.AddCommand(create)
	return prj
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}

	var name, description, state string
	var projectID, performerID int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.Task{ProjectID: projectID, PerformerID: performerID, Name: name, Description: description}
			if state != "" {
				s, err := domain.ParseTaskState(state)
				if err != nil {
					return err
				}
				t.State = s
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateTask(ctx, t, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "task name")
	create.Flags().StringVar(&description, "description", "", "task description")
	create.Flags().StringVar(&state, "state", "", "initial state (ToDo, InProgress, Done, Canceled)")
	create.Flags().Int64Var(&projectID, "project", 0, "project id")
	create.Flags().Int64Var(&performerID, "performer", 0, "performer user id")
	for _, f := range []string{"name", "project", "performer"} {
		_ = create.MarkFlagRequired(f)
	}
	task.AddCommand(create)

	task.AddCommand(&cobra.Command{
		Use:   "state <task-id> <state>",
		Short: "Move a task to another state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			next, err := domain.ParseTaskState(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskState(ctx, id, next, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	return task
}
