package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/metrics"
	"taskboard/internal/report"
)

var reportErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

// reportService resolves the source of each request. The memory source loads a fresh
// snapshot per call; nothing is kept between requests.
type reportService struct {
	engine   engine.Engine
	defaults ReportDefaults
	metrics  *metrics.Metrics
}

func (s reportService) source(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = s.defaults.Source
	}
	switch name {
	case "", config.SourceSQL:
		return config.SourceSQL, nil
	case config.SourceMemory:
		return config.SourceMemory, nil
	}
	return "", newAPIError(http.StatusBadRequest, "bad_request", "source must be sql or memory", map[string]any{"source": name})
}

func (s reportService) run(ctx context.Context, reportName, sourceName string, fn func(report.Engine) error) error {
	source, err := s.source(sourceName)
	if err != nil {
		return err
	}
	start := time.Now()
	err = func() error {
		var src report.Source = s.engine.Repo
		if source == config.SourceMemory {
			snap, err := report.LoadSnapshot(ctx, s.engine.Repo)
			if err != nil {
				return err
			}
			src = snap
		}
		eng := report.New(src)
		if s.engine.Now != nil {
			eng.Now = s.engine.Now
		}
		return fn(eng)
	}()
	s.metrics.ObserveReport(reportName, source, start, err)
	return err
}

func (s reportService) cutoffYear(v int) int {
	if v != 0 {
		return v
	}
	return s.defaults.CutoffYear
}

// minTeamSize treats a negative value as absent.
func (s reportService) minTeamSize(v int) int {
	if v >= 0 {
		return v
	}
	return s.defaults.MinTeamSize
}

type listProjectsInput struct {
	Source          string `query:"source" doc:"sql or memory"`
	Page            int    `query:"page" doc:"1-based page number; paging applies only when page and size are both positive"`
	Size            int    `query:"size"`
	Name            string `query:"name"`
	Description     string `query:"description"`
	AuthorFirstName string `query:"author_first_name"`
	AuthorLastName  string `query:"author_last_name"`
	TeamName        string `query:"team_name"`
	Sort            string `query:"sort"`
	Order           string `query:"order"`
}

func (in *listProjectsInput) query() domain.ProjectQuery {
	q := domain.ProjectQuery{
		Filter: &domain.ProjectFilter{
			Name:            in.Name,
			Description:     in.Description,
			AuthorFirstName: in.AuthorFirstName,
			AuthorLastName:  in.AuthorLastName,
			TeamName:        in.TeamName,
		},
	}
	if in.Page != 0 || in.Size != 0 {
		q.Page = &domain.Page{Number: in.Page, Size: in.Size}
	}
	if in.Sort != "" || in.Order != "" {
		q.Sort = &domain.ProjectSort{
			Property: domain.ParseSortProperty(in.Sort),
			Order:    domain.ParseSortOrder(in.Order),
		}
	}
	return q
}

type pagedProjectsOutput struct {
	Body domain.PagedProjects `json:"body"`
}

func registerProjects(api huma.API, s reportService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "Filter, sort and page projects",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *listProjectsInput) (*pagedProjectsOutput, error) {
		var out domain.PagedProjects
		err := s.run(ctx, "projects_page", input.Source, func(r report.Engine) (err error) {
			out, err = r.ProjectsPage(ctx, input.query())
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &pagedProjectsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "query-projects",
		Method:      http.MethodPost,
		Path:        "/projects/query",
		Summary:     "Filter, sort and page projects with a query document",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *struct {
		Source string               `query:"source" doc:"sql or memory"`
		Body   QueryProjectsRequest `json:"body"`
	}) (*pagedProjectsOutput, error) {
		var out domain.PagedProjects
		err := s.run(ctx, "projects_page", input.Source, func(r report.Engine) (err error) {
			out, err = r.ProjectsPage(ctx, input.Body.query())
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &pagedProjectsOutput{Body: out}, nil
	})
}

func registerReports(api huma.API, s reportService) {
	huma.Register(api, huma.Operation{
		OperationID: "report-project-team-sizes",
		Method:      http.MethodGet,
		Path:        "/reports/projects/team-size",
		Summary:     "Projects whose team has at least min_members members",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *struct {
		Source     string `query:"source" doc:"sql or memory"`
		MinMembers int    `query:"min_members" default:"-1" doc:"defaults to reports.min_team_size"`
	}) (*struct {
		Body []domain.ProjectTeamSize `json:"body"`
	}, error) {
		var out []domain.ProjectTeamSize
		err := s.run(ctx, "project_team_sizes", input.Source, func(r report.Engine) (err error) {
			out, err = r.ProjectTeamSizes(ctx, s.minTeamSize(input.MinMembers))
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectTeamSize `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-projects-info",
		Method:      http.MethodGet,
		Path:        "/reports/projects/info",
		Summary:     "Per-project task highlights and team size",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *struct {
		Source string `query:"source" doc:"sql or memory"`
	}) (*struct {
		Body []domain.ProjectInfo `json:"body"`
	}, error) {
		var out []domain.ProjectInfo
		err := s.run(ctx, "projects_info", input.Source, func(r report.Engine) (err error) {
			out, err = r.ProjectsInfo(ctx)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectInfo `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-users-tasks",
		Method:      http.MethodGet,
		Path:        "/reports/users/tasks",
		Summary:     "Users by first name with their tasks, longest name first",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *struct {
		Source string `query:"source" doc:"sql or memory"`
	}) (*struct {
		Body []domain.UserTasks `json:"body"`
	}, error) {
		var out []domain.UserTasks
		err := s.run(ctx, "users_with_tasks", input.Source, func(r report.Engine) (err error) {
			out, err = r.UsersWithTasks(ctx)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.UserTasks `json:"body"`
		}{Body: out}, nil
	})

	type userInput struct {
		ID     int64  `path:"id"`
		Source string `query:"source" doc:"sql or memory"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "report-user-info",
		Method:      http.MethodGet,
		Path:        "/reports/users/{id}",
		Summary:     "User summary with latest project and longest running task",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *userInput) (*struct {
		Body domain.UserInfo `json:"body"`
	}, error) {
		var out domain.UserInfo
		err := s.run(ctx, "user_info", input.Source, func(r report.Engine) (err error) {
			out, err = r.UserInfo(ctx, input.ID)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserInfo `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-user-tasks-by-project",
		Method:      http.MethodGet,
		Path:        "/reports/users/{id}/tasks-by-project",
		Summary:     "Task counts of the user's projects keyed by \"<id>: <name>\"",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *userInput) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		var out map[string]int
		err := s.run(ctx, "tasks_count_by_project", input.Source, func(r report.Engine) (err error) {
			out, err = r.TasksCountByProject(ctx, input.ID)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-user-capital-tasks",
		Method:      http.MethodGet,
		Path:        "/reports/users/{id}/capital-tasks",
		Summary:     "Tasks of the user whose name starts with an uppercase letter",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *userInput) (*struct {
		Body []domain.TaskView `json:"body"`
	}, error) {
		var out []domain.TaskView
		err := s.run(ctx, "capital_tasks", input.Source, func(r report.Engine) (err error) {
			out, err = r.CapitalTasks(ctx, input.ID)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskView `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-teams",
		Method:      http.MethodGet,
		Path:        "/reports/teams",
		Summary:     "Teams whose members were all born before cutoff_year",
		Errors:      reportErrors,
	}, func(ctx context.Context, input *struct {
		Source     string `query:"source" doc:"sql or memory"`
		CutoffYear int    `query:"cutoff_year" doc:"defaults to reports.cutoff_year"`
	}) (*struct {
		Body []domain.TeamMembers `json:"body"`
	}, error) {
		var out []domain.TeamMembers
		err := s.run(ctx, "teams_with_members", input.Source, func(r report.Engine) (err error) {
			out, err = r.TeamsWithMembers(ctx, s.cutoffYear(input.CutoffYear))
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TeamMembers `json:"body"`
		}{Body: out}, nil
	})
}
