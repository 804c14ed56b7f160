package server

import (
	"strings"
	"time"

	"taskboard/internal/domain"
)

// Request payloads

type CreateTeamRequest struct {
	Name string `json:"name"`
}

type CreateUserRequest struct {
	TeamID    *int64    `json:"team_id,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email" format:"email"`
	BirthDay  time.Time `json:"birth_day"`
}

type CreateProjectRequest struct {
	AuthorID    int64     `json:"author_id"`
	TeamID      int64     `json:"team_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Deadline    time.Time `json:"deadline"`
}

type CreateTaskRequest struct {
	ProjectID   int64  `json:"project_id"`
	PerformerID int64  `json:"performer_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty" doc:"ToDo, InProgress, Done or Canceled; defaults to ToDo"`
}

type SetTaskStateRequest struct {
	State string `json:"state" doc:"ToDo, InProgress, Done or Canceled"`
}

type PageRequest struct {
	Number int `json:"number,omitempty"`
	Size   int `json:"size,omitempty"`
}

type ProjectFilterRequest struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	AuthorFirstName string `json:"author_first_name,omitempty"`
	AuthorLastName  string `json:"author_last_name,omitempty"`
	TeamName        string `json:"team_name,omitempty"`
}

type SortRequest struct {
	Property string `json:"property,omitempty" doc:"Name, Description, Deadline, CreatedAt, TasksCount, AuthorFirstName, AuthorLastName or TeamName"`
	Order    string `json:"order,omitempty" doc:"Ascending or Descending"`
}

type QueryProjectsRequest struct {
	Page   *PageRequest          `json:"page,omitempty"`
	Filter *ProjectFilterRequest `json:"filter,omitempty"`
	Sort   *SortRequest          `json:"sort,omitempty"`
}

func (r QueryProjectsRequest) query() domain.ProjectQuery {
	var q domain.ProjectQuery
	if r.Page != nil {
		q.Page = &domain.Page{Number: r.Page.Number, Size: r.Page.Size}
	}
	if r.Filter != nil {
		q.Filter = &domain.ProjectFilter{
			Name:            r.Filter.Name,
			Description:     r.Filter.Description,
			AuthorFirstName: r.Filter.AuthorFirstName,
			AuthorLastName:  r.Filter.AuthorLastName,
			TeamName:        r.Filter.TeamName,
		}
	}
	if r.Sort != nil {
		q.Sort = &domain.ProjectSort{
			Property: domain.ParseSortProperty(r.Sort.Property),
			Order:    domain.ParseSortOrder(r.Sort.Order),
		}
	}
	return q
}

// parseState treats an empty state as ToDo.
func parseState(v string) (domain.TaskState, error) {
	if strings.TrimSpace(v) == "" {
		return domain.ToDo, nil
	}
	return domain.ParseTaskState(v)
}
