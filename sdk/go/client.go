package taskboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Taskboard HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// Source selects the report source ("sql" or "memory"); empty uses the server default.
	Source     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           int64     `json:"id"`
	TeamID       *int64    `json:"team_id,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
	BirthDay     time.Time `json:"birth_day"`
}

type Project struct {
	ID          int64     `json:"id"`
	AuthorID    int64     `json:"author_id"`
	TeamID      int64     `json:"team_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Deadline    time.Time `json:"deadline"`
}

// Task carries its state as ToDo, InProgress, Done or Canceled.
type Task struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	PerformerID int64      `json:"performer_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type TaskView struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Performer   *User      `json:"performer,omitempty"`
}

type ProjectView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    time.Time  `json:"deadline"`
	Tasks       []TaskView `json:"tasks"`
	Author      *User      `json:"author,omitempty"`
	Team        *Team      `json:"team,omitempty"`
}

type PagedProjects struct {
	Items      []ProjectView `json:"items"`
	TotalCount int           `json:"total_count"`
}

// ProjectQuery mirrors the body of POST /projects/query.
type ProjectQuery struct {
	Page   *Page          `json:"page,omitempty"`
	Filter *ProjectFilter `json:"filter,omitempty"`
	Sort   *ProjectSort   `json:"sort,omitempty"`
}

type Page struct {
	Number int `json:"number,omitempty"`
	Size   int `json:"size,omitempty"`
}

type ProjectFilter struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	AuthorFirstName string `json:"author_first_name,omitempty"`
	AuthorLastName  string `json:"author_last_name,omitempty"`
	TeamName        string `json:"team_name,omitempty"`
}

type ProjectSort struct {
	Property string `json:"property,omitempty"`
	Order    string `json:"order,omitempty"`
}

type ProjectTeamSize struct {
	ProjectID    int64  `json:"project_id"`
	ProjectName  string `json:"project_name"`
	TeamID       int64  `json:"team_id"`
	TeamName     string `json:"team_name,omitempty"`
	MembersCount int    `json:"members_count"`
}

type ProjectInfo struct {
	Project                  ProjectView `json:"project"`
	LongestTaskByDescription *TaskView   `json:"longest_task_by_description,omitempty"`
	ShortestTaskByName       *TaskView   `json:"shortest_task_by_name,omitempty"`
	TeamMembersCount         *int        `json:"team_members_count,omitempty"`
}

type UserInfo struct {
	User                            User         `json:"user"`
	LastProject                     *ProjectView `json:"last_project,omitempty"`
	LastProjectTasksCount           int          `json:"last_project_tasks_count"`
	NotFinishedOrCanceledTasksCount int          `json:"not_finished_or_canceled_tasks_count"`
	LongestTask                     *TaskView    `json:"longest_task,omitempty"`
}

type TeamMembers struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Members []User `json:"members"`
}

type UserTasks struct {
	User  User       `json:"user"`
	Tasks []TaskView `json:"tasks"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTeam creates a team.
func (c *Client) CreateTeam(ctx context.Context, name string) (Team, error) {
	var resp Team
	err := c.do(ctx, http.MethodPost, "teams", nil, map[string]any{"name": name}, &resp)
	return resp, err
}

// CreateUser creates a user. ID, RegisteredAt are assigned by the server.
func (c *Client) CreateUser(ctx context.Context, u User) (User, error) {
	body := map[string]any{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"email":      u.Email,
		"birth_day":  u.BirthDay,
	}
	if u.TeamID != nil {
		body["team_id"] = *u.TeamID
	}
	var resp User
	err := c.do(ctx, http.MethodPost, "users", nil, body, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, p Project) (Project, error) {
	body := map[string]any{
		"author_id": p.AuthorID,
		"team_id":   p.TeamID,
		"name":      p.Name,
		"deadline":  p.Deadline,
	}
	if p.Description != "" {
		body["description"] = p.Description
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", nil, body, &resp)
	return resp, err
}

// CreateTask creates a task; an empty State means ToDo.
func (c *Client) CreateTask(ctx context.Context, t Task) (Task, error) {
	body := map[string]any{
		"project_id":   t.ProjectID,
		"performer_id": t.PerformerID,
		"name":         t.Name,
	}
	if t.Description != "" {
		body["description"] = t.Description
	}
	if t.State != "" {
		body["state"] = t.State
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", nil, body, &resp)
	return resp, err
}

// SetTaskState moves a task to state.
func (c *Client) SetTaskState(ctx context.Context, taskID int64, state string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%d/state", taskID), nil, map[string]any{"state": state}, &resp)
	return resp, err
}

// QueryProjects filters, sorts and pages projects.
func (c *Client) QueryProjects(ctx context.Context, q ProjectQuery) (PagedProjects, error) {
	var resp PagedProjects
	err := c.do(ctx, http.MethodPost, "projects/query", c.sourceQuery(), q, &resp)
	return resp, err
}

// ProjectTeamSizes lists projects whose team has at least minMembers members.
// A negative minMembers uses the server default.
func (c *Client) ProjectTeamSizes(ctx context.Context, minMembers int) ([]ProjectTeamSize, error) {
	q := c.sourceQuery()
	if minMembers >= 0 {
		q.Set("min_members", strconv.Itoa(minMembers))
	}
	var resp []ProjectTeamSize
	err := c.do(ctx, http.MethodGet, "reports/projects/team-size", q, nil, &resp)
	return resp, err
}

func (c *Client) ProjectsInfo(ctx context.Context) ([]ProjectInfo, error) {
	var resp []ProjectInfo
	err := c.do(ctx, http.MethodGet, "reports/projects/info", c.sourceQuery(), nil, &resp)
	return resp, err
}

func (c *Client) UserInfo(ctx context.Context, userID int64) (UserInfo, error) {
	var resp UserInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/users/%d", userID), c.sourceQuery(), nil, &resp)
	return resp, err
}

// TasksCountByProject is keyed by "<project id>: <project name>".
func (c *Client) TasksCountByProject(ctx context.Context, userID int64) (map[string]int, error) {
	var resp map[string]int
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/users/%d/tasks-by-project", userID), c.sourceQuery(), nil, &resp)
	return resp, err
}

func (c *Client) CapitalTasks(ctx context.Context, userID int64) ([]TaskView, error) {
	var resp []TaskView
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/users/%d/capital-tasks", userID), c.sourceQuery(), nil, &resp)
	return resp, err
}

// TeamsWithMembers uses the server's cutoff year when cutoffYear is 0.
func (c *Client) TeamsWithMembers(ctx context.Context, cutoffYear int) ([]TeamMembers, error) {
	q := c.sourceQuery()
	if cutoffYear != 0 {
		q.Set("cutoff_year", strconv.Itoa(cutoffYear))
	}
	var resp []TeamMembers
	err := c.do(ctx, http.MethodGet, "reports/teams", q, nil, &resp)
	return resp, err
}

func (c *Client) UsersWithTasks(ctx context.Context) ([]UserTasks, error) {
	var resp []UserTasks
	err := c.do(ctx, http.MethodGet, "reports/users/tasks", c.sourceQuery(), nil, &resp)
	return resp, err
}

func (c *Client) sourceQuery() url.Values {
	q := url.Values{}
	if c.Source != "" {
		q.Set("source", c.Source)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
