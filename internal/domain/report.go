package domain

import "time"

type UserView struct {
	ID           int64     `json:"id"`
	TeamID       *int64    `json:"team_id,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
	BirthDay     time.Time `json:"birth_day"`
}

type TeamView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type TaskView struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	State       string     `json:"state" enum:"ToDo,InProgress,Done,Canceled"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Performer   *UserView  `json:"performer,omitempty"`
}

type ProjectView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	Deadline    time.Time  `json:"deadline"`
	Tasks       []TaskView `json:"tasks"`
	Author      *UserView  `json:"author,omitempty"`
	Team        *TeamView  `json:"team,omitempty"`
}

type PagedProjects struct {
	Items      []ProjectView `json:"items"`
	TotalCount int           `json:"total_count"`
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
	User                            UserView     `json:"user"`
	LastProject                     *ProjectView `json:"last_project,omitempty"`
	LastProjectTasksCount           int          `json:"last_project_tasks_count"`
	NotFinishedOrCanceledTasksCount int          `json:"not_finished_or_canceled_tasks_count"`
	LongestTask                     *TaskView    `json:"longest_task,omitempty"`
}

type TeamMembers struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Members []UserView `json:"members"`
}

type UserTasks struct {
	User  UserView   `json:"user"`
	Tasks []TaskView `json:"tasks"`
}

func UserViewOf(u User) UserView {
	return UserView{
		ID:           u.ID,
		TeamID:       u.TeamID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		RegisteredAt: u.RegisteredAt,
		BirthDay:     u.BirthDay,
	}
}

func TeamViewOf(t Team) TeamView {
	return TeamView{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// TaskViewOf is the single place a TaskState becomes its display string.
func TaskViewOf(t Task, performer *UserView) TaskView {
	return TaskView{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Name:        t.Name,
		Description: t.Description,
		State:       t.State.String(),
		CreatedAt:   t.CreatedAt,
		FinishedAt:  t.FinishedAt,
		Performer:   performer,
	}
}
