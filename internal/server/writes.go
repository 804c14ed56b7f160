package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskboard/internal/domain"
	"taskboard/internal/engine"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

func registerWrites(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		team, err := e.CreateTeam(ctx, domain.Team{Name: input.Body.Name}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: team}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := e.CreateUser(ctx, domain.User{
			TeamID:    input.Body.TeamID,
			FirstName: input.Body.FirstName,
			LastName:  input.Body.LastName,
			Email:     input.Body.Email,
			BirthDay:  input.Body.BirthDay,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		project, err := e.CreateProject(ctx, domain.Project{
			AuthorID:    input.Body.AuthorID,
			TeamID:      input.Body.TeamID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Deadline:    input.Body.Deadline,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: project}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := parseState(input.Body.State)
		if err != nil {
			return nil, handleError(err)
		}
		task, err := e.CreateTask(ctx, domain.Task{
			ProjectID:   input.Body.ProjectID,
			PerformerID: input.Body.PerformerID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			State:       state,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-state",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/state",
		Summary:     "Move a task to another state",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64               `path:"id"`
		Body SetTaskStateRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := domain.ParseTaskState(input.Body.State)
		if err != nil {
			return nil, handleError(err)
		}
		task, err := e.SetTaskState(ctx, input.ID, state, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})
}
