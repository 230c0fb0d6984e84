package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/hitoshi/taskbid/internal/model"
)

func TestListTasks_NoSessionRequired(t *testing.T) {
	d := newTestDeps(nil)
	d.tasks.listFn = func(ctx context.Context) ([]model.Task, error) {
		return []model.Task{{ID: "t1", Title: "Logo"}}, nil
	}

	w := serve(t, d.router(), http.MethodGet, "/api/tasks", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var tasks []model.Task
	decodeBody(t, w, &tasks)
	if len(tasks) != 1 || tasks[0].Title != "Logo" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, taskID string) (*model.Task, error)
	}{
		{"upstream 404", func(ctx context.Context, taskID string) (*model.Task, error) {
			return nil, &model.NetworkError{Op: "tasks.get", StatusCode: 404}
		}},
		{"nil task", func(ctx context.Context, taskID string) (*model.Task, error) {
			return nil, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps(nil)
			d.tasks.getFn = tt.fn

			w := serve(t, d.router(), http.MethodGet, "/api/tasks/missing", "")

			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
			if code := parseErrorCode(t, w); code != model.ErrCodeTaskNotFound {
				t.Errorf("code = %q, want %q", code, model.ErrCodeTaskNotFound)
			}
		})
	}
}

func TestListMyTasks_RoutesBeforeTaskID(t *testing.T) {
	d := newTestDeps(jane)
	d.tasks.getFn = func(ctx context.Context, taskID string) (*model.Task, error) {
		t.Errorf("Get(%q) should not be called for /mine", taskID)
		return nil, nil
	}
	d.tasks.listMineFn = func(ctx context.Context) ([]model.Task, error) {
		return []model.Task{{ID: "t1", UserID: "user-1"}}, nil
	}

	w := serve(t, d.router(), http.MethodGet, "/api/tasks/mine", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCreateTask_Returns201(t *testing.T) {
	d := newTestDeps(jane)
	d.tasks.createFn = func(ctx context.Context, input model.TaskInput) (*model.Task, error) {
		if input.Title != "Logo design" || input.Budget != 150 {
			t.Errorf("input = %+v", input)
		}
		return &model.Task{ID: "t-42", Title: input.Title, UserID: "user-1", Status: model.TaskStatusOpen}, nil
	}

	w := serve(t, d.router(), http.MethodPost, "/api/tasks",
		`{"title":"Logo design","category":"Design","deadline":"2025-07-01","budget":150}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var task model.Task
	decodeBody(t, w, &task)
	if task.ID != "t-42" || task.Status != model.TaskStatusOpen {
		t.Errorf("task = %+v", task)
	}
}

func TestTaskMutations_RequireSession(t *testing.T) {
	d := newTestDeps(nil)
	router := d.router()

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/tasks", `{"title":"t"}`},
		{http.MethodPut, "/api/tasks/t1", `{"title":"t"}`},
		{http.MethodDelete, "/api/tasks/t1", ""},
		{http.MethodGet, "/api/tasks/mine", ""},
	}
	for _, tt := range tests {
		w := serve(t, router, tt.method, tt.path, tt.body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tt.method, tt.path, w.Code)
		}
	}
}

func TestUpdateTask_Returns204(t *testing.T) {
	d := newTestDeps(jane)
	d.tasks.updateFn = func(ctx context.Context, taskID string, input model.TaskInput) error {
		if taskID != "t1" || input.Title != "New title" {
			t.Errorf("Update(%q, %+v)", taskID, input)
		}
		return nil
	}

	w := serve(t, d.router(), http.MethodPut, "/api/tasks/t1", `{"title":"New title"}`)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestDeleteTask_UpstreamFailure_Returns502(t *testing.T) {
	d := newTestDeps(jane)
	d.tasks.deleteFn = func(ctx context.Context, taskID string) error {
		return &model.NetworkError{Op: "tasks.delete", StatusCode: 503}
	}

	w := serve(t, d.router(), http.MethodDelete, "/api/tasks/t1", "")

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
