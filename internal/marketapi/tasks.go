package marketapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/taskbid/internal/model"
)

// createTaskResponse は POST /tasks のレスポンス。
type createTaskResponse struct {
	InsertedID string `json:"insertedId"`
}

// ListTasks は全タスクを取得する。
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	return c.listTasks(ctx, "tasks.list", "/tasks")
}

// ListTasksByUser は指定ユーザーが投稿したタスクを取得する。
func (c *Client) ListTasksByUser(ctx context.Context, userID string) ([]model.Task, error) {
	return c.listTasks(ctx, "tasks.list_by_user", "/tasks?"+url.Values{"userId": {userID}}.Encode())
}

func (c *Client) listTasks(ctx context.Context, op, path string) ([]model.Task, error) {
	var tasks []model.Task
	if _, err := c.do(ctx, op, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// GetTask はタスクを1件取得する。
func (c *Client) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var task model.Task
	if _, err := c.do(ctx, "tasks.get", http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask はタスクを作成し、採番されたIDを設定したタスクを返す。
func (c *Client) CreateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	var resp createTaskResponse
	if _, err := c.do(ctx, "tasks.create", http.MethodPost, "/tasks", task, &resp); err != nil {
		return nil, err
	}
	created := task
	created.ID = resp.InsertedID
	return &created, nil
}

// UpdateTask はタスクの編集可能項目を更新する。
func (c *Client) UpdateTask(ctx context.Context, taskID string, input model.TaskInput) error {
	_, err := c.do(ctx, "tasks.update", http.MethodPut, "/tasks/"+url.PathEscape(taskID), input, nil)
	return err
}

// DeleteTask はタスクを削除する。
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	_, err := c.do(ctx, "tasks.delete", http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, nil)
	return err
}
