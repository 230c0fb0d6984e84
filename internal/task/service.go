// Package task はタスクの閲覧・投稿・編集を提供する。
package task

import (
	"context"
	"log/slog"

	"github.com/hitoshi/taskbid/internal/model"
)

// anonymousOwnerName は表示名が未設定の場合の投稿者名。
const anonymousOwnerName = "Anonymous User"

// TaskAPI はタスクに関するバックエンドAPIのインターフェース。
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	ListTasksByUser(ctx context.Context, userID string) ([]model.Task, error)
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)
	UpdateTask(ctx context.Context, taskID string, input model.TaskInput) error
	DeleteTask(ctx context.Context, taskID string) error
}

// SessionSource は現在のセッションを提供する。
type SessionSource interface {
	Session() *model.Session
}

// NameSanitizer は投稿者名を表示用に無害化する。
type NameSanitizer interface {
	SanitizeName(raw string) string
}

// Service はタスクに関するビジネスロジックを提供する。
type Service struct {
	api       TaskAPI
	sessions  SessionSource
	sanitizer NameSanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api TaskAPI, sessions SessionSource, sanitizer NameSanitizer, logger *slog.Logger) *Service {
	return &Service{
		api:       api,
		sessions:  sessions,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// List は全タスクを返す。ログインは不要。
func (s *Service) List(ctx context.Context) ([]model.Task, error) {
	return s.api.ListTasks(ctx)
}

// Get はタスクを1件返す。ログインは不要。
func (s *Service) Get(ctx context.Context, taskID string) (*model.Task, error) {
	return s.api.GetTask(ctx, taskID)
}

// ListMine は現在のユーザーが投稿したタスクを返す。
func (s *Service) ListMine(ctx context.Context) ([]model.Task, error) {
	session := s.sessions.Session()
	if session == nil {
		return nil, &model.NotAuthenticatedError{Op: "tasks.list_mine"}
	}
	return s.api.ListTasksByUser(ctx, session.UserID)
}

// Create はタスクを投稿する。投稿者の情報はセッションから設定する。
func (s *Service) Create(ctx context.Context, input model.TaskInput) (*model.Task, error) {
	session := s.sessions.Session()
	if session == nil {
		return nil, &model.NotAuthenticatedError{Op: "tasks.create"}
	}

	created, err := s.api.CreateTask(ctx, model.Task{
		Title:       input.Title,
		Category:    input.Category,
		Description: input.Description,
		Deadline:    input.Deadline,
		Budget:      input.Budget,
		UserEmail:   session.Email,
		UserName:    s.ownerName(session),
		UserID:      session.UserID,
		Status:      model.TaskStatusOpen,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("タスクを投稿しました",
		slog.String("task_id", created.ID),
		slog.String("user_id", session.UserID),
	)
	return created, nil
}

// Update はタスクの編集可能項目を更新する。
func (s *Service) Update(ctx context.Context, taskID string, input model.TaskInput) error {
	session := s.sessions.Session()
	if session == nil {
		return &model.NotAuthenticatedError{Op: "tasks.update"}
	}
	if err := s.api.UpdateTask(ctx, taskID, input); err != nil {
		return err
	}
	s.logger.Info("タスクを更新しました",
		slog.String("task_id", taskID),
		slog.String("user_id", session.UserID),
	)
	return nil
}

// Delete はタスクを削除する。
func (s *Service) Delete(ctx context.Context, taskID string) error {
	session := s.sessions.Session()
	if session == nil {
		return &model.NotAuthenticatedError{Op: "tasks.delete"}
	}
	if err := s.api.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("タスクを削除しました",
		slog.String("task_id", taskID),
		slog.String("user_id", session.UserID),
	)
	return nil
}

func (s *Service) ownerName(session *model.Session) string {
	name := session.DisplayName
	if s.sanitizer != nil {
		name = s.sanitizer.SanitizeName(name)
	}
	if name == "" {
		return anonymousOwnerName
	}
	return name
}
