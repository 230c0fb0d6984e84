package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/taskbid/internal/auth"
	"github.com/hitoshi/taskbid/internal/middleware"
	"github.com/hitoshi/taskbid/internal/model"
	"github.com/hitoshi/taskbid/internal/security"
)

// --- モック定義 ---

type mockSessionManager struct {
	session *model.Session
	state   auth.State
	loading bool

	signupFn        func(ctx context.Context, email, password, displayName, photoURL string) (*model.Session, error)
	loginFn         func(ctx context.Context, email, password string) (*model.Session, error)
	federatedFn     func(ctx context.Context) (*model.Session, error)
	logoutFn        func(ctx context.Context) error
	updateProfileFn func(ctx context.Context, update model.ProfileUpdate) (*model.Session, error)
}

func (m *mockSessionManager) Session() *model.Session { return m.session.Clone() }
func (m *mockSessionManager) State() auth.State       { return m.state }
func (m *mockSessionManager) Loading() bool           { return m.loading }

func (m *mockSessionManager) Signup(ctx context.Context, email, password, displayName, photoURL string) (*model.Session, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, email, password, displayName, photoURL)
	}
	return nil, nil
}

func (m *mockSessionManager) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockSessionManager) LoginWithFederatedProvider(ctx context.Context) (*model.Session, error) {
	if m.federatedFn != nil {
		return m.federatedFn(ctx)
	}
	return nil, nil
}

func (m *mockSessionManager) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockSessionManager) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Session, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, update)
	}
	return m.session.Clone(), nil
}

type mockBidCache struct {
	summary model.BidSummary
	loading bool
	taskIDs map[string]bool

	refreshFn  func(ctx context.Context)
	placeBidFn func(ctx context.Context, taskID string) error
	myBidsFn   func(ctx context.Context) ([]model.Bid, error)
}

func (m *mockBidCache) Refresh(ctx context.Context) {
	if m.refreshFn != nil {
		m.refreshFn(ctx)
	}
}

func (m *mockBidCache) PlaceBid(ctx context.Context, taskID string) error {
	if m.placeBidFn != nil {
		return m.placeBidFn(ctx, taskID)
	}
	return nil
}

func (m *mockBidCache) HasBid(taskID string) bool { return m.taskIDs[taskID] }
func (m *mockBidCache) OpportunityCount() int     { return m.summary.Count }
func (m *mockBidCache) LoadingBids() bool         { return m.loading }
func (m *mockBidCache) Summary() model.BidSummary { return m.summary }

func (m *mockBidCache) MyBids(ctx context.Context) ([]model.Bid, error) {
	if m.myBidsFn != nil {
		return m.myBidsFn(ctx)
	}
	return nil, nil
}

type mockTaskService struct {
	listFn     func(ctx context.Context) ([]model.Task, error)
	getFn      func(ctx context.Context, taskID string) (*model.Task, error)
	listMineFn func(ctx context.Context) ([]model.Task, error)
	createFn   func(ctx context.Context, input model.TaskInput) (*model.Task, error)
	updateFn   func(ctx context.Context, taskID string, input model.TaskInput) error
	deleteFn   func(ctx context.Context, taskID string) error
}

func (m *mockTaskService) List(ctx context.Context) ([]model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockTaskService) Get(ctx context.Context, taskID string) (*model.Task, error) {
	if m.getFn != nil {
		return m.getFn(ctx, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) ListMine(ctx context.Context) ([]model.Task, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx)
	}
	return nil, nil
}

func (m *mockTaskService) Create(ctx context.Context, input model.TaskInput) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	return &model.Task{ID: "task-new", Title: input.Title}, nil
}

func (m *mockTaskService) Update(ctx context.Context, taskID string, input model.TaskInput) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, taskID, input)
	}
	return nil
}

func (m *mockTaskService) Delete(ctx context.Context, taskID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, taskID)
	}
	return nil
}

// --- compile-time interface checks ---
var (
	_ SessionManager   = (*mockSessionManager)(nil)
	_ BidCache         = (*mockBidCache)(nil)
	_ TaskService      = (*mockTaskService)(nil)
	_ ProfileSanitizer = (*security.NameSanitizer)(nil)
)

// --- テストヘルパー ---

var jane = &model.Session{UserID: "user-1", Email: "jane@example.com", DisplayName: "Jane"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testDeps struct {
	sessions *mockSessionManager
	bids     *mockBidCache
	tasks    *mockTaskService
}

func newTestDeps(session *model.Session) *testDeps {
	state := auth.StateAnonymous
	if session != nil {
		state = auth.StateAuthenticated
	}
	return &testDeps{
		sessions: &mockSessionManager{session: session, state: state},
		bids:     &mockBidCache{taskIDs: map[string]bool{}},
		tasks:    &mockTaskService{},
	}
}

func (d *testDeps) router(opts ...func(*RouterDeps)) http.Handler {
	deps := &RouterDeps{
		Logger:                discardLogger(),
		CORSAllowedOrigin:     "http://localhost:5173",
		Sessions:              d.sessions,
		ProfileSanitizer:      security.NewNameSanitizer(),
		FederatedLoginEnabled: true,
		Bids:                  d.bids,
		Tasks:                 d.tasks,
	}
	for _, opt := range opts {
		opt(deps)
	}
	return NewRouter(deps)
}

// serve はルーター経由でリクエストを実行する。
func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// parseErrorCode はエラーレスポンスのcodeを返す。
func parseErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Code
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}
