package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskbid/internal/auth"
	"github.com/hitoshi/taskbid/internal/middleware"
	"github.com/hitoshi/taskbid/internal/model"
)

// SessionManager はセッションハンドラーが必要とするセッション管理のインターフェース。
type SessionManager interface {
	Session() *model.Session
	State() auth.State
	Loading() bool
	Signup(ctx context.Context, email, password, displayName, photoURL string) (*model.Session, error)
	Login(ctx context.Context, email, password string) (*model.Session, error)
	LoginWithFederatedProvider(ctx context.Context) (*model.Session, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Session, error)
}

// ProfileSanitizer はプロフィール入力を無害化する。
type ProfileSanitizer interface {
	SanitizeName(raw string) string
	SanitizePhotoURL(raw string) string
}

// SessionHandler はログインセッション関連のHTTPハンドラー。
type SessionHandler struct {
	manager          SessionManager
	sanitizer        ProfileSanitizer
	federatedEnabled bool
	logger           *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(manager SessionManager, sanitizer ProfileSanitizer, federatedEnabled bool, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		manager:          manager,
		sanitizer:        sanitizer,
		federatedEnabled: federatedEnabled,
		logger:           logger,
	}
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はセッション状態のAPIレスポンス。
// 未ログインの場合、sessionはnullになる。
type sessionResponse struct {
	State   string         `json:"state"`
	Loading bool           `json:"loading"`
	Session *model.Session `json:"session"`
}

// GetSession は現在のセッション状態を返す。
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot(h.manager.Session()))
}

// Signup はアカウントを作成してログインする。
// POST /api/session/signup
func (h *SessionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	photoURL := h.sanitizer.SanitizePhotoURL(req.PhotoURL)
	if req.PhotoURL != "" && photoURL == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("photoURLはhttpまたはhttpsのURLで指定してください"))
		return
	}

	session, err := h.manager.Signup(r.Context(), req.Email, req.Password,
		h.sanitizer.SanitizeName(req.DisplayName), photoURL)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, h.snapshot(session))
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(session))
}

// LoginWithGoogle はGoogleアカウントでログインする。
// ブラウザでの認可が完了するまでレスポンスを返さない。
// POST /api/session/google
func (h *SessionHandler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	if !h.federatedEnabled {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewFederatedLoginDisabledError())
		return
	}

	session, err := h.manager.LoginWithFederatedProvider(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(session))
}

// Logout はログアウトする。
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Logout(r.Context()); err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile は表示名・プロフィール画像を部分更新する。
// 指定されなかった項目は変更しない。
// PATCH /api/session/profile
func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update model.ProfileUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	if update.DisplayName != nil {
		name := h.sanitizer.SanitizeName(*update.DisplayName)
		update.DisplayName = &name
	}
	if update.PhotoURL != nil && *update.PhotoURL != "" {
		photoURL := h.sanitizer.SanitizePhotoURL(*update.PhotoURL)
		if photoURL == "" {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("photoURLはhttpまたはhttpsのURLで指定してください"))
			return
		}
		update.PhotoURL = &photoURL
	}

	session, err := h.manager.UpdateProfile(r.Context(), update)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot(session))
}

func (h *SessionHandler) snapshot(session *model.Session) sessionResponse {
	return sessionResponse{
		State:   h.manager.State().String(),
		Loading: h.manager.Loading(),
		Session: session,
	}
}
