// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// AuthErrorのコード。IdP固有のエラーはこのいずれかに正規化する。
const (
	AuthCodeEmailAlreadyInUse    = "auth/email-already-in-use"
	AuthCodeInvalidEmail         = "auth/invalid-email"
	AuthCodeWeakPassword         = "auth/weak-password"
	AuthCodeInvalidCredential    = "auth/invalid-credential"
	AuthCodeUserNotFound         = "auth/user-not-found"
	AuthCodeWrongPassword        = "auth/wrong-password"
	AuthCodeUserDisabled         = "auth/user-disabled"
	AuthCodeTooManyRequests      = "auth/too-many-requests"
	AuthCodeTokenExpired         = "auth/user-token-expired"
	AuthCodeFlowCancelled        = "auth/flow-cancelled"
	AuthCodeOperationNotAllowed  = "auth/operation-not-allowed"
	AuthCodeNetworkRequestFailed = "auth/network-request-failed"
	AuthCodeInternal             = "auth/internal-error"
)

// AuthError はIdPが報告した認証エラーを表す。
type AuthError struct {
	Code    string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Err
}

// NotAuthenticatedError はセッションが必要な操作を未ログインで呼び出した場合のエラー。
type NotAuthenticatedError struct {
	Op string
}

// Error はerrorインターフェースを実装する。
func (e *NotAuthenticatedError) Error() string {
	if e.Op == "" {
		return "not authenticated"
	}
	return fmt.Sprintf("%s: not authenticated", e.Op)
}

// DuplicateBidError はサーバーが同一タスクへの重複入札を報告した場合のエラー。
type DuplicateBidError struct {
	TaskID  string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *DuplicateBidError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("duplicate bid on task %s: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("duplicate bid on task %s", e.TaskID)
}

// NetworkError はバックエンドAPI呼び出しの失敗を表す。
// StatusCodeが0の場合はレスポンスを受け取れなかったことを示す。
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

// Unwrap は元のエラーを返す。
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFound はサーバーが404を返した場合にtrueを返す。
func (e *NetworkError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// APIError はエージェントAPIの統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, bid, task, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeDuplicateBid     = "DUPLICATE_BID"
	ErrCodeTaskNotFound     = "TASK_NOT_FOUND"
	ErrCodeUpstreamFailed   = "UPSTREAM_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeFederatedDisable = "FEDERATED_LOGIN_DISABLED"
	ErrCodeForbiddenOrigin  = "FORBIDDEN_ORIGIN"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
)

// NewAuthFailedError は認証失敗エラーを生成する。
func NewAuthFailedError(authErr *AuthError) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  authErr.Error(),
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewDuplicateBidError は入札済みタスクへの再入札エラーを生成する。
func NewDuplicateBidError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateBid,
		Message:  fmt.Sprintf("このタスクには既に入札済みです: %s", taskID),
		Category: "bid",
		Action:   "入札履歴を確認してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewUpstreamFailedError はバックエンドAPI呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("マーケットプレイスAPIの呼び出しに失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewFederatedLoginDisabledError はGoogleログイン未設定エラーを生成する。
func NewFederatedLoginDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeFederatedDisable,
		Message:  "Googleログインは設定されていません。",
		Category: "auth",
		Action:   "GOOGLE_CLIENT_IDとGOOGLE_CLIENT_SECRETを設定してください。",
	}
}

// NewForbiddenOriginError は許可されていないオリジンからの状態変更エラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "許可されていないオリジンからのリクエストです。",
		Category: "system",
		Action:   "エージェントに接続しているUIから操作してください。",
	}
}

// NewRateLimitedError は試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
