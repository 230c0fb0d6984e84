// Package handler はエージェントAPIのHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskbid/internal/middleware"
	"github.com/hitoshi/taskbid/internal/model"
)

// maxRequestBodySize はリクエストボディの上限バイト数。
const maxRequestBodySize = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return false
	}
	return true
}

// authErrorStatus はAuthErrorのコードに対応するHTTPステータスを返す。
func authErrorStatus(code string) int {
	switch code {
	case model.AuthCodeInvalidEmail, model.AuthCodeWeakPassword,
		model.AuthCodeEmailAlreadyInUse, model.AuthCodeOperationNotAllowed:
		return http.StatusBadRequest
	case model.AuthCodeTooManyRequests:
		return http.StatusTooManyRequests
	case model.AuthCodeNetworkRequestFailed:
		return http.StatusBadGateway
	case model.AuthCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// writeServiceError はサービス層のエラーを統一エラーフォーマットに変換して書き込む。
// taskIDは404や重複入札のメッセージに使う。
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, taskID string) {
	var authErr *model.AuthError
	var notAuthErr *model.NotAuthenticatedError
	var dupErr *model.DuplicateBidError
	var netErr *model.NetworkError

	switch {
	case errors.As(err, &notAuthErr):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case errors.As(err, &authErr):
		middleware.WriteErrorResponse(w, authErrorStatus(authErr.Code), model.NewAuthFailedError(authErr))
	case errors.As(err, &dupErr):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewDuplicateBidError(dupErr.TaskID))
	case errors.As(err, &netErr) && netErr.NotFound():
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(taskID))
	case errors.As(err, &netErr):
		logger.Warn("マーケットプレイスAPIの呼び出しに失敗しました",
			slog.String("op", netErr.Op),
			slog.Int("status_code", netErr.StatusCode),
			slog.String("error", err.Error()),
		)
		reason := netErr.Message
		if reason == "" {
			reason = http.StatusText(http.StatusBadGateway)
		}
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError(reason))
	default:
		logger.Error("予期しないエラーが発生しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
