package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/taskbid/internal/model"
)

// NewOriginGuardMiddleware は状態変更リクエストの送信元オリジンを検証するミドルウェアを返す。
// エージェントはループバックで待ち受けるため、他のサイトからのフォーム送信を拒否する。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// Originヘッダーがない場合はRefererで代替し、どちらもなければ非ブラウザクライアントとして許可する。
func NewOriginGuardMiddleware(allowedOrigin string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin != "" && origin != allowedOrigin {
				logger.Warn("origin validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenOriginError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestOrigin はOriginヘッダー、なければRefererからオリジンを取り出す。
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return referer
	}
	return u.Scheme + "://" + u.Host
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
