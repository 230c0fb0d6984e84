// Package middleware はエージェントAPI用のHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/taskbid/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userIDHolderContextKey = contextKey("user_id_holder")

// userIDHolder はロギングミドルウェアへユーザーIDを返すための入れ物。
type userIDHolder struct {
	userID string
}

func withUserIDHolder(ctx context.Context, holder *userIDHolder) context.Context {
	return context.WithValue(ctx, userIDHolderContextKey, holder)
}

// SessionSource は現在のセッションを提供するインターフェース。
type SessionSource interface {
	Session() *model.Session
}

// NewRequireSessionMiddleware はログイン中のセッションを必須とするミドルウェアを返す。
// ログイン中のユーザーIDはロギングミドルウェアのアクセスログに記録される。
// 未ログインの場合は401 Unauthorizedを返す。
func NewRequireSessionMiddleware(sessions SessionSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessions.Session()
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if holder, ok := r.Context().Value(userIDHolderContextKey).(*userIDHolder); ok {
				holder.userID = session.UserID
			}
			next.ServeHTTP(w, r)
		})
	}
}
