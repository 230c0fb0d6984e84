// Package auth はログインセッションの状態管理を提供する。
package auth

import (
	"context"

	"github.com/hitoshi/taskbid/internal/model"
)

// IdentityProvider は外部IdPのインターフェース。
// Subscribeで登録したコールバックには、サインイン状態が変わるたびに
// 現在のアイデンティティ（サインアウト時はnil）が通知される。
type IdentityProvider interface {
	// Subscribe は状態変化の通知先を登録し、登録解除関数を返す。
	// 実装は登録直後に現在の状態を1回通知する。
	Subscribe(fn func(*model.Identity)) (unsubscribe func())
	// CreateAccount はメールアドレスとパスワードでアカウントを作成し、サインインする。
	CreateAccount(ctx context.Context, email, password string) (*model.Identity, error)
	// SetProfile は表示名・プロフィール画像を更新する。
	SetProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.Identity, error)
	// SignInWithPassword はメールアドレスとパスワードでサインインする。
	SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error)
	// SignInInteractive はブラウザを使った対話的なフェデレーションログインを行う。
	SignInInteractive(ctx context.Context) (*model.Identity, error)
	// SignOut はサインアウトする。
	SignOut(ctx context.Context) error
}
