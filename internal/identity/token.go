package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// idTokenClaims はIdPが発行するIDトークンのクレーム。
type idTokenClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// parseIDToken はIDトークンのクレームを署名検証なしで読み取る。
// 署名の検証はトークンを受け取るバックエンドが行う。
func parseIDToken(raw string) (*idTokenClaims, error) {
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}
	return claims, nil
}

// subject はトークンのユーザーIDを返す。
func (c *idTokenClaims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// expiry はトークンの有効期限を返す。expクレームがない場合はゼロ値を返す。
func (c *idTokenClaims) expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
