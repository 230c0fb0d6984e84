package identity

import (
	"strings"

	"github.com/hitoshi/taskbid/internal/model"
)

// providerErrorCodes はIdPのエラーメッセージをAuthErrorのコードに対応付ける。
var providerErrorCodes = map[string]string{
	"EMAIL_EXISTS":                   model.AuthCodeEmailAlreadyInUse,
	"INVALID_EMAIL":                  model.AuthCodeInvalidEmail,
	"MISSING_EMAIL":                  model.AuthCodeInvalidEmail,
	"WEAK_PASSWORD":                  model.AuthCodeWeakPassword,
	"MISSING_PASSWORD":               model.AuthCodeWeakPassword,
	"INVALID_LOGIN_CREDENTIALS":      model.AuthCodeInvalidCredential,
	"INVALID_IDP_RESPONSE":           model.AuthCodeInvalidCredential,
	"EMAIL_NOT_FOUND":                model.AuthCodeUserNotFound,
	"USER_NOT_FOUND":                 model.AuthCodeUserNotFound,
	"INVALID_PASSWORD":               model.AuthCodeWrongPassword,
	"USER_DISABLED":                  model.AuthCodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER":    model.AuthCodeTooManyRequests,
	"TOKEN_EXPIRED":                  model.AuthCodeTokenExpired,
	"INVALID_ID_TOKEN":               model.AuthCodeTokenExpired,
	"INVALID_REFRESH_TOKEN":          model.AuthCodeTokenExpired,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": model.AuthCodeTokenExpired,
	"OPERATION_NOT_ALLOWED":          model.AuthCodeOperationNotAllowed,
	"PASSWORD_LOGIN_DISABLED":        model.AuthCodeOperationNotAllowed,
}

// providerErrorBody はIdPのエラーレスポンス。
// 例: {"error":{"code":400,"message":"EMAIL_EXISTS"}}
type providerErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// toAuthError はIdPのエラーメッセージをAuthErrorに変換する。
// "WEAK_PASSWORD : Password should be at least 6 characters" のように
// 詳細が付く場合は先頭のトークンでコードを判定する。
func toAuthError(message string) *model.AuthError {
	key := message
	if i := strings.IndexAny(key, " :"); i >= 0 {
		key = key[:i]
	}
	code, ok := providerErrorCodes[key]
	if !ok {
		code = model.AuthCodeInternal
	}
	return &model.AuthError{Code: code, Message: message}
}

// isSessionRevoked はリフレッシュを再試行しても回復しないエラーかどうかを返す。
func isSessionRevoked(err *model.AuthError) bool {
	switch err.Code {
	case model.AuthCodeTokenExpired, model.AuthCodeUserDisabled, model.AuthCodeUserNotFound:
		return true
	}
	return false
}
