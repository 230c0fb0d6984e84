package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer は表示名などのプレーンテキスト項目をサニタイズする。
// バックエンドに送る入札者名・投稿者名にHTMLが混入しないようにする。
type NameSanitizer struct {
	policy   *bluemonday.Policy
	stripper *strings.Replacer
}

// NewNameSanitizer はNameSanitizerを生成する。
// bluemondayのStrictPolicyで全タグを除去する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{
		policy:   bluemonday.StrictPolicy(),
		stripper: strings.NewReplacer("<", "", ">", ""),
	}
}

// SanitizeName はタグを除去し、HTMLエンティティを戻したうえで空白を正規化する。
// エンティティとして渡された山括弧は最後に取り除く。
func (s *NameSanitizer) SanitizeName(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = s.stripper.Replace(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// SanitizePhotoURL はhttp/httpsの絶対URLのみを通し、それ以外は空文字列を返す。
func (s *NameSanitizer) SanitizePhotoURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return ""
	}
	return u.String()
}
