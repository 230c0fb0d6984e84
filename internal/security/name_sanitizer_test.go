package security

import "testing"

func TestSanitizeName(t *testing.T) {
	sanitizer := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "Jane Doe", want: "Jane Doe"},
		{name: "タグが除去される", input: "<b>Jane</b>", want: "Jane"},
		{name: "scriptタグは中身ごと除去される", input: "Jane<script>alert(1)</script>", want: "Jane"},
		{name: "アポストロフィが保持される", input: "O'Brien", want: "O'Brien"},
		{name: "アンパサンドが保持される", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "エンティティの山括弧は除去される", input: "&lt;img&gt;Jane", want: "imgJane"},
		{name: "空白が正規化される", input: "  Jane \n  Doe  ", want: "Jane Doe"},
		{name: "日本語名", input: "山田 太郎", want: "山田 太郎"},
		{name: "空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizePhotoURL(t *testing.T) {
	sanitizer := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "https URL", input: "https://example.com/a.png", want: "https://example.com/a.png"},
		{name: "http URL", input: "http://example.com/a.png", want: "http://example.com/a.png"},
		{name: "前後の空白を除去", input: "  https://example.com/a.png ", want: "https://example.com/a.png"},
		{name: "javascriptスキームは拒否", input: "javascript:alert(1)", want: ""},
		{name: "dataスキームは拒否", input: "data:image/png;base64,AAAA", want: ""},
		{name: "相対URLは拒否", input: "/images/a.png", want: ""},
		{name: "空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizePhotoURL(tt.input); got != tt.want {
				t.Errorf("SanitizePhotoURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
