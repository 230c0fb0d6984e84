package model

import "time"

// Session はログイン中ユーザーのセッションを表す。
// 未ログイン（匿名）状態は nil で表現する。
type Session struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// Clone はセッションのコピーを返す。nil の場合は nil を返す。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Equal は2つのセッションが同一内容かどうかを返す。
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return *s == *other
}

// Identity はIdPが発行した認証済みアイデンティティを表す。
// トークン類はIdPアダプタの内部でのみ扱い、Sessionには含めない。
type Identity struct {
	UserID       string
	Email        string
	DisplayName  string
	PhotoURL     string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Session はIdentityからセッションのスナップショットを生成する。
func (i *Identity) Session() *Session {
	if i == nil {
		return nil
	}
	return &Session{
		UserID:      i.UserID,
		Email:       i.Email,
		DisplayName: i.DisplayName,
		PhotoURL:    i.PhotoURL,
	}
}

// ProfileUpdate はプロフィールの部分更新を表す。
// nil のフィールドは更新しない。
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p ProfileUpdate) IsEmpty() bool {
	return p.DisplayName == nil && p.PhotoURL == nil
}

// ApplyTo はセッションに部分更新をマージした新しいセッションを返す。
// フィールド単位で後勝ち。
func (p ProfileUpdate) ApplyTo(s *Session) *Session {
	merged := s.Clone()
	if merged == nil {
		return nil
	}
	if p.DisplayName != nil {
		merged.DisplayName = *p.DisplayName
	}
	if p.PhotoURL != nil {
		merged.PhotoURL = *p.PhotoURL
	}
	return merged
}
