// Package identity は外部IdP（Firebase互換のIdentity Toolkit REST API）のアダプタを提供する。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hitoshi/taskbid/internal/model"
)

const (
	// backgroundRefreshTimeout はタイマー起動のトークンリフレッシュ1回あたりの上限時間。
	backgroundRefreshTimeout = 30 * time.Second
	// googleProviderID はsignInWithIdpに渡すプロバイダーID。
	googleProviderID = "google.com"
	// idpRequestURI はsignInWithIdpのrequestUri。ループバックで完結するため固定値でよい。
	idpRequestURI = "http://localhost"
)

// Authorizer は対話的なフェデレーションログインを行い、IdPのIDトークンを返す。
type Authorizer interface {
	Authorize(ctx context.Context) (idToken string, err error)
}

// Config はIdPクライアントの設定。
type Config struct {
	APIKey              string
	IdentityEndpoint    string
	SecureTokenEndpoint string
	// RefreshSkew はIDトークンの有効期限のどれだけ前にリフレッシュするか。
	RefreshSkew time.Duration
}

// Client はIdentity Toolkit REST APIを使ったIdPクライアント。
// サインイン状態をメモリ上に保持し、購読者へ変化を通知する。
// IDトークンは有効期限の前にリフレッシュし、期限切れ後もリフレッシュできない場合は
// サインアウト扱いとして購読者にnilを通知する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	clock      clockwork.Clock
	authorizer Authorizer
	config     Config

	mu          sync.Mutex
	current     *model.Identity
	generation  uint64
	timer       clockwork.Timer
	subscribers map[int]func(*model.Identity)
	nextID      int
	closed      bool

	// notifyMu は状態の更新と購読者への通知を直列化する。
	notifyMu sync.Mutex
}

// NewClient はClientを生成する。
// authorizerがnilの場合、SignInInteractiveはauth/operation-not-allowedを返す。
func NewClient(httpClient *http.Client, logger *slog.Logger, clock clockwork.Clock, authorizer Authorizer, config Config) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	config.IdentityEndpoint = strings.TrimRight(config.IdentityEndpoint, "/")
	config.SecureTokenEndpoint = strings.TrimRight(config.SecureTokenEndpoint, "/")
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		clock:       clock,
		authorizer:  authorizer,
		config:      config,
		subscribers: make(map[int]func(*model.Identity)),
	}
}

// Subscribe は状態変化の通知先を登録し、登録直後に現在の状態を1回通知する。
func (c *Client) Subscribe(fn func(*model.Identity)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	current := cloneIdentity(c.current)
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// authResponse はaccounts:*エンドポイントのレスポンス。
type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// refreshResponse はセキュアトークンエンドポイントのレスポンス。
type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// CreateAccount はメールアドレスとパスワードでアカウントを作成し、サインインする。
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp authResponse
	err := c.postJSON(ctx, "identity.sign_up", "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.signIn(c.identityFromResponse(resp)), nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp authResponse
	err := c.postJSON(ctx, "identity.sign_in", "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.signIn(c.identityFromResponse(resp)), nil
}

// SignInInteractive はAuthorizerでGoogleのIDトークンを取得し、IdPのセッションに交換する。
func (c *Client) SignInInteractive(ctx context.Context) (*model.Identity, error) {
	if c.authorizer == nil {
		return nil, &model.AuthError{
			Code:    model.AuthCodeOperationNotAllowed,
			Message: "federated login is not configured",
		}
	}

	googleIDToken, err := c.authorizer.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	postBody := url.Values{
		"id_token":   {googleIDToken},
		"providerId": {googleProviderID},
	}.Encode()

	var resp authResponse
	err = c.postJSON(ctx, "identity.sign_in_idp", "accounts:signInWithIdp", map[string]any{
		"postBody":            postBody,
		"requestUri":          idpRequestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.signIn(c.identityFromResponse(resp)), nil
}

// SetProfile はサインイン中のユーザーの表示名・プロフィール画像を更新する。
func (c *Client) SetProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.Identity, error) {
	c.mu.Lock()
	current := cloneIdentity(c.current)
	gen := c.generation
	c.mu.Unlock()

	if current == nil || current.UserID != userID {
		return nil, &model.NotAuthenticatedError{Op: "identity.set_profile"}
	}

	body := map[string]any{
		"idToken":           current.IDToken,
		"returnSecureToken": true,
	}
	if update.DisplayName != nil {
		body["displayName"] = *update.DisplayName
	}
	if update.PhotoURL != nil {
		body["photoUrl"] = *update.PhotoURL
	}

	var resp authResponse
	if err := c.postJSON(ctx, "identity.update", "accounts:update", body, &resp); err != nil {
		return nil, err
	}

	next := *current
	if update.DisplayName != nil {
		next.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		next.PhotoURL = *update.PhotoURL
	}
	if resp.IDToken != "" {
		next.IDToken = resp.IDToken
		next.ExpiresAt = c.expiresAt(resp.IDToken, resp.ExpiresIn)
	}
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}

	// 更新中にサインアウトや別ユーザーのサインインが起きていれば反映しない
	if !c.storeIf(&next, func(g uint64) bool { return g == gen }) {
		return nil, &model.NotAuthenticatedError{Op: "identity.set_profile"}
	}
	return cloneIdentity(&next), nil
}

// SignOut はローカルのサインイン状態を破棄する。
// IdP側のセッションはリフレッシュトークンの失効に任せる。
func (c *Client) SignOut(ctx context.Context) error {
	c.store(nil)
	c.logger.Info("IdPからサインアウトしました")
	return nil
}

// IDToken は現在のユーザーのIDトークンを返す。未サインインの場合は空文字列を返す。
// 有効期限が切れている場合はリフレッシュしてから返す。
func (c *Client) IDToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	current := cloneIdentity(c.current)
	gen := c.generation
	c.mu.Unlock()

	if current == nil {
		return "", nil
	}
	if current.ExpiresAt.IsZero() || c.clock.Now().Before(current.ExpiresAt) {
		return current.IDToken, nil
	}

	refreshed, err := c.refresh(ctx, gen)
	if err != nil {
		return "", err
	}
	if refreshed == nil {
		return "", nil
	}
	return refreshed.IDToken, nil
}

// Close はリフレッシュタイマーを停止する。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// signIn はサインイン結果を保存して購読者へ通知し、呼び出し元用のコピーを返す。
func (c *Client) signIn(identity *model.Identity) *model.Identity {
	c.store(identity)
	c.logger.Info("IdPにサインインしました", slog.String("user_id", identity.UserID))
	return cloneIdentity(identity)
}

func (c *Client) store(identity *model.Identity) {
	c.storeIf(identity, func(uint64) bool { return true })
}

// storeIf は現在の世代がcondを満たす場合に限りアイデンティティを置き換え、
// リフレッシュタイマーを張り直して購読者へ通知する。
func (c *Client) storeIf(identity *model.Identity, cond func(generation uint64) bool) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || !cond(c.generation) {
		c.mu.Unlock()
		return false
	}
	c.generation++
	c.current = cloneIdentity(identity)
	c.scheduleRefreshLocked()
	subscribers := make([]func(*model.Identity), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(cloneIdentity(identity))
	}
	return true
}

// scheduleRefreshLocked は現在のIDトークンの期限に合わせてリフレッシュを予約する。
// c.muを保持した状態で呼び出すこと。
func (c *Client) scheduleRefreshLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	current := c.current
	if current == nil || current.RefreshToken == "" || current.ExpiresAt.IsZero() {
		return
	}

	gen := c.generation
	delay := c.clock.Until(current.ExpiresAt.Add(-c.config.RefreshSkew))
	if delay < 0 {
		delay = 0
	}
	c.timer = c.clock.AfterFunc(delay, func() {
		c.refreshInBackground(gen)
	})
}

func (c *Client) refreshInBackground(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTimeout)
	defer cancel()
	_, _ = c.refresh(ctx, gen)
}

// refresh はリフレッシュトークンでIDトークンを更新する。
// 期限切れ前の一時的な失敗は期限時刻に再試行し、期限切れ後の失敗や
// トークン失効はサインアウトとして扱う。
// genが現在の世代と異なる場合（サインアウト済みなど）は何もしない。
func (c *Client) refresh(ctx context.Context, gen uint64) (*model.Identity, error) {
	c.mu.Lock()
	current := cloneIdentity(c.current)
	stale := c.generation != gen
	c.mu.Unlock()

	if stale || current == nil {
		return nil, nil
	}

	resp, err := c.exchangeRefreshToken(ctx, current.RefreshToken)
	if err != nil {
		var authErr *model.AuthError
		revoked := errors.As(err, &authErr) && isSessionRevoked(authErr)
		if !revoked && c.clock.Now().Before(current.ExpiresAt) {
			c.logger.Warn("IDトークンのリフレッシュに失敗しました。有効期限に再試行します",
				slog.String("user_id", current.UserID),
				slog.String("error", err.Error()),
			)
			c.retryAtExpiry(gen, current.ExpiresAt)
			return nil, err
		}

		c.logger.Warn("IDトークンを更新できないためサインアウトします",
			slog.String("user_id", current.UserID),
			slog.String("error", err.Error()),
		)
		c.storeIf(nil, func(g uint64) bool { return g == gen })
		return nil, err
	}

	next := *current
	next.IDToken = resp.IDToken
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}
	next.ExpiresAt = c.expiresAt(resp.IDToken, resp.ExpiresIn)

	if !c.storeIf(&next, func(g uint64) bool { return g == gen }) {
		return nil, nil
	}
	c.logger.Debug("IDトークンをリフレッシュしました",
		slog.String("user_id", next.UserID),
		slog.Time("expires_at", next.ExpiresAt),
	)
	return cloneIdentity(&next), nil
}

// retryAtExpiry はリフレッシュの再試行を有効期限時刻に予約する。
func (c *Client) retryAtExpiry(gen uint64, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.generation != gen {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	delay := c.clock.Until(expiresAt)
	if delay < 0 {
		delay = 0
	}
	c.timer = c.clock.AfterFunc(delay, func() {
		c.refreshInBackground(gen)
	})
}

// exchangeRefreshToken はセキュアトークンエンドポイントでトークンを交換する。
func (c *Client) exchangeRefreshToken(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := c.config.SecureTokenEndpoint + "/token?" + url.Values{"key": {c.config.APIKey}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := c.send(req, "identity.refresh", &resp); err != nil {
		return nil, err
	}
	if resp.IDToken == "" {
		return nil, &model.AuthError{Code: model.AuthCodeInternal, Message: "empty id_token in refresh response"}
	}
	return &resp, nil
}

// postJSON はIdentity ToolkitのエンドポイントへJSONをPOSTする。
func (c *Client) postJSON(ctx context.Context, op, method string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}
	endpoint := c.config.IdentityEndpoint + "/" + method + "?" + url.Values{"key": {c.config.APIKey}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, op, out)
}

// send はリクエストを送信し、エラーレスポンスをAuthErrorに変換する。
func (c *Client) send(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("IdPへのリクエストに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &model.AuthError{
			Code:    model.AuthCodeNetworkRequestFailed,
			Message: "identity provider is unreachable",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.AuthError{Code: model.AuthCodeNetworkRequestFailed, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var body providerErrorBody
		if err := json.Unmarshal(raw, &body); err != nil || body.Error.Message == "" {
			c.logger.Warn("IdPが不明なエラーを返しました",
				slog.String("op", op),
				slog.Int("http_status", resp.StatusCode),
			)
			return &model.AuthError{
				Code:    model.AuthCodeInternal,
				Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}
		authErr := toAuthError(body.Error.Message)
		c.logger.Info("IdPが認証エラーを返しました",
			slog.String("op", op),
			slog.String("code", authErr.Code),
		)
		return authErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &model.AuthError{Code: model.AuthCodeInternal, Message: "failed to parse response", Err: err}
	}
	return nil
}

// identityFromResponse はレスポンスからアイデンティティを組み立てる。
// レスポンスに含まれない項目はIDトークンのクレームで補う。
func (c *Client) identityFromResponse(resp authResponse) *model.Identity {
	identity := &model.Identity{
		UserID:       resp.LocalID,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		PhotoURL:     resp.PhotoURL,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    c.expiresAt(resp.IDToken, resp.ExpiresIn),
	}

	claims, err := parseIDToken(resp.IDToken)
	if err != nil {
		c.logger.Debug("IDトークンのクレームを読み取れませんでした", slog.String("error", err.Error()))
		return identity
	}
	if identity.UserID == "" {
		identity.UserID = claims.subject()
	}
	if identity.Email == "" {
		identity.Email = claims.Email
	}
	if identity.DisplayName == "" {
		identity.DisplayName = claims.Name
	}
	if identity.PhotoURL == "" {
		identity.PhotoURL = claims.Picture
	}
	return identity
}

// expiresAt はIDトークンの有効期限を求める。
// expクレームを優先し、読み取れない場合はexpiresIn（秒）から計算する。
func (c *Client) expiresAt(idToken, expiresIn string) time.Time {
	if claims, err := parseIDToken(idToken); err == nil {
		if exp := claims.expiry(); !exp.IsZero() {
			return exp
		}
	}
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(time.Duration(seconds) * time.Second)
}

func cloneIdentity(identity *model.Identity) *model.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
