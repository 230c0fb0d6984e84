package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/taskbid/internal/metrics"
	"github.com/hitoshi/taskbid/internal/model"
)

// State はセッションの状態。
type State int

const (
	// StateUnknown はIdPがまだ状態を通知していない初期状態。
	StateUnknown State = iota
	// StateAnonymous は未ログイン状態。
	StateAnonymous
	// StateAuthenticated はログイン済み状態。
	StateAuthenticated
)

// String は状態名を返す。メトリクスのラベルにも使用する。
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// 認証操作名（メトリクスのラベル、ログ、エラーのOpに使用する）
const (
	opSignup        = "signup"
	opLogin         = "login"
	opFederated     = "login_federated"
	opLogout        = "logout"
	opUpdateProfile = "update_profile"
)

// Manager は「誰がログインしているか」を一元管理する。
// IdPからのプッシュ通知を現在値とリスナー通知に変換し、
// サインアップやログインなどの操作を提供する。
//
// リスナーは通知順に同期的に呼び出される。リスナー内から
// Managerの状態を変更するメソッドを同期的に呼び出してはならない。
type Manager struct {
	provider IdentityProvider
	logger   *slog.Logger
	metrics  metrics.Recorder

	mu        sync.Mutex
	state     State
	session   *model.Session
	inflight  int
	listeners map[int]func(*model.Session)
	nextID    int

	// notifyMu は状態の更新とリスナーへの配信を直列化する。
	notifyMu    sync.Mutex
	unsubscribe func()
}

// NewManager はManagerを生成し、IdPの状態変化の購読を開始する。
func NewManager(provider IdentityProvider, logger *slog.Logger, recorder metrics.Recorder) *Manager {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	m := &Manager{
		provider:  provider,
		logger:    logger,
		metrics:   recorder,
		listeners: make(map[int]func(*model.Session)),
	}
	m.unsubscribe = provider.Subscribe(func(identity *model.Identity) {
		m.publish(identity.Session(), "provider")
	})
	return m
}

// Session は現在のセッションのコピーを返す。未ログインの場合はnilを返す。
func (m *Manager) Session() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// State は現在の状態を返す。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading はIdPの初回通知待ち、または状態を変更する操作の実行中にtrueを返す。
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateUnknown || m.inflight > 0
}

// OnSessionChanged はセッション変化のリスナーを登録し、登録解除関数を返す。
// 状態が既に確定している場合は、登録時に現在のセッションを1回通知する。
func (m *Manager) OnSessionChanged(fn func(*model.Session)) func() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	state := m.state
	current := m.session.Clone()
	m.mu.Unlock()

	if state != StateUnknown {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Signup はアカウントを作成し、表示名とプロフィール画像を設定する。
// IdPの非同期通知を待たずに、作成したセッションを即座に公開する。
func (m *Manager) Signup(ctx context.Context, email, password, displayName, photoURL string) (*model.Session, error) {
	done := m.begin()
	defer done()

	identity, err := m.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, m.fail(opSignup, err)
	}

	session := identity.Session()
	update := model.ProfileUpdate{}
	if displayName != "" {
		update.DisplayName = &displayName
	}
	if photoURL != "" {
		update.PhotoURL = &photoURL
	}
	if !update.IsEmpty() {
		updated, err := m.provider.SetProfile(ctx, identity.UserID, update)
		if err != nil {
			return nil, m.fail(opSignup, err)
		}
		if updated != nil {
			session = updated.Session()
		}
		session = update.ApplyTo(session)
	}

	m.publish(session, opSignup)
	m.succeed(opSignup, session)
	return session.Clone(), nil
}

// Login はメールアドレスとパスワードでログインする。
func (m *Manager) Login(ctx context.Context, email, password string) (*model.Session, error) {
	done := m.begin()
	defer done()

	identity, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, m.fail(opLogin, err)
	}

	session := identity.Session()
	m.publish(session, opLogin)
	m.succeed(opLogin, session)
	return session.Clone(), nil
}

// LoginWithFederatedProvider は対話的なフェデレーションログイン（Google）を行う。
// ユーザーがキャンセルした場合はAuthErrorを返す。
func (m *Manager) LoginWithFederatedProvider(ctx context.Context) (*model.Session, error) {
	done := m.begin()
	defer done()

	identity, err := m.provider.SignInInteractive(ctx)
	if err != nil {
		return nil, m.fail(opFederated, err)
	}

	session := identity.Session()
	m.publish(session, opFederated)
	m.succeed(opFederated, session)
	return session.Clone(), nil
}

// Logout はログアウトする。成功時は戻る前にローカルのセッションを破棄する。
func (m *Manager) Logout(ctx context.Context) error {
	done := m.begin()
	defer done()

	if err := m.provider.SignOut(ctx); err != nil {
		return m.fail(opLogout, err)
	}

	m.publish(nil, opLogout)
	m.metrics.RecordAuthOperation(opLogout, nil)
	m.logger.Info("ログアウトしました")
	return nil
}

// UpdateProfile はプロフィールを部分更新する。
// 未ログインの場合はNotAuthenticatedErrorを返す。
// 成功時はIdPの再通知を待たずに、現在のセッションへフィールド単位でマージする。
func (m *Manager) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Session, error) {
	current := m.Session()
	if current == nil {
		err := &model.NotAuthenticatedError{Op: opUpdateProfile}
		m.metrics.RecordAuthOperation(opUpdateProfile, err)
		return nil, err
	}
	if update.IsEmpty() {
		return current, nil
	}

	done := m.begin()
	defer done()

	if _, err := m.provider.SetProfile(ctx, current.UserID, update); err != nil {
		return nil, m.fail(opUpdateProfile, err)
	}

	// SetProfileの実行中にログアウトや別ユーザーへの切り替えが起きた場合はマージしない
	latest := m.Session()
	if latest == nil || latest.UserID != current.UserID {
		err := &model.NotAuthenticatedError{Op: opUpdateProfile}
		m.metrics.RecordAuthOperation(opUpdateProfile, err)
		return nil, err
	}

	merged := update.ApplyTo(latest)
	m.publish(merged, opUpdateProfile)
	m.succeed(opUpdateProfile, merged)
	return merged.Clone(), nil
}

// Close はIdPの購読を解除し、すべてのリスナーを破棄する。
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	clear(m.listeners)
	m.mu.Unlock()
}

// begin は操作中カウンタを加算し、減算する関数を返す。
// 呼び出し元はdeferで必ず解放すること。
func (m *Manager) begin() func() {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.inflight--
			m.mu.Unlock()
		})
	}
}

// publish はセッションを更新し、変化があればリスナーへ通知する。
// 初回の通知（Unknownからの遷移）は値が同じでも必ず配信する。
func (m *Manager) publish(session *model.Session, source string) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	prev := m.state
	if prev != StateUnknown && m.session.Equal(session) {
		m.mu.Unlock()
		return
	}
	m.session = session.Clone()
	if session == nil {
		m.state = StateAnonymous
	} else {
		m.state = StateAuthenticated
	}
	next := m.state
	listeners := make([]func(*model.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	if prev != next {
		m.metrics.RecordSessionTransition(next.String())
		m.logger.Info("セッション状態が変化しました",
			slog.String("from", prev.String()),
			slog.String("to", next.String()),
			slog.String("source", source),
		)
	}

	for _, fn := range listeners {
		fn(session.Clone())
	}
}

func (m *Manager) succeed(op string, session *model.Session) {
	m.metrics.RecordAuthOperation(op, nil)
	m.logger.Info("認証操作が成功しました",
		slog.String("op", op),
		slog.String("user_id", session.UserID),
	)
}

// fail はエラーをAuthErrorに正規化し、記録して返す。
// NotAuthenticatedErrorはそのまま返す。
func (m *Manager) fail(op string, err error) error {
	var notAuth *model.NotAuthenticatedError
	if errors.As(err, &notAuth) {
		m.metrics.RecordAuthOperation(op, err)
		return err
	}

	authErr := toAuthError(err)
	m.metrics.RecordAuthOperation(op, authErr)
	m.logger.Warn("認証操作が失敗しました",
		slog.String("op", op),
		slog.String("code", authErr.Code),
		slog.String("error", err.Error()),
	)
	return authErr
}

// toAuthError はIdPのエラーをAuthErrorに変換する。
// AuthError以外のエラーは通信失敗として扱う。
func toAuthError(err error) *model.AuthError {
	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &model.AuthError{
		Code:    model.AuthCodeNetworkRequestFailed,
		Message: "identity provider request failed",
		Err:     err,
	}
}
