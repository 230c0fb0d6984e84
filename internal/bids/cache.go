// Package bids は現在のユーザーの入札状況をクライアント側で保持するキャッシュを提供する。
package bids

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/taskbid/internal/metrics"
	"github.com/hitoshi/taskbid/internal/model"
)

const (
	// anonymousBidderName は表示名が未設定の場合の入札者名。
	anonymousBidderName = "Anonymous Bidder"
	// defaultRefreshTimeout はセッション変化時のバックグラウンド再取得の上限時間。
	defaultRefreshTimeout = 10 * time.Second
)

// BidAPI は入札に関するバックエンドAPIのインターフェース。
type BidAPI interface {
	GetBidSummary(ctx context.Context, userID string) (*model.BidSummary, error)
	CreateBid(ctx context.Context, req model.BidRequest) error
	ListBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)
}

// SessionSource は現在のセッションと、その変化の通知を提供する。
type SessionSource interface {
	Session() *model.Session
	OnSessionChanged(fn func(*model.Session)) func()
}

// NameSanitizer は入札者名を表示用に無害化する。
type NameSanitizer interface {
	SanitizeName(raw string) string
}

// Config はキャッシュの設定。
type Config struct {
	// RefreshTimeout はセッション変化時のバックグラウンド再取得の上限時間。
	RefreshTimeout time.Duration
}

// Cache は現在のユーザーが入札したタスクの集合を保持する。
// ログイン時にサーバーから全件を取得し、入札時は楽観的に更新する。
// 件数は常に集合の要素数と一致する。
type Cache struct {
	api       BidAPI
	sessions  SessionSource
	sanitizer NameSanitizer
	logger    *slog.Logger
	metrics   metrics.Recorder
	config    Config

	mu      sync.Mutex
	owner   string // 集合の持ち主のユーザーID。未ログイン時は空
	taskIDs map[string]struct{}
	// placed は進行中の再取得より後に入札が確定したタスク。
	// 再取得の結果に取り込み、古いサマリーで消えないようにする。
	placed     map[string]struct{}
	loading    bool
	generation uint64
	closed     bool

	wg          sync.WaitGroup
	unsubscribe func()
}

// NewCache はCacheを生成し、セッション変化の購読を開始する。
// 最初のセッション通知を受け取るまではLoadingBidsがtrueを返す。
func NewCache(api BidAPI, sessions SessionSource, sanitizer NameSanitizer, logger *slog.Logger, recorder metrics.Recorder, config Config) *Cache {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = defaultRefreshTimeout
	}
	c := &Cache{
		api:       api,
		sessions:  sessions,
		sanitizer: sanitizer,
		logger:    logger,
		metrics:   recorder,
		config:    config,
		taskIDs:   make(map[string]struct{}),
		placed:    make(map[string]struct{}),
		loading:   true,
	}
	c.unsubscribe = sessions.OnSessionChanged(c.onSessionChanged)
	return c
}

// onSessionChanged はセッションの変化に追従する。
// 未ログインになった場合は空にリセットし、別のユーザーになった場合は
// 空にしてからバックグラウンドで再取得する。同一ユーザーのプロフィール変更は無視する。
func (c *Cache) onSessionChanged(session *model.Session) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if session == nil {
		c.generation++
		c.owner = ""
		c.resetLocked()
		c.loading = false
		c.mu.Unlock()
		c.metrics.SetCachedBidCount(0)
		c.logger.Debug("未ログインのため入札キャッシュをリセットしました")
		return
	}

	if session.UserID == c.owner {
		c.mu.Unlock()
		return
	}

	c.generation++
	gen := c.generation
	c.owner = session.UserID
	c.resetLocked()
	c.loading = true
	c.wg.Add(1)
	c.mu.Unlock()
	c.metrics.SetCachedBidCount(0)

	userID := session.UserID
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.RefreshTimeout)
		defer cancel()
		c.load(ctx, gen, userID)
	}()
}

// Refresh はサーバーから入札サマリーを取得し、キャッシュを丸ごと置き換える。
// 未ログインの場合は何もしない。取得に失敗した場合はエラーを返さず空にリセットする。
// 取得中にPlaceBidで入札が確定したタスクは、サーバーの結果に含まれていなくても入札済みとして残す。
// 呼び出し元のctxがキャンセルされても取得は中断せず、RefreshTimeoutで打ち切る。
func (c *Cache) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.RefreshTimeout)
	defer cancel()

	session := c.sessions.Session()

	c.mu.Lock()
	if session == nil {
		c.generation++
		c.owner = ""
		c.resetLocked()
		c.loading = false
		c.mu.Unlock()
		c.metrics.SetCachedBidCount(0)
		return
	}

	c.generation++
	gen := c.generation
	if c.owner != session.UserID {
		c.owner = session.UserID
		c.resetLocked()
	}
	clear(c.placed)
	c.loading = true
	c.mu.Unlock()

	c.load(ctx, gen, session.UserID)
}

// load は入札サマリーを取得して反映する。
// 取得中に新しい再取得やセッション変化があった場合、結果は破棄する。
func (c *Cache) load(ctx context.Context, gen uint64, userID string) {
	summary, err := c.api.GetBidSummary(ctx, userID)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.Debug("より新しい再取得があるため入札サマリーを破棄しました", slog.String("user_id", userID))
		return
	}
	c.loading = false

	if err != nil {
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.RecordSummaryRefresh(false)
		c.metrics.SetCachedBidCount(0)
		c.logger.Warn("入札サマリーの取得に失敗したためキャッシュを空にしました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	taskIDs := make(map[string]struct{}, len(summary.TaskIDs)+len(c.placed))
	for _, id := range summary.TaskIDs {
		taskIDs[id] = struct{}{}
	}
	fromServer := len(taskIDs)
	for id := range c.placed {
		taskIDs[id] = struct{}{}
	}
	c.taskIDs = taskIDs
	clear(c.placed)
	count := len(c.taskIDs)
	c.mu.Unlock()

	if summary.Count != fromServer {
		c.logger.Warn("サーバーの入札件数とタスクIDの数が一致しません",
			slog.String("user_id", userID),
			slog.Int("server_count", summary.Count),
			slog.Int("task_ids", fromServer),
		)
	}
	c.metrics.RecordSummaryRefresh(true)
	c.metrics.SetCachedBidCount(count)
	c.logger.Debug("入札サマリーを取得しました",
		slog.String("user_id", userID),
		slog.Int("count", count),
	)
}

// PlaceBid はタスクに入札する。未ログインの場合はNotAuthenticatedErrorを返す。
// 成功時、またはサーバーが重複入札を報告した場合は、タスクを入札済みとして
// 冪等に追加する。重複入札の場合は呼び出し元にDuplicateBidErrorを返す。
// それ以外の失敗ではキャッシュを変更しない。
func (c *Cache) PlaceBid(ctx context.Context, taskID string) error {
	session := c.sessions.Session()
	if session == nil {
		return &model.NotAuthenticatedError{Op: "bids.place"}
	}

	req := model.BidRequest{
		TaskID:      taskID,
		UserID:      session.UserID,
		BidderEmail: session.Email,
		BidderName:  c.bidderName(session),
	}

	err := c.api.CreateBid(ctx, req)
	var dupErr *model.DuplicateBidError
	switch {
	case err == nil:
		c.markBid(session.UserID, taskID)
		c.metrics.RecordBidPlacement(metrics.BidResultPlaced)
		c.logger.Info("入札しました",
			slog.String("task_id", taskID),
			slog.String("user_id", session.UserID),
		)
		return nil
	case errors.As(err, &dupErr):
		c.markBid(session.UserID, taskID)
		c.metrics.RecordBidPlacement(metrics.BidResultDuplicate)
		c.logger.Info("既に入札済みのタスクです",
			slog.String("task_id", taskID),
			slog.String("user_id", session.UserID),
		)
		return err
	default:
		c.metrics.RecordBidPlacement(metrics.BidResultFailed)
		c.logger.Warn("入札に失敗しました",
			slog.String("task_id", taskID),
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return err
	}
}

// markBid はキャッシュの持ち主がownerの場合に限り、タスクを入札済みに追加する。
func (c *Cache) markBid(owner, taskID string) {
	c.mu.Lock()
	if c.owner != owner {
		c.mu.Unlock()
		return
	}
	c.taskIDs[taskID] = struct{}{}
	if c.loading {
		c.placed[taskID] = struct{}{}
	}
	count := len(c.taskIDs)
	c.mu.Unlock()
	c.metrics.SetCachedBidCount(count)
}

// bidderName は入札者名を決める。表示名が空なら既定名を使う。
func (c *Cache) bidderName(session *model.Session) string {
	name := session.DisplayName
	if c.sanitizer != nil {
		name = c.sanitizer.SanitizeName(name)
	}
	if name == "" {
		return anonymousBidderName
	}
	return name
}

// HasBid はタスクに入札済みかどうかをキャッシュから返す。ネットワークにはアクセスしない。
func (c *Cache) HasBid(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.taskIDs[taskID]
	return ok
}

// OpportunityCount はキャッシュ中の入札件数を返す。
func (c *Cache) OpportunityCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.taskIDs)
}

// LoadingBids は入札サマリーの取得中にtrueを返す。
func (c *Cache) LoadingBids() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Summary はキャッシュの内容をタスクIDの昇順で返す。
func (c *Cache) Summary() model.BidSummary {
	c.mu.Lock()
	ids := make([]string, 0, len(c.taskIDs))
	for id := range c.taskIDs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return model.BidSummary{TaskIDs: ids, Count: len(ids)}
}

// MyBids は現在のユーザーの入札履歴を新しい順に返す。
func (c *Cache) MyBids(ctx context.Context) ([]model.Bid, error) {
	session := c.sessions.Session()
	if session == nil {
		return nil, &model.NotAuthenticatedError{Op: "bids.mine"}
	}
	return c.api.ListBidsByBidder(ctx, session.UserID)
}

// Wait はバックグラウンドの再取得がすべて終わるまで待つ。
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close はセッションの購読を解除し、進行中の再取得の結果を破棄させる。
func (c *Cache) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.mu.Lock()
	c.closed = true
	c.generation++
	c.mu.Unlock()
}

// resetLocked は集合を空にする。c.muを保持した状態で呼び出すこと。
func (c *Cache) resetLocked() {
	c.taskIDs = make(map[string]struct{})
	clear(c.placed)
}
