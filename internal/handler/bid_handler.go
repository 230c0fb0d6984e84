package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskbid/internal/model"
)

// BidCache はビッドハンドラーが必要とする入札キャッシュのインターフェース。
type BidCache interface {
	Refresh(ctx context.Context)
	PlaceBid(ctx context.Context, taskID string) error
	HasBid(taskID string) bool
	OpportunityCount() int
	LoadingBids() bool
	Summary() model.BidSummary
	MyBids(ctx context.Context) ([]model.Bid, error)
}

// BidHandler は入札関連のHTTPハンドラー。
type BidHandler struct {
	cache  BidCache
	logger *slog.Logger
}

// NewBidHandler はBidHandlerを生成する。
func NewBidHandler(cache BidCache, logger *slog.Logger) *BidHandler {
	return &BidHandler{cache: cache, logger: logger}
}

// bidSummaryResponse は入札サマリーのAPIレスポンス。
type bidSummaryResponse struct {
	TaskIDs []string `json:"taskIds"`
	Count   int      `json:"count"`
	Loading bool     `json:"loading"`
}

// bidStatusResponse はタスク1件の入札状況のAPIレスポンス。
type bidStatusResponse struct {
	TaskID string `json:"taskId"`
	HasBid bool   `json:"hasBid"`
	Count  int    `json:"count"`
}

// Summary はキャッシュ中の入札サマリーを返す。ネットワークにはアクセスしない。
// GET /api/bids/summary
func (h *BidHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.summaryResponse())
}

// Refresh はサーバーから入札サマリーを再取得して返す。
// 取得に失敗した場合もエラーにはせず、空のサマリーを返す。
// POST /api/bids/refresh
func (h *BidHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.cache.Refresh(r.Context())
	writeJSON(w, http.StatusOK, h.summaryResponse())
}

// Mine は現在のユーザーの入札履歴を返す。
// GET /api/bids/mine
func (h *BidHandler) Mine(w http.ResponseWriter, r *http.Request) {
	bids, err := h.cache.MyBids(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

// Status はタスクに入札済みかどうかを返す。
// GET /api/bids/tasks/{taskID}
func (h *BidHandler) Status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	writeJSON(w, http.StatusOK, bidStatusResponse{
		TaskID: taskID,
		HasBid: h.cache.HasBid(taskID),
		Count:  h.cache.OpportunityCount(),
	})
}

// Place はタスクに入札する。
// 入札済みのタスクの場合は409を返すが、キャッシュ上は入札済みとして扱う。
// POST /api/bids/tasks/{taskID}
func (h *BidHandler) Place(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if err := h.cache.PlaceBid(r.Context(), taskID); err != nil {
		writeServiceError(w, h.logger, err, taskID)
		return
	}
	writeJSON(w, http.StatusCreated, bidStatusResponse{
		TaskID: taskID,
		HasBid: true,
		Count:  h.cache.OpportunityCount(),
	})
}

func (h *BidHandler) summaryResponse() bidSummaryResponse {
	summary := h.cache.Summary()
	return bidSummaryResponse{
		TaskIDs: summary.TaskIDs,
		Count:   summary.Count,
		Loading: h.cache.LoadingBids(),
	}
}
