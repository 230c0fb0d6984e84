package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskbid/internal/model"
)

// DashboardHandler はダッシュボードの集計を返すHTTPハンドラー。
type DashboardHandler struct {
	sessions SessionManager
	tasks    TaskService
	bids     BidCache
	logger   *slog.Logger
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(sessions SessionManager, tasks TaskService, bids BidCache, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, tasks: tasks, bids: bids, logger: logger}
}

// dashboardResponse はダッシュボードのAPIレスポンス。
type dashboardResponse struct {
	TotalTasks       int            `json:"totalTasks"`
	MyTasks          int            `json:"myTasks"`
	BidOpportunities int            `json:"bidOpportunities"`
	LoadingBids      bool           `json:"loadingBids"`
	Session          *model.Session `json:"session"`
}

// Overview は全タスク数、自分が投稿したタスク数、入札件数をまとめて返す。
// 入札件数はキャッシュから返し、ネットワークにはアクセスしない。
// GET /api/dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	all, err := h.tasks.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	mine, err := h.tasks.ListMine(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		TotalTasks:       len(all),
		MyTasks:          len(mine),
		BidOpportunities: h.bids.OpportunityCount(),
		LoadingBids:      h.bids.LoadingBids(),
		Session:          h.sessions.Session(),
	})
}
