package marketapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/hitoshi/taskbid/internal/model"
)

// duplicateBidMarker はサーバーが重複入札を409以外で返す場合のメッセージ断片。
const duplicateBidMarker = "already placed a bid"

// summaryResponse は GET /bids/user/{id}/summary のレスポンス。
type summaryResponse struct {
	BidTaskIDs []string `json:"bidTaskIds"`
	Count      int      `json:"count"`
}

// GetBidSummary は指定ユーザーの入札サマリーを取得する。
func (c *Client) GetBidSummary(ctx context.Context, userID string) (*model.BidSummary, error) {
	var resp summaryResponse
	path := "/bids/user/" + url.PathEscape(userID) + "/summary"
	if _, err := c.do(ctx, "bids.summary", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	taskIDs := resp.BidTaskIDs
	if taskIDs == nil {
		taskIDs = []string{}
	}
	return &model.BidSummary{TaskIDs: taskIDs, Count: resp.Count}, nil
}

// CreateBid は入札を作成する。
// サーバーが409、または重複入札を示すメッセージを返した場合は*model.DuplicateBidErrorを返す。
func (c *Client) CreateBid(ctx context.Context, req model.BidRequest) error {
	_, err := c.do(ctx, "bids.create", http.MethodPost, "/bids", req, nil)
	if err == nil {
		return nil
	}

	var netErr *model.NetworkError
	if errors.As(err, &netErr) && isDuplicateBid(netErr) {
		return &model.DuplicateBidError{TaskID: req.TaskID, Message: netErr.Message}
	}
	return err
}

// isDuplicateBid はエラーレスポンスが重複入札を示しているかを判定する。
func isDuplicateBid(netErr *model.NetworkError) bool {
	if netErr.StatusCode == http.StatusConflict {
		return true
	}
	return netErr.StatusCode >= 400 && netErr.StatusCode < 500 &&
		strings.Contains(strings.ToLower(netErr.Message), duplicateBidMarker)
}

// ListBidsByBidder は指定ユーザーの入札履歴を新しい順に返す。
func (c *Client) ListBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	var bids []model.Bid
	path := "/bids?" + url.Values{"bidderId": {bidderID}}.Encode()
	if _, err := c.do(ctx, "bids.list", http.MethodGet, path, nil, &bids); err != nil {
		return nil, err
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].BidDate.After(bids[j].BidDate)
	})
	return bids, nil
}
