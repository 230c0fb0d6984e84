// Package marketapi はタスク・入札マーケットプレイスのREST APIクライアントを提供する。
package marketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taskbid/internal/metrics"
	"github.com/hitoshi/taskbid/internal/model"
)

const (
	userAgent = "TaskBid/1.0"
	// maxErrorBodySize はエラーレスポンスから読み取る最大バイト数。
	maxErrorBodySize = 64 << 10
)

// TokenSource は現在のユーザーのIDトークンを提供する。
// 未ログインの場合は空文字列を返す。
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// ClientConfig はAPIクライアントの設定。
type ClientConfig struct {
	BaseURL           string
	RequestsPerSecond float64 // 0以下の場合は無制限
	Burst             int
}

// Client はマーケットプレイスAPIのクライアント。
// リクエストごとにX-Request-IDを付与し、クライアント側でレート制限を行う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.Recorder
	tokens     TokenSource
	limiter    *rate.Limiter
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// tokensがnilの場合はAuthorizationヘッダーを付与しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, recorder metrics.Recorder, tokens TokenSource, config ClientConfig) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    recorder,
		tokens:     tokens,
		limiter:    limiter,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
	}
}

// errorResponse はAPIのエラーレスポンスボディ。
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// apiResponse は1回のリクエスト結果。
type apiResponse struct {
	statusCode int
	body       []byte
}

// do はリクエストを送信し、2xxの場合はレスポンスボディをoutにデコードする。
// 2xx以外は*model.NetworkErrorとして返す（呼び出し元で個別のステータスを解釈する）。
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.NetworkError{Op: op, Err: err}
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.IDToken(ctx)
		if err != nil {
			c.logger.Warn("IDトークンの取得に失敗しました。認証ヘッダーなしで送信します",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(op, 0, time.Since(start))
		c.logger.Error("マーケットプレイスAPIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, &model.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Warn("マーケットプレイスAPIがエラーステータスを返しました",
			slog.String("op", op),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		return &apiResponse{statusCode: resp.StatusCode, body: raw}, &model.NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			c.logger.Error("マーケットプレイスAPIのレスポンスのパースに失敗しました",
				slog.String("op", op),
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
			return nil, &model.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
		}
	}

	return &apiResponse{statusCode: resp.StatusCode, body: raw}, nil
}

// errorMessage はエラーレスポンスボディからメッセージを取り出す。
// JSONでない場合は本文をそのまま返す。
func errorMessage(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
