package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/hitoshi/taskbid/internal/model"
)

const (
	defaultGoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
	callbackPath          = "/callback"
)

// GoogleConfig はGoogleフェデレーションログインの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// CallbackAddr はループバックのコールバックサーバーの待ち受けアドレス。
	// ポート0の場合は空きポートを使う。
	CallbackAddr string
	// Timeout はブラウザでの操作を待つ上限時間。0の場合は呼び出し元のctxに従う。
	Timeout time.Duration

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// GoogleFlow はループバックリダイレクトとPKCEを使った
// Google OAuth 2.0の対話的ログインを行う。
type GoogleFlow struct {
	config      GoogleConfig
	httpClient  *http.Client
	logger      *slog.Logger
	openBrowser func(authURL string) error
}

// NewGoogleFlow はGoogleFlowを生成する。
// openBrowserは認可URLをユーザーに提示する（ブラウザを開く、URLを表示するなど）。
func NewGoogleFlow(config GoogleConfig, httpClient *http.Client, logger *slog.Logger, openBrowser func(authURL string) error) *GoogleFlow {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.CallbackAddr == "" {
		config.CallbackAddr = "127.0.0.1:0"
	}
	return &GoogleFlow{
		config:      config,
		httpClient:  httpClient,
		logger:      logger,
		openBrowser: openBrowser,
	}
}

// callbackResult はコールバックで受け取った結果。
type callbackResult struct {
	code string
	err  error
}

// Authorize はブラウザでのGoogleログインを行い、GoogleのIDトークンを返す。
// ユーザーが拒否した場合やctxが期限切れになった場合はauth/flow-cancelledを返す。
func (f *GoogleFlow) Authorize(ctx context.Context) (string, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	ln, err := net.Listen("tcp", f.config.CallbackAddr)
	if err != nil {
		return "", &model.AuthError{
			Code:    model.AuthCodeInternal,
			Message: "failed to start callback listener",
			Err:     err,
		}
	}

	conf := &oauth2.Config{
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.config.AuthURL,
			TokenURL: f.config.TokenURL,
		},
		RedirectURL: "http://" + ln.Addr().String() + callbackPath,
		Scopes:      []string{"openid", "email", "profile"},
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	server := &http.Server{
		Handler:           f.callbackRouter(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("コールバックサーバーが異常終了しました", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	if err := f.openBrowser(authURL); err != nil {
		return "", &model.AuthError{
			Code:    model.AuthCodeInternal,
			Message: "failed to open authorization page",
			Err:     err,
		}
	}
	f.logger.Info("Googleログインの完了を待機しています", slog.String("redirect_url", conf.RedirectURL))

	var result callbackResult
	select {
	case result = <-results:
	case <-ctx.Done():
		return "", &model.AuthError{
			Code:    model.AuthCodeFlowCancelled,
			Message: "federated login was not completed",
			Err:     ctx.Err(),
		}
	}
	if result.err != nil {
		return "", result.err
	}

	exchangeCtx := ctx
	if f.httpClient != nil {
		exchangeCtx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	token, err := conf.Exchange(exchangeCtx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", &model.AuthError{
			Code:    model.AuthCodeInvalidCredential,
			Message: "failed to exchange authorization code",
			Err:     err,
		}
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", &model.AuthError{
			Code:    model.AuthCodeInternal,
			Message: "empty id_token in token response",
		}
	}
	return idToken, nil
}

// callbackRouter はGoogleからのリダイレクトを受けるルーターを生成する。
// stateが一致するリクエストのうち最初の1回の結果だけをresultsに送る。
// stateが一致しないリクエストは400を返して無視し、正規のリダイレクトを待ち続ける。
func (f *GoogleFlow) callbackRouter(state string, results chan<- callbackResult) http.Handler {
	r := chi.NewRouter()
	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		if q.Get("state") != state {
			f.logger.Warn("stateが一致しないコールバックを無視しました", slog.String("remote_addr", req.RemoteAddr))
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "不正なリクエストです。")
			return
		}

		var result callbackResult
		switch {
		case q.Get("error") != "":
			result.err = &model.AuthError{
				Code:    model.AuthCodeFlowCancelled,
				Message: fmt.Sprintf("authorization denied: %s", q.Get("error")),
			}
		case q.Get("code") == "":
			result.err = &model.AuthError{Code: model.AuthCodeInvalidCredential, Message: "missing authorization code"}
		default:
			result.code = q.Get("code")
		}

		select {
		case results <- result:
		default:
		}

		if result.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "ログインを完了できませんでした。このウィンドウを閉じてください。")
			return
		}
		fmt.Fprintln(w, "ログインが完了しました。このウィンドウを閉じてください。")
	})
	return r
}
