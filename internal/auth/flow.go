// Package auth はプロバイダーとの認可ハンドシェイクを提供する。
// インプリシットグラントによるトークン取得を、ループバックの
// コールバックサーバーとフラグメント中継ページで実現する。
// クライアント側に長期シークレットは保持しない。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fitsync/internal/model"
)

// defaultTokenLifetime はプロバイダーが有効期間を返さない場合のフォールバック。
const defaultTokenLifetime = 3600 * time.Second

// consentScopes は同意画面で要求する固定スコープ。
const consentScopes = "activity:read body:read heartrate:read location:read"

// Flow は認可ハンドシェイクのライフサイクルを管理する。
// Initializeは冪等で、プロセス内で1回だけ設定検証を行う。
// Authorizeは同時に1つだけ実行できる。
type Flow struct {
	clientID     string
	apiKey       string
	authURL      string
	callbackAddr string
	timeout      time.Duration
	logger       *slog.Logger

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	inFlight bool
	origin   string // 実行中ハンドシェイクのコールバックオリジン
}

// NewFlow はFlow の新しいインスタンスを生成する。
func NewFlow(clientID, apiKey, authURL, callbackAddr string, timeout time.Duration, logger *slog.Logger) *Flow {
	return &Flow{
		clientID:     clientID,
		apiKey:       apiKey,
		authURL:      authURL,
		callbackAddr: callbackAddr,
		timeout:      timeout,
		logger:       logger,
	}
}

// Initialize は認可フローの前提条件を検証する。
// 冪等であり、2回目以降の呼び出しは副作用なしで初回の結果を返す。
func (f *Flow) Initialize() error {
	f.initOnce.Do(func() {
		if f.clientID == "" {
			f.initErr = fmt.Errorf("クライアントIDが設定されていません")
			return
		}
		if f.apiKey == "" {
			f.initErr = fmt.Errorf("APIキーが設定されていません")
			return
		}
		if _, err := url.Parse(f.authURL); err != nil || f.authURL == "" {
			f.initErr = fmt.Errorf("認可エンドポイントURLが不正です: %s", f.authURL)
			return
		}
		f.logger.Info("認可フローを初期化しました",
			slog.String("auth_url", f.authURL),
			slog.String("callback_addr", f.callbackAddr),
		)
	})
	if f.initErr != nil {
		return f.initErr
	}
	return nil
}

// Authorize は認可ハンドシェイクを実行し、取得したクレデンシャルを返す。
// ループバックのコールバックサーバーを起動し、ユーザーが同意画面を
// 完了するまで待機する。以下のいずれかで完了する:
//   - トークン受信 → クレデンシャルを返す
//   - プロバイダーの明示的エラー → model.ErrProviderDenied
//   - キャンセルエンドポイント呼び出し → model.ErrUserCancelled
//   - タイムアウト → model.ErrAuthTimeout（サーバーは強制停止）
//
// 同時に実行できるハンドシェイクは1つのみで、実行中の再呼び出しは
// model.ErrAuthorizeInFlight で拒否される。
func (f *Flow) Authorize(ctx context.Context) (model.Credential, error) {
	if err := f.Initialize(); err != nil {
		return model.Credential{}, err
	}

	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return model.Credential{}, model.ErrAuthorizeInFlight
	}
	f.inFlight = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.origin = ""
		f.mu.Unlock()
	}()

	state, err := newStateNonce()
	if err != nil {
		return model.Credential{}, fmt.Errorf("stateの生成に失敗しました: %w", err)
	}

	listener, err := net.Listen("tcp", f.callbackAddr)
	if err != nil {
		return model.Credential{}, fmt.Errorf("コールバックリスナーの起動に失敗しました: %w", err)
	}

	origin := "http://" + listener.Addr().String()
	f.mu.Lock()
	f.origin = origin
	f.mu.Unlock()

	s := &session{
		state:  state,
		origin: origin,
		logger: f.logger,
		result: make(chan sessionResult, 1),
		now:    time.Now,
	}

	router := chi.NewRouter()
	router.Get("/callback", s.handleCallback)
	router.Post("/token", s.handleToken)
	router.Post("/cancel", s.handleCancel)

	server := &http.Server{Handler: router}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			f.logger.Error("コールバックサーバーが異常終了しました",
				slog.String("error", serveErr.Error()),
			)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	consentURL := f.consentURL(origin, state)
	f.logger.Info("ブラウザで認可を完了してください",
		slog.String("consent_url", consentURL),
	)

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case res := <-s.result:
		if res.err != nil {
			return model.Credential{}, res.err
		}
		f.logger.Info("認可ハンドシェイクが完了しました",
			slog.Time("expires_at", res.credential.ExpiresAt),
		)
		return res.credential, nil
	case <-timer.C:
		f.logger.Warn("認可ハンドシェイクがタイムアウトしました",
			slog.Duration("timeout", f.timeout),
		)
		return model.Credential{}, model.ErrAuthTimeout
	case <-ctx.Done():
		return model.Credential{}, ctx.Err()
	}
}

// consentURL はプロバイダーの同意画面URLを構築する。
func (f *Flow) consentURL(origin, state string) string {
	q := url.Values{}
	q.Set("client_id", f.clientID)
	q.Set("response_type", "token")
	q.Set("redirect_uri", origin+"/callback")
	q.Set("scope", consentScopes)
	q.Set("state", state)
	return f.authURL + "?" + q.Encode()
}

// currentOrigin は実行中ハンドシェイクのコールバックオリジンを返す。
// 実行中でない場合は空文字列。
func (f *Flow) currentOrigin() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.origin
}

// newStateNonce はCSRF防止用のstateノンスを生成する。
func newStateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// sessionResult はハンドシェイク1回分の結果。
type sessionResult struct {
	credential model.Credential
	err        error
}

// session は実行中のハンドシェイク1回分の状態を保持する。
// 最初に届いた結果のみを採用し、以降の配送は無視する。
type session struct {
	state  string
	origin string
	logger *slog.Logger
	result chan sessionResult
	once   sync.Once
	now    func() time.Time
}

// deliver は結果を1回だけ配送する。
func (s *session) deliver(res sessionResult) {
	s.once.Do(func() {
		s.result <- res
	})
}

// tokenPayload は中継ページから届くトークンメッセージ。
type tokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	State       string `json:"state"`
}

// handleCallback はプロバイダーからのリダイレクトを受ける。
// エラーパラメータ付きのリダイレクトは認可拒否として扱う。
// 正常系ではフラグメント中継ページを返す。トークンはURLフラグメントで
// 届くためサーバー側からは見えず、ページ内スクリプトが /token へ転送する。
func (s *session) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		description := r.URL.Query().Get("error_description")
		s.logger.Warn("プロバイダーが認可を拒否しました",
			slog.String("error", errParam),
			slog.String("description", description),
		)
		s.deliver(sessionResult{err: fmt.Errorf("%w: %s", model.ErrProviderDenied, errParam)})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, deniedPage)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, relayPage)
}

// handleToken は中継ページからのトークンメッセージを検証して受理する。
// オリジンまたはstateが一致しないメッセージは結果を確定させずに
// 黙って破棄する（ハンドシェイクは継続する）。
func (s *session) handleToken(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && origin != s.origin {
		s.logger.Warn("オリジン不一致のトークンメッセージを無視します",
			slog.String("origin", origin),
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload tokenPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.State != s.state {
		s.logger.Warn("state不一致のトークンメッセージを無視します")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if payload.AccessToken == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	lifetime := defaultTokenLifetime
	if payload.ExpiresIn > 0 {
		lifetime = time.Duration(payload.ExpiresIn) * time.Second
	}

	s.deliver(sessionResult{credential: model.Credential{
		AccessToken: payload.AccessToken,
		ExpiresAt:   s.now().Add(lifetime),
	}})

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleCancel はユーザーによる認可の中断を受ける。
func (s *session) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("ユーザーが認可をキャンセルしました")
	s.deliver(sessionResult{err: model.ErrUserCancelled})
	w.WriteHeader(http.StatusOK)
}

// relayPage はURLフラグメントのトークンを /token へ転送する中継ページ。
const relayPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>接続処理中</title></head>
<body>
<p>接続処理中です。このウィンドウは自動的に閉じられます。</p>
<script>
(function () {
  var params = new URLSearchParams(window.location.hash.slice(1));
  var body = {
    access_token: params.get("access_token") || "",
    token_type: params.get("token_type") || "",
    expires_in: parseInt(params.get("expires_in") || "0", 10),
    state: params.get("state") || ""
  };
  fetch("/token", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify(body)
  }).then(function () {
    document.body.textContent = "接続が完了しました。このウィンドウを閉じてください。";
    window.close();
  }).catch(function () {
    document.body.textContent = "接続に失敗しました。ウィンドウを閉じて再度お試しください。";
  });
})();
</script>
</body>
</html>`

// deniedPage は認可拒否時に表示するページ。
const deniedPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>接続できませんでした</title></head>
<body><p>プロバイダーが認可を拒否しました。このウィンドウを閉じてください。</p></body>
</html>`
