package e2e

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-flashmob-registry/internal/api"
	"github.com/sanosuguru/go-flashmob-registry/internal/api/handler"
	"github.com/sanosuguru/go-flashmob-registry/internal/api/middleware"
	"github.com/sanosuguru/go-flashmob-registry/internal/application"
	"github.com/sanosuguru/go-flashmob-registry/internal/infrastructure/memory"
)

// TestServer はE2Eテスト用の完全に組み上げたサーバー
// ストアはインメモリ、時計はフェイククロックで外部依存なしに全ルートを通す
type TestServer struct {
	Echo  *echo.Echo
	Clock clockwork.FakeClock
	Store *memory.Store
}

// baseTime はテストの基準時刻
var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// NewTestServer はテスト用サーバーを作成する（テストごとに独立したストア）
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(baseTime)
	registryService := application.NewRegistryService(store, store, store, nil, nil, nil, clock)

	eventHandler := handler.NewEventHandler(registryService)
	participationHandler := handler.NewParticipationHandler(registryService)
	notificationHandler := handler.NewNotificationHandler(registryService)
	healthHandler := handler.NewHealthHandler()

	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)

	handler.RegisterRoutes(e, eventHandler, participationHandler, notificationHandler, healthHandler)

	return &TestServer{Echo: e, Clock: clock, Store: store}
}

// Advance はフェイククロックを進める
func (s *TestServer) Advance(d time.Duration) {
	s.Clock.Advance(d)
}

// Request はHTTPリクエストを実行する
func (s *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// asUser はX-User-IDヘッダーを作る
func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}
