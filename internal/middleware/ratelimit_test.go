package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// テスト用の小さいレート設定を返す。
func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1), // 1 req/sec
		GeneralBurst:    2,
		RefreshRate:     rate.Limit(1),
		RefreshBurst:    1,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// バースト内のリクエストは通過し、超過すると429になることを検証する。
func TestGeneralMiddleware_Limits(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	doRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/subjects", nil)
		req.RemoteAddr = "203.0.113.1:50000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// バースト2まで通過
	for i := 0; i < 2; i++ {
		if rec := doRequest(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	// 3回目は制限される
	rec := doRequest()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されていない")
	}
}

// クライアントIPごとに独立して制限されることを検証する。
func TestGeneralMiddleware_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	doRequest := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/subjects", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// クライアント1のバーストを使い切る
	doRequest("203.0.113.1:50000")
	doRequest("203.0.113.1:50000")
	if code := doRequest("203.0.113.1:50000"); code != http.StatusTooManyRequests {
		t.Fatalf("client1 status = %d, want 429", code)
	}

	// クライアント2は影響を受けない
	if code := doRequest("203.0.113.2:50000"); code != http.StatusOK {
		t.Errorf("client2 status = %d, want 200", code)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

// 手動更新の制限がAPI全般と独立していることを検証する。
func TestRefreshMiddleware_IndependentBucket(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	refresh := rl.RefreshMiddleware()(okHandler())

	doRequest := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodPost, "/api/subjects/1/refresh", nil)
		req.RemoteAddr = "203.0.113.1:50000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// 更新はバースト1で制限される
	if code := doRequest(refresh); code != http.StatusOK {
		t.Fatalf("refresh 1: status = %d, want 200", code)
	}
	if code := doRequest(refresh); code != http.StatusTooManyRequests {
		t.Fatalf("refresh 2: status = %d, want 429", code)
	}

	// API全般のバケットはまだ空いている
	if code := doRequest(general); code != http.StatusOK {
		t.Errorf("general status = %d, want 200", code)
	}
}

// X-Forwarded-Forの先頭がクライアントIPとして使われることを検証する。
func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"RemoteAddrのみ", "203.0.113.1:50000", "", "203.0.113.1"},
		{"X-Forwarded-For単一", "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"X-Forwarded-For複数", "10.0.0.1:80", "198.51.100.7, 10.0.0.2", "198.51.100.7"},
		{"ポートなしRemoteAddr", "203.0.113.1", "", "203.0.113.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

// 期限切れエントリがクリーンアップされることを検証する。
func TestRateLimiter_Cleanup(t *testing.T) {
	config := testRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	rl.getOrCreateGeneralLimiter("203.0.113.1")

	// lastAccessを過去に巻き戻してクリーンアップ対象にする
	rl.generalMu.Lock()
	rl.generalLimiters["203.0.113.1"].lastAccess = time.Now().Add(-time.Hour)
	rl.generalMu.Unlock()

	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", rl.GeneralLimiterCount())
	}
}
