package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/hitoshi/ministers/internal/logger"
)

// requestIDHeader はリクエストIDを伝播するヘッダー。
const requestIDHeader = "X-Request-ID"

// TokenSource は現在のアクセストークンを返す。匿名の場合は空文字。
type TokenSource interface {
	Token() string
}

// BearerRoundTripper はトークンがある場合のみAuthorizationヘッダーを付与する。
type BearerRoundTripper struct {
	next   http.RoundTripper
	tokens TokenSource
}

// NewBearerRoundTripper はBearerRoundTripperを生成する。
func NewBearerRoundTripper(next http.RoundTripper, tokens TokenSource) BearerRoundTripper {
	return BearerRoundTripper{next: next, tokens: tokens}
}

// RoundTrip はhttp.RoundTripperを実装する。
func (rt BearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.tokens != nil {
		if token := rt.tokens.Token(); token != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return rt.next.RoundTrip(req)
}

// LoggingRoundTripper はリクエストごとにIDを採番し、結果と所要時間を記録する。
// ボディはトークンや個人情報を含みうるため記録しない。
type LoggingRoundTripper struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// NewLoggingRoundTripper はLoggingRoundTripperを生成する。
func NewLoggingRoundTripper(next http.RoundTripper, l *slog.Logger) LoggingRoundTripper {
	if l == nil {
		l = slog.Default()
	}
	return LoggingRoundTripper{next: next, logger: l}
}

// RoundTrip はhttp.RoundTripperを実装する。
func (rt LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := xid.New().String()
	req = req.Clone(req.Context())
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		rt.logger.Warn("api request failed",
			slog.String("request_id", requestID),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int64("duration_ms", duration.Milliseconds()),
			logger.Err(err),
		)
		return nil, fmt.Errorf("next.RoundTrip: %w", err)
	}

	rt.logger.Debug("api request",
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)
	return resp, nil
}
