package security

import (
	"io"
	"net/http"
)

// limitedTransport はレスポンスボディの読み取りサイズを制限するRoundTripper。
type limitedTransport struct {
	base  http.RoundTripper
	limit int64
}

// RoundTrip はリクエストを送信し、ボディを上限サイズで打ち切って返す。
func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, t.limit), resp.Body}
	return resp, nil
}
