// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordRatingSubmitted(channel string)
	RecordRatingUpdated()
	RecordCatalogQuery(duration time.Duration)
	RecordWikiFetchSuccess(ministerID string)
	RecordWikiFetchFailure(ministerID string, reason string)
	RecordWikiFetchLatency(duration time.Duration)
	RecordWikiPurged(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ratingsSubmitted *prometheus.CounterVec
	ratingsUpdated   prometheus.Counter
	catalogLatency   prometheus.Histogram
	wikiSuccess      prometheus.Counter
	wikiFail         *prometheus.CounterVec
	wikiLatency      prometheus.Histogram
	wikiPurged       prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ratingsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ministers_ratings_submitted_total",
			Help: "新規評価の合計数（認証チャネル別）",
		}, []string{"channel"}),
		ratingsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ministers_ratings_updated_total",
			Help: "評価編集の合計数",
		}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ministers_catalog_query_seconds",
			Help:    "カタログ一覧クエリのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		wikiSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ministers_wiki_fetch_success_total",
			Help: "Wikipedia要約取得成功の合計数",
		}),
		wikiFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ministers_wiki_fetch_fail_total",
			Help: "Wikipedia要約取得失敗の合計数",
		}, []string{"reason"}),
		wikiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ministers_wiki_fetch_latency_seconds",
			Help:    "Wikipedia要約取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		wikiPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ministers_wiki_purged_total",
			Help: "削除された要約キャッシュの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ministers_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.ratingsSubmitted,
		c.ratingsUpdated,
		c.catalogLatency,
		c.wikiSuccess,
		c.wikiFail,
		c.wikiLatency,
		c.wikiPurged,
		c.httpStatus,
	)

	return c
}

// RecordRatingSubmitted は新規評価を記録する。channelは"authenticated"または"anonymous"。
func (c *Collector) RecordRatingSubmitted(channel string) {
	c.ratingsSubmitted.WithLabelValues(channel).Inc()
}

// RecordRatingUpdated は評価編集を記録する。
func (c *Collector) RecordRatingUpdated() {
	c.ratingsUpdated.Inc()
}

// RecordCatalogQuery はカタログ一覧クエリのレイテンシを記録する。
func (c *Collector) RecordCatalogQuery(duration time.Duration) {
	c.catalogLatency.Observe(duration.Seconds())
}

// RecordWikiFetchSuccess は要約取得成功を記録する。
func (c *Collector) RecordWikiFetchSuccess(ministerID string) {
	c.wikiSuccess.Inc()
}

// RecordWikiFetchFailure は要約取得失敗を記録する。
func (c *Collector) RecordWikiFetchFailure(ministerID string, reason string) {
	c.wikiFail.WithLabelValues(reason).Inc()
}

// RecordWikiFetchLatency は要約取得のレイテンシを記録する。
func (c *Collector) RecordWikiFetchLatency(duration time.Duration) {
	c.wikiLatency.Observe(duration.Seconds())
}

// RecordWikiPurged は削除された要約キャッシュ数を記録する。
func (c *Collector) RecordWikiPurged(count int) {
	c.wikiPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
