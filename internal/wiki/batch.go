package wiki

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ministers/internal/metrics"
	"github.com/hitoshi/ministers/internal/model"
	"github.com/hitoshi/ministers/internal/repository"
)

// SummaryFetcher は大臣の要約取得のインターフェース。
// テスト時にモックに差し替え可能。
type SummaryFetcher interface {
	Fetch(ctx context.Context, m model.Minister) (*model.WikiSummary, error)
}

// BatchConfig はバッチジョブの設定パラメータ。
type BatchConfig struct {
	// BatchInterval はバッチジョブの実行間隔（デフォルト: 30分）。
	BatchInterval time.Duration
	// APIInterval はAPI呼び出しの最低間隔（デフォルト: 2秒）。
	APIInterval time.Duration
	// MaxCallsPerCycle は1サイクルあたりの最大取得件数（デフォルト: 50）。
	MaxCallsPerCycle int
	// TTL は要約の再取得間隔（デフォルト: 7日）。
	TTL time.Duration
}

// DefaultBatchConfig はデフォルトのバッチジョブ設定を返す。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchInterval:    30 * time.Minute,
		APIInterval:      2 * time.Second,
		MaxCallsPerCycle: 50,
		TTL:              7 * 24 * time.Hour,
	}
}

// BatchJob はWikipedia要約キャッシュの定期更新ジョブ。
// 要約が未取得、またはTTLを経過した大臣を対象に要約を取得して保存する。
type BatchJob struct {
	wikiRepo          repository.WikiRepository
	fetcher           SummaryFetcher
	metrics           metrics.MetricsCollector
	logger            *slog.Logger
	config            BatchConfig
	consecutiveErrors int
	backoffUntil      time.Time
}

// NewBatchJob はBatchJobの新しいインスタンスを生成する。collectorはnil可。
func NewBatchJob(
	wikiRepo repository.WikiRepository,
	fetcher SummaryFetcher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config BatchConfig,
) *BatchJob {
	return &BatchJob{
		wikiRepo: wikiRepo,
		fetcher:  fetcher,
		metrics:  collector,
		logger:   logger,
		config:   config,
	}
}

// Start はバッチジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (b *BatchJob) Start(ctx context.Context) {
	ticker := time.NewTicker(b.config.BatchInterval)
	defer ticker.Stop()

	b.logger.Info("Wikipedia要約バッチジョブを開始しました",
		slog.Duration("batch_interval", b.config.BatchInterval),
		slog.Duration("api_interval", b.config.APIInterval),
		slog.Int("max_calls_per_cycle", b.config.MaxCallsPerCycle),
	)

	// 起動直後に1回実行
	if err := b.RunOnce(ctx); err != nil {
		b.logger.Error("Wikipedia要約バッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Wikipedia要約バッチジョブを停止しました")
			return
		case <-ticker.C:
			if err := b.RunOnce(ctx); err != nil {
				b.logger.Error("Wikipedia要約バッチサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回のバッチサイクルを実行する。
// 取得に失敗した大臣は前回の要約を維持し、次回以降のサイクルで再試行する。
func (b *BatchJob) RunOnce(ctx context.Context) error {
	start := time.Now()

	if !b.backoffUntil.IsZero() && start.Before(b.backoffUntil) {
		b.logger.Info("Wikipedia要約バッチジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", b.backoffUntil),
		)
		return nil
	}

	targets, err := b.wikiRepo.ListNeedingFetch(ctx, start.Add(-b.config.TTL), b.config.MaxCallsPerCycle)
	if err != nil {
		return fmt.Errorf("要約取得対象の大臣の取得に失敗しました: %w", err)
	}
	if len(targets) == 0 {
		b.logger.Info("Wikipedia要約の取得対象はありません")
		return nil
	}

	b.logger.Info("Wikipedia要約バッチサイクルを開始します",
		slog.Int("target_ministers", len(targets)),
	)

	var callCount, storedCount, missingCount int
	var hadError bool

	for _, m := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if callCount >= b.config.MaxCallsPerCycle {
			b.logger.Info("1サイクルあたりの最大取得件数に達しました",
				slog.Int("call_count", callCount),
			)
			break
		}

		// API呼び出しインターバル（初回は待たない）
		if callCount > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.config.APIInterval):
			}
		}
		callCount++

		fetchStart := time.Now()
		summary, err := b.fetcher.Fetch(ctx, m)
		if b.metrics != nil {
			b.metrics.RecordWikiFetchLatency(time.Since(fetchStart))
		}
		if err != nil {
			b.logger.Error("Wikipedia要約の取得に失敗しました",
				slog.String("minister_id", m.ID),
				slog.String("error", err.Error()),
			)
			if b.metrics != nil {
				b.metrics.RecordWikiFetchFailure(m.ID, "error")
			}
			hadError = true
			b.consecutiveErrors++
			if backoff := b.calculateErrorBackoff(b.consecutiveErrors); backoff > 0 {
				b.backoffUntil = time.Now().Add(backoff)
				b.logger.Warn("連続エラーによりバックオフを適用します",
					slog.Int("consecutive_errors", b.consecutiveErrors),
					slog.Duration("backoff_duration", backoff),
				)
				break
			}
			continue
		}

		if summary.HTML == "" {
			missingCount++
			if b.metrics != nil {
				b.metrics.RecordWikiFetchFailure(m.ID, "not_found")
			}
		} else if b.metrics != nil {
			b.metrics.RecordWikiFetchSuccess(m.ID)
		}

		// 記事が見つからない場合も取得日時を記録し、TTL経過まで再取得しない
		if err := b.wikiRepo.Upsert(ctx, summary); err != nil {
			b.logger.Error("Wikipedia要約の保存に失敗しました",
				slog.String("minister_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		storedCount++
	}

	if !hadError {
		b.consecutiveErrors = 0
		b.backoffUntil = time.Time{}
	}

	b.logger.Info("Wikipedia要約バッチサイクルが完了しました",
		slog.Int("call_count", callCount),
		slog.Int("stored", storedCount),
		slog.Int("missing", missingCount),
		slog.Int("target_ministers", len(targets)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// calculateErrorBackoff は連続エラー回数に基づくバックオフ時間を計算する。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func (b *BatchJob) calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return 1 * time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
