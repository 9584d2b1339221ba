// Package cleanup は孤児データの自動削除ジョブを提供する。
// event_extrasはイベントへの外部キーを持たないため、マージで削除された
// イベントのメモ・タグが残り続ける。日次バッチで回収する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OrphanDeleter は孤児EventExtraの削除を抽象化するインターフェース。
// repository.EventExtraRepository が実装する。
type OrphanDeleter interface {
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// CleanupJob は対応イベントが存在しなくなったメモ・タグの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	extras OrphanDeleter
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(extras OrphanDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		extras: extras,
		logger: logger,
	}
}

// Run は孤児になったEventExtraを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.extras.DeleteOrphaned(ctx)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("孤児メモ・タグのクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔でクリーンアップジョブを定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				// エラーはRun内でログ済み。次のティックで再試行する。
				continue
			}
		}
	}
}
