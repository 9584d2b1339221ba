// Package refresh は時間割のバックグラウンド更新処理を提供する。
// スケジューラと個別対象の更新実行、一時的エラーのリトライ戦略を含む。
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

const (
	// defaultMaxAttempts は1サイクル内での最大試行回数。
	defaultMaxAttempts = 3
	// defaultRetryDelay はリトライ間の基本遅延。試行ごとに2倍になる。
	defaultRetryDelay = 30 * time.Second
)

// Fetcher は大学APIからの時間割取得のインターフェース。
// fetch.Orchestratorが実装する。
type Fetcher interface {
	Fetch(ctx context.Context, name, apiID string, subjectType model.SubjectType, targetID int64, force bool) (*model.SubjectSchedule, bool, error)
}

// Applier は取得した時間割を保存済み内容とマージして永続化するインターフェース。
// merge.Mergerが実装する。
type Applier interface {
	Apply(ctx context.Context, fresh *model.SubjectSchedule) error
}

// Refresher は1つの追跡対象のバックグラウンド更新を実行する。
// ネットワーク・タイムアウトの一時的エラーは指数バックオフでリトライする。
type Refresher struct {
	fetcher Fetcher
	applier Applier
	logger  *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
func NewRefresher(fetcher Fetcher, applier Applier, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher:     fetcher,
		applier:     applier,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

// Refresh は対象の時間割を強制再取得してマージする。
// バックグラウンド更新では失敗してもユーザーに通知せず、ログにのみ記録する。
func (r *Refresher) Refresh(ctx context.Context, subject *model.Subject) error {
	fresh, err := r.fetchWithRetry(ctx, subject)
	if err != nil {
		return err
	}

	fresh.Subject.ID = subject.ID
	fresh.Subject.IsDefault = subject.IsDefault
	for _, sched := range fresh.Schedules {
		sched.SubjectID = subject.ID
	}

	return r.applier.Apply(ctx, fresh)
}

// fetchWithRetry は一時的エラーの場合のみリトライしながらフェッチする。
// HTTPエラーやデータ不正は即座に諦める。
func (r *Refresher) fetchWithRetry(ctx context.Context, subject *model.Subject) (*model.SubjectSchedule, error) {
	delay := r.retryDelay

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		fresh, _, err := r.fetcher.Fetch(ctx, subject.Name, subject.APIID, subject.Type, subject.ID, true)
		if err == nil {
			return fresh, nil
		}
		lastErr = err

		if !model.IsRetryable(err) || attempt == r.maxAttempts {
			break
		}

		r.logger.Warn("一時的エラーのためリトライします",
			slog.Int64("subject_id", subject.ID),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastErr
}
