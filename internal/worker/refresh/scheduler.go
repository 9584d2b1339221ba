package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/repository"
)

// SubjectRefresherService は対象更新の実行インターフェース。
type SubjectRefresherService interface {
	// Refresh は指定対象の時間割を強制再取得してマージする。
	Refresh(ctx context.Context, subject *model.Subject) error
}

// Scheduler は時間割更新のスケジューリングと並列制御を行う。
// 定期ティッカーで更新対象（最終更新が閾値より古い非カスタム対象）を取得し、
// semaphoreパターンで最大並列数を制御しながら更新を実行する。
type Scheduler struct {
	subjectRepo    repository.SubjectRepository
	refresher      SubjectRefresherService
	logger         *slog.Logger
	threshold      time.Duration
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	subjectRepo repository.SubjectRepository,
	refresher SubjectRefresherService,
	logger *slog.Logger,
	threshold time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		subjectRepo:    subjectRepo,
		refresher:      refresher,
		logger:         logger,
		threshold:      threshold,
		maxConcurrency: maxConcurrency,
	}
}

// Start は定期ティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("更新スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("threshold", s.threshold),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("更新サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("更新スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("更新サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は更新対象を1回取得し、並列で更新を実行する。
// 個別対象の失敗はログに記録するだけでサイクル全体は止めない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	olderThan := start.Add(-s.threshold)
	subjects, err := s.subjectRepo.ListRefreshable(ctx, olderThan)
	if err != nil {
		return err
	}

	if len(subjects) == 0 {
		s.logger.Info("更新対象はありません")
		return nil
	}

	s.logger.Info("更新サイクルを開始します",
		slog.Int("subject_count", len(subjects)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, subject := range subjects {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(subj *model.Subject) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.refresher.Refresh(ctx, subj); err != nil {
				s.logger.Error("対象の更新に失敗しました",
					slog.Int64("subject_id", subj.ID),
					slog.String("api_id", subj.APIID),
					slog.String("error", err.Error()),
				)
			}
		}(subject)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("更新サイクルが完了しました",
		slog.Int("subject_count", len(subjects)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
