// Package fetch は大学APIからの時間割取得のオーケストレーションを提供する。
// 時間割リストの取得、時間割ごとの並列フェッチと正規化、
// 同一対象への重複フェッチのキャンセル制御を含む。
package fetch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/jikanwari/internal/metrics"
	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/repository"
	"github.com/hitoshi/jikanwari/internal/schedule"
	"github.com/hitoshi/jikanwari/internal/university"
)

// UniversityClient は大学APIクライアントのインターフェース。
type UniversityClient interface {
	FetchTimetables(ctx context.Context, apiID string, subjectType model.SubjectType) ([]*model.Timetable, error)
	FetchSchedule(ctx context.Context, apiID string, subjectType model.SubjectType, timetableID string) (*university.ScheduleDTO, error)
}

// ScheduleNormalizer は時間割内容の正規化のインターフェース。
type ScheduleNormalizer interface {
	Normalize(ctx context.Context, apiID string, timetable *model.Timetable, raw *university.ScheduleDTO) (*model.Schedule, error)
}

// Orchestrator は1つのSubjectに対するフェッチの全行程を実行する。
// 途中のどの時間割の取得・正規化が失敗しても全体を失敗として返す。
// 部分的な結果でマージを実行すると既存の時間割を誤って消すためである。
type Orchestrator struct {
	client     UniversityClient
	normalizer ScheduleNormalizer
	mapper     *schedule.Mapper
	subjects   repository.SubjectRepository
	schedules  repository.ScheduleRepository
	registry   *Registry
	collector  metrics.MetricsCollector
	logger     *slog.Logger
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	client UniversityClient,
	normalizer ScheduleNormalizer,
	mapper *schedule.Mapper,
	subjects repository.SubjectRepository,
	schedules repository.ScheduleRepository,
	registry *Registry,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		client:     client,
		normalizer: normalizer,
		mapper:     mapper,
		subjects:   subjects,
		schedules:  schedules,
		registry:   registry,
		collector:  collector,
		logger:     logger,
	}
}

// Fetch は対象の全時間割を取得し、正規化済みのSubjectScheduleを返す。
// forceがfalseで対象が既に保存されている場合は保存済みデータを返す
// （2番目の戻り値がtrue）。targetIDは既存SubjectのID（新規なら0）。
//
// 同じapiIDへのフェッチが進行中の場合、そのフェッチはキャンセルされ、
// このフェッチが優先される。
func (o *Orchestrator) Fetch(ctx context.Context, name, apiID string, subjectType model.SubjectType, targetID int64, force bool) (*model.SubjectSchedule, bool, error) {
	if !force {
		cached, err := o.loadStored(ctx, apiID)
		if err != nil {
			return nil, false, err
		}
		if cached != nil {
			o.logger.Info("保存済みの時間割を返します",
				slog.String("api_id", apiID),
				slog.Int64("subject_id", cached.Subject.ID),
			)
			return cached, true, nil
		}
	}

	ctx, entry := o.registry.Begin(ctx, apiID)
	defer o.registry.End(apiID, entry)

	start := time.Now()
	result, err := o.fetchAll(ctx, name, apiID, subjectType, targetID)
	o.collector.RecordFetchLatency(time.Since(start))

	if err != nil {
		o.collector.RecordFetchFailure(apiID, model.CodeOf(err))
		o.logger.Error("時間割のフェッチに失敗しました",
			slog.String("api_id", apiID),
			slog.String("code", model.CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, false, err
	}

	o.collector.RecordFetchSuccess(apiID)
	o.logger.Info("時間割のフェッチが完了しました",
		slog.String("api_id", apiID),
		slog.Int("schedule_count", len(result.Schedules)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, false, nil
}

// loadStored は保存済みのSubjectScheduleを取得する。未保存の場合はnilを返す。
func (o *Orchestrator) loadStored(ctx context.Context, apiID string) (*model.SubjectSchedule, error) {
	subject, err := o.subjects.FindByAPIID(ctx, apiID)
	if err != nil {
		return nil, model.NewUnexpectedError(err)
	}
	if subject == nil {
		return nil, nil
	}

	scheds, err := o.schedules.ListBySubjectID(ctx, subject.ID)
	if err != nil {
		return nil, model.NewUnexpectedError(err)
	}

	return &model.SubjectSchedule{Subject: subject, Schedules: scheds}, nil
}

// fetchAll は時間割リストを取得し、各時間割の内容を並列で取得・正規化する。
func (o *Orchestrator) fetchAll(ctx context.Context, name, apiID string, subjectType model.SubjectType, targetID int64) (*model.SubjectSchedule, error) {
	timetables, err := o.client.FetchTimetables(ctx, apiID, subjectType)
	if err != nil {
		return nil, err
	}
	if len(timetables) == 0 {
		return nil, model.NewEmptyBodyError("時間割リスト")
	}

	// 時間割ごとの取得・正規化を並列実行する。
	// 1つでも失敗したら残りをキャンセルして全体を失敗とする。
	results := make([]*model.Schedule, len(timetables))
	g, gctx := errgroup.WithContext(ctx)
	for i, tt := range timetables {
		g.Go(func() error {
			raw, err := o.client.FetchSchedule(gctx, apiID, subjectType, tt.ID)
			if err != nil {
				return err
			}
			sched, err := o.normalizer.Normalize(gctx, apiID, tt, raw)
			if err != nil {
				o.collector.RecordNormalizeFailure(apiID)
				return err
			}
			results[i] = sched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	subject := &model.Subject{
		ID:        targetID,
		Name:      name,
		ShortName: model.DeriveShortName(name, subjectType),
		APIID:     apiID,
		Type:      subjectType,
	}

	// 上流の並び順を保ったまま、イベントを持つ時間割だけを採用する。
	// デフォルトになれるのはリスト先頭の時間割だけで、先頭が空の場合に
	// 後続が繰り上がることはない（デフォルトなしのSubjectになる）。
	schedules := make([]*model.Schedule, 0, len(results))
	for i, sched := range results {
		if mapped := o.mapper.Map(sched, targetID, i); mapped != nil {
			schedules = append(schedules, mapped)
		}
	}

	// 全時間割が空でもSubject自体は有効（時間割なしとして扱う）
	return &model.SubjectSchedule{Subject: subject, Schedules: schedules}, nil
}
