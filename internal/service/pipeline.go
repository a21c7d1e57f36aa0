package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"

	"github.com/pribylovaa/go-news-poster/internal/pkg/log"
)

// titleFragmentLen — длина фрагмента заголовка в диагностических логах.
const titleFragmentLen = 48

// RunCycle выполняет один полный проход пайплайна по всем источникам.
//
// Для каждого источника: загрузка -> по элементам: скоринг -> порог/исключение ->
// проверка дубликата -> компоновка -> допуск лимитера -> публикация -> запись
// в историю. Каждый настроенный источник обрабатывается ровно один раз за цикл;
// сбои элементов и источников изолируются и попадают только в счётчики сводки.
func (s *Service) RunCycle(ctx context.Context) models.CycleResult {
	const op = "service/pipeline/RunCycle"

	lg := log.From(ctx)
	started := time.Now()

	var res models.CycleResult

	lg.Info("cycle_start",
		slog.String("op", op),
		slog.Int("sources", len(s.cfg.Fetcher.Sources)),
	)

	for i, src := range s.cfg.Fetcher.Sources {
		if ctx.Err() != nil {
			break
		}

		if err := s.processSource(ctx, src, &res); err != nil {
			res.SourcesFailed++
			lg.Warn("source_failed",
				slog.String("op", op),
				slog.String("source", src.ID),
				slog.String("err", err.Error()),
			)
		} else {
			res.SourcesProcessed++
		}

		if i < len(s.cfg.Fetcher.Sources)-1 {
			sleepCtx(ctx, s.cfg.Delays.InterSource)
		}
	}

	res.Duration = time.Since(started)
	s.setLastCycle(res)

	lg.Info("cycle_done",
		slog.String("op", op),
		slog.Int("sources_processed", res.SourcesProcessed),
		slog.Int("sources_failed", res.SourcesFailed),
		slog.Int("items_scored", res.ItemsScored),
		slog.Int("items_duplicate", res.ItemsDuplicate),
		slog.Int("items_posted", res.ItemsPosted),
		slog.Int("items_failed", res.ItemsFailed),
		slog.Duration("duration", res.Duration),
	)

	return res
}

// processSource обрабатывает один источник. Ошибка загрузки — одна ошибка
// на источник; сбои отдельных элементов изолируются внутри.
func (s *Service) processSource(ctx context.Context, src config.SourceConfig, res *models.CycleResult) error {
	const op = "service/pipeline/processSource"

	items, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}

	if len(items) > s.cfg.Fetcher.MaxItemsPerSource {
		items = items[:s.cfg.Fetcher.MaxItemsPerSource]
	}

	lg := log.From(ctx)

	for i, item := range items {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.processItem(ctx, item, res); err != nil {
			res.ItemsFailed++
			lg.Warn("item_failed",
				slog.String("op", op),
				slog.String("source", src.ID),
				slog.String("title", titleFragment(item.Title)),
				slog.String("err", err.Error()),
			)
		}

		if i < len(items)-1 {
			sleepCtx(ctx, s.cfg.Delays.InterItem)
		}
	}

	return nil
}

// processItem проводит один элемент через все стадии пайплайна.
func (s *Service) processItem(ctx context.Context, item models.FeedItem, res *models.CycleResult) error {
	const op = "service/pipeline/processItem"

	lg := log.From(ctx)

	scored := s.scorer.Score(item)
	res.ItemsScored++

	if scored.Excluded || scored.Score < s.cfg.Scorer.Threshold {
		lg.Debug("item_filtered",
			slog.String("op", op),
			slog.String("source", item.SourceID),
			slog.String("title", titleFragment(item.Title)),
			slog.Float64("score", scored.Score),
			slog.Bool("excluded", scored.Excluded),
		)
		return nil
	}

	if s.history.IsDuplicate(item.Text()) {
		res.ItemsDuplicate++
		lg.Debug("item_duplicate",
			slog.String("op", op),
			slog.String("source", item.SourceID),
			slog.String("title", titleFragment(item.Title)),
		)
		return nil
	}

	post, err := s.composer.Compose(scored)
	if err != nil {
		return err
	}

	decision := s.limiter.CheckLimit(requestTypePosts)
	if !decision.Allowed {
		// Допуска нет — элемент пропускается, цикл не блокируется.
		lg.Info("item_rate_limited",
			slog.String("op", op),
			slog.String("source", item.SourceID),
			slog.String("reason", decision.Reason),
			slog.Duration("wait", decision.WaitTime),
		)
		return nil
	}

	result, pubErr := s.publisher.Publish(ctx, post)
	s.limiter.RecordRequest(requestTypePosts, result.Success)

	// Запись создаётся на каждую попытку публикации: неуспешный пост
	// тоже фиксируется, чтобы тот же текст не уходил в повторную попытку.
	s.history.Record(models.HistoryRecord{
		Text:     item.Text(),
		Source:   item.SourceID,
		Category: item.Category,
		Posted:   result.Success,
	})

	if pubErr != nil {
		return pubErr
	}

	res.ItemsPosted++
	lg.Info("item_posted",
		slog.String("op", op),
		slog.String("source", item.SourceID),
		slog.String("title", titleFragment(item.Title)),
		slog.String("external_id", result.ExternalID),
		slog.Float64("engagement", post.EngagementScore),
	)

	return nil
}

// titleFragment возвращает усечённый заголовок для логов.
func titleFragment(title string) string {
	runes := []rune(title)
	if len(runes) <= titleFragmentLen {
		return title
	}
	return string(runes[:titleFragmentLen]) + "…"
}

// sleepCtx — пауза, прерываемая отменой контекста.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
