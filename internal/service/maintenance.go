package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-news-poster/internal/history"
	"github.com/pribylovaa/go-news-poster/internal/models"
	"github.com/pribylovaa/go-news-poster/internal/ratelimit"
	"github.com/pribylovaa/go-news-poster/internal/scheduler"

	"github.com/pribylovaa/go-news-poster/internal/pkg/log"
)

// Имена периодических задач.
const (
	JobCycle  = "pipeline_cycle"
	JobPrune  = "history_prune"
	JobFlush  = "history_flush"
	JobStatus = "status_export"
)

// Status — сводка состояния сервиса для внешнего опроса.
type Status struct {
	GeneratedAt time.Time                      `json:"generated_at"`
	Cycles      int                            `json:"cycles"`
	LastCycle   cycleStatus                    `json:"last_cycle"`
	History     history.Stats                  `json:"history"`
	RateLimit   map[string]ratelimit.TypeStats `json:"ratelimit"`
	Health      string                         `json:"health"`
}

// cycleStatus — сериализуемая сводка цикла.
type cycleStatus struct {
	SourcesProcessed int   `json:"sources_processed"`
	SourcesFailed    int   `json:"sources_failed"`
	ItemsScored      int   `json:"items_scored"`
	ItemsDuplicate   int   `json:"items_duplicate"`
	ItemsPosted      int   `json:"items_posted"`
	ItemsFailed      int   `json:"items_failed"`
	DurationMs       int64 `json:"duration_ms"`
}

// RegisterJobs регистрирует все периодические задачи сервиса.
// Расписания берутся из конфигурации; задачи исполняются независимо,
// пересечение запусков одной задачи планировщик запрещает.
func (s *Service) RegisterJobs(runner *scheduler.Runner) error {
	const op = "service/maintenance/RegisterJobs"

	jobs := []struct {
		name string
		expr string
		task scheduler.Task
	}{
		{JobCycle, s.cfg.Jobs.Cycle, func(ctx context.Context) { s.RunCycle(ctx) }},
		{JobPrune, s.cfg.Jobs.Prune, s.pruneHistory},
		{JobFlush, s.cfg.Jobs.Flush, s.flushHistory},
		{JobStatus, s.cfg.Jobs.Status, s.exportStatus},
	}

	for _, j := range jobs {
		if err := runner.Add(j.name, j.expr, j.task); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// pruneHistory вычищает историю по возрасту и количеству.
func (s *Service) pruneHistory(ctx context.Context) {
	s.history.Prune(ctx)
}

// flushHistory сбрасывает снапшот истории.
// Ошибка записи логируется; dirty-состояние сохраняется, попытка
// повторится на следующем тике.
func (s *Service) flushHistory(ctx context.Context) {
	const op = "service/maintenance/flushHistory"

	if err := s.history.Flush(ctx); err != nil {
		log.From(ctx).Error("history_flush_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}

// exportStatus выгружает сводку состояния в файл статуса.
func (s *Service) exportStatus(ctx context.Context) {
	const op = "service/maintenance/exportStatus"

	if err := s.status.WriteStatus(ctx, s.Snapshot()); err != nil {
		log.From(ctx).Error("status_export_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}

// Snapshot собирает текущую сводку состояния сервиса.
func (s *Service) Snapshot() Status {
	last := s.LastCycle()

	return Status{
		GeneratedAt: time.Now().UTC(),
		Cycles:      s.Cycles(),
		LastCycle:   toCycleStatus(last),
		History:     s.history.GetStats(),
		RateLimit:   s.limiter.GetStats(),
		Health:      s.Health(),
	}
}

// Health возвращает агрегированный статус здоровья сервиса.
// Сейчас он определяется лимитером: переполненные окна — признак того,
// что публикация деградировала.
func (s *Service) Health() string {
	return s.limiter.GetHealth()
}

func toCycleStatus(res models.CycleResult) cycleStatus {
	return cycleStatus{
		SourcesProcessed: res.SourcesProcessed,
		SourcesFailed:    res.SourcesFailed,
		ItemsScored:      res.ItemsScored,
		ItemsDuplicate:   res.ItemsDuplicate,
		ItemsPosted:      res.ItemsPosted,
		ItemsFailed:      res.ItemsFailed,
		DurationMs:       res.Duration.Milliseconds(),
	}
}
