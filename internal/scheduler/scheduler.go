// scheduler реализует периодические задачи поверх нативных таймеров:
// cron-выражение задаёт расписание, пересечение запусков одной задачи запрещено.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pribylovaa/go-news-poster/internal/pkg/log"
)

// parser — разбор стандартных пятипольных cron-выражений.
// Библиотека используется только для вычисления следующего срабатывания;
// цикл запуска, single-flight и остановка — собственные.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Task — тело периодической задачи.
type Task func(ctx context.Context)

// job — одна зарегистрированная задача.
type job struct {
	name     string
	schedule cron.Schedule
	task     Task
	// running — single-flight-флаг: true, пока выполняется запуск задачи.
	running atomic.Bool
}

// Runner — планировщик задач.
//
// Особенности:
//   - разные задачи исполняются независимо и могут пересекаться между собой;
//   - пересекающийся запуск той же задачи пропускается и логируется,
//     в очередь не ставится;
//   - остановка прекращает планирование и дожидается активных запусков.
type Runner struct {
	mu   sync.Mutex
	jobs []*job
	wg   sync.WaitGroup
}

// NewRunner создаёт пустой планировщик.
func NewRunner() *Runner {
	return &Runner{}
}

// Add регистрирует задачу с cron-выражением.
// Вызывается до Start; невалидное выражение — ошибка.
func (r *Runner) Add(name, expr string, task Task) error {
	const op = "scheduler/Add"

	schedule, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("%s: job %s: invalid cron expression %q: %w", op, name, expr, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, &job{name: name, schedule: schedule, task: task})

	return nil
}

// Start запускает планирование всех задач до отмены контекста.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	jobs := r.jobs
	r.mu.Unlock()

	for _, j := range jobs {
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
}

// Wait блокируется до завершения планирования и всех активных запусков.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// loop — цикл планирования одной задачи.
func (r *Runner) loop(ctx context.Context, j *job) {
	const op = "scheduler/loop"

	defer r.wg.Done()

	lg := log.From(ctx)

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !j.running.CompareAndSwap(false, true) {
			lg.Warn("job_overlap_skipped",
				slog.String("op", op),
				slog.String("job", j.name),
			)
			continue
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer j.running.Store(false)

			started := time.Now()
			j.task(ctx)

			lg.Debug("job_finished",
				slog.String("op", op),
				slog.String("job", j.name),
				slog.Duration("took", time.Since(started)),
			)
		}()
	}
}

// RunNow выполняет задачу по имени вне расписания с тем же single-flight-контрактом.
// Возвращает false, если задача не найдена или уже выполняется.
func (r *Runner) RunNow(ctx context.Context, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, j := range r.jobs {
		if j.name != name {
			continue
		}
		if !j.running.CompareAndSwap(false, true) {
			return false
		}

		r.wg.Add(1)
		go func(j *job) {
			defer r.wg.Done()
			defer j.running.Store(false)
			j.task(ctx)
		}(j)

		return true
	}

	return false
}
