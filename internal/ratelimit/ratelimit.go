// ratelimit реализует лимитер запросов на независимых скользящих окнах
// с отдельным экспоненциальным бэкоффом по последовательным сбоям.
package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pribylovaa/go-news-poster/internal/config"
)

// Статусы здоровья лимитера.
const (
	StatusHealthy   = "healthy"
	StatusWarning   = "warning"
	StatusUnhealthy = "unhealthy"
)

// Decision — решение о допуске запроса.
type Decision struct {
	// Allowed — true, если все окна типа под лимитом.
	Allowed bool
	// Reason — имя первого нарушенного окна ("" при Allowed).
	Reason string
	// WaitTime — время до освобождения нарушенного окна.
	WaitTime time.Duration
}

// TypeStats — сводка по одному типу запросов.
type TypeStats struct {
	// Windows — занятость окон: имя -> count/limit.
	Windows map[string]string `json:"windows"`
	// Usage — максимальная относительная занятость окон.
	Usage float64 `json:"usage"`
	// Status — производный статус здоровья.
	Status string `json:"status"`
	// ConsecutiveFailures — длина текущей серии сбоев.
	ConsecutiveFailures int `json:"consecutive_failures"`
	// Backoff — текущая задержка бэкоффа.
	Backoff time.Duration `json:"backoff"`
}

// window — одно скользящее окно с отметками времени событий.
// Устаревшие события вычищаются лениво перед каждым чтением.
type window struct {
	name     string
	duration time.Duration
	limit    int
	events   []time.Time
}

// purge выбрасывает события старше длительности окна.
func (w *window) purge(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

// backoffState — счётчик последовательных сбоев для бэкоффа.
type backoffState struct {
	consecutiveFailures int
	lastFailureAt       time.Time
}

// Limiter — лимитер запросов по типам.
//
// Особенности:
//   - каждый тип управляется собственным набором окон, окна проверяются
//     от короткого к длинному;
//   - RecordRequest пишет событие во все окна типа независимо от исхода,
//     исход влияет только на счётчик бэкоффа;
//   - потокобезопасен.
type Limiter struct {
	mu       sync.Mutex
	types    map[string][]*window
	backoffs map[string]*backoffState

	backoffBase    time.Duration
	backoffMax     time.Duration
	warnUsage      float64
	unhealthyUsage float64

	now func() time.Time
}

// New создаёт лимитер из конфигурации.
func New(cfg config.RateLimitConfig) *Limiter {
	types := make(map[string][]*window, len(cfg.Types))
	for typ, windows := range cfg.Types {
		ws := make([]*window, 0, len(windows))
		for _, w := range windows {
			ws = append(ws, &window{name: w.Name, duration: w.Duration, limit: w.Limit})
		}
		sort.Slice(ws, func(i, j int) bool { return ws[i].duration < ws[j].duration })
		types[typ] = ws
	}

	warn := cfg.WarnUsage
	if warn <= 0 {
		warn = 0.8
	}
	unhealthy := cfg.UnhealthyUsage
	if unhealthy <= 0 {
		unhealthy = 0.9
	}

	return &Limiter{
		types:          types,
		backoffs:       make(map[string]*backoffState),
		backoffBase:    cfg.BackoffBase,
		backoffMax:     cfg.BackoffMax,
		warnUsage:      warn,
		unhealthyUsage: unhealthy,
		now:            time.Now,
	}
}

// CheckLimit решает, допустим ли запрос данного типа.
// Тип без настроенных окон не ограничивается.
func (l *Limiter) CheckLimit(typ string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, w := range l.types[typ] {
		w.purge(now)
		if len(w.events) < w.limit {
			continue
		}

		wait := w.duration - now.Sub(w.events[0])
		if wait < 0 {
			wait = 0
		}
		return Decision{
			Allowed:  false,
			Reason:   fmt.Sprintf("%s window limit reached (%d/%d)", w.name, len(w.events), w.limit),
			WaitTime: wait,
		}
	}

	return Decision{Allowed: true}
}

// RecordRequest фиксирует событие во всех окнах типа.
// Успех сбрасывает серию сбоев, неуспех — наращивает её.
func (l *Limiter) RecordRequest(typ string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, w := range l.types[typ] {
		w.events = append(w.events, now)
	}

	bs := l.backoffs[typ]
	if bs == nil {
		bs = &backoffState{}
		l.backoffs[typ] = bs
	}

	if success {
		bs.consecutiveFailures = 0
		return
	}

	bs.consecutiveFailures++
	bs.lastFailureAt = now
}

// WaitTime возвращает время до допуска запроса типа (0, если допуск есть).
func (l *Limiter) WaitTime(typ string) time.Duration {
	return l.CheckLimit(typ).WaitTime
}

// BackoffTime возвращает текущую задержку бэкоффа для типа:
// base·2^(failures-1), с потолком; 0 без сбоев.
func (l *Limiter) BackoffTime(typ string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.backoffLocked(typ)
}

func (l *Limiter) backoffLocked(typ string) time.Duration {
	bs := l.backoffs[typ]
	if bs == nil || bs.consecutiveFailures == 0 {
		return 0
	}

	backoff := l.backoffBase
	for i := 1; i < bs.consecutiveFailures; i++ {
		backoff *= 2
		if l.backoffMax > 0 && backoff >= l.backoffMax {
			return l.backoffMax
		}
	}

	if l.backoffMax > 0 && backoff > l.backoffMax {
		backoff = l.backoffMax
	}
	return backoff
}

// GetStats возвращает сводку по всем типам.
func (l *Limiter) GetStats() map[string]TypeStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[string]TypeStats, len(l.types))

	for typ, windows := range l.types {
		stats := TypeStats{Windows: make(map[string]string, len(windows))}

		for _, w := range windows {
			w.purge(now)
			stats.Windows[w.name] = fmt.Sprintf("%d/%d", len(w.events), w.limit)
			if usage := float64(len(w.events)) / float64(w.limit); usage > stats.Usage {
				stats.Usage = usage
			}
		}

		stats.Status = l.statusFor(stats.Usage)
		if bs := l.backoffs[typ]; bs != nil {
			stats.ConsecutiveFailures = bs.consecutiveFailures
		}
		stats.Backoff = l.backoffLocked(typ)

		out[typ] = stats
	}

	return out
}

// GetHealth возвращает худший статус среди всех типов.
func (l *Limiter) GetHealth() string {
	worst := StatusHealthy
	for _, stats := range l.GetStats() {
		switch stats.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusWarning:
			worst = StatusWarning
		}
	}
	return worst
}

// statusFor переводит занятость в статус здоровья.
func (l *Limiter) statusFor(usage float64) string {
	switch {
	case usage >= l.unhealthyUsage:
		return StatusUnhealthy
	case usage >= l.warnUsage:
		return StatusWarning
	default:
		return StatusHealthy
	}
}
