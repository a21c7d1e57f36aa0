// history реализует хранилище истории обработанных элементов
// с O(1)-проверкой дубликатов по хэшу нормализованного текста.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"
	"github.com/pribylovaa/go-news-poster/internal/storage"

	"github.com/pribylovaa/go-news-poster/internal/pkg/log"
)

// RecordResult — результат попытки записи в историю.
type RecordResult struct {
	// Recorded — true, если запись создана.
	Recorded bool
	// Duplicate — true, если запись с таким хэшем уже существует.
	Duplicate bool
	// Existing — существующая запись при Duplicate=true.
	Existing *models.HistoryRecord
}

// Filter — параметры выборки записей истории.
type Filter struct {
	// Source — фильтр по источнику ("" — любой).
	Source string
	// Category — фильтр по категории ("" — любая).
	Category string
	// PostedOnly — только успешно опубликованные.
	PostedOnly bool
	// Since — только записи не старше указанного момента (нулевое значение — без ограничения).
	Since time.Time
	// Limit — максимум записей в ответе (0 — без ограничения).
	Limit int
}

// Stats — сводка состояния хранилища для внешнего опроса.
type Stats struct {
	Records   int       `json:"records"`
	Posted    int       `json:"posted"`
	Oldest    time.Time `json:"oldest,omitzero"`
	Newest    time.Time `json:"newest,omitzero"`
	Dirty     bool      `json:"dirty"`
	LastFlush time.Time `json:"last_flush,omitzero"`
}

// Store — хранилище истории.
//
// Особенности:
//   - записи держатся в памяти, индекс хэш->позиция перестраивается при загрузке
//     и после каждого вытеснения;
//   - на один нормализованный текст — не более одной живой записи;
//   - мутации выставляют dirty-флаг; Flush пишет снапшот только при dirty;
//   - потокобезопасен: пайплайн и задачи обслуживания обращаются конкурентно.
type Store struct {
	mu      sync.Mutex
	records []models.HistoryRecord
	index   map[string]int

	snap      storage.Snapshot
	retention time.Duration
	maxCount  int

	dirty     bool
	lastFlush time.Time

	now func() time.Time
}

// New создаёт хранилище и загружает снапшот.
//
// Записи без хэша (легаси-формат) получают его при загрузке.
// Отсутствие снапшота — не ошибка: хранилище стартует пустым.
func New(ctx context.Context, cfg config.HistoryConfig, snap storage.Snapshot) (*Store, error) {
	const op = "history/New"

	s := &Store{
		index:     make(map[string]int),
		snap:      snap,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		maxCount:  cfg.MaxRecords,
		now:       func() time.Time { return time.Now().UTC() },
	}

	records, err := snap.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	}

	backfilled := 0
	for _, rec := range records {
		if rec.Hash == "" {
			rec.Hash = HashText(rec.Text)
			backfilled++
			s.dirty = true
		}
		if _, ok := s.index[rec.Hash]; ok {
			// Снапшот с дублем нарушает инвариант — оставляем первую запись.
			s.dirty = true
			continue
		}
		s.index[rec.Hash] = len(s.records)
		s.records = append(s.records, rec)
	}

	log.From(ctx).Info("history_loaded",
		slog.String("op", op),
		slog.Int("records", len(s.records)),
		slog.Int("backfilled", backfilled),
	)

	return s, nil
}

// IsDuplicate отвечает, встречался ли уже такой нормализованный текст.
func (s *Store) IsDuplicate(text string) bool {
	hash := HashText(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.index[hash]
	return ok
}

// Record создаёт запись истории.
//
// Если запись с таким хэшем уже существует, возвращает Duplicate=true
// с существующей записью и ничего не меняет.
func (s *Store) Record(rec models.HistoryRecord) RecordResult {
	if rec.Hash == "" {
		rec.Hash = HashText(rec.Text)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.index[rec.Hash]; ok {
		existing := s.records[idx]
		return RecordResult{Duplicate: true, Existing: &existing}
	}

	s.index[rec.Hash] = len(s.records)
	s.records = append(s.records, rec)
	s.dirty = true

	return RecordResult{Recorded: true}
}

// Query возвращает записи, удовлетворяющие фильтру, от новых к старым.
func (s *Store) Query(f Filter) []models.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.HistoryRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if f.Source != "" && rec.Source != f.Source {
			continue
		}
		if f.Category != "" && rec.Category != f.Category {
			continue
		}
		if f.PostedOnly && !rec.Posted {
			continue
		}
		if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}

	return out
}

// Count возвращает число живых записей.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Prune вычищает записи по двум независимым порогам:
// возраст (retention) и верхняя граница количества (старейшие первыми).
// Возвращает число удалённых записей. Индекс перестраивается целиком.
func (s *Store) Prune(ctx context.Context) int {
	const op = "history/Prune"

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	cutoff := s.now().Add(-s.retention)

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept

	if len(s.records) > s.maxCount {
		// Порядок добавления не гарантирует порядок по времени — сортируем явно.
		sort.SliceStable(s.records, func(i, j int) bool {
			return s.records[i].Timestamp.Before(s.records[j].Timestamp)
		})
		s.records = append([]models.HistoryRecord(nil), s.records[len(s.records)-s.maxCount:]...)
	}

	removed := before - len(s.records)
	if removed > 0 {
		s.rebuildIndex()
		s.dirty = true

		log.From(ctx).Info("history_pruned",
			slog.String("op", op),
			slog.Int("removed", removed),
			slog.Int("remaining", len(s.records)),
		)
	}

	return removed
}

// Flush пишет снапшот, только если были изменения.
// Ошибка записи не фатальна: dirty-флаг сохраняется, попытка повторится
// на следующем тике обслуживания.
func (s *Store) Flush(ctx context.Context) error {
	const op = "history/Flush"

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	records := append([]models.HistoryRecord(nil), s.records...)
	s.mu.Unlock()

	if err := s.snap.Save(ctx, records); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	s.dirty = false
	s.lastFlush = s.now()
	s.mu.Unlock()

	log.From(ctx).Info("history_flushed",
		slog.String("op", op),
		slog.Int("records", len(records)),
	)

	return nil
}

// GetStats возвращает сводку состояния хранилища.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Records:   len(s.records),
		Dirty:     s.dirty,
		LastFlush: s.lastFlush,
	}

	for _, rec := range s.records {
		if rec.Posted {
			st.Posted++
		}
		if st.Oldest.IsZero() || rec.Timestamp.Before(st.Oldest) {
			st.Oldest = rec.Timestamp
		}
		if rec.Timestamp.After(st.Newest) {
			st.Newest = rec.Timestamp
		}
	}

	return st
}

// rebuildIndex перестраивает индекс хэш->позиция. Вызывается под mu.
func (s *Store) rebuildIndex() {
	s.index = make(map[string]int, len(s.records))
	for i, rec := range s.records {
		s.index[rec.Hash] = i
	}
}
