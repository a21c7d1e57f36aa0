// storage определяет контракты долговременного хранения для poster-service.
package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/go-news-poster/internal/models"
)

var (
	// ErrNotFound — снапшот отсутствует (первый запуск).
	ErrNotFound = errors.New("not found")
)

// Snapshot описывает снапшотную персистентность истории:
// полная загрузка на старте, полная перезапись при сбросе.
// Частичных записей контракт не предполагает.
type Snapshot interface {
	// Load читает все записи истории. Если снапшота ещё нет — ErrNotFound.
	Load(ctx context.Context) ([]models.HistoryRecord, error)
	// Save атомарно перезаписывает снапшот целиком.
	Save(ctx context.Context, records []models.HistoryRecord) error
}

// StatusWriter выгружает произвольную сводку состояния для внешнего опроса.
type StatusWriter interface {
	// WriteStatus атомарно перезаписывает файл статуса.
	WriteStatus(ctx context.Context, status any) error
}
