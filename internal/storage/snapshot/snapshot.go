// snapshot реализует storage.Snapshot поверх единственного JSON-файла.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pribylovaa/go-news-poster/internal/models"
	"github.com/pribylovaa/go-news-poster/internal/storage"
)

// Store — файловое снапшот-хранилище.
//
// Особенности:
//   - запись атомарна: временный файл + rename;
//   - каталог создаётся при первом сохранении;
//   - формат — JSON-массив записей, читаемый целиком.
type Store struct {
	path       string
	statusPath string
}

// New создаёт хранилище с путями к файлу истории и файлу статуса.
func New(path, statusPath string) *Store {
	return &Store{path: path, statusPath: statusPath}
}

// Load читает весь снапшот истории.
// Отсутствие файла — storage.ErrNotFound (нормально для первого запуска).
func (s *Store) Load(_ context.Context) ([]models.HistoryRecord, error) {
	const op = "storage/snapshot/Load"

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var records []models.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return records, nil
}

// Save атомарно перезаписывает снапшот целиком.
func (s *Store) Save(_ context.Context, records []models.HistoryRecord) error {
	const op = "storage/snapshot/Save"

	if records == nil {
		records = []models.HistoryRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// WriteStatus атомарно перезаписывает файл статуса произвольной сводкой.
func (s *Store) WriteStatus(_ context.Context, status any) error {
	const op = "storage/snapshot/WriteStatus"

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	if err := writeAtomic(s.statusPath, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// writeAtomic пишет данные во временный файл рядом с целевым и делает rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}
