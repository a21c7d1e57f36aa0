// models содержит доменные сущности poster-сервиса.
// Эти типы используются слоями скоринга, истории, компоновки и публикации.
package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedItem — элемент ленты после разрешения всех опциональных полей.
//
// Особенности:
//   - все поля заполняются один раз на этапе загрузки (fetcher),
//     потребители не выполняют повторного разрешения;
//   - Временные метки — в UTC.
type FeedItem struct {
	// Title — заголовок материала.
	Title string
	// Body — текст материала (тизер или полное тело, без гарантий чистоты HTML).
	Body string
	// Link — ссылка на материал у источника.
	Link string
	// SourceID — идентификатор источника из конфигурации.
	SourceID string
	// Category — категория материала (первая категория источника либо категория источника из конфига).
	Category string
	// PublishedAt — время публикации у источника (UTC); нулевое значение, если источник его не отдал.
	PublishedAt time.Time
}

// Text возвращает сводный текст элемента для скоринга и дедупликации.
func (f FeedItem) Text() string {
	if f.Body == "" {
		return f.Title
	}
	return f.Title + " " + f.Body
}

// ScoredItem — элемент ленты с результатом скоринга релевантности.
type ScoredItem struct {
	Item FeedItem
	// Score — оценка релевантности в диапазоне [0, 5], округлена до 2 знаков.
	Score float64
	// MatchedKeywords — ключевые слова, совпавшие с текстом элемента.
	MatchedKeywords []string
	// Excluded — true, если сработало хотя бы одно exclude-правило.
	Excluded bool
}

// ComposedPost — готовый к публикации пост.
//
// Особенности:
//   - Text не превышает платформенный лимит длины;
//   - пост не хранится отдельно от своей HistoryRecord.
type ComposedPost struct {
	// Text — итоговый текст поста.
	Text string
	// Hashtags — выбранные хэштеги (уже включены в Text).
	Hashtags []string
	// SourceLink — исходная ссылка на материал.
	SourceLink string
	// EngagementScore — эвристическая оценка вовлечённости в [0, 1].
	EngagementScore float64
}

// HistoryRecord — запись истории обработанных элементов.
//
// Особенности:
//   - создаётся на каждую попытку компоновки;
//   - после создания меняются только статусные поля;
//   - Hash — дайджест нормализованного текста (см. пакет history).
type HistoryRecord struct {
	// ID — уникальный идентификатор записи (UUIDv4).
	ID uuid.UUID `json:"id"`
	// Text — исходный (ненормализованный) текст.
	Text string `json:"text"`
	// Hash — hex-дайджест нормализованного текста.
	Hash string `json:"hash"`
	// Timestamp — время создания записи (UTC).
	Timestamp time.Time `json:"timestamp"`
	// Source — идентификатор источника.
	Source string `json:"source"`
	// Posted — true, если публикация завершилась успехом.
	Posted bool `json:"posted"`
	// Category — категория элемента.
	Category string `json:"category"`
}

// CycleResult — сводка одного прохода пайплайна по всем источникам.
type CycleResult struct {
	SourcesProcessed int
	SourcesFailed    int
	ItemsScored      int
	ItemsDuplicate   int
	ItemsPosted      int
	ItemsFailed      int
	Duration         time.Duration
}
