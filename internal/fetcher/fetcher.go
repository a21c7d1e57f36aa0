// fetcher загружает и разбирает RSS/Atom-ленты источников,
// приводя элементы к доменной модели за один проход.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"

	"github.com/pribylovaa/go-news-poster/internal/pkg/log"
)

// Fetcher — загрузчик лент.
//
// Особенности:
//   - все опциональные поля элемента разрешаются здесь один раз;
//     дальше по пайплайну идёт заполненная models.FeedItem;
//   - битые отдельные элементы пропускаются, а не валят весь источник;
//   - сетевая ошибка/ошибка разбора — одна ошибка на источник.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// New создаёт Fetcher. При nil-клиенте используется клиент с таймаутом из конфига.
func New(client *http.Client, cfg config.FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Fetcher{client: client, timeout: timeout}
}

// Fetch загружает один источник и возвращает его элементы.
func (f *Fetcher) Fetch(ctx context.Context, src config.SourceConfig) ([]models.FeedItem, error) {
	const op = "fetcher/Fetch"

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = f.client

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: source %s: %w", op, src.ID, err)
	}

	lg := log.From(ctx)

	items := make([]models.FeedItem, 0, len(feed.Items))
	skipped := 0
	for _, entry := range feed.Items {
		item, ok := resolveItem(entry, src)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}

	if skipped > 0 {
		lg.Warn("fetch_items_skipped",
			slog.String("op", op),
			slog.String("source", src.ID),
			slog.Int("skipped", skipped),
		)
	}

	return items, nil
}

// resolveItem переводит запись ленты в доменную модель.
// Запись без заголовка и без ссылки считается битой и пропускается.
func resolveItem(entry *gofeed.Item, src config.SourceConfig) (models.FeedItem, bool) {
	if entry == nil {
		return models.FeedItem{}, false
	}

	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" && link == "" {
		return models.FeedItem{}, false
	}

	body := strings.TrimSpace(entry.Description)
	if body == "" {
		body = strings.TrimSpace(entry.Content)
	}

	category := src.Category
	if len(entry.Categories) > 0 && strings.TrimSpace(entry.Categories[0]) != "" {
		category = strings.TrimSpace(entry.Categories[0])
	}

	var published time.Time
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		published = entry.UpdatedParsed.UTC()
	}

	return models.FeedItem{
		Title:       title,
		Body:        body,
		Link:        link,
		SourceID:    src.ID,
		Category:    category,
		PublishedAt: published,
	}, true
}
