package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-poster/internal/composer"
	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/history"
	"github.com/pribylovaa/go-news-poster/internal/models"
	"github.com/pribylovaa/go-news-poster/internal/publisher"
	"github.com/pribylovaa/go-news-poster/internal/ratelimit"
	"github.com/pribylovaa/go-news-poster/internal/scorer"
	"github.com/pribylovaa/go-news-poster/internal/storage/snapshot"
	"github.com/pribylovaa/go-news-poster/mocks"
)

// testConfig — конфигурация пайплайна без пауз, с одним правилом "ai".
func testConfig(sources ...config.SourceConfig) config.Config {
	return config.Config{
		Fetcher: config.FetcherConfig{
			Sources:           sources,
			MaxItemsPerSource: 10,
		},
		Scorer: config.ScorerConfig{
			Rules: []config.RuleConfig{
				{Keyword: "ai", Priority: 3, Weight: 2, Active: true},
				{Keyword: "casino", Priority: 1, Weight: 1, Exclude: true, Active: true},
			},
			Threshold:    1.0,
			ExcludeFloor: 0.1,
		},
		History: config.HistoryConfig{RetentionDays: 30, MaxRecords: 100},
		Composer: config.ComposerConfig{
			MaxLength:   280,
			URLLength:   23,
			IncludeURL:  true,
			MaxHashtags: 3,
		},
		RateLimit: config.RateLimitConfig{
			Types: map[string][]config.WindowConfig{
				requestTypePosts: {{Name: "minute", Duration: time.Minute, Limit: 100}},
			},
			BackoffBase: time.Minute,
			BackoffMax:  time.Hour,
		},
	}
}

// newTestService — сервис с реальными скорером/историей/компоновщиком/лимитером
// и подменёнными внешними коллабораторами.
func newTestService(t *testing.T, cfg config.Config, f Fetcher, p Publisher) (*Service, *history.Store) {
	t.Helper()

	dir := t.TempDir()
	store := snapshot.New(filepath.Join(dir, "history.json"), filepath.Join(dir, "status.json"))

	hist, err := history.New(context.Background(), cfg.History, store)
	require.NoError(t, err)

	svc := New(cfg,
		f,
		scorer.New(cfg.Scorer),
		hist,
		composer.New(cfg.Composer),
		ratelimit.New(cfg.RateLimit),
		p,
		store,
	)

	return svc, hist
}

func item(title, body string) models.FeedItem {
	return models.FeedItem{
		Title:    title,
		Body:     body,
		Link:     "https://example.org/a",
		SourceID: "src-a",
		Category: "tech",
	}
}

// TestRunCycle_PostsRelevantItems —
// релевантный элемент публикуется и фиксируется в истории,
// нерелевантный и исключённый — отфильтровываются.
func TestRunCycle_PostsRelevantItems(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := config.SourceConfig{ID: "src-a", URL: "https://example.org/rss"}
	cfg := testConfig(src)

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), src).Return([]models.FeedItem{
		item("AI breakthrough announced", "Researchers ship a new ai model."),
		item("Gardening tips", "Nothing relevant here."),
		item("Best ai casino bonuses", "spam"),
	}, nil)

	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(publisher.Result{Success: true, ExternalID: "ext-1"}, nil)

	svc, hist := newTestService(t, cfg, fetcher, pub)

	res := svc.RunCycle(context.Background())

	require.Equal(t, 1, res.SourcesProcessed)
	require.Zero(t, res.SourcesFailed)
	require.Equal(t, 3, res.ItemsScored)
	require.Equal(t, 1, res.ItemsPosted)
	require.Zero(t, res.ItemsFailed)
	require.Zero(t, res.ItemsDuplicate)

	// В историю попала ровно одна запись, со статусом posted.
	require.Equal(t, 1, hist.Count())
	recs := hist.Query(history.Filter{PostedOnly: true})
	require.Len(t, recs, 1)
	require.Equal(t, "src-a", recs[0].Source)
}

// TestRunCycle_SourceIsolation —
// сбой загрузки одного источника не мешает обработке остальных.
func TestRunCycle_SourceIsolation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bad := config.SourceConfig{ID: "bad", URL: "https://bad.example/rss"}
	good := config.SourceConfig{ID: "good", URL: "https://good.example/rss"}
	cfg := testConfig(bad, good)

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), bad).Return(nil, errors.New("connection refused"))
	fetcher.EXPECT().Fetch(gomock.Any(), good).Return([]models.FeedItem{
		item("AI news of the day", "ai"),
	}, nil)

	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(publisher.Result{Success: true}, nil)

	svc, _ := newTestService(t, cfg, fetcher, pub)

	res := svc.RunCycle(context.Background())

	require.Equal(t, 1, res.SourcesProcessed)
	require.Equal(t, 1, res.SourcesFailed)
	require.Equal(t, 1, res.ItemsPosted)
}

// TestRunCycle_DuplicateSkipped —
// уже виденный текст не компонуется и не публикуется.
func TestRunCycle_DuplicateSkipped(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := config.SourceConfig{ID: "src-a", URL: "https://example.org/rss"}
	cfg := testConfig(src)

	it := item("AI breakthrough announced", "details inside")

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), src).Return([]models.FeedItem{it}, nil)

	// Публикации быть не должно — ожиданий на Publish нет.
	pub := mocks.NewMockPublisher(ctrl)

	svc, hist := newTestService(t, cfg, fetcher, pub)
	hist.Record(models.HistoryRecord{Text: it.Text()})

	res := svc.RunCycle(context.Background())

	require.Equal(t, 1, res.ItemsDuplicate)
	require.Zero(t, res.ItemsPosted)
	require.Equal(t, 1, hist.Count())
}

// TestRunCycle_RateLimited —
// без допуска лимитера элемент пропускается: ни публикации, ни записи в историю.
func TestRunCycle_RateLimited(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := config.SourceConfig{ID: "src-a", URL: "https://example.org/rss"}
	cfg := testConfig(src)
	cfg.RateLimit.Types[requestTypePosts] = []config.WindowConfig{
		{Name: "minute", Duration: time.Minute, Limit: 1},
	}

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), src).Return([]models.FeedItem{
		item("AI story one", "ai"),
		item("AI story two, different text", "ai"),
	}, nil)

	// Допуск есть только на первый элемент.
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(publisher.Result{Success: true}, nil).Times(1)

	svc, hist := newTestService(t, cfg, fetcher, pub)

	res := svc.RunCycle(context.Background())

	require.Equal(t, 1, res.ItemsPosted)
	require.Zero(t, res.ItemsFailed)
	require.Equal(t, 1, hist.Count(), "пропущенный по лимиту элемент в историю не пишется")
}

// TestRunCycle_FailedPublishStillRecorded —
// неуспешная публикация считается в ItemsFailed, но запись в историю создаётся
// с posted=false, и повторный цикл видит её как дубликат.
func TestRunCycle_FailedPublishStillRecorded(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := config.SourceConfig{ID: "src-a", URL: "https://example.org/rss"}
	cfg := testConfig(src)

	it := item("AI release gone wrong", "ai details")

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), src).Return([]models.FeedItem{it}, nil).Times(2)

	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).
		Return(publisher.Result{ErrKind: publisher.ErrKindTransient}, errors.New("publish failed")).
		Times(1)

	svc, hist := newTestService(t, cfg, fetcher, pub)

	first := svc.RunCycle(context.Background())
	require.Equal(t, 1, first.ItemsFailed)
	require.Zero(t, first.ItemsPosted)

	recs := hist.Query(history.Filter{})
	require.Len(t, recs, 1)
	require.False(t, recs[0].Posted)

	// Второй цикл: тот же элемент уже дубликат, повторной публикации нет.
	second := svc.RunCycle(context.Background())
	require.Equal(t, 1, second.ItemsDuplicate)
	require.Zero(t, second.ItemsFailed)
}

// TestRunCycle_MaxItemsPerSource — лишние элементы источника отбрасываются.
func TestRunCycle_MaxItemsPerSource(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := config.SourceConfig{ID: "src-a", URL: "https://example.org/rss"}
	cfg := testConfig(src)
	cfg.Fetcher.MaxItemsPerSource = 2

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), src).Return([]models.FeedItem{
		item("AI item one", "ai"),
		item("AI item two and more", "ai"),
		item("AI item three never processed", "ai"),
	}, nil)

	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(publisher.Result{Success: true}, nil).Times(2)

	svc, _ := newTestService(t, cfg, fetcher, pub)

	res := svc.RunCycle(context.Background())
	require.Equal(t, 2, res.ItemsScored)
	require.Equal(t, 2, res.ItemsPosted)
}

// TestSnapshot — сводка состояния собирается из всех компонентов.
func TestSnapshot(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := config.SourceConfig{ID: "src-a", URL: "https://example.org/rss"}
	cfg := testConfig(src)

	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), src).Return([]models.FeedItem{item("AI one", "ai")}, nil)

	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(publisher.Result{Success: true}, nil)

	svc, _ := newTestService(t, cfg, fetcher, pub)
	svc.RunCycle(context.Background())

	status := svc.Snapshot()
	require.Equal(t, 1, status.Cycles)
	require.Equal(t, 1, status.LastCycle.ItemsPosted)
	require.Equal(t, 1, status.History.Records)
	require.Contains(t, status.RateLimit, requestTypePosts)
	require.Equal(t, ratelimit.StatusHealthy, status.Health)
}
