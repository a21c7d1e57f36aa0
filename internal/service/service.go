// service содержит бизнес-логику poster-сервиса: пайплайн публикации
// и задачи обслуживания, связывающие скоринг, историю, компоновку и лимитер.
package service

import (
	"context"
	"sync"

	"github.com/pribylovaa/go-news-poster/internal/composer"
	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/history"
	"github.com/pribylovaa/go-news-poster/internal/models"
	"github.com/pribylovaa/go-news-poster/internal/publisher"
	"github.com/pribylovaa/go-news-poster/internal/ratelimit"
	"github.com/pribylovaa/go-news-poster/internal/scorer"
	"github.com/pribylovaa/go-news-poster/internal/storage"
)

//go:generate mockgen -source=service.go -destination=../../mocks/mock_service.go -package=mocks

// requestTypePosts — тип запросов публикации в лимитере.
const requestTypePosts = "posts"

// Fetcher описывает загрузку элементов одного источника.
type Fetcher interface {
	Fetch(ctx context.Context, src config.SourceConfig) ([]models.FeedItem, error)
}

// Publisher описывает отправку поста во внешний API.
type Publisher interface {
	Publish(ctx context.Context, post models.ComposedPost) (publisher.Result, error)
}

// Service — оркестратор пайплайна.
//
// Особенности:
//   - все зависимости внедряются явно, глобального состояния нет;
//   - внутри одного цикла источники и элементы обрабатываются строго
//     последовательно, паузы между операциями — преднамеренный backpressure;
//   - сбой элемента или источника изолируется и не прерывает цикл.
type Service struct {
	cfg config.Config

	fetcher   Fetcher
	scorer    *scorer.Scorer
	history   *history.Store
	composer  *composer.Composer
	limiter   *ratelimit.Limiter
	publisher Publisher
	status    storage.StatusWriter

	mu        sync.Mutex
	lastCycle models.CycleResult
	cycles    int
}

// New создаёт Service.
func New(
	cfg config.Config,
	fetcher Fetcher,
	sc *scorer.Scorer,
	hist *history.Store,
	comp *composer.Composer,
	limiter *ratelimit.Limiter,
	pub Publisher,
	status storage.StatusWriter,
) *Service {
	return &Service{
		cfg:       cfg,
		fetcher:   fetcher,
		scorer:    sc,
		history:   hist,
		composer:  comp,
		limiter:   limiter,
		publisher: pub,
		status:    status,
	}
}

// LastCycle возвращает сводку последнего завершённого цикла.
func (s *Service) LastCycle() models.CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle
}

// Cycles возвращает число завершённых циклов.
func (s *Service) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// setLastCycle фиксирует сводку завершённого цикла.
func (s *Service) setLastCycle(res models.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = res
	s.cycles++
}
