// publisher отправляет готовые посты во внешний API публикации
// с ограниченными повторами по экспоненциальному бэкоффу.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"

	"github.com/pribylovaa/go-news-poster/internal/pkg/log"
)

// Классы ошибок публикации.
const (
	// ErrKindTransient — сеть/таймаут/5xx/429: повторяется до лимита попыток.
	ErrKindTransient = "transient"
	// ErrKindPermanent — 4xx/валидация: не повторяется.
	ErrKindPermanent = "permanent"
)

var (
	// ErrPermanent — публикация отклонена платформой, повтор бессмыслен.
	ErrPermanent = errors.New("permanent publish error")
	// ErrTransient — временный сбой, попытки исчерпаны.
	ErrTransient = errors.New("transient publish error")
)

// Result — исход публикации.
type Result struct {
	// Success — true, если платформа приняла пост.
	Success bool
	// ExternalID — идентификатор поста у платформы.
	ExternalID string
	// ErrKind — класс ошибки при Success=false.
	ErrKind string
}

// Publisher — клиент внешнего API публикации.
//
// Особенности:
//   - идемпотентность на стороне API — контракт платформы,
//     первой линией защиты от повторов служит дедупликация истории;
//   - каждая попытка ограничена собственным таймаутом.
type Publisher struct {
	client *http.Client
	cfg    config.PublisherConfig
}

// New создаёт Publisher. При nil-клиенте используется клиент с таймаутом из конфига.
func New(client *http.Client, cfg config.PublisherConfig) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	// Минимум одна попытка: MaxAttempts-1 ниже уходит в uint64,
	// и значение <1 обернулось бы бесконечными повторами.
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Publisher{client: client, cfg: cfg}
}

// postRequest — тело запроса к API публикации.
type postRequest struct {
	Text string `json:"text"`
}

// postResponse — ответ API публикации.
type postResponse struct {
	ID string `json:"id"`
}

// Publish отправляет пост.
//
// Временные сбои (сеть, таймаут, 5xx, 429) повторяются с экспоненциальным
// бэкоффом до исчерпания попыток; постоянные (прочие 4xx) — нет.
func (p *Publisher) Publish(ctx context.Context, post models.ComposedPost) (Result, error) {
	const op = "publisher/Publish"

	lg := log.From(ctx)

	var result Result

	attempt := 0
	operation := func() error {
		attempt++

		res, err := p.attempt(ctx, post)
		if err == nil {
			result = res
			return nil
		}

		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}

		lg.Warn("publish_attempt_failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.Retry.BaseDelay
	policy.MaxInterval = p.cfg.Retry.MaxDelay
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.cfg.Retry.MaxAttempts-1)), ctx),
	)
	if err != nil {
		if errors.Is(err, ErrPermanent) {
			return Result{ErrKind: ErrKindPermanent}, fmt.Errorf("%s: %w", op, err)
		}
		return Result{ErrKind: ErrKindTransient}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// attempt выполняет одну попытку публикации.
func (p *Publisher) attempt(ctx context.Context, post models.ComposedPost) (Result, error) {
	reqCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(postRequest{Text: post.Text})
	if err != nil {
		return Result{}, fmt.Errorf("encode: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var pr postResponse
		// Тело ответа необязательно: отсутствие идентификатора — не ошибка.
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &pr)
		}
		return Result{Success: true, ExternalID: pr.ID}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)

	default:
		return Result{}, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}
}
