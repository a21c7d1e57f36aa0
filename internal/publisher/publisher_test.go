package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"
)

// newPublisher — клиент с быстрыми повторами для тестов.
func newPublisher(endpoint string) *Publisher {
	return New(nil, config.PublisherConfig{
		Endpoint: endpoint,
		Token:    "test-token",
		Timeout:  2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	})
}

// TestPublish_Success — 2xx с телом: Success=true, ExternalID заполнен.
func TestPublish_Success(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req postRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hello world", req.Text)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(postResponse{ID: "ext-42"})
	}))
	defer srv.Close()

	p := newPublisher(srv.URL)
	res, err := p.Publish(context.Background(), models.ComposedPost{Text: "hello world"})

	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "ext-42", res.ExternalID)
	require.Equal(t, "Bearer test-token", gotAuth)
}

// TestPublish_SuccessWithoutBody — пустое тело ответа — не ошибка.
func TestPublish_SuccessWithoutBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newPublisher(srv.URL).Publish(context.Background(), models.ComposedPost{Text: "x"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.ExternalID)
}

// TestPublish_TransientRetriedThenSuccess —
// 5xx повторяется с бэкоффом и завершается успехом.
func TestPublish_TransientRetriedThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newPublisher(srv.URL).Publish(context.Background(), models.ComposedPost{Text: "x"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 3, calls.Load())
}

// TestPublish_TransientExhausted — попытки исчерпаны: ErrKind=transient.
func TestPublish_TransientExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := newPublisher(srv.URL).Publish(context.Background(), models.ComposedPost{Text: "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTransient)
	require.False(t, res.Success)
	require.Equal(t, ErrKindTransient, res.ErrKind)
	require.EqualValues(t, 3, calls.Load(), "ровно MaxAttempts попыток")
}

// TestPublish_PermanentNotRetried — 4xx не повторяется.
func TestPublish_PermanentNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	res, err := newPublisher(srv.URL).Publish(context.Background(), models.ComposedPost{Text: "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPermanent)
	require.Equal(t, ErrKindPermanent, res.ErrKind)
	require.EqualValues(t, 1, calls.Load(), "постоянная ошибка — без повторов")
}

// TestPublish_TooManyRequestsIsTransient — 429 относится к временным сбоям.
func TestPublish_TooManyRequestsIsTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := newPublisher(srv.URL).Publish(context.Background(), models.ComposedPost{Text: "x"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 2, calls.Load())
}

// TestPublish_ZeroMaxAttemptsMeansSingleTry —
// MaxAttempts=0 не превращается в бесконечные повторы: ровно одна попытка.
func TestPublish_ZeroMaxAttemptsMeansSingleTry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := New(nil, config.PublisherConfig{
		Endpoint: srv.URL,
		Timeout:  2 * time.Second,
		Retry: config.RetryConfig{
			BaseDelay: time.Millisecond,
			MaxDelay:  5 * time.Millisecond,
		},
	})

	_, err := p.Publish(context.Background(), models.ComposedPost{Text: "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTransient)
	require.EqualValues(t, 1, calls.Load())
}

// TestPublish_ContextCancelled — отменённый контекст прекращает повторы.
func TestPublish_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPublisher(srv.URL).Publish(ctx, models.ComposedPost{Text: "x"})
	require.Error(t, err)
}
