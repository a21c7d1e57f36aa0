package scorer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"
)

// rule — утилита построения правила.
func rule(keyword string, priority int, weight float64, exclude bool) config.RuleConfig {
	return config.RuleConfig{
		Keyword:  keyword,
		Priority: priority,
		Weight:   weight,
		Exclude:  exclude,
		Active:   true,
	}
}

func newScorer(rules ...config.RuleConfig) *Scorer {
	return New(config.ScorerConfig{Rules: rules, ExcludeFloor: 0.1})
}

// TestScore_SingleIncludeRule —
// правило {gpt, priority 3, weight 2}: score = min(5, 3*2/2) = 3.0.
func TestScore_SingleIncludeRule(t *testing.T) {
	t.Parallel()

	s := newScorer(rule("gpt", 3, 2, false))
	got := s.Score(models.FeedItem{Title: "New GPT model released"})

	require.InDelta(t, 3.0, got.Score, 1e-9)
	require.False(t, got.Excluded)
	require.Equal(t, []string{"gpt"}, got.MatchedKeywords)
}

// TestScore_Idempotent — повторные вызовы дают идентичный результат.
func TestScore_Idempotent(t *testing.T) {
	t.Parallel()

	s := newScorer(rule("ai", 4, 3, false), rule("crypto", 2, 1, false))
	item := models.FeedItem{Title: "AI meets crypto", Body: "AI startups adopt crypto rails"}

	first := s.Score(item)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, s.Score(item))
	}
}

// TestScore_ExcludeDominance —
// совпадение include- и exclude-правил даёт excluded=true и оценку-пол
// независимо от порядка правил.
func TestScore_ExcludeDominance(t *testing.T) {
	t.Parallel()

	item := models.FeedItem{Title: "GPT spam offer"}

	includeFirst := newScorer(rule("gpt", 5, 5, false), rule("spam", 1, 1, true))
	excludeFirst := newScorer(rule("spam", 1, 1, true), rule("gpt", 5, 5, false))

	for _, s := range []*Scorer{includeFirst, excludeFirst} {
		got := s.Score(item)
		require.True(t, got.Excluded)
		require.InDelta(t, 0.1, got.Score, 1e-9)
	}
}

// TestScore_NoRules — без правил оценка 0, без исключения.
func TestScore_NoRules(t *testing.T) {
	t.Parallel()

	s := newScorer()
	got := s.Score(models.FeedItem{Title: "anything"})

	require.Zero(t, got.Score)
	require.False(t, got.Excluded)
}

// TestScore_EmptyText — пустой текст даёт оценку 0 без ошибок.
func TestScore_EmptyText(t *testing.T) {
	t.Parallel()

	s := newScorer(rule("ai", 3, 2, false))
	got := s.Score(models.FeedItem{})

	require.Zero(t, got.Score)
	require.False(t, got.Excluded)
	require.Empty(t, got.MatchedKeywords)
}

// TestScore_InactiveRulesIgnored — неактивные правила не участвуют.
func TestScore_InactiveRulesIgnored(t *testing.T) {
	t.Parallel()

	inactive := config.RuleConfig{Keyword: "ai", Priority: 5, Weight: 5, Active: false}
	s := New(config.ScorerConfig{Rules: []config.RuleConfig{inactive}})

	got := s.Score(models.FeedItem{Title: "AI everywhere"})
	require.Zero(t, got.Score)
}

// TestScore_WeightedAverageAndCap —
// оценка — взвешенное среднее priority по weight, с потолком 5 и округлением.
func TestScore_WeightedAverageAndCap(t *testing.T) {
	t.Parallel()

	t.Run("weighted_average", func(t *testing.T) {
		t.Parallel()

		// (5*1 + 2*3) / (1+3) = 11/4 = 2.75.
		s := newScorer(rule("alpha", 5, 1, false), rule("beta", 2, 3, false))
		got := s.Score(models.FeedItem{Title: "alpha beta"})
		require.InDelta(t, 2.75, got.Score, 1e-9)
	})

	t.Run("capped_at_five", func(t *testing.T) {
		t.Parallel()

		s := newScorer(rule("alpha", 5, 5, false))
		got := s.Score(models.FeedItem{Title: "alpha"})
		require.InDelta(t, 5.0, got.Score, 1e-9)
	})

	t.Run("rounded_to_two_decimals", func(t *testing.T) {
		t.Parallel()

		// (1*1 + 2*2) / 3 = 5/3 = 1.666... -> 1.67.
		s := newScorer(rule("alpha", 1, 1, false), rule("beta", 2, 2, false))
		got := s.Score(models.FeedItem{Title: "alpha beta"})
		require.InDelta(t, 1.67, got.Score, 1e-9)
	})
}

// TestScore_CaseInsensitiveSubstring — совпадение без учёта регистра, по подстроке.
func TestScore_CaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	s := newScorer(rule("OpenAI", 3, 2, false))
	got := s.Score(models.FeedItem{Title: "openai ships a new model"})

	require.InDelta(t, 3.0, got.Score, 1e-9)
}
