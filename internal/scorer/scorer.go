// scorer реализует скоринг релевантности элементов ленты
// по настраиваемым keyword-правилам с include/exclude-семантикой.
package scorer

import (
	"math"
	"strings"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"
)

// maxScore — верхняя граница оценки релевантности.
const maxScore = 5.0

// Scorer — чистый (без побочных эффектов) скорер по фиксированному набору правил.
//
// Особенности:
//   - правила читаются один раз при создании, неактивные отбрасываются сразу;
//   - Score детерминирован: одинаковый вход даёт одинаковый результат;
//   - ошибок не возвращает — отсутствие текста или правил даёт оценку 0.
type Scorer struct {
	rules        []config.RuleConfig
	excludeFloor float64
}

// New создаёт новый Scorer.
func New(cfg config.ScorerConfig) *Scorer {
	rules := make([]config.RuleConfig, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !r.Active {
			continue
		}
		rules = append(rules, r)
	}

	floor := cfg.ExcludeFloor
	if floor <= 0 {
		floor = 0.1
	}

	return &Scorer{rules: rules, excludeFloor: floor}
}

// Score оценивает релевантность элемента.
//
// Правила:
//   - текст элемента приводится к нижнему регистру, совпадение — по подстроке;
//   - первое совпавшее exclude-правило завершает скоринг: оценка равна
//     фиксированному полу, Excluded=true, независимо от include-совпадений;
//   - иначе оценка = min(5, Σ(priority·weight)/Σweight) по include-совпадениям,
//     округлённая до 2 знаков; без совпадений — 0.
func (s *Scorer) Score(item models.FeedItem) models.ScoredItem {
	scored := models.ScoredItem{Item: item}

	text := strings.ToLower(item.Text())
	if strings.TrimSpace(text) == "" || len(s.rules) == 0 {
		return scored
	}

	var (
		sumScore  float64
		sumWeight float64
		matched   []string
	)

	for _, rule := range s.rules {
		if !strings.Contains(text, strings.ToLower(rule.Keyword)) {
			continue
		}

		if rule.Exclude {
			scored.Score = s.excludeFloor
			scored.Excluded = true
			scored.MatchedKeywords = []string{rule.Keyword}
			return scored
		}

		sumScore += float64(rule.Priority) * rule.Weight
		sumWeight += rule.Weight
		matched = append(matched, rule.Keyword)
	}

	if sumWeight > 0 {
		scored.Score = math.Round(math.Min(maxScore, sumScore/sumWeight)*100) / 100
	}
	scored.MatchedKeywords = matched

	return scored
}
