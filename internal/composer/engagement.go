package composer

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pribylovaa/go-news-poster/internal/models"
)

// Слагаемые эвристики вовлечённости.
const (
	engagementBase    = 0.5
	lengthBonus       = 0.1
	emojiBonus        = 0.1
	hashtagBonus      = 0.1
	credibleBonus     = 0.1
	recencyFullBonus  = 0.1
	recencyHalfBonus  = 0.05
	relevanceBonusCap = 0.1

	optimalLenMin = 80
	optimalLenMax = 220
)

// engagement оценивает ожидаемую вовлечённость поста в [0, 1].
//
// База 0.5, бонусы за длину в оптимальной полосе, 1–3 эмодзи, 1–3 хэштега,
// доверенный источник, свежесть (полный бонус до 24 часов, половинный до 72)
// и пропорциональный бонус от оценки релевантности.
func (c *Composer) engagement(text string, hashtags []string, scored models.ScoredItem) float64 {
	score := engagementBase

	if n := utf8.RuneCountInString(text); n >= optimalLenMin && n <= optimalLenMax {
		score += lengthBonus
	}

	if n := countEmoji(text); n >= 1 && n <= 3 {
		score += emojiBonus
	}

	if n := len(hashtags); n >= 1 && n <= 3 {
		score += hashtagBonus
	}

	if c.isCredibleSource(scored.Item) {
		score += credibleBonus
	}

	if !scored.Item.PublishedAt.IsZero() {
		age := c.now().Sub(scored.Item.PublishedAt)
		switch {
		case age <= 24*time.Hour:
			score += recencyFullBonus
		case age <= 72*time.Hour:
			score += recencyHalfBonus
		}
	}

	score += scored.Score / 5 * relevanceBonusCap

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return score
}

// isCredibleSource проверяет источник элемента по списку доверенных.
func (c *Composer) isCredibleSource(item models.FeedItem) bool {
	for _, src := range c.cfg.CredibleSources {
		if src == "" {
			continue
		}
		if strings.EqualFold(item.SourceID, src) || strings.Contains(strings.ToLower(item.Link), strings.ToLower(src)) {
			return true
		}
	}
	return false
}

// countEmoji считает эмодзи по основным юникод-диапазонам.
func countEmoji(text string) int {
	count := 0
	for _, r := range text {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF,
			r >= 0x2600 && r <= 0x27BF,
			r == 0x2B50, r == 0x2764:
			count++
		}
	}
	return count
}
