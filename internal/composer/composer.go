// composer превращает отфильтрованный элемент ленты в готовый к публикации пост:
// шаблон, хэштеги, платформенный лимит длины, эвристика вовлечённости.
package composer

import (
	"fmt"
	"html"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/pribylovaa/go-news-poster/internal/config"
	"github.com/pribylovaa/go-news-poster/internal/models"
)

// Значения по умолчанию для компоновки.
const (
	defaultMaxLength  = 280
	defaultURLLength  = 23
	summaryMaxLen     = 120
	defaultMaxHashtag = 3
	ellipsis          = "…"
)

// defaultTemplates — запасной набор шаблонов, если для категории не задан свой.
var defaultTemplates = []string{
	"{title}\n\n{summary}\n\n{hashtags}\n{url}",
	"📰 {title}\n\n{summary}\n\n{hashtags}\n{url}",
	"{title} — {source}\n\n{summary}\n\n{hashtags}\n{url}",
}

// Composer — компоновщик постов.
//
// Особенности:
//   - отсутствующие опциональные поля элемента подставляются пустой строкой,
//     ошибок это не вызывает;
//   - итоговый текст не превышает платформенный лимит в зачётных символах:
//     любая ссылка учитывается по фиксированной укороченной длине;
//   - строка со ссылкой сохраняется дословно, усечение идёт по остальным строкам.
type Composer struct {
	cfg       config.ComposerConfig
	sanitizer *bluemonday.Policy

	now  func() time.Time
	pick func(n int) int
}

// New создаёт новый Composer.
func New(cfg config.ComposerConfig) *Composer {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultMaxLength
	}
	if cfg.URLLength <= 0 {
		cfg.URLLength = defaultURLLength
	}
	if cfg.MaxHashtags <= 0 {
		cfg.MaxHashtags = defaultMaxHashtag
	}

	return &Composer{
		cfg:       cfg,
		sanitizer: bluemonday.StrictPolicy(),
		now:       func() time.Time { return time.Now().UTC() },
		pick:      rand.Intn,
	}
}

// Compose собирает пост из оценённого элемента.
//
// Шаги:
//  1. сводка тела: срез разметки, первое предложение либо ~120 символов;
//  2. шаблон из набора категории (или набора по умолчанию);
//  3. до MaxHashtags хэштегов;
//  4. подстановка плейсхолдеров и схлопывание пустых строк;
//  5. платформенный лимит длины с резервом под укороченную ссылку;
//  6. эвристика вовлечённости.
func (c *Composer) Compose(scored models.ScoredItem) (models.ComposedPost, error) {
	const op = "composer/Compose"

	item := scored.Item

	summary := c.summarize(item.Body)
	hashtags := c.hashtags(item)
	template := c.template(item.Category)

	link := ""
	if c.cfg.IncludeURL {
		link = item.Link
	}

	text := template
	text = strings.ReplaceAll(text, "{title}", strings.TrimSpace(item.Title))
	text = strings.ReplaceAll(text, "{summary}", summary)
	text = strings.ReplaceAll(text, "{hashtags}", strings.Join(hashtags, " "))
	text = strings.ReplaceAll(text, "{url}", link)
	text = strings.ReplaceAll(text, "{source}", item.SourceID)

	text = collapseBlankLines(text)
	text = c.enforceLength(text, link)

	if strings.TrimSpace(text) == "" {
		return models.ComposedPost{}, fmt.Errorf("%s: empty post for item %q", op, item.Title)
	}

	return models.ComposedPost{
		Text:            text,
		Hashtags:        hashtags,
		SourceLink:      item.Link,
		EngagementScore: c.engagement(text, hashtags, scored),
	}, nil
}

// summarize готовит сводку тела: срезает разметку, схлопывает пробелы,
// берёт первое предложение либо первые ~120 символов с многоточием.
func (c *Composer) summarize(body string) string {
	text := html.UnescapeString(c.sanitizer.Sanitize(body))
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	if idx := firstSentenceEnd(text); idx > 0 && idx <= summaryMaxLen {
		return text[:idx]
	}

	if utf8.RuneCountInString(text) <= summaryMaxLen {
		return text
	}

	runes := []rune(text)
	cut := summaryMaxLen
	// Пытаемся резать по границе слова.
	for i := cut; i > summaryMaxLen/2; i-- {
		if runes[i-1] == ' ' {
			cut = i - 1
			break
		}
	}

	return strings.TrimRight(string(runes[:cut]), " ") + ellipsis
}

// firstSentenceEnd возвращает байтовую позицию конца первого предложения
// (включая знак) либо 0, если граница не найдена.
func firstSentenceEnd(text string) int {
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Точка внутри аббревиатуры или числа предложением не считается.
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		return i + 1
	}
	return 0
}

// template выбирает шаблон из набора категории либо из набора по умолчанию.
func (c *Composer) template(category string) string {
	set := c.cfg.Templates[strings.ToLower(category)]
	if len(set) == 0 {
		set = c.cfg.Templates["default"]
	}
	if len(set) == 0 {
		set = defaultTemplates
	}
	return set[c.pick(len(set))]
}

// collapseBlankLines схлопывает последовательности пустых строк в одну
// и срезает крайние пробелы.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	blank := true
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n")
}

// enforceLength приводит текст к платформенному лимиту.
//
// Платформа учитывает любую ссылку по длине укороченной, поэтому строка
// со ссылкой резервирует фиксированные URLLength+1 зачётных символов
// независимо от фактической длины и сохраняется дословно; остальные строки
// усекаются с конца, последняя обрезанная получает многоточие.
func (c *Composer) enforceLength(text, link string) string {
	if c.effectiveLength(text, link) <= c.cfg.MaxLength {
		return text
	}

	lines := strings.Split(text, "\n")

	// Бюджет не-URL-строк: лимит минус фиксированный резерв на каждую URL-строку.
	budget := c.cfg.MaxLength
	for _, line := range lines {
		if link != "" && strings.Contains(line, link) {
			budget -= c.cfg.URLLength + 1
		}
	}

	kept := make([]string, 0, len(lines))
	used := 0
	truncated := false

	for _, line := range lines {
		if link != "" && strings.Contains(line, link) {
			kept = append(kept, line)
			continue
		}
		if truncated {
			continue
		}

		lineLen := utf8.RuneCountInString(line)
		sep := 0
		if used > 0 {
			sep = 1
		}

		if used+sep+lineLen <= budget {
			kept = append(kept, line)
			used += sep + lineLen
			continue
		}

		// Строка не помещается целиком — обрезаем по остатку бюджета.
		room := budget - used - sep - utf8.RuneCountInString(ellipsis)
		if room > 0 {
			runes := []rune(line)
			kept = append(kept, strings.TrimRight(string(runes[:room]), " ")+ellipsis)
			used += sep + room + utf8.RuneCountInString(ellipsis)
		}
		truncated = true
	}

	return collapseBlankLines(strings.Join(kept, "\n"))
}

// effectiveLength — длина текста в зачётных символах платформы:
// строка со ссылкой считается по укороченной длине, не по фактической.
func (c *Composer) effectiveLength(text, link string) int {
	total := 0
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			total++
		}
		if link != "" && strings.Contains(line, link) {
			total += c.cfg.URLLength
			continue
		}
		total += utf8.RuneCountInString(line)
	}
	return total
}
