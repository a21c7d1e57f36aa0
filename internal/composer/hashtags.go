package composer

import (
	"strings"

	"github.com/pribylovaa/go-news-poster/internal/models"
)

// vocabulary — фиксированный словарь ключевое слово -> хэштег.
// Порядок фиксирован, чтобы выбор тегов был детерминированным.
var vocabulary = []struct {
	keyword string
	tag     string
}{
	{"machine learning", "#MachineLearning"},
	{"deep learning", "#DeepLearning"},
	{"neural network", "#NeuralNetworks"},
	{"openai", "#OpenAI"},
	{"chatgpt", "#ChatGPT"},
	{"gpt", "#GPT"},
	{"llm", "#LLM"},
	{"robotics", "#Robotics"},
	{"startup", "#Startup"},
	{"security", "#Security"},
	{"cloud", "#Cloud"},
	{"open source", "#OpenSource"},
	{"ai", "#AI"},
}

// genericTags — запасные теги, если ни одно слово словаря не совпало.
var genericTags = []string{"#Tech", "#News"}

// hashtags подбирает до MaxHashtags хэштегов:
// сначала тег категории из конфигурации, затем совпадения словаря
// по тексту элемента, в крайнем случае — пара общих тегов.
func (c *Composer) hashtags(item models.FeedItem) []string {
	max := c.cfg.MaxHashtags

	tags := make([]string, 0, max)
	seen := make(map[string]struct{}, max)

	add := func(tag string) {
		if tag == "" || len(tags) >= max {
			return
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		tags = append(tags, tag)
	}

	if tag, ok := c.cfg.CategoryHashtags[strings.ToLower(item.Category)]; ok {
		add(tag)
	}

	text := strings.ToLower(item.Text())
	for _, entry := range vocabulary {
		if len(tags) >= max {
			break
		}
		if strings.Contains(text, entry.keyword) {
			add(entry.tag)
		}
	}

	if len(tags) == 0 {
		for _, tag := range genericTags {
			add(tag)
		}
	}

	return tags
}
