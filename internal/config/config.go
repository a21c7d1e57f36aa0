// config предоставляет структуру конфигурации poster-service
// и функции загрузки из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
//
// Конфигурация читается один раз на старте; горячая перезагрузка не поддерживается.
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	History   HistoryConfig   `yaml:"history"`
	Composer  ComposerConfig  `yaml:"composer"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Publisher PublisherConfig `yaml:"publisher"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Delays    DelaysConfig    `yaml:"delays"`
}

// GRPCConfig — сетевые настройки gRPC-сервера (health-эндпоинт).
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50053"`
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// SourceConfig — один источник лент.
type SourceConfig struct {
	// ID — идентификатор источника (используется в логах и истории).
	ID string `yaml:"id"`
	// URL — адрес RSS/Atom-ленты.
	URL string `yaml:"url"`
	// Category — категория по умолчанию для элементов источника.
	Category string `yaml:"category"`
}

// FetcherConfig — параметры загрузки лент.
type FetcherConfig struct {
	Sources []SourceConfig `yaml:"sources"`
	// Timeout — таймаут одного сетевого запроса к источнику.
	Timeout time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT" env-default:"15s"`
	// MaxItemsPerSource — верхняя граница элементов, обрабатываемых за цикл с одного источника.
	MaxItemsPerSource int `yaml:"max_items_per_source" env:"MAX_ITEMS_PER_SOURCE" env-default:"10"`
}

// RuleConfig — одно правило скоринга по ключевому слову.
type RuleConfig struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
	// Priority — приоритет правила, 1..5.
	Priority int `yaml:"priority"`
	// Weight — вес правила, 0..5.
	Weight float64 `yaml:"weight"`
	// Exclude — true, если совпадение исключает элемент.
	Exclude bool `yaml:"exclude"`
	// Active — неактивные правила игнорируются.
	Active bool `yaml:"active"`
}

// ScorerConfig — параметры скоринга релевантности.
type ScorerConfig struct {
	Rules []RuleConfig `yaml:"rules"`
	// Threshold — минимальная оценка для прохождения элемента в пайплайн.
	Threshold float64 `yaml:"threshold" env:"SCORE_THRESHOLD" env-default:"1.0"`
	// ExcludeFloor — фиксированная оценка элементов, попавших под exclude-правило.
	ExcludeFloor float64 `yaml:"exclude_floor" env:"EXCLUDE_FLOOR" env-default:"0.1"`
}

// HistoryConfig — параметры хранилища истории.
type HistoryConfig struct {
	// Path — путь к файлу снапшота истории.
	Path string `yaml:"path" env:"HISTORY_PATH" env-default:"data/history.json"`
	// StatusPath — путь к файлу выгрузки статуса.
	StatusPath string `yaml:"status_path" env:"STATUS_PATH" env-default:"data/status.json"`
	// RetentionDays — возраст записей, после которого они вычищаются.
	RetentionDays int `yaml:"retention_days" env:"HISTORY_RETENTION_DAYS" env-default:"30"`
	// MaxRecords — верхняя граница количества записей (вытеснение старейших).
	MaxRecords int `yaml:"max_records" env:"HISTORY_MAX_RECORDS" env-default:"10000"`
}

// ComposerConfig — параметры компоновки постов.
type ComposerConfig struct {
	// MaxLength — платформенный лимит длины поста.
	MaxLength int `yaml:"max_length" env:"POST_MAX_LENGTH" env-default:"280"`
	// URLLength — фиксированная длина, резервируемая под укороченную ссылку.
	URLLength int `yaml:"url_length" env:"POST_URL_LENGTH" env-default:"23"`
	// IncludeURL — добавлять ли ссылку на источник в пост.
	IncludeURL bool `yaml:"include_url" env:"POST_INCLUDE_URL" env-default:"true"`
	// MaxHashtags — максимум хэштегов в посте.
	MaxHashtags int `yaml:"max_hashtags" env:"POST_MAX_HASHTAGS" env-default:"3"`
	// Templates — наборы шаблонов по категориям; ключ "default" обязателен.
	Templates map[string][]string `yaml:"templates"`
	// CategoryHashtags — отображение категория -> хэштег.
	CategoryHashtags map[string]string `yaml:"category_hashtags"`
	// CredibleSources — источники, дающие бонус к вовлечённости.
	CredibleSources []string `yaml:"credible_sources"`
}

// WindowConfig — одно скользящее окно лимитера.
type WindowConfig struct {
	// Name — имя окна для диагностики ("minute", "hour", "day"...).
	Name string `yaml:"name"`
	// Duration — длительность окна.
	Duration time.Duration `yaml:"duration"`
	// Limit — максимум событий в окне.
	Limit int `yaml:"limit"`
}

// RateLimitConfig — параметры лимитера запросов.
type RateLimitConfig struct {
	// Types — окна по типам запросов; ключ — тип ("posts"...).
	Types map[string][]WindowConfig `yaml:"types"`
	// BackoffBase — базовая задержка экспоненциального бэкоффа.
	BackoffBase time.Duration `yaml:"backoff_base" env:"BACKOFF_BASE" env-default:"1m"`
	// BackoffMax — потолок бэкоффа.
	BackoffMax time.Duration `yaml:"backoff_max" env:"BACKOFF_MAX" env-default:"1h"`
	// WarnUsage/UnhealthyUsage — пороги здоровья по использованию окон.
	WarnUsage      float64 `yaml:"warn_usage" env:"RATE_WARN_USAGE" env-default:"0.8"`
	UnhealthyUsage float64 `yaml:"unhealthy_usage" env:"RATE_UNHEALTHY_USAGE" env-default:"0.9"`
}

// RetryConfig — политика повторов публикации.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"PUBLISH_MAX_ATTEMPTS" env-default:"3"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"PUBLISH_BASE_DELAY" env-default:"2s"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"PUBLISH_MAX_DELAY" env-default:"30s"`
}

// PublisherConfig — параметры внешнего API публикации.
type PublisherConfig struct {
	// Endpoint — адрес API публикации.
	Endpoint string `yaml:"endpoint" env:"PUBLISH_ENDPOINT"`
	// Token — bearer-токен API.
	Token string `yaml:"token" env:"PUBLISH_TOKEN"`
	// Timeout — таймаут одной попытки публикации.
	Timeout time.Duration `yaml:"timeout" env:"PUBLISH_TIMEOUT" env-default:"15s"`
	Retry   RetryConfig   `yaml:"retry"`
}

// JobsConfig — cron-выражения периодических задач.
type JobsConfig struct {
	Cycle  string `yaml:"cycle" env:"JOB_CYCLE" env-default:"*/30 * * * *"`
	Prune  string `yaml:"prune" env:"JOB_PRUNE" env-default:"0 3 * * *"`
	Flush  string `yaml:"flush" env:"JOB_FLUSH" env-default:"*/5 * * * *"`
	Status string `yaml:"status" env:"JOB_STATUS" env-default:"*/10 * * * *"`
	Health string `yaml:"health" env:"JOB_HEALTH" env-default:"*/1 * * * *"`
}

// DelaysConfig — преднамеренные паузы между операциями пайплайна.
type DelaysConfig struct {
	// InterItem — пауза между элементами одного источника.
	InterItem time.Duration `yaml:"inter_item" env:"INTER_ITEM_DELAY" env-default:"5s"`
	// InterSource — пауза между источниками.
	InterSource time.Duration `yaml:"inter_source" env:"INTER_SOURCE_DELAY" env-default:"10s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		c, err := tryRead(path)
		if err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		c, err := tryRead(envPath)
		if err != nil {
			return nil, err
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return c, nil
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate — базовая валидация значений.
// Невалидная конфигурация фатальна: сервис с ней не стартует.
func (c *Config) validate() error {
	if len(c.Fetcher.Sources) == 0 {
		return fmt.Errorf("fetcher.sources must contain at least one feed")
	}
	for i, src := range c.Fetcher.Sources {
		if src.ID == "" {
			return fmt.Errorf("fetcher.sources[%d].id is required", i)
		}
		if src.URL == "" {
			return fmt.Errorf("fetcher.sources[%d].url is required", i)
		}
	}
	if c.Fetcher.MaxItemsPerSource <= 0 {
		return fmt.Errorf("fetcher.max_items_per_source must be > 0")
	}

	for i, r := range c.Scorer.Rules {
		if r.Keyword == "" {
			return fmt.Errorf("scorer.rules[%d].keyword is required", i)
		}
		if r.Priority < 1 || r.Priority > 5 {
			return fmt.Errorf("scorer.rules[%d].priority must be in [1, 5]", i)
		}
		if r.Weight < 0 || r.Weight > 5 {
			return fmt.Errorf("scorer.rules[%d].weight must be in [0, 5]", i)
		}
	}
	if c.Scorer.Threshold < 0 || c.Scorer.Threshold > 5 {
		return fmt.Errorf("scorer.threshold must be in [0, 5]")
	}

	if c.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must be >= 0")
	}
	if c.History.MaxRecords <= 0 {
		return fmt.Errorf("history.max_records must be > 0")
	}

	if c.Composer.MaxLength <= 0 {
		return fmt.Errorf("composer.max_length must be > 0")
	}
	if c.Composer.IncludeURL && c.Composer.MaxLength <= c.Composer.URLLength+1 {
		return fmt.Errorf("composer.max_length must exceed the reserved url budget")
	}

	for typ, windows := range c.RateLimit.Types {
		if len(windows) == 0 {
			return fmt.Errorf("ratelimit.types[%s] must define at least one window", typ)
		}
		for i, w := range windows {
			if w.Duration <= 0 {
				return fmt.Errorf("ratelimit.types[%s][%d].duration must be > 0", typ, i)
			}
			if w.Limit <= 0 {
				return fmt.Errorf("ratelimit.types[%s][%d].limit must be > 0", typ, i)
			}
		}
	}
	if c.RateLimit.BackoffBase <= 0 {
		return fmt.Errorf("ratelimit.backoff_base must be > 0")
	}
	if c.RateLimit.WarnUsage <= 0 || c.RateLimit.WarnUsage >= c.RateLimit.UnhealthyUsage {
		return fmt.Errorf("ratelimit.warn_usage must be in (0, unhealthy_usage)")
	}

	if c.Publisher.Endpoint == "" {
		return fmt.Errorf("publisher.endpoint is required")
	}
	if c.Publisher.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("publisher.retry.max_attempts must be > 0")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	jobs := map[string]string{
		"jobs.cycle":  c.Jobs.Cycle,
		"jobs.prune":  c.Jobs.Prune,
		"jobs.flush":  c.Jobs.Flush,
		"jobs.status": c.Jobs.Status,
		"jobs.health": c.Jobs.Health,
	}
	for name, expr := range jobs {
		if expr == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("%s: invalid cron expression %q: %w", name, expr, err)
		}
	}

	return nil
}
