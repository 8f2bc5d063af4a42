// Package config loads the orchestrator configuration from a YAML file
// (CONFIG_PATH, default config/search.yaml) with environment overrides
// for endpoints. Secrets are never read from the file; components read
// them from the environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the full orchestrator configuration.
type Config struct {
	Env string `mapstructure:"env"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`

	Elastic struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
		Indexes struct {
			Books   string `mapstructure:"books"`
			Ayahs   string `mapstructure:"ayahs"`
			Hadiths string `mapstructure:"hadiths"`
			Authors string `mapstructure:"authors"`
		} `mapstructure:"indexes"`
	} `mapstructure:"elastic"`

	Qdrant struct {
		Host        string        `mapstructure:"host"`
		Port        int           `mapstructure:"port"`
		Timeout     time.Duration `mapstructure:"timeout"`
		Collections struct {
			Pages  string `mapstructure:"pages"`
			Quran  string `mapstructure:"quran"`
			Hadith string `mapstructure:"hadith"`
		} `mapstructure:"collections"`
	} `mapstructure:"qdrant"`

	Database struct {
		URL             string        `mapstructure:"url"`
		MaxConnections  int           `mapstructure:"max_connections"`
		IdleConnections int           `mapstructure:"idle_connections"`
		MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		DB       int    `mapstructure:"db"`
		Password string `mapstructure:"-"`
	} `mapstructure:"redis"`

	Embeddings struct {
		DefaultModel string        `mapstructure:"default_model"`
		MemoryTTL    time.Duration `mapstructure:"memory_ttl"`
		MemoryMax    int           `mapstructure:"memory_max"`
		EvictCount   int           `mapstructure:"evict_count"`
		MaxBatch     int           `mapstructure:"max_batch"`
	} `mapstructure:"embeddings"`

	Search struct {
		DefaultLimit      int           `mapstructure:"default_limit"`
		MaxLimit          int           `mapstructure:"max_limit"`
		BaseSimilarity    float64       `mapstructure:"base_similarity"`
		RefineSimilarity  float64       `mapstructure:"refine_similarity"`
		RefinePerQuery    int           `mapstructure:"refine_per_query"`
		RequestTimeout    time.Duration `mapstructure:"request_timeout"`
		IndexedSetTTL     time.Duration `mapstructure:"indexed_set_ttl"`
		HadithSourceBooks []int64       `mapstructure:"hadith_source_books"`
	} `mapstructure:"search"`

	LLM struct {
		BaseURL        string `mapstructure:"base_url"`
		SmallModel     string `mapstructure:"small_model"`
		LargeModel     string `mapstructure:"large_model"`
		FastModel      string `mapstructure:"fast_model"`
		ExpansionModel string `mapstructure:"expansion_model"`
	} `mapstructure:"llm"`

	Graph struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"graph"`

	Analytics struct {
		Stream string `mapstructure:"stream"`
		MaxLen int64  `mapstructure:"max_len"`
	} `mapstructure:"analytics"`
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/search.yaml"
}

// Load reads the YAML file, applies defaults and env overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(Path())
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		// A missing file is tolerated; defaults plus env keep the
		// service bootable in containers that only set environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("elastic.url", "http://localhost:9200")
	v.SetDefault("elastic.timeout", 5*time.Second)
	v.SetDefault("elastic.indexes.books", "books")
	v.SetDefault("elastic.indexes.ayahs", "ayahs")
	v.SetDefault("elastic.indexes.hadiths", "hadiths")
	v.SetDefault("elastic.indexes.authors", "authors")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6333)
	v.SetDefault("qdrant.timeout", 5*time.Second)
	v.SetDefault("qdrant.collections.pages", "book_pages")
	v.SetDefault("qdrant.collections.quran", "quran_ayahs")
	v.SetDefault("qdrant.collections.hadith", "hadiths")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("embeddings.default_model", "openrouter:text-embedding-3-large")
	v.SetDefault("embeddings.memory_ttl", 24*time.Hour)
	v.SetDefault("embeddings.memory_max", 4096)
	v.SetDefault("embeddings.evict_count", 256)
	v.SetDefault("embeddings.max_batch", 64)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("search.base_similarity", 0.2)
	v.SetDefault("search.refine_similarity", 0.25)
	v.SetDefault("search.refine_per_query", 40)
	v.SetDefault("search.request_timeout", 30*time.Second)
	v.SetDefault("search.indexed_set_ttl", 5*time.Minute)
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.small_model", "google/gemini-2.0-flash-001")
	v.SetDefault("llm.large_model", "anthropic/claude-sonnet-4")
	v.SetDefault("llm.fast_model", "google/gemini-2.0-flash-lite-001")
	v.SetDefault("llm.expansion_model", "google/gemini-2.0-flash-001")
	v.SetDefault("graph.timeout", 3*time.Second)
	v.SetDefault("analytics.stream", "bahith:search:events")
	v.SetDefault("analytics.max_len", 100000)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("ES_URL"); v != "" {
		cfg.Elastic.URL = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Qdrant.Port = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GRAPH_SERVICE_URL"); v != "" {
		cfg.Graph.URL = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
}

// IsProduction reports whether debug output should be suppressed.
func (c *Config) IsProduction() bool { return c.Env == "production" }
