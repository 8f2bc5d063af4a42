// Package ratecontrol applies client-side RPM limits to the paid
// upstream APIs (embedding backends, LLM rerank/expansion) so a burst of
// refine-mode fan-out cannot blow through a provider quota. Limits come
// from config/ratelimits.yaml with sane built-in defaults per provider.
package ratecontrol

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	RateLimits struct {
		DefaultRPM        int            `yaml:"default_rpm"`
		ProviderOverrides map[string]int `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

var builtInRPM = map[string]int{
	"openrouter": 300,
	"jina":       500,
}

var (
	mu       sync.Mutex
	limiters = map[string]*rate.Limiter{}
	loaded   *fileConfig
)

var configPaths = []string{
	os.Getenv("RATELIMITS_CONFIG_PATH"),
	"/app/config/ratelimits.yaml",
	"./config/ratelimits.yaml",
}

func loadLocked() *fileConfig {
	if loaded != nil {
		return loaded
	}
	loaded = &fileConfig{}
	for _, p := range configPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp fileConfig
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			log.Printf("WARNING: bad rate limit config %s: %v", filepath.Clean(p), err)
			continue
		}
		loaded = &tmp
		break
	}
	return loaded
}

func rpmFor(provider string) int {
	cfg := loadLocked()
	key := strings.ToLower(strings.TrimSpace(provider))
	if n, ok := cfg.RateLimits.ProviderOverrides[key]; ok && n > 0 {
		return n
	}
	if n, ok := builtInRPM[key]; ok {
		return n
	}
	if cfg.RateLimits.DefaultRPM > 0 {
		return cfg.RateLimits.DefaultRPM
	}
	return 120
}

func limiterFor(provider string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(provider))
	if l, ok := limiters[key]; ok {
		return l
	}
	rpm := rpmFor(key)
	l := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burstFor(rpm))
	limiters[key] = l
	return l
}

func burstFor(rpm int) int {
	b := rpm / 10
	if b < 1 {
		b = 1
	}
	return b
}

// Wait blocks until the provider's limiter admits one request or the
// context expires.
func Wait(ctx context.Context, provider string) error {
	return limiterFor(provider).Wait(ctx)
}

// Allow reports whether a request may proceed right now without waiting.
func Allow(provider string) bool {
	return limiterFor(provider).Allow()
}
