// Package analytics emits search events to a capped Redis stream.
// Emission is fire-and-forget: the event is written on a detached
// goroutine and a failure is only counted and logged.
package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
	ometrics "github.com/maktabah/bahith/internal/metrics"
)

const emitTimeout = 2 * time.Second

// Event is one completed search.
type Event struct {
	Query       string
	Mode        string
	Script      string
	Refined     bool
	BookCount   int
	AyahCount   int
	HadithCount int
	DurationMS  int64
}

// Config names the stream.
type Config struct {
	Stream string
	MaxLen int64
}

func (c *Config) applyDefaults() {
	if c.Stream == "" {
		c.Stream = "bahith:search:events"
	}
	if c.MaxLen == 0 {
		c.MaxLen = 100000
	}
}

// Emitter writes events to the stream.
type Emitter struct {
	cfg Config
	rdb *circuitbreaker.RedisWrapper // nil disables emission
	log *zap.Logger
}

func New(cfg Config, rdb *circuitbreaker.RedisWrapper, logger *zap.Logger) *Emitter {
	cfg.applyDefaults()
	return &Emitter{cfg: cfg, rdb: rdb, log: logger}
}

// Emit writes the event on a detached goroutine; it never blocks the
// response and never returns an error to the caller.
func (e *Emitter) Emit(ev Event) {
	if e == nil || e.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		e.emit(ctx, ev)
	}()
}

func (e *Emitter) emit(ctx context.Context, ev Event) {
	err := e.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: e.cfg.Stream,
		MaxLen: e.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":     uuid.NewString(),
			"query":        ev.Query,
			"mode":         ev.Mode,
			"script":       ev.Script,
			"refined":      strconv.FormatBool(ev.Refined),
			"book_count":   strconv.Itoa(ev.BookCount),
			"ayah_count":   strconv.Itoa(ev.AyahCount),
			"hadith_count": strconv.Itoa(ev.HadithCount),
			"duration_ms":  strconv.FormatInt(ev.DurationMS, 10),
			"ts_nano":      strconv.FormatInt(time.Now().UnixNano(), 10),
		},
	}).Err()
	if err != nil {
		ometrics.AnalyticsEvents.WithLabelValues("error").Inc()
		e.log.Warn("analytics event dropped", zap.Error(err))
		return
	}
	ometrics.AnalyticsEvents.WithLabelValues("ok").Inc()
}
