// Package metrics provides in-memory runtime statistics for enrichment runs.
package metrics

import (
	"sync"
	"time"
)

// series accumulates count, total, min and max of int64 observations.
type series struct {
	n     int64
	total int64
	min   int64
	max   int64
}

func (s *series) observe(v int64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.n++
	s.total += v
}

func (s series) avg() float64 {
	if s.n == 0 {
		return 0
	}
	return float64(s.total) / float64(s.n)
}

// opStats holds the raw series of one operation. Durations are stored in nanoseconds.
type opStats struct {
	duration series
	input    series
	output   series
	tokens   bool
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64
	TotalOutputTokens *int64
	AvgInputTokens    *float64
	AvgOutputTokens   *float64
	MinInputTokens    *int64
	MaxInputTokens    *int64
	MinOutputTokens   *int64
	MaxOutputTokens   *int64
}

// Snapshot represents the run statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Search        *OperationSnapshot
	CacheHits     int64
	Embedding     *OperationSnapshot
	LLMGenerate   *OperationSnapshot
	Entity        *OperationSnapshot
	Failures      map[string]int64
}

// Operation names for the collector.
const (
	OpSearch      = "search"
	OpEmbedding   = "embedding"
	OpLLMGenerate = "llm_generate"
	OpEntity      = "entity"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe. Record methods are no-ops on a nil Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*opStats
	cacheHits int64
	failures  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opStats),
		failures:  make(map[string]int64),
	}
}

// op returns the stats for name, creating them on first use. Caller must hold the write lock.
func (c *Collector) op(name string) *opStats {
	s, ok := c.ops[name]
	if !ok {
		s = &opStats{}
		c.ops[name] = s
	}
	return s
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.op(op).duration.observe(int64(duration))
}

// RecordCacheHit counts a search served from the query cache.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// RecordFailure counts a recovered per-entity failure by stage.
func (c *Collector) RecordFailure(stage string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[stage]++
}

// RecordLLMUsage records timing and token usage for an LLM operation.
// Token counts of zero mean the provider did not report usage.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.op(op)
	s.duration.observe(int64(duration))
	s.input.observe(inputTokens)
	s.output.observe(outputTokens)
	if inputTokens > 0 || outputTokens > 0 {
		s.tokens = true
	}
}

func ms(ns int64) int64 { return time.Duration(ns).Milliseconds() }

// snapshot converts raw stats, returning nil if the operation never ran.
func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || s.duration.n == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       s.duration.n,
		TotalTimeMs: ms(s.duration.total),
		AvgTimeMs:   float64(ms(s.duration.total)) / float64(s.duration.n),
		MinTimeMs:   ms(s.duration.min),
		MaxTimeMs:   ms(s.duration.max),
	}
	if !s.tokens {
		return snap
	}

	in, out := s.input, s.output
	avgIn, avgOut := in.avg(), out.avg()
	snap.TotalInputTokens = &in.total
	snap.TotalOutputTokens = &out.total
	snap.AvgInputTokens = &avgIn
	snap.AvgOutputTokens = &avgOut
	snap.MinInputTokens = &in.min
	snap.MaxInputTokens = &in.max
	snap.MinOutputTokens = &out.min
	snap.MaxOutputTokens = &out.max
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	failures := make(map[string]int64, len(c.failures))
	for stage, n := range c.failures {
		failures[stage] = n
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Search:        c.ops[OpSearch].snapshot(),
		CacheHits:     c.cacheHits,
		Embedding:     c.ops[OpEmbedding].snapshot(),
		LLMGenerate:   c.ops[OpLLMGenerate].snapshot(),
		Entity:        c.ops[OpEntity].snapshot(),
		Failures:      failures,
	}
}
