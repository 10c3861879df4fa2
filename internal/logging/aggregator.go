package logging

import (
	"log/slog"
	"sync"
	"time"
)

// chunkKey identifies an event type for batching.
type chunkKey struct {
	Component string
	Event     string
}

// chunkStats accumulates counts and byte totals for one event type.
type chunkStats struct {
	Count int64
	Bytes int64
}

// ChunkAggregator batches high-frequency output-chunk events and emits
// periodic summaries instead of one log line per chunk. Terminal output can
// arrive hundreds of times per second; logging each chunk would drown the
// log file.
type ChunkAggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[chunkKey]*chunkStats

	done chan struct{}
	wg   sync.WaitGroup
}

// NewChunkAggregator creates an aggregator that flushes every intervalSecs
// seconds. If logger is nil, recorded events are silently dropped.
func NewChunkAggregator(logger *slog.Logger, intervalSecs int) *ChunkAggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &ChunkAggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		entries:  make(map[chunkKey]*chunkStats),
		done:     make(chan struct{}),
	}
}

// Start begins the background flush goroutine.
func (a *ChunkAggregator) Start() {
	a.wg.Add(1)
	go a.flushLoop()
}

// Stop flushes remaining entries and stops the background goroutine.
func (a *ChunkAggregator) Stop() {
	close(a.done)
	a.wg.Wait()
	a.flush()
}

// Record adds one event occurrence with its payload size in bytes.
func (a *ChunkAggregator) Record(component, event string, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := chunkKey{Component: component, Event: event}
	stats, ok := a.entries[key]
	if !ok {
		stats = &chunkStats{}
		a.entries[key] = stats
	}
	stats.Count++
	stats.Bytes += int64(size)
}

func (a *ChunkAggregator) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *ChunkAggregator) flush() {
	a.mu.Lock()
	if len(a.entries) == 0 {
		a.mu.Unlock()
		return
	}
	entries := a.entries
	a.entries = make(map[chunkKey]*chunkStats)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for key, stats := range entries {
		a.logger.Info("chunk_summary",
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", stats.Count),
			slog.Int64("bytes", stats.Bytes),
			slog.Int("window_seconds", int(a.interval.Seconds())))
	}
}
