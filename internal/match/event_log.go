package match

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"volley-duel/internal/game"
)

const (
	EventBufferSize     = 1024                   // Circular buffer size
	MaxEventsPerSec     = 10000                  // Global rate limit
	MaxEventsPerMatch   = 500                    // Per-match rate limit per second
	BatchFlushSize      = 64                     // Events per batch write
	BatchFlushInterval  = 100 * time.Millisecond // How often to flush
	MatchLimiterCleanup = 5 * time.Minute        // Cleanup interval for match limiters
)

// JournalEntry is one line of the JSONL match journal.
type JournalEntry struct {
	Sequence uint64          `json:"seq"`
	MatchID  string          `json:"match"`
	Step     uint64          `json:"step"`
	Time     time.Time       `json:"time"`
	Event    game.MatchEvent `json:"event"`
	Score    [2]uint32       `json:"score"`
}

// EventLog provides bounded, rate-limited journaling of match events with
// backpressure. Entries are appended to a file as newline-delimited JSON.
type EventLog struct {
	mu        sync.Mutex
	buffer    [EventBufferSize]JournalEntry
	writeHead uint64 // guarded by mu
	readHead  uint64 // guarded by mu

	// Rate limiting so one runaway match cannot starve the others
	globalLimiter *rate.Limiter
	matchLimiters map[string]*matchLimiterEntry // guarded by mu

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type matchLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		matchLimiters: make(map[string]*matchLimiterEntry),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the async writer goroutine. An empty path keeps entries in
// memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	el.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()

	return nil
}

// Stop flushes what is pending and closes the file.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit journals an entry. Returns false if the log is stopped or the entry
// was rate limited.
func (el *EventLog) Emit(entry JournalEntry) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if entry.MatchID != "" && !el.matchLimiter(entry.MatchID).Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.writeHead++
	if el.writeHead-el.readHead > EventBufferSize {
		// Writer fell behind: the oldest unflushed entry is lost
		el.readHead++
		el.droppedCount.Add(1)
	}

	entry.Sequence = el.writeHead
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	el.buffer[el.writeHead%EventBufferSize] = entry

	el.totalCount.Add(1)
	return true
}

// EmitEvents journals the events of one match step.
func (el *EventLog) EmitEvents(matchID string, step uint64, score [2]uint32, events []game.MatchEvent) int {
	now := time.Now()
	n := 0
	for _, e := range events {
		if el.Emit(JournalEntry{MatchID: matchID, Step: step, Time: now, Event: e, Score: score}) {
			n++
		}
	}
	return n
}

// Recent returns up to n of the latest buffered entries of one match,
// oldest first.
func (el *EventLog) Recent(matchID string, n int) []JournalEntry {
	el.mu.Lock()
	defer el.mu.Unlock()

	var out []JournalEntry
	oldest := uint64(1)
	if el.writeHead > EventBufferSize {
		oldest = el.writeHead - EventBufferSize + 1
	}
	for seq := el.writeHead; seq >= oldest && seq > 0 && len(out) < n; seq-- {
		e := el.buffer[seq%EventBufferSize]
		if e.MatchID == matchID {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Forget drops the per-match limiter of a removed match.
func (el *EventLog) Forget(matchID string) {
	el.mu.Lock()
	delete(el.matchLimiters, matchID)
	el.mu.Unlock()
}

// matchLimiter returns/creates a per-match rate limiter. Caller holds mu.
func (el *EventLog) matchLimiter(matchID string) *rate.Limiter {
	if entry, ok := el.matchLimiters[matchID]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}
	entry := &matchLimiterEntry{
		limiter:  rate.NewLimiter(MaxEventsPerMatch, MaxEventsPerMatch/5),
		lastUsed: time.Now(),
	}
	el.matchLimiters[matchID] = entry
	return entry.limiter
}

// writerLoop batches and writes entries to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]JournalEntry, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes stale match limiters
func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(MatchLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupMatchLimiters(time.Now().Add(-MatchLimiterCleanup))
		}
	}
}

func (el *EventLog) cleanupMatchLimiters(cutoff time.Time) {
	el.mu.Lock()
	defer el.mu.Unlock()
	for id, entry := range el.matchLimiters {
		if entry.lastUsed.Before(cutoff) {
			delete(el.matchLimiters, id)
		}
	}
}

// collectBatch reads unflushed entries from the circular buffer
func (el *EventLog) collectBatch(batch []JournalEntry) []JournalEntry {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch appends entries to the journal file as JSON lines.
func (el *EventLog) flushBatch(batch []JournalEntry) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()
	if el.file == nil {
		return
	}

	w := bufio.NewWriter(el.file)
	enc := json.NewEncoder(w)
	for i := range batch {
		if err := enc.Encode(&batch[i]); err != nil {
			log.Printf("⚠️ Journal entry %d not written: %v", batch[i].Sequence, err)
		}
	}
	if err := w.Flush(); err != nil {
		log.Printf("⚠️ Journal flush failed: %v", err)
	}
}

// JournalStats are the journal's counters.
type JournalStats struct {
	Written uint64 // accepted entries
	Dropped uint64 // rate limited or overwritten before the flush
	Pending uint64 // accepted but not yet flushed
}

func (el *EventLog) Stats() JournalStats {
	el.mu.Lock()
	pending := el.writeHead - el.readHead
	el.mu.Unlock()
	return JournalStats{
		Written: el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: pending,
	}
}
