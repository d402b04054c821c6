package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/pkg/ids"
	"github.com/eventops/auth-gateway/internal/pkg/metrics"
)

const (
	defaultWorkers      = 4
	channelBuffer       = 256
	defaultWriteTimeout = 5 * time.Second
)

// Dispatcher routes security log entries to a fixed set of workers using
// consistent hashing on the user id, preserving per-user ordering. Record
// never blocks: when a worker's channel is full the entry is dropped and
// counted.
type Dispatcher struct {
	workers      []chan domain.SecurityLogEntry
	sink         ports.SecurityLogRepository
	log          zerolog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers writing
// to sink. If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, sink ports.SecurityLogRepository, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:      make([]chan domain.SecurityLogEntry, numWorkers),
		sink:         sink,
		log:          log,
		writeTimeout: defaultWriteTimeout,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.SecurityLogEntry, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled or
// after Close has drained their channels.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Record implements ports.SecurityAuditor. Missing id, timestamp and user are
// filled in before the entry is queued.
func (d *Dispatcher) Record(_ context.Context, entry domain.SecurityLogEntry) {
	if entry.ID == "" {
		entry.ID = ids.NewULID()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if entry.UserID == "" {
		entry.UserID = domain.UnknownUser
	}
	if entry.Severity == "" {
		entry.Severity = domain.SeverityLow
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.SecurityEventsDroppedTotal.Inc()
		return
	}

	idx := d.shardIndex(entry.UserID)
	select {
	case d.workers[idx] <- entry:
		metrics.SecurityEventsTotal.WithLabelValues(string(entry.Activity), string(entry.Severity)).Inc()
		metrics.SecurityEventsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.SecurityEventsDroppedTotal.Inc()
		d.log.Warn().
			Str("activity", string(entry.Activity)).
			Str("user_id", entry.UserID).
			Int("worker_id", idx).
			Msg("security log queue full, entry dropped")
	}
}

// Close stops accepting entries and waits for workers to drain what is queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.SecurityLogEntry) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			d.write(id, entry)
			metrics.SecurityEventsQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(ch)))
		}
	}
}

// write persists one entry with its own deadline, detached from the request
// that produced it.
func (d *Dispatcher) write(workerID int, entry domain.SecurityLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()

	start := time.Now()
	err := d.sink.Append(ctx, &entry)
	result := "ok"
	if err != nil {
		result = "error"
		d.log.Error().Err(err).
			Str("activity", string(entry.Activity)).
			Str("user_id", entry.UserID).
			Int("worker_id", workerID).
			Msg("security log write failed")
	}
	metrics.SecurityLogWriteDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
