package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/streamsense/recengine/internal/config"
	"github.com/streamsense/recengine/internal/metrics"
	"github.com/streamsense/recengine/pkg/models"
)

// DNAComputation derives the DNA record for one title.
type DNAComputation interface {
	Compute(ctx context.Context, ref models.ContentRef) (*models.ContentDNA, error)
}

// QueueListener receives queue progress. OnComplete fires once per item on a
// terminal outcome: dna is set on success, err after retries are exhausted.
type QueueListener interface {
	OnProgress(status models.QueueStatus)
	OnComplete(item models.QueueItem, dna *models.ContentDNA, err error)
}

// DNAQueue computes missing content DNA in the background, a few titles at a
// time. Each key is in at most one of queued, processing or retrying.
type DNAQueue struct {
	store     DNAStore
	watchlist WatchlistStore
	computer  DNAComputation
	config    config.DNAQueueConfig
	logger    *logrus.Logger
	now       func() time.Time

	mu         sync.Mutex
	pending    []models.QueueItem
	queued     map[string]struct{}
	processing map[string]struct{}
	retrying   map[string]struct{}
	completed  int
	abandoned  int
	running    bool
	listeners  map[int]QueueListener
	nextID     int

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDNAQueue(store DNAStore, watchlist WatchlistStore, computer DNAComputation, cfg config.DNAQueueConfig, logger *logrus.Logger) *DNAQueue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	return &DNAQueue{
		store:      store,
		watchlist:  watchlist,
		computer:   computer,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
		queued:     make(map[string]struct{}),
		processing: make(map[string]struct{}),
		retrying:   make(map[string]struct{}),
		listeners:  make(map[int]QueueListener),
		wake:       make(chan struct{}, 1),
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (q *DNAQueue) Subscribe(l QueueListener) func() {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = l
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// Enqueue adds the title unless it is already queued, processing, waiting for
// a retry, or already has a DNA record. Reports whether it was added.
func (q *DNAQueue) Enqueue(ctx context.Context, tmdbID int, mediaType models.MediaType) bool {
	if tmdbID <= 0 || !mediaType.Valid() {
		return false
	}
	ref := models.ContentRef{TMDbID: tmdbID, MediaType: mediaType}
	if q.tracked(ref.Key()) {
		return false
	}

	exists, err := q.store.Exists(ctx, ref)
	if err != nil {
		q.logger.WithError(err).WithField("content", ref.Key()).Warn("Failed to check content DNA, queueing anyway")
	}
	if exists {
		return false
	}

	return q.push(models.QueueItem{TMDbID: tmdbID, MediaType: mediaType, AddedAt: q.now()}, false)
}

// ScanWatchlistForMissingDNA queues every title on the user's watchlist that
// has no DNA record. Rows with a missing or malformed id are skipped.
func (q *DNAQueue) ScanWatchlistForMissingDNA(ctx context.Context, userID uuid.UUID) (int, error) {
	items, err := q.watchlist.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load watchlist: %w", err)
	}

	refs := make([]models.ContentRef, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		ref, ok := item.Ref()
		if !ok {
			continue
		}
		if _, dup := seen[ref.Key()]; dup {
			continue
		}
		seen[ref.Key()] = struct{}{}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	existing, err := q.store.ExistingKeys(ctx, refs)
	if err != nil {
		return 0, fmt.Errorf("failed to check content DNA: %w", err)
	}

	added := 0
	for _, ref := range refs {
		if existing.Has(ref.Key()) {
			continue
		}
		if q.push(models.QueueItem{TMDbID: ref.TMDbID, MediaType: ref.MediaType, AddedAt: q.now()}, false) {
			added++
		}
	}

	q.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"watchlist": len(items),
		"valid":     len(refs),
		"queued":    added,
	}).Info("Scanned watchlist for missing content DNA")
	return added, nil
}

// Status returns a point-in-time snapshot.
func (q *DNAQueue) Status() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

func (q *DNAQueue) statusLocked() models.QueueStatus {
	return models.QueueStatus{
		Queued:     len(q.pending),
		Processing: len(q.processing),
		Retrying:   len(q.retrying),
		Completed:  q.completed,
		Abandoned:  q.abandoned,
		Running:    q.running,
	}
}

// Start runs the worker until ctx is cancelled or Stop is called.
func (q *DNAQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.mu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"batch_size":  q.config.BatchSize,
		"batch_delay": q.config.BatchDelay,
		"max_retries": q.config.MaxRetries,
	}).Info("Content DNA queue started")

	q.wg.Add(1)
	go q.run(ctx)
}

// Stop cancels the worker and waits for in-flight work and retry timers.
func (q *DNAQueue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()

	q.mu.Lock()
	q.running = false
	q.cancel = nil
	q.mu.Unlock()
	q.logger.Info("Content DNA queue stopped")
}

func (q *DNAQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		batch := q.take()
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.process(ctx, batch)

		select {
		case <-ctx.Done():
			return
		case <-time.After(q.config.BatchDelay):
		}
	}
}

// take moves up to BatchSize items from queued to processing.
func (q *DNAQueue) take() []models.QueueItem {
	q.mu.Lock()
	n := min(q.config.BatchSize, len(q.pending))
	batch := append([]models.QueueItem(nil), q.pending[:n]...)
	q.pending = q.pending[n:]
	for _, item := range batch {
		delete(q.queued, item.Key())
		q.processing[item.Key()] = struct{}{}
	}
	status := q.statusLocked()
	q.mu.Unlock()

	if len(batch) > 0 {
		q.progress(status)
	}
	return batch
}

func (q *DNAQueue) process(ctx context.Context, batch []models.QueueItem) {
	var g errgroup.Group
	for _, item := range batch {
		g.Go(func() error {
			q.computeOne(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

func (q *DNAQueue) computeOne(ctx context.Context, item models.QueueItem) {
	ref := models.ContentRef{TMDbID: item.TMDbID, MediaType: item.MediaType}
	dna, err := q.computer.Compute(ctx, ref)
	if err == nil {
		if err = q.store.Upsert(ctx, dna); err != nil {
			err = fmt.Errorf("failed to save content DNA: %w", err)
		}
	}

	if err == nil {
		metrics.DNAComputations.WithLabelValues("success").Inc()
		q.mu.Lock()
		delete(q.processing, item.Key())
		q.completed++
		status := q.statusLocked()
		q.mu.Unlock()

		q.logger.WithFields(logrus.Fields{
			"content":  item.Key(),
			"attempts": item.RetryCount + 1,
		}).Info("Computed content DNA")
		q.complete(item, dna, nil)
		q.progress(status)
		return
	}

	if item.RetryCount < q.config.MaxRetries && ctx.Err() == nil {
		metrics.DNAComputations.WithLabelValues("retry").Inc()
		q.mu.Lock()
		delete(q.processing, item.Key())
		q.retrying[item.Key()] = struct{}{}
		status := q.statusLocked()
		q.mu.Unlock()

		q.logger.WithError(err).WithFields(logrus.Fields{
			"content": item.Key(),
			"retry":   item.RetryCount + 1,
		}).Warn("Content DNA computation failed, retrying")
		q.progress(status)
		q.scheduleRetry(ctx, item)
		return
	}

	metrics.DNAComputations.WithLabelValues("abandoned").Inc()
	q.mu.Lock()
	delete(q.processing, item.Key())
	q.abandoned++
	status := q.statusLocked()
	q.mu.Unlock()

	q.logger.WithError(err).WithFields(logrus.Fields{
		"content":  item.Key(),
		"attempts": item.RetryCount + 1,
	}).Error("Content DNA computation abandoned")
	q.complete(item, nil, err)
	q.progress(status)
}

func (q *DNAQueue) scheduleRetry(ctx context.Context, item models.QueueItem) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-ctx.Done():
			q.mu.Lock()
			delete(q.retrying, item.Key())
			q.mu.Unlock()
			return
		case <-time.After(q.config.RetryDelay):
		}
		item.RetryCount++
		q.push(item, true)
	}()
}

// push appends item to the queue. A retry is allowed to move its key out of
// the retrying set; anything else is rejected if the key is tracked.
func (q *DNAQueue) push(item models.QueueItem, retry bool) bool {
	key := item.Key()
	q.mu.Lock()
	if retry {
		delete(q.retrying, key)
	}
	if q.trackedLocked(key) {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, item)
	q.queued[key] = struct{}{}
	status := q.statusLocked()
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.progress(status)
	return true
}

func (q *DNAQueue) tracked(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.trackedLocked(key)
}

func (q *DNAQueue) trackedLocked(key string) bool {
	if _, ok := q.queued[key]; ok {
		return true
	}
	if _, ok := q.processing[key]; ok {
		return true
	}
	_, ok := q.retrying[key]
	return ok
}

func (q *DNAQueue) snapshotListeners() []QueueListener {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueListener, 0, len(q.listeners))
	for _, l := range q.listeners {
		out = append(out, l)
	}
	return out
}

func (q *DNAQueue) progress(status models.QueueStatus) {
	metrics.DNAQueueDepth.WithLabelValues("queued").Set(float64(status.Queued))
	metrics.DNAQueueDepth.WithLabelValues("processing").Set(float64(status.Processing))
	metrics.DNAQueueDepth.WithLabelValues("retrying").Set(float64(status.Retrying))
	for _, l := range q.snapshotListeners() {
		l.OnProgress(status)
	}
}

func (q *DNAQueue) complete(item models.QueueItem, dna *models.ContentDNA, err error) {
	for _, l := range q.snapshotListeners() {
		l.OnComplete(item, dna, err)
	}
}
