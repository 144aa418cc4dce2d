package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// ReadingPruner deletes readings older than a cutoff
type ReadingPruner interface {
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob periodically deletes readings older than maxAge
type RetentionJob struct {
	store     ReadingPruner
	maxAge    time.Duration
	interval  time.Duration
	ticker    *time.Ticker
	stopChan  chan bool
	mu        sync.RWMutex
	isRunning bool
	now       func() time.Time
}

// NewRetentionJob creates a new retention job instance
func NewRetentionJob(store ReadingPruner, maxAge, interval time.Duration) *RetentionJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionJob{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		stopChan: make(chan bool),
		now:      time.Now,
	}
}

// Start begins the retention background process
func (j *RetentionJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning {
		log.Println("⚠️  Retention: Already running")
		return
	}
	if j.maxAge <= 0 {
		log.Println("ℹ️  Retention: Disabled (no max age configured)")
		return
	}

	j.ticker = time.NewTicker(j.interval)
	j.isRunning = true

	log.Printf("🕐 Retention: Started - keeping %s of readings, checking every %s", j.maxAge, j.interval)

	go j.run()
}

// Stop halts the retention job
func (j *RetentionJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.isRunning {
		return
	}

	j.ticker.Stop()
	j.stopChan <- true
	j.isRunning = false

	log.Println("🛑 Retention: Stopped")
}

// run is the main retention loop
func (j *RetentionJob) run() {
	// Prune immediately on start
	j.RunOnce(context.Background())

	for {
		select {
		case <-j.ticker.C:
			j.RunOnce(context.Background())
		case <-j.stopChan:
			return
		}
	}
}

// RunOnce deletes readings older than maxAge and returns how many went
func (j *RetentionJob) RunOnce(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.maxAge)

	deleted, err := j.store.DeleteReadingsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("❌ Retention: Failed to delete readings before %s: %v", cutoff.Format(time.RFC3339), err)
		return 0
	}

	if deleted > 0 {
		log.Printf("✅ Retention: Deleted %d reading(s) older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted
}

// IsRunning returns whether the retention job is currently running
func (j *RetentionJob) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.isRunning
}
