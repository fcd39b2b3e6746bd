package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/TobiasKell/NoteMorph/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	statsTicker        *time.Ticker
	purgeTicker        *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 2
		if v, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "2")); err == nil && v > 0 {
			workerCount = v
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// Counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	// Statistics cache refresh every 5 minutes
	m.statsTicker = time.NewTicker(5 * time.Minute)
	m.wg.Add(1)
	go m.statsWorker()

	// Processed webhook event purge once a day
	m.purgeTicker = time.NewTicker(24 * time.Hour)
	m.wg.Add(1)
	go m.purgeWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.statsTicker != nil {
		m.statsTicker.Stop()
	}
	if m.purgeTicker != nil {
		m.purgeTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes pending view counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeCounterFlush, nil); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue counter flush: %v", err)
			}
		}
	}
}

// statsWorker periodically schedules a statistics cache refresh
func (m *Manager) statsWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Statistics worker stopping")
			return
		case <-m.statsTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeStatsRefresh, nil); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue statistics refresh: %v", err)
			}
		}
	}
}

// purgeWorker periodically schedules a purge of old processed webhook events
func (m *Manager) purgeWorker() {
	defer m.wg.Done()

	retention := DefaultWebhookRetentionDays
	if v, err := strconv.Atoi(env.GetEnv("BILLING_EVENT_RETENTION_DAYS", "")); err == nil && v > 0 {
		retention = v
	}

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Purge worker stopping")
			return
		case <-m.purgeTicker.C:
			payload := WebhookPurgeJobPayload{RetentionDays: retention}
			if _, err := m.queue.EnqueueJob(JobTypeWebhookPurge, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue webhook purge: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
