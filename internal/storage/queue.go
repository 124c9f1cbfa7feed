package storage

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-pneumonet-api/internal/logger"
)

const storeTimeout = 30 * time.Second

type job struct {
	name string
	data []byte
}

// ArchiveQueue moves archive writes off the request path. Submissions are
// buffered and drained by a small set of workers; a failed write is logged
// and dropped, never retried.
type ArchiveQueue struct {
	archiver Archiver
	jobs     chan job
	workers  int
	wg       sync.WaitGroup
	once     sync.Once
}

// NewArchiveQueue creates a queue draining into the given archiver.
func NewArchiveQueue(archiver Archiver, workers int) *ArchiveQueue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &ArchiveQueue{
		archiver: archiver,
		jobs:     make(chan job, workers*4),
		workers:  workers,
	}
}

// Start launches the workers. Safe to call more than once.
func (q *ArchiveQueue) Start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			go q.worker()
		}
	})
}

func (q *ArchiveQueue) worker() {
	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := q.archiver.Store(ctx, j.name, j.data); err != nil {
			logger.WithError(err).WithField("name", j.name).
				Warn("Failed to archive upload")
		}
		cancel()
		q.wg.Done()
	}
}

// Submit queues one upload for archival under a collision-free name
// derived from the sanitized filename.
func (q *ArchiveQueue) Submit(filename string, data []byte) {
	name := uuid.NewString() + "_" + filename

	buf := make([]byte, len(data))
	copy(buf, data)

	q.wg.Add(1)
	select {
	case q.jobs <- job{name: name, data: buf}:
		logger.WithFields(logrus.Fields{
			"name": name,
			"size": len(buf),
		}).Debug("Upload queued for archival")
	default:
		// Queue full; drop rather than block a prediction.
		q.wg.Done()
		logger.WithField("name", name).Warn("Archive queue full, upload dropped")
	}
}

// Wait blocks until every accepted submission has been processed.
func (q *ArchiveQueue) Wait() {
	q.wg.Wait()
}

// Close drains outstanding jobs and stops the workers.
func (q *ArchiveQueue) Close() {
	q.wg.Wait()
	close(q.jobs)
}
