package services

import (
	"context"
	"sync"
	"time"

	"unplug/config"
	"unplug/models"

	"go.uber.org/zap"
)

// ReportBatchWriter persists a batch of analytics reports
type ReportBatchWriter interface {
	WriteBatch(ctx context.Context, reports []models.AnalyticsReport) error
}

// BatchWriterService batches analytics reports and writes them to the archive
type BatchWriterService struct {
	config       *config.Config
	writer       ReportBatchWriter
	logger       *zap.Logger
	incoming     chan models.AnalyticsReport
	buffer       []models.AnalyticsReport
	bufferMutex  sync.Mutex
	flushTimer   *time.Timer
	maxBatchSize int
	batchTimeout time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

// NewBatchWriterService creates a new batch writer service
func NewBatchWriterService(cfg *config.Config, writer ReportBatchWriter, logger *zap.Logger) *BatchWriterService {
	return &BatchWriterService{
		config:       cfg,
		writer:       writer,
		logger:       logger,
		incoming:     make(chan models.AnalyticsReport, cfg.FirebaseBatchSize*2),
		buffer:       make([]models.AnalyticsReport, 0, cfg.FirebaseBatchSize),
		maxBatchSize: cfg.FirebaseBatchSize,
		batchTimeout: time.Duration(cfg.FirebaseBatchTimeout) * time.Second,
		maxRetries:   3,
		retryBackoff: time.Second,
	}
}

// Enqueue hands a report to the writer without blocking. Reports are dropped while the queue is full.
func (bw *BatchWriterService) Enqueue(report models.AnalyticsReport) {
	select {
	case bw.incoming <- report:
	default:
		bw.logger.Warn("Batch writer queue full, dropping report",
			zap.String("entity_id", report.EntityID))
	}
}

// Start begins the batch writer service
func (bw *BatchWriterService) Start(ctx context.Context) error {
	bw.logger.Info("Starting batch writer service",
		zap.Int("max_batch_size", bw.maxBatchSize),
		zap.Duration("batch_timeout", bw.batchTimeout))

	bw.flushTimer = time.NewTimer(bw.batchTimeout)
	defer bw.flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.logger.Info("Batch writer received shutdown signal")
			bw.drain()
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			bw.flushBuffer(flushCtx)
			cancel()
			return nil

		case report := <-bw.incoming:
			currentSize := bw.add(report)

			bw.logger.Debug("Added analytics report to buffer",
				zap.String("entity_id", report.EntityID),
				zap.Int("buffer_size", currentSize),
				zap.Int("max_batch_size", bw.maxBatchSize))

			if currentSize >= bw.maxBatchSize {
				bw.logger.Info("Buffer full, flushing to archive",
					zap.Int("buffer_size", currentSize))

				if !bw.flushTimer.Stop() {
					select {
					case <-bw.flushTimer.C:
					default:
					}
				}

				bw.flushBuffer(ctx)
				bw.flushTimer.Reset(bw.batchTimeout)
			}

		case <-bw.flushTimer.C:
			if currentSize := bw.BufferSize(); currentSize > 0 {
				bw.logger.Info("Batch timeout reached, flushing to archive",
					zap.Int("buffer_size", currentSize))
				bw.flushBuffer(ctx)
			}

			bw.flushTimer.Reset(bw.batchTimeout)
		}
	}
}

func (bw *BatchWriterService) add(report models.AnalyticsReport) int {
	bw.bufferMutex.Lock()
	defer bw.bufferMutex.Unlock()
	bw.buffer = append(bw.buffer, report)
	return len(bw.buffer)
}

// drain moves reports still queued into the buffer
func (bw *BatchWriterService) drain() {
	for {
		select {
		case report := <-bw.incoming:
			bw.add(report)
		default:
			return
		}
	}
}

// flushBuffer writes the current buffer to the archive and clears it
func (bw *BatchWriterService) flushBuffer(ctx context.Context) {
	bw.bufferMutex.Lock()

	if len(bw.buffer) == 0 {
		bw.bufferMutex.Unlock()
		return
	}

	batch := make([]models.AnalyticsReport, len(bw.buffer))
	copy(batch, bw.buffer)
	bw.buffer = bw.buffer[:0]

	bw.bufferMutex.Unlock()

	var err error
	for attempt := 1; attempt <= bw.maxRetries; attempt++ {
		err = bw.writer.WriteBatch(ctx, batch)
		if err == nil {
			bw.logger.Info("Successfully flushed batch to archive",
				zap.Int("batch_size", len(batch)))
			return
		}

		bw.logger.Error("Failed to flush batch to archive",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", bw.maxRetries),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))

		if attempt < bw.maxRetries {
			select {
			case <-ctx.Done():
				bw.logger.Error("Batch flush aborted, data lost",
					zap.Int("batch_size", len(batch)),
					zap.Error(ctx.Err()))
				return
			case <-time.After(time.Duration(attempt) * bw.retryBackoff):
			}
		}
	}

	bw.logger.Error("Failed to flush batch after all retries, data lost",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// BufferSize returns the current buffer size
func (bw *BatchWriterService) BufferSize() int {
	bw.bufferMutex.Lock()
	defer bw.bufferMutex.Unlock()
	return len(bw.buffer)
}
