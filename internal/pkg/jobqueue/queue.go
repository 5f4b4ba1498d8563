package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fitstack/mindbridge/app/models"
	"github.com/fitstack/mindbridge/internal/pkg/cache"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "webhook:job:"
	JobQueueKey      = "webhook_job_queue"
	JobProcessingKey = "webhook_job_processing"
	JobStatsKey      = "webhook_job_stats"

	// Jobs expire after 24 hours; the event row is the durable record.
	JobTTL = 24 * time.Hour
)

// Queue dispatches stored webhook events to a pool of workers over a
// Redis list. It implements webhook.Dispatcher. Ordering across distinct
// events is not guaranteed.
type Queue struct {
	client  *redis.Client
	svc     *webhook.Service
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a dispatch queue feeding the given webhook service.
func NewQueue(svc *webhook.Service, workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}

	return &Queue{
		client:  cache.GetClient(),
		svc:     svc,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the queue workers and the stuck-job sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recovers jobs stuck in the processing list after a crash.
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, time.Minute)
}

// Stop stops the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// Enqueue schedules a freshly stored event for processing.
func (q *Queue) Enqueue(event *models.WebhookEvent) error {
	return q.push(context.Background(), event.ID, event.EventType)
}

// EnqueueAfter schedules a retry attempt once the backoff delay passes.
func (q *Queue) EnqueueAfter(eventID uint, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		if err := q.push(context.Background(), eventID, ""); err != nil {
			log.Errorf("[JobQueue] Failed to requeue event %d: %v", eventID, err)
		}
	})
	return nil
}

func (q *Queue) push(ctx context.Context, eventID uint, eventType string) error {
	job := &Job{
		ID:        uuid.New().String(),
		EventID:   eventID,
		EventType: eventType,
		CreatedAt: time.Now(),
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// Pipeline keeps the job record and the queue entry in step.
	pipe := q.client.Pipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, "enqueued", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (event %d)", job.ID, eventID)
	return nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if job != nil {
				q.processJob(ctx, job)
			}
		}
	}
}

// dequeueJob moves the next job id from pending to processing atomically
// and loads its record.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		// Job data not found, remove from processing queue
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s", jobID)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	now := time.Now()
	job.StartedAt = &now
	q.updateJob(ctx, &job)
	return &job, nil
}

// processJob loads the event row and runs it through the webhook service.
// Failure bookkeeping (retry scheduling, terminal state) happens inside
// the service; the job itself is always consumed.
func (q *Queue) processJob(ctx context.Context, job *Job) {
	event, err := q.svc.Repo().GetByID(job.EventID)
	if err != nil {
		log.Errorf("[JobQueue] Job %s: event %d not loadable: %v", job.ID, job.EventID, err)
		q.finishJob(ctx, job.ID, "failed")
		return
	}

	if q.svc.ProcessEvent(ctx, event) {
		q.finishJob(ctx, job.ID, "completed")
	} else {
		q.finishJob(ctx, job.ID, "failed")
	}
}

func (q *Queue) finishJob(ctx context.Context, jobID, outcome string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s: %v", jobID, err)
	}
	if err := q.client.HIncrBy(ctx, JobStatsKey, outcome, 1).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// stuckSweeper periodically requeues jobs stuck in processing longer than maxAge
func (q *Queue) stuckSweeper(maxAge, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				data, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
				if err != nil {
					// Job data missing; remove from processing list
					if err != redis.Nil {
						log.Errorf("[JobQueue] Sweeper Get error for %s: %v", id, err)
					}
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				var job Job
				if uerr := json.Unmarshal([]byte(data), &job); uerr != nil {
					log.Errorf("[JobQueue] Sweeper unmarshal error for %s: %v", id, uerr)
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					continue
				}
				started := job.StartedAt
				if started == nil || started.IsZero() {
					started = &job.CreatedAt
				}
				if now.Sub(*started) > maxAge {
					log.Warnf("[JobQueue] Recovering stuck job %s (event %d), age=%s", job.ID, job.EventID, now.Sub(*started))
					job.StartedAt = nil
					q.updateJob(ctx, &job)
					_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
					_ = q.client.RPush(ctx, JobQueueKey, id).Err()
				}
			}
		}
	}
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
