package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueStock = "mafaconnect:jobs:stock"

	JobLowStock = "low_stock"
)

// Job is the envelope stored in the Redis queue.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Handler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher enqueues jobs into a Redis list consumed by BRPOP workers. With
// no Redis client every job runs inline on Enqueue.
type Dispatcher struct {
	rdb redis.UniversalClient

	mu       sync.RWMutex
	handlers map[string]Handler
	wg       sync.WaitGroup
}

func NewDispatcher(rdb redis.UniversalClient) *Dispatcher {
	return &Dispatcher{rdb: rdb, handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(jobType string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = handler
}

func (d *Dispatcher) Enqueue(ctx context.Context, jobType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}

	if d.rdb == nil {
		return d.process(ctx, job)
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, QueueStock, encoded).Err()
}

// Start launches numWorkers goroutines blocking on BRPOP until ctx is done.
func (d *Dispatcher) Start(ctx context.Context, numWorkers int) {
	if d.rdb == nil {
		log.Info().Str("component", "worker").Msg("redis not configured, jobs run inline")
		return
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		d.wg.Add(1)
		go d.run(ctx, i)
	}
	log.Info().Str("component", "worker").Int("workers", numWorkers).Msg("worker pool started")
}

// Wait blocks until every worker started by Start has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		if ctx.Err() != nil {
			log.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
		result, err := d.rdb.BRPop(ctx, 5*time.Second, QueueStock).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn().Err(err).Int("worker", id).Msg("brpop failed")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error().Err(err).Str("queue", result[0]).Msg("failed to unmarshal job")
			continue
		}
		if err := d.process(ctx, job); err != nil {
			log.Error().Err(err).Str("type", job.Type).Int("worker", id).Msg("job failed")
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) error {
	d.mu.RLock()
	handler, ok := d.handlers[job.Type]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for job type %q", job.Type)
	}
	return handler(ctx, job.Payload)
}
