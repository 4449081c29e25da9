package core

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"github.com/x-stp/greenlink/internal/metrics"
)

// LookupFunc performs the work for one domain.
type LookupFunc func(ctx context.Context, domain string)

// WorkItem is one queued domain lookup. Items are pooled.
type WorkItem struct {
	Domain   string
	Ctx      context.Context
	Callback LookupFunc
}

// Scheduler is a fixed pool of lookup workers. Domains are sharded onto workers by
// hash, so lookups of the same domain run one after another on a single worker.
type Scheduler struct {
	numWorkers   int
	workers      []*worker
	ctx          context.Context
	cancel       context.CancelFunc
	shutdown     atomic.Bool
	submitMu     sync.RWMutex // held for reading across a send, for writing to shut down
	workItemPool sync.Pool
	running      sync.WaitGroup
}

type worker struct {
	id        int
	queue     chan *WorkItem
	scheduler *Scheduler
}

// NewScheduler starts numWorkers workers. Values outside [1, MaxWorkers] are clamped,
// zero selects DefaultWorkers.
func NewScheduler(parentCtx context.Context, numWorkers int) *Scheduler {
	switch {
	case numWorkers == 0:
		numWorkers = DefaultWorkers
	case numWorkers < 0:
		numWorkers = 1
	case numWorkers > MaxWorkers:
		numWorkers = MaxWorkers
	}

	sctx, cancel := context.WithCancel(parentCtx)
	s := &Scheduler{
		numWorkers: numWorkers,
		workers:    make([]*worker, numWorkers),
		ctx:        sctx,
		cancel:     cancel,
		workItemPool: sync.Pool{
			New: func() interface{} {
				return &WorkItem{}
			},
		},
	}

	for i := 0; i < numWorkers; i++ {
		w := &worker{
			id:        i,
			queue:     make(chan *WorkItem, WorkerQueueCapacity),
			scheduler: s,
		}
		s.workers[i] = w
		s.running.Add(1)
		go w.run()
	}

	log.Printf("scheduler: started %d lookup workers", numWorkers)
	return s
}

func (w *worker) run() {
	defer w.scheduler.running.Done()
	for {
		select {
		case <-w.scheduler.ctx.Done():
			// The parent context may end without Shutdown being called.
			w.scheduler.closeSubmissions()
			w.drain()
			return
		case item := <-w.queue:
			if item == nil {
				continue
			}
			w.process(item)
		}
	}
}

// drain runs whatever is still queued after shutdown. Callbacks see a cancelled
// context.
func (w *worker) drain() {
	for {
		select {
		case item := <-w.queue:
			if item != nil {
				w.process(item)
			}
		default:
			return
		}
	}
}

func (w *worker) process(item *WorkItem) {
	s := w.scheduler
	m := metrics.GetMetrics()
	m.SetWorkerBusy(w.id, true)

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("scheduler: panic recovered in worker %d looking up %s: %v", w.id, item.Domain, r)
				if metrics.IsMetricsEnabled() {
					m.WorkerPanics.WithLabelValues(strconv.Itoa(w.id)).Inc()
				}
			}
		}()

		parent := item.Ctx
		if parent == nil {
			parent = s.ctx
		}
		// Shutdown cancels lookups already running.
		ctx, cancel := context.WithCancel(parent)
		stop := context.AfterFunc(s.ctx, cancel)
		defer cancel()
		defer stop()

		item.Callback(ctx, item.Domain)
	}()

	m.SetWorkerBusy(w.id, false)
	item.Callback = nil
	item.Domain = ""
	item.Ctx = nil
	s.workItemPool.Put(item)
}

// SubmitWork queues a lookup on the worker owning domain. It never blocks: a full queue
// returns an error wrapping ErrQueueFull, and a stopped scheduler returns
// ErrWorkerShutdown.
func (s *Scheduler) SubmitWork(ctx context.Context, domain string, callback LookupFunc) error {
	s.submitMu.RLock()
	defer s.submitMu.RUnlock()

	if s.shutdown.Load() {
		return ErrWorkerShutdown
	}
	shard := int(xxh3.HashString(domain) % uint64(s.numWorkers))
	target := s.workers[shard]

	item := s.workItemPool.Get().(*WorkItem)
	item.Domain = domain
	item.Ctx = ctx
	item.Callback = callback

	select {
	case target.queue <- item:
		return nil
	default:
		item.Callback = nil
		item.Ctx = nil
		s.workItemPool.Put(item)
		metrics.GetMetrics().RecordBackpressure(target.id)
		return fmt.Errorf("worker %d for %s: %w", target.id, domain, ErrQueueFull)
	}
}

// closeSubmissions reports whether this call was the one that closed the scheduler.
func (s *Scheduler) closeSubmissions() bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	return s.shutdown.CompareAndSwap(false, true)
}

// Shutdown stops accepting work, cancels in-flight lookups and waits for the workers
// to drain their queues. It is safe to call more than once, and after the parent
// context has ended.
func (s *Scheduler) Shutdown() {
	if s.closeSubmissions() {
		log.Println("scheduler: shutting down")
	}
	s.cancel()
	s.running.Wait()
}
