// Package crawl drives a browser across one site and records the xhr and
// fetch traffic of every page it visits as a capture artifact.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/internal/logging"
	"github.com/yourorg/apiscout/internal/metrics"
)

// Stats summarizes a crawl.
type Stats struct {
	Pages     int64 `json:"pages"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
	Exchanges int64 `json:"exchanges"`
	Discarded int64 `json:"discarded"`
}

// Scheduler owns the visited set and the task queue of one crawl.
type Scheduler struct {
	cfg     config.CaptureConfig
	browser Browser
	sink    *Sink
	log     logrus.FieldLogger
	metrics *metrics.Collector

	visited *VisitedSet
	queue   *queue

	pages, skipped, failed, exchanges, discarded atomic.Int64
}

// NewScheduler wires a crawl. Logger and metrics may be nil.
func NewScheduler(cfg config.CaptureConfig, b Browser, sink *Sink, log logrus.FieldLogger, m *metrics.Collector) *Scheduler {
	if log == nil {
		log = logging.Discard()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scheduler{
		cfg:     cfg,
		browser: b,
		sink:    sink,
		log:     log,
		metrics: m,
		visited: NewVisitedSet(),
		queue:   newQueue(),
	}
}

// Visited exposes the set for inspection after a run.
func (s *Scheduler) Visited() *VisitedSet { return s.visited }

// Run crawls from startURL until the queue drains, max pages are claimed
// or the deadline passes. Reaching the deadline is not an error.
func (s *Scheduler) Run(ctx context.Context, startURL string) (Stats, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Scheme == "" || start.Host == "" {
		return Stats{}, fmt.Errorf("invalid start url %q", startURL)
	}
	origin := start.Scheme + "://" + start.Host

	if s.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, s.queue.close)
	defer stop()

	s.enqueue(startURL)
	s.log.WithFields(logrus.Fields{"start": startURL, "workers": s.cfg.Workers}).Info("crawl started")

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id, origin)
		}(i)
	}
	wg.Wait()

	stats := s.snapshot()
	fields := logrus.Fields{
		"pages":     stats.Pages,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
		"exchanges": stats.Exchanges,
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.log.WithFields(fields).Warn("crawl deadline reached")
	case ctx.Err() != nil:
		return stats, ctx.Err()
	default:
		s.log.WithFields(fields).Info("crawl finished")
	}
	return stats, nil
}

func (s *Scheduler) worker(ctx context.Context, id int, origin string) {
	log := s.log.WithField("worker", id)
	for {
		pageURL, ok := s.queue.pop()
		if !ok {
			return
		}
		s.observeQueue()
		s.crawlPage(ctx, log, pageURL, origin)
		s.queue.done()
	}
}

func (s *Scheduler) crawlPage(ctx context.Context, log logrus.FieldLogger, pageURL, origin string) {
	log = log.WithField("page", pageURL)
	if containsAny(pageURL, s.cfg.SkipExtensions) {
		if err := s.sink.WritePage(pageURL); err != nil {
			log.WithError(err).Error("write capture line")
		}
		s.skipped.Add(1)
		s.observePage("skipped")
		return
	}

	pageCtx := ctx
	if s.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, s.cfg.PageTimeout)
		defer cancel()
	}
	start := time.Now()
	page, err := s.browser.Visit(pageCtx, pageURL)
	if err != nil {
		s.failed.Add(1)
		s.observePage("failed")
		log.WithError(err).Warn("failed to crawl page")
		return
	}
	s.pages.Add(1)
	s.observePage("ok")

	kept := 0
	for _, ex := range page.Exchanges {
		if !strings.HasPrefix(ex.URL, origin) || containsAny(ex.URL, s.cfg.IgnoreSubstrings) {
			s.discarded.Add(1)
			continue
		}
		if err := s.sink.WriteExchange(pageURL, ex); err != nil {
			log.WithError(err).Error("write capture line")
			continue
		}
		kept++
		s.exchanges.Add(1)
		if s.metrics != nil {
			s.metrics.ObserveExchange()
		}
	}

	links, err := ExtractLinks(page.HTML, pageURL)
	if err != nil {
		log.WithError(err).Warn("extract links")
	}
	added := 0
	for _, link := range links {
		if s.enqueue(link) {
			added++
		}
	}
	log.WithFields(logrus.Fields{
		"exchanges": kept,
		"links":     added,
		"duration":  time.Since(start),
	}).Debug("page crawled")
}

// enqueue claims u in the visited set and queues it if it was new.
func (s *Scheduler) enqueue(u string) bool {
	if !s.visited.Claim(u, s.cfg.MaxPages) {
		return false
	}
	s.queue.push(u)
	s.observeQueue()
	return true
}

func (s *Scheduler) snapshot() Stats {
	return Stats{
		Pages:     s.pages.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		Exchanges: s.exchanges.Load(),
		Discarded: s.discarded.Load(),
	}
}

func (s *Scheduler) observePage(result string) {
	if s.metrics != nil {
		s.metrics.ObservePage(result)
	}
}

func (s *Scheduler) observeQueue() {
	if s.metrics != nil {
		s.metrics.ObserveQueueSize(s.queue.len())
	}
}

// queue is an unbounded FIFO that reports exhaustion once it is empty and
// no popped task is still in flight, since in-flight tasks may push more.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	active int
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(u string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, u)
	q.cond.Signal()
}

// pop blocks until a task is available. It returns false when the crawl is
// exhausted or closed.
func (q *queue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.active > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		q.closed = true
		q.cond.Broadcast()
		return "", false
	}
	u := q.items[0]
	q.items = q.items[1:]
	q.active++
	return u, true
}

// done marks a popped task finished.
func (q *queue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	q.cond.Broadcast()
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
