package pipeline

import (
	"context"
	"sync"

	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/metrics"
)

// inflightCall is one in-progress assessment, shared by every concurrent
// submitter of the same transaction id.
type inflightCall struct {
	done chan struct{}
	resp *domain.AnalyzeResponse
	err  error
}

// inflightGroup coalesces concurrent submissions by transaction id. The
// first caller for a key becomes the writer and runs the pipeline; callers
// that arrive while it runs wait for the writer's result instead of racing
// it to the database.
type inflightGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newInflightGroup() *inflightGroup {
	return &inflightGroup{calls: make(map[string]*inflightCall)}
}

// do runs fn for the first caller of key and hands the result to everyone
// who joined while it ran. The boolean reports whether this caller was the
// writer. Waiters give up when their own context ends; the writer's run is
// not affected.
func (g *inflightGroup) do(ctx context.Context, key string, fn func() (*domain.AnalyzeResponse, error)) (*domain.AnalyzeResponse, bool, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.resp, false, c.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	c := &inflightCall{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	metrics.InflightAssessments.Inc()
	c.resp, c.err = fn()
	metrics.InflightAssessments.Dec()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.resp, true, c.err
}

// size reports the number of keys currently in flight.
func (g *inflightGroup) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
