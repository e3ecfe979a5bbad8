package application

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Background runs best-effort side effects (email dispatch, search
// indexing) off the request path. Jobs get a context detached from the
// request that started them and are bounded by timeout; failures are logged.
type Background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewBackground(timeout time.Duration, logger logrus.FieldLogger) *Background {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Background{timeout: timeout, logger: logger}
}

func (b *Background) Go(parent context.Context, job string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			b.logger.WithError(err).WithField("job", job).Warn("background job failed")
		}
	}()
}

// Wait blocks until every started job has returned.
func (b *Background) Wait() { b.wg.Wait() }
