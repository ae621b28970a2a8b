// Package rover runs sensor loops and control receiver side by side.
// Loops share nothing; one loop failure is reported but does not stop others.
package rover

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rover/helpers"
	"github.com/temoto/rover/log2"
)

type Task interface {
	String() string
	Run(ctx context.Context) error
}

type TaskFunc struct {
	Name string
	F    func(ctx context.Context) error
}

func (t TaskFunc) String() string                { return t.Name }
func (t TaskFunc) Run(ctx context.Context) error { return t.F(ctx) }

// Result of one finished task, err=nil means clean stop.
type Result struct {
	Name string
	Err  error
}

// Run starts every task in own goroutine and waits until all have ended.
// Stop of a cancels ctx of all tasks. When the last task ends, a is stopped too.
// Returns folded task failures, cancellation is not a failure.
func Run(ctx context.Context, log *log2.Log, a *alive.Alive, tasks []Task) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, errors.NotValidf("rover: nothing enabled")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	results := make([]Result, len(tasks))
	wg := sync.WaitGroup{}
	for i, t := range tasks {
		if !a.Add(1) {
			results[i] = Result{Name: t.String(), Err: errors.Errorf("%s not started, stopping", t.String())}
			continue
		}
		wg.Add(1)
		go func(i int, t Task) {
			defer a.Done()
			defer wg.Done()
			log.Infof("%s started", t.String())
			err := t.Run(ctx)
			if errors.Cause(err) == context.Canceled {
				err = nil
			}
			results[i] = Result{Name: t.String(), Err: err}
			if err != nil {
				log.Errorf("%s failed err=%s", t.String(), errors.ErrorStack(err))
			} else {
				log.Infof("%s stopped", t.String())
			}
		}(i, t)
	}
	wg.Wait()
	a.Stop()

	errs := make([]error, 0, len(results))
	for _, r := range results {
		errs = append(errs, r.Err)
	}
	return results, helpers.FoldErrors(errs)
}
