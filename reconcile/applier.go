// ABOUTME: Executes a reconciliation plan against a calendar gateway
// ABOUTME: Isolates per-operation failures and reports successes and failures separately
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/doctosync/models"
)

// Gateway is the write side of the destination calendar.
type Gateway interface {
	CreateEvent(ctx context.Context, payload models.EventPayload) (string, error)
	UpdateEvent(ctx context.Context, id string, payload models.EventPayload) error
	DeleteEvent(ctx context.Context, id string) error
}

// OperationError describes one failed gateway call.
type OperationError struct {
	Operation string
	Key       string
	EventID   string
	Err       error
}

func (e *OperationError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s %s (event %s): %v", e.Operation, e.Key, e.EventID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Result counts the outcome of applying a plan.
type Result struct {
	Created      int
	Updated      int
	Deleted      int
	CreateFailed int
	UpdateFailed int
	DeleteFailed int
	CreatedIDs   map[string]string
	Failures     []*OperationError

	// NotStarted counts operations dropped because the context ended first.
	// Interrupted holds that context error.
	NotStarted  int
	Interrupted error
}

// Failed returns the total number of failed operations.
func (r Result) Failed() int {
	return r.CreateFailed + r.UpdateFailed + r.DeleteFailed
}

// Err aggregates every failure, or returns nil when all operations succeeded.
func (r Result) Err() error {
	var merr *multierror.Error
	for _, f := range r.Failures {
		merr = multierror.Append(merr, f)
	}
	if r.NotStarted > 0 && r.Interrupted != nil {
		merr = multierror.Append(merr, fmt.Errorf("%d operations not started: %w", r.NotStarted, r.Interrupted))
	}
	return merr.ErrorOrNil()
}

// Applier runs plans. Workers above 1 lets calls within one phase run concurrently.
type Applier struct {
	Gateway Gateway
	Workers int
	Logger  zerolog.Logger
}

// NewApplier creates an applier over the given gateway.
func NewApplier(gateway Gateway, workers int, logger zerolog.Logger) *Applier {
	if workers < 1 {
		workers = 1
	}
	return &Applier{Gateway: gateway, Workers: workers, Logger: logger}
}

// Apply executes creates, then updates, then deletes. A failed call is logged
// and counted without stopping the others. Once ctx is done no further call
// is started; the remaining operations are counted in NotStarted.
func (a *Applier) Apply(ctx context.Context, plan Plan) Result {
	res := Result{CreatedIDs: make(map[string]string, len(plan.Create))}
	var mu sync.Mutex

	record := func(opErr *OperationError) {
		a.Logger.Error().
			Err(opErr.Err).
			Str("op", opErr.Operation).
			Str("sync_key", opErr.Key).
			Str("event_id", opErr.EventID).
			Msg("calendar operation failed")
		res.Failures = append(res.Failures, opErr)
	}

	res.NotStarted += a.run(ctx, len(plan.Create), func(i int) {
		proj := plan.Create[i]
		id, err := a.Gateway.CreateEvent(ctx, proj.Payload)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.CreateFailed++
			record(&OperationError{Operation: models.OperationCreate, Key: proj.Key, Err: err})
			return
		}
		res.Created++
		res.CreatedIDs[proj.Key] = id
		a.Logger.Debug().Str("sync_key", proj.Key).Str("event_id", id).Msg("event created")
	})

	res.NotStarted += a.run(ctx, len(plan.Update), func(i int) {
		upd := plan.Update[i]
		err := a.Gateway.UpdateEvent(ctx, upd.EventID, upd.Payload)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.UpdateFailed++
			record(&OperationError{Operation: models.OperationUpdate, Key: upd.Key, EventID: upd.EventID, Err: err})
			return
		}
		res.Updated++
		a.Logger.Debug().Str("sync_key", upd.Key).Str("event_id", upd.EventID).Msg("event updated")
	})

	res.NotStarted += a.run(ctx, len(plan.Delete), func(i int) {
		del := plan.Delete[i]
		err := a.Gateway.DeleteEvent(ctx, del.EventID)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.DeleteFailed++
			record(&OperationError{Operation: models.OperationDelete, Key: del.Key, EventID: del.EventID, Err: err})
			return
		}
		res.Deleted++
		a.Logger.Debug().Str("sync_key", del.Key).Str("event_id", del.EventID).Msg("event deleted")
	})

	if res.NotStarted > 0 {
		res.Interrupted = ctx.Err()
		a.Logger.Warn().Err(res.Interrupted).Int("not_started", res.NotStarted).Msg("stopped applying plan")
	}
	return res
}

// run calls fn for every index of one phase and returns once all started calls
// finished. Indexes reached after ctx is done are skipped and counted.
func (a *Applier) run(ctx context.Context, n int, fn func(i int)) int {
	if n == 0 {
		return 0
	}
	if a.Workers <= 1 {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return n - i
			}
			fn(i)
		}
		return 0
	}

	var skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(a.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			skipped.Add(int64(n - i))
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return int(skipped.Load())
}
