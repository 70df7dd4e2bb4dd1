package reliability

import (
	"context"
	"time"

	tagpool "github.com/kodecache/tagpool"
)

// CircuitBreakerDriver wraps a tagpool.BackendDriver with a circuit breaker:
// once the breaker trips open, every method fails fast with ErrCircuitOpen
// instead of reaching the backend, until the reset timeout moves the
// breaker to half-open and calls reach the backend again.
type CircuitBreakerDriver struct {
	tagpool.BackendDriver
	breaker Breaker
}

var _ tagpool.BackendDriver = (*CircuitBreakerDriver)(nil)

// NewCircuitBreakerDriver wraps driver with breaker.
func NewCircuitBreakerDriver(driver tagpool.BackendDriver, breaker Breaker) *CircuitBreakerDriver {
	return &CircuitBreakerDriver{
		BackendDriver: driver,
		breaker:       breaker,
	}
}

func (d *CircuitBreakerDriver) DoFetch(ctx context.Context, ids []string) ([]tagpool.FetchResult, error) {
	if !d.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	results, err := d.BackendDriver.DoFetch(ctx, ids)
	d.report(err)
	return results, err
}

func (d *CircuitBreakerDriver) DoSave(ctx context.Context, records map[string]tagpool.Record, ttl time.Duration, ops tagpool.TagOps) ([]string, error) {
	if !d.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	failed, err := d.BackendDriver.DoSave(ctx, records, ttl, ops)
	d.report(err)
	return failed, err
}

func (d *CircuitBreakerDriver) DoDelete(ctx context.Context, ids []string) ([]string, error) {
	if !d.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	failed, err := d.BackendDriver.DoDelete(ctx, ids)
	d.report(err)
	return failed, err
}

func (d *CircuitBreakerDriver) DoDeleteTagRelations(ctx context.Context, tagData map[string][]string) error {
	if !d.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := d.BackendDriver.DoDeleteTagRelations(ctx, tagData)
	d.report(err)
	return err
}

func (d *CircuitBreakerDriver) DoInvalidate(ctx context.Context, tagIDs []string) error {
	if !d.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := d.BackendDriver.DoInvalidate(ctx, tagIDs)
	d.report(err)
	return err
}

// report updates the breaker state based on the error.
func (d *CircuitBreakerDriver) report(err error) {
	if err != nil {
		d.breaker.Failure()
	} else {
		d.breaker.Success()
	}
}
