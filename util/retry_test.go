package util_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/util"
)

func quickRetrier() *util.Retrier {
	r := util.NewRetrier()
	r.InitialInterval = time.Millisecond
	r.MaxInterval = time.Millisecond * 5
	r.MaxElapsedTime = time.Second
	r.MaxTries = 4
	r.ShouldRetry = compute.IsTransient
	return r
}

func TestRetryTransientThenSucceed(t *testing.T) {
	calls := 0
	err := quickRetrier().Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return compute.TransientError(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnFatal(t *testing.T) {
	calls := 0
	fatal := compute.FatalError(errors.New("bad submission"))
	err := quickRetrier().Retry(context.Background(), func() error {
		calls++
		return fatal
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("fatal error retried: %d calls", calls)
	}
}

func TestRetryExhaustsTries(t *testing.T) {
	calls := 0
	err := quickRetrier().Retry(context.Background(), func() error {
		calls++
		return compute.TransientError(errors.New("flaky"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := quickRetrier().Retry(ctx, func() error {
		return compute.TransientError(errors.New("flaky"))
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestRetryNotify(t *testing.T) {
	notified := 0
	r := quickRetrier()
	r.Notify = func(err error, d time.Duration) { notified++ }

	calls := 0
	r.Retry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return compute.TransientError(errors.New("flaky"))
		}
		return nil
	})
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}
}
