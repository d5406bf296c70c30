// Package lock serializes billing mutations on the same invoice, client or price key.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
)

var ErrLockTimeout = errors.New("lock_timeout")

// Release unlocks a held key. Calling it more than once is a no-op.
type Release func()

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// InvoiceSequenceKey guards invoice number allocation. It sorts after every
// invoice key so it can be taken together with one.
const InvoiceSequenceKey = "sequence:invoice_number"

func InvoiceKey(id snowflake.ID) string {
	return fmt.Sprintf("invoice:%d", id)
}

func ClientBillingKey(clientID snowflake.ID) string {
	return fmt.Sprintf("client:%d:billing", clientID)
}

func PriceKey(clientID, containerID snowflake.ID) string {
	return fmt.Sprintf("price:%d:%d", clientID, containerID)
}

// AcquireAll locks keys in ascending order so that concurrent callers never deadlock.
// On failure every key taken so far is released.
func AcquireAll(ctx context.Context, l Locker, keys []string) (Release, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]Release, 0, len(sorted))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	var prev string
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		release, err := l.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll, nil
}

type instrumented struct {
	next    Locker
	metrics *obsmetrics.BillingMetrics
}

// Instrument reports lock wait time per key prefix.
func Instrument(l Locker, m *obsmetrics.BillingMetrics) Locker {
	if m == nil {
		return l
	}
	return &instrumented{next: l, metrics: m}
}

func (i *instrumented) Acquire(ctx context.Context, key string) (Release, error) {
	start := time.Now()
	release, err := i.next.Acquire(ctx, key)
	resource := key
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		resource = key[:idx]
	}
	i.metrics.ObserveLockWait(resource, time.Since(start))
	return release, err
}

func timeoutErr(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, err)
}
