package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const natsMaxAttempts = 5

// NATSCounter shares counters between instances through a JetStream
// key-value bucket. Increments are compare-and-swap on the entry revision.
type NATSCounter struct {
	kv jetstream.KeyValue
}

// NewNATSCounter creates or reuses the bucket. Entries outlive two windows
// and are then dropped by the bucket TTL.
func NewNATSCounter(ctx context.Context, js jetstream.JetStream, bucket string, window time.Duration) (*NATSCounter, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "fixed-window request counters",
		TTL:         2 * window,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", bucket, err)
	}
	return &NATSCounter{kv: kv}, nil
}

// Incr bumps the window's KV entry with compare-and-set, retrying when
// another instance wrote first.
func (c *NATSCounter) Incr(ctx context.Context, key string, windowStart time.Time, _ time.Duration) (int, error) {
	k := natsKey(key, windowStart)

	var lastErr error
	for attempt := 0; attempt < natsMaxAttempts; attempt++ {
		entry, err := c.kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			if _, err := c.kv.Create(ctx, k, []byte("1")); err != nil {
				lastErr = err
				continue
			}
			return 1, nil
		}
		if err != nil {
			return 0, fmt.Errorf("get %s: %w", k, err)
		}

		n, err := strconv.Atoi(string(entry.Value()))
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", k, err)
		}
		n++
		if _, err := c.kv.Update(ctx, k, []byte(strconv.Itoa(n)), entry.Revision()); err != nil {
			lastErr = err
			continue
		}
		return n, nil
	}
	return 0, fmt.Errorf("increment %s: %w", k, lastErr)
}

// natsKey maps a free-form key onto the KV key alphabet and suffixes the window.
func natsKey(key string, windowStart time.Time) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + "." + strconv.FormatInt(windowStart.Unix(), 10)
}
