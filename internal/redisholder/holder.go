package redisholder

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

type clientBox struct {
	client redis.UniversalClient
}

// Holder hands out the current client; the health loop may replace it at any time.
type Holder struct {
	v atomic.Pointer[clientBox]
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(&clientBox{client: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	if b := h.v.Load(); b != nil {
		return b.client
	}
	return nil
}

func (h *Holder) Ping(ctx context.Context) error {
	return h.Get().Ping(ctx).Err()
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	if b := h.v.Swap(&clientBox{client: newc}); b != nil {
		old = b.client
	}
	return old
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
