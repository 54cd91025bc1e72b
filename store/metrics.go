package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stevemurr/grocery-chat-server/search"
)

var OpCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grocery",
	Subsystem: "store",
	Name:      "ops_total",
}, []string{"backend", "op", "result"})

var OpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "grocery",
	Subsystem: "store",
	Name:      "op_duration_seconds",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
}, []string{"backend", "op"})

var BatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "grocery",
	Subsystem: "store",
	Name:      "batch_size",
	Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 500, 1000},
}, []string{"backend"})

// RegisterMetrics registers the store metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OpCount, OpDuration, BatchSize)
}

// Instrumented wraps a Store and records count and latency of every call.
type Instrumented struct {
	Store
	backend string
}

// WithMetrics wraps s so its calls are recorded under the given backend label.
func WithMetrics(s Store, backend string) *Instrumented {
	return &Instrumented{Store: s, backend: backend}
}

// Unwrap returns the wrapped store.
func (i *Instrumented) Unwrap() Store { return i.Store }

func (i *Instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OpCount.WithLabelValues(i.backend, op, result).Inc()
	OpDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Put(ctx context.Context, key string, fields map[string]string) error {
	start := time.Now()
	err := i.Store.Put(ctx, key, fields)
	i.observe("put", start, err)
	return err
}

func (i *Instrumented) GetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	fields, err := i.Store.GetAll(ctx, key)
	i.observe("getall", start, err)
	return fields, err
}

func (i *Instrumented) Delete(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := i.Store.Delete(ctx, key)
	i.observe("delete", start, err)
	return n, err
}

func (i *Instrumented) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	start := time.Now()
	BatchSize.WithLabelValues(i.backend).Observe(float64(len(ops)))
	results, err := i.Store.Batch(ctx, ops)
	i.observe("batch", start, err)
	return results, err
}

func (i *Instrumented) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.Store.Keys(ctx, prefix)
	i.observe("keys", start, err)
	return keys, err
}

func (i *Instrumented) ZAdd(ctx context.Context, key, member string, score float64) error {
	start := time.Now()
	err := i.Store.ZAdd(ctx, key, member, score)
	i.observe("zadd", start, err)
	return err
}

func (i *Instrumented) ZRem(ctx context.Context, key, member string) (int64, error) {
	start := time.Now()
	n, err := i.Store.ZRem(ctx, key, member)
	i.observe("zrem", start, err)
	return n, err
}

func (i *Instrumented) ZRange(ctx context.Context, key string) ([]Member, error) {
	start := time.Now()
	members, err := i.Store.ZRange(ctx, key)
	i.observe("zrange", start, err)
	return members, err
}

func (i *Instrumented) ZDrain(ctx context.Context, key string) ([]Member, error) {
	start := time.Now()
	members, err := i.Store.ZDrain(ctx, key)
	i.observe("zdrain", start, err)
	return members, err
}

func (i *Instrumented) CreateIndex(ctx context.Context, ix search.Index) error {
	start := time.Now()
	err := i.Store.CreateIndex(ctx, ix)
	i.observe("create_index", start, err)
	return err
}

func (i *Instrumented) Search(ctx context.Context, ix search.Index, expr string) ([]map[string]string, error) {
	start := time.Now()
	docs, err := i.Store.Search(ctx, ix, expr)
	i.observe("search", start, err)
	return docs, err
}
