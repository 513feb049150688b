package observability

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/benz9527/xrbtree/lib/infra"
	"github.com/benz9527/xrbtree/lib/tree"
)

var _ tree.RBTreeRecorder = (*RBTreeStats)(nil)

type lener interface {
	Len() int64
}

// RBTreeStats records the operations of the trees it is given to, and
// observes the total length of the watched trees.
type RBTreeStats struct {
	ctx      context.Context
	attrs    metric.MeasurementOption
	inserts  metric.Int64Counter
	erases   metric.Int64Counter
	failures metric.Int64Counter
	length   metric.Int64ObservableGauge
	lock     sync.Mutex
	watched  map[lener]struct{}
}

func (stats *RBTreeStats) RecordInsert() {
	stats.inserts.Add(stats.ctx, 1, stats.attrs)
}

func (stats *RBTreeStats) RecordErase() {
	stats.erases.Add(stats.ctx, 1, stats.attrs)
}

func (stats *RBTreeStats) RecordFailure(reason string) {
	stats.failures.Add(stats.ctx, 1, stats.attrs, metric.WithAttributes(attribute.String("reason", reason)))
}

// Watch adds t into the length gauge, the returned func removes it.
func (stats *RBTreeStats) Watch(t lener) func() {
	stats.lock.Lock()
	defer stats.lock.Unlock()
	stats.watched[t] = struct{}{}
	return func() {
		stats.lock.Lock()
		defer stats.lock.Unlock()
		delete(stats.watched, t)
	}
}

func (stats *RBTreeStats) observeLength(ctx context.Context, ob metric.Int64Observer) error {
	stats.lock.Lock()
	defer stats.lock.Unlock()
	total := int64(0)
	for t := range stats.watched {
		total += t.Len()
	}
	ob.Observe(total, stats.attrs)
	return nil
}

type statsCfg struct {
	ctx          context.Context
	mp           metric.MeterProvider
	runtimeStats bool
}

type StatsOption func(*statsCfg)

func WithStatsMeterProvider(mp metric.MeterProvider) StatsOption {
	return func(cfg *statsCfg) {
		cfg.mp = mp
	}
}

func WithStatsContext(ctx context.Context) StatsOption {
	return func(cfg *statsCfg) {
		cfg.ctx = ctx
	}
}

// WithRuntimeStats also starts the go runtime metrics (memory, gc,
// goroutines) on the same meter provider.
func WithRuntimeStats() StatsOption {
	return func(cfg *statsCfg) {
		cfg.runtimeStats = true
	}
}

func NewRBTreeStats(name string, opts ...StatsOption) (*RBTreeStats, error) {
	cfg := &statsCfg{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.ctx == nil {
		cfg.ctx = context.Background()
	}
	if cfg.mp == nil {
		cfg.mp = otel.GetMeterProvider()
	}

	builder := &strings.Builder{}
	builder.WriteString("xrbtree/rbtree")
	if len(strings.TrimSpace(name)) > 0 {
		builder.Write([]byte("/"))
		builder.WriteString(name)
	} else {
		builder.Write([]byte("/"))
		builder.WriteString("default")
	}
	scope := builder.String()
	meter := cfg.mp.Meter(scope, metric.WithInstrumentationVersion(otelruntime.Version()))

	stats := &RBTreeStats{
		ctx:     cfg.ctx,
		attrs:   metric.WithAttributes(attribute.String("rbtree", scope)),
		watched: make(map[lener]struct{}, 4),
	}
	var err, merr error
	stats.inserts, err = meter.Int64Counter(
		"rbtree.inserts",
		metric.WithDescription(`The number of inserted keys.`),
	)
	merr = multierr.Append(merr, err)
	stats.erases, err = meter.Int64Counter(
		"rbtree.erases",
		metric.WithDescription(`The number of erased keys.`),
	)
	merr = multierr.Append(merr, err)
	stats.failures, err = meter.Int64Counter(
		"rbtree.failures",
		metric.WithDescription(`The number of rejected operations by reason.`),
	)
	merr = multierr.Append(merr, err)
	stats.length, err = meter.Int64ObservableGauge(
		"rbtree.length",
		metric.WithDescription(`The number of keys in the watched trees.`),
		metric.WithInt64Callback(stats.observeLength),
	)
	merr = multierr.Append(merr, err)
	if merr != nil {
		return nil, infra.WrapErrorStackWithMessage(merr, "[observability] rbtree stats instruments")
	}

	if cfg.runtimeStats {
		if err = otelruntime.Start(otelruntime.WithMeterProvider(cfg.mp)); err != nil {
			return nil, infra.WrapErrorStackWithMessage(err, "[observability] runtime stats")
		}
	}
	return stats, nil
}

func MustNewRBTreeStats(name string, opts ...StatsOption) *RBTreeStats {
	return lo.Must[*RBTreeStats](NewRBTreeStats(name, opts...))
}
