package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var expvarSeq uint64

// OperationStats aggregates the outcomes of one verb on one collection.
type OperationStats struct {
	Success    int64   `json:"success"`
	Errors     int64   `json:"errors"`
	DurationMS float64 `json:"duration_ms_total"`
	MaxMS      float64 `json:"duration_ms_max"`
}

// ExpvarMetricsSnapshot is a copy of the recorded metrics, grouped by
// collection and then verb.
type ExpvarMetricsSnapshot struct {
	Collections map[string]map[string]OperationStats `json:"collections"`
	Mutations   int64                                `json:"mutations_total"`
	RecordedAt  time.Time                            `json:"recorded_at"`
}

// Stats returns the aggregate for collection and verb.
func (s ExpvarMetricsSnapshot) Stats(collection, verb string) OperationStats {
	return s.Collections[collection][verb]
}

// ExpvarMetricsRecorder publishes per-collection operation statistics via
// expvar.
type ExpvarMetricsRecorder struct {
	name string

	mu          sync.Mutex
	collections map[string]map[string]*OperationStats
	mutations   int64
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("scodata_operations_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, collections: make(map[string]map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name is the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current statistics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := ExpvarMetricsSnapshot{
		Collections: make(map[string]map[string]OperationStats, len(r.collections)),
		Mutations:   r.mutations,
		RecordedAt:  time.Now().UTC(),
	}
	for coll, verbs := range r.collections {
		cp := make(map[string]OperationStats, len(verbs))
		for verb, st := range verbs {
			cp[verb] = *st
		}
		out.Collections[coll] = cp
	}
	return out
}

// Observe implements MetricsRecorder. Unnamed operations are ignored.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, op Operation, success bool, duration time.Duration) {
	if op.Name == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	verbs, ok := r.collections[op.Collection()]
	if !ok {
		verbs = make(map[string]*OperationStats)
		r.collections[op.Collection()] = verbs
	}
	st, ok := verbs[op.Verb()]
	if !ok {
		st = &OperationStats{}
		verbs[op.Verb()] = st
	}
	if success {
		st.Success++
		if op.Mutation() {
			r.mutations++
		}
	} else {
		st.Errors++
	}
	st.DurationMS += ms
	st.MaxMS = max(st.MaxMS, ms)
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation    string            `json:"operation"`
	Collection   string            `json:"collection"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Mutation     bool              `json:"mutation"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	DurationMS   float64           `json:"duration_ms"`
	StartedAt    time.Time         `json:"started_at"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// jsonTraceRetain bounds the entries kept in memory.
const jsonTraceRetain = 1024

// JSONTraceTracer writes finished spans as JSON lines and keeps the most
// recent ones for Entries.
type JSONTraceTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	entries []JSONTraceEntry
	labels  map[string]string
}

// NewJSONTracer writes to w when it is non-nil.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// WithLabels attaches fixed labels, such as a deployment name, to every entry.
func (t *JSONTraceTracer) WithLabels(labels map[string]string) *JSONTraceTracer {
	t.mu.Lock()
	t.labels = maps.Clone(labels)
	t.mu.Unlock()
	return t
}

// Entries returns the retained spans, oldest first.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, op Operation) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, op: op, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) finish(e JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Labels = t.labels
	if len(t.entries) == jsonTraceRetain {
		t.entries = append(t.entries[:0], t.entries[1:]...)
	}
	t.entries = append(t.entries, e)
	if t.enc != nil {
		_ = t.enc.Encode(e)
	}
}

type jsonTraceSpan struct {
	tracer  *JSONTraceTracer
	op      Operation
	started time.Time
}

func (s *jsonTraceSpan) End(err error) {
	e := JSONTraceEntry{
		Operation:    s.op.Name,
		Collection:   s.op.Collection(),
		ResourceType: string(s.op.Resource.Type),
		ResourceID:   s.op.Resource.ID,
		Mutation:     s.op.Mutation(),
		Status:       "success",
		DurationMS:   float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:    s.started,
	}
	if err != nil {
		e.Status, e.Error = "error", err.Error()
	}
	s.tracer.finish(e)
}

// PrometheusMetricsRecorder exports operation latency histograms and outcome
// counters labelled by collection and verb.
type PrometheusMetricsRecorder struct {
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg, or the
// default registerer when reg is nil.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scodata",
			Name:      "operation_duration_seconds",
			Help:      "Latency of data store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "verb"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scodata",
			Name:      "operations_total",
			Help:      "Data store operations by outcome.",
		}, []string{"collection", "verb", "status"}),
	}
	for _, c := range []prometheus.Collector{r.duration, r.results} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, op Operation, success bool, duration time.Duration) {
	if op.Name == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.duration.WithLabelValues(op.Collection(), op.Verb()).Observe(duration.Seconds())
	r.results.WithLabelValues(op.Collection(), op.Verb(), status).Inc()
}

// OTelTracer opens an OpenTelemetry span per operation.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer uses tp, or the global provider when tp is nil.
func NewOTelTracer(tp trace.TracerProvider) *OTelTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: tp.Tracer("scodata/internal/core")}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, op Operation) (context.Context, TraceSpan) {
	attrs := []attribute.KeyValue{
		attribute.String("scodata.collection", op.Collection()),
		attribute.String("scodata.verb", op.Verb()),
		attribute.Bool("scodata.mutation", op.Mutation()),
	}
	if op.Resource.Type != "" {
		attrs = append(attrs, attribute.String("scodata.resource.type", string(op.Resource.Type)))
	}
	if op.Resource.ID != "" {
		attrs = append(attrs, attribute.String("scodata.resource.id", op.Resource.ID))
	}
	ctx, span := t.tracer.Start(ctx, op.Name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
