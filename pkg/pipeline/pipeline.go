package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/telemetry"
	"github.com/meshpipe/meshpipe/pkg/typegraph"
)

// target pairs a source with the sinks registered before it; only those
// sinks ever receive fan-out from the source.
type target struct {
	source domain.Source
	sinks  []domain.Sink
}

// getEntry is one resolved slot of the read-handler cache. A non-nil err is
// the cached no-route result for the type.
type getEntry struct {
	handlers []*sourceHandler
	err      error
}

// Config holds the capabilities a pipeline is built from.
type Config struct {
	// Elements is the ordered mix of sources and sinks. Order is
	// significant: a source fans out only to sinks that appear before it,
	// and get requests try sources in element order. One value may be both
	// a source and a sink.
	Elements []any

	// Transformers supply the conversion edges of the type graph.
	Transformers []domain.Transformer

	// Logger receives debug/info logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline routes typed get/put requests across its registered capabilities,
// resolving conversion chains through the type graph and memoizing the
// resulting handlers per requested type for its whole lifetime.
type Pipeline struct {
	logger  *slog.Logger
	graph   *typegraph.Graph
	targets []target
	sinks   []domain.Sink

	mu   sync.RWMutex
	gets map[domain.Key]*getEntry
	puts map[domain.Key][]*sinkHandler
}

// New builds a pipeline and its type graph from the configured capabilities.
// The element list must not be empty and every element must be a
// domain.Source, a domain.Sink, or both.
func New(cfg Config) (*Pipeline, error) {
	if len(cfg.Elements) == 0 {
		return nil, errors.New("pipeline requires at least one source or sink element")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		logger: logger,
		gets:   make(map[domain.Key]*getEntry),
		puts:   make(map[domain.Key][]*sinkHandler),
	}

	var sources []domain.Source
	for i, element := range cfg.Elements {
		source, isSource := element.(domain.Source)
		sink, isSink := element.(domain.Sink)
		if !isSource && !isSink {
			return nil, fmt.Errorf("element %d (%T) is neither a source nor a sink", i, element)
		}
		if isSource {
			sources = append(sources, source)
			p.targets = append(p.targets, target{source: source, sinks: slices.Clone(p.sinks)})
		}
		if isSink {
			p.sinks = append(p.sinks, sink)
		}
	}

	p.graph = typegraph.Build(sources, p.sinks, cfg.Transformers, logger)
	logger.Info("pipeline constructed",
		"sources", len(sources),
		"sinks", len(p.sinks),
		"transformers", len(cfg.Transformers),
		"graph_nodes", len(p.graph.Nodes()),
	)
	return p, nil
}

// Graph exposes the immutable type graph for inspection.
func (p *Pipeline) Graph() *typegraph.Graph { return p.graph }

func (p *Pipeline) newContext() *domain.Context {
	return domain.NewContext(p)
}

// sourceHandlers returns the memoized handler list for the type, building it
// on first request. A failed build is cached as a permanent no-route result.
func (p *Pipeline) sourceHandlers(key domain.Key) ([]*sourceHandler, error) {
	p.mu.RLock()
	entry, ok := p.gets[key]
	p.mu.RUnlock()
	if ok {
		return entry.handlers, entry.err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.gets[key]; ok {
		return entry.handlers, entry.err
	}

	entry = &getEntry{}
	for _, t := range p.targets {
		handler, err := newSourceHandler(p.graph, t.source, t.sinks, key)
		if err != nil {
			if errors.Is(err, domain.ErrNoConversion) {
				p.logger.Debug("source excluded from handlers", "type", key, "reason", err)
				continue
			}
			return nil, err
		}
		entry.handlers = append(entry.handlers, handler)
	}
	if len(entry.handlers) == 0 {
		entry.err = fmt.Errorf("%w: no source can provide %q", domain.ErrNoConversion, key)
	}
	p.gets[key] = entry
	p.logger.Debug("source handlers resolved", "type", key, "handlers", len(entry.handlers))
	return entry.handlers, entry.err
}

// sinkHandlers returns the memoized handler set for the type, building it on
// first request. Zero matching sinks is a valid, cached result: writes for
// the type become no-ops.
func (p *Pipeline) sinkHandlers(key domain.Key) []*sinkHandler {
	p.mu.RLock()
	handlers, ok := p.puts[key]
	p.mu.RUnlock()
	if ok {
		return handlers
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if handlers, ok := p.puts[key]; ok {
		return handlers
	}

	handlers = []*sinkHandler{}
	for _, sink := range p.sinks {
		handler, _, err := newSinkHandler(p.graph, sink, key)
		if err != nil {
			p.logger.Debug("sink excluded from handlers", "type", key, "reason", err)
			continue
		}
		handlers = append(handlers, handler)
	}
	p.puts[key] = handlers
	p.logger.Debug("sink handlers resolved", "type", key, "handlers", len(handlers))
	return handlers
}

// Get fetches one value of the requested type. Sources are tried in
// registration order; a source reporting not-found falls through to the
// next. The error wraps domain.ErrNoConversion when no source can route to
// the type at all, and domain.ErrNotFound when every viable source came up
// empty.
func (p *Pipeline) Get(ctx context.Context, key domain.Key, q domain.Query) (any, error) {
	start := time.Now()
	ctx, span := p.startSpan(ctx, "pipeline.get", key)
	defer span.End()

	handlers, err := p.sourceHandlers(key)
	if err != nil {
		p.finishFetch(ctx, span, start, key, 0, 0, telemetry.OutcomeNoConversion, err)
		return nil, err
	}

	pctx := p.newContext()
	for i, handler := range handlers {
		result, err := handler.get(ctx, q, pctx)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			p.finishFetch(ctx, span, start, key, i+1, len(handler.chain.Steps), telemetry.OutcomeError, err)
			return nil, err
		}
		p.finishFetch(ctx, span, start, key, i+1, len(handler.chain.Steps), telemetry.OutcomeHit, nil)
		return result, nil
	}

	err = fmt.Errorf("%w: no source returned a result for %q", domain.ErrNotFound, key)
	p.finishFetch(ctx, span, start, key, len(handlers), 0, telemetry.OutcomeNotFound, err)
	return nil, err
}

// GetAll fetches every matching value of the requested type as a fully
// materialized collection, with whole-collection fan-out to the eligible
// sinks. Fallthrough semantics match Get.
func (p *Pipeline) GetAll(ctx context.Context, key domain.Key, q domain.Query) ([]any, error) {
	start := time.Now()
	ctx, span := p.startSpan(ctx, "pipeline.get_all", key)
	defer span.End()

	handlers, err := p.sourceHandlers(key)
	if err != nil {
		p.finishFetch(ctx, span, start, key, 0, 0, telemetry.OutcomeNoConversion, err)
		return nil, err
	}

	pctx := p.newContext()
	for i, handler := range handlers {
		results, err := handler.getAll(ctx, q, pctx)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			p.finishFetch(ctx, span, start, key, i+1, len(handler.chain.Steps), telemetry.OutcomeError, err)
			return nil, err
		}
		p.finishFetch(ctx, span, start, key, i+1, len(handler.chain.Steps), telemetry.OutcomeHit, nil)
		return results, nil
	}

	err = fmt.Errorf("%w: no source returned a result for %q", domain.ErrNotFound, key)
	p.finishFetch(ctx, span, start, key, len(handlers), 0, telemetry.OutcomeNotFound, err)
	return nil, err
}

// Stream fetches every matching value of the requested type as a lazy
// sequence: fan-out and conversion for each item happen only when the
// consumer pulls it, and abandoning the sequence stops the upstream pulls.
// The source is selected eagerly (with the same fallthrough semantics as
// Get); per-item failures surface through the sequence's error position.
func (p *Pipeline) Stream(ctx context.Context, key domain.Key, q domain.Query) (iter.Seq2[any, error], error) {
	start := time.Now()
	ctx, span := p.startSpan(ctx, "pipeline.stream", key)
	defer span.End()

	handlers, err := p.sourceHandlers(key)
	if err != nil {
		p.finishFetch(ctx, span, start, key, 0, 0, telemetry.OutcomeNoConversion, err)
		return nil, err
	}

	pctx := p.newContext()
	for i, handler := range handlers {
		seq, err := handler.stream(ctx, q, pctx)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			p.finishFetch(ctx, span, start, key, i+1, len(handler.chain.Steps), telemetry.OutcomeError, err)
			return nil, err
		}
		p.finishFetch(ctx, span, start, key, i+1, len(handler.chain.Steps), telemetry.OutcomeHit, nil)
		return seq, nil
	}

	err = fmt.Errorf("%w: no source returned a result for %q", domain.ErrNotFound, key)
	p.finishFetch(ctx, span, start, key, len(handlers), 0, telemetry.OutcomeNotFound, err)
	return nil, err
}

// Put stores the item into every sink that accepts the type, directly or via
// conversion. A type no sink can take is a silent no-op, not an error.
func (p *Pipeline) Put(ctx context.Context, key domain.Key, item any) error {
	start := time.Now()
	ctx, span := p.startSpan(ctx, "pipeline.put", key)
	defer span.End()

	handlers := p.sinkHandlers(key)
	if len(handlers) == 0 {
		p.finishStore(ctx, span, start, key, 0, telemetry.OutcomeNoop, nil)
		return nil
	}

	pctx := p.newContext()
	for _, handler := range handlers {
		if err := handler.put(ctx, item, pctx); err != nil {
			p.finishStore(ctx, span, start, key, len(handlers), telemetry.OutcomeError, err)
			return err
		}
	}
	p.finishStore(ctx, span, start, key, len(handlers), telemetry.OutcomeStored, nil)
	return nil
}

// PutMany stores a collection into every sink that accepts the type. The
// sequence is materialized exactly once and replayed to each sink; each
// sink's handler still converts lazily per item.
func (p *Pipeline) PutMany(ctx context.Context, key domain.Key, items iter.Seq[any]) error {
	start := time.Now()
	ctx, span := p.startSpan(ctx, "pipeline.put_many", key)
	defer span.End()

	handlers := p.sinkHandlers(key)
	if len(handlers) == 0 {
		p.finishStore(ctx, span, start, key, 0, telemetry.OutcomeNoop, nil)
		return nil
	}

	materialized := slices.Collect(items)
	pctx := p.newContext()
	for _, handler := range handlers {
		if err := handler.putMany(ctx, slices.Values(materialized), pctx); err != nil {
			p.finishStore(ctx, span, start, key, len(handlers), telemetry.OutcomeError, err)
			return err
		}
	}
	p.finishStore(ctx, span, start, key, len(handlers), telemetry.OutcomeStored, nil)
	return nil
}

func (p *Pipeline) startSpan(ctx context.Context, name string, key domain.Key) (context.Context, trace.Span) {
	tracer := otel.Tracer("meshpipe.pipeline")
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("pipeline.type", string(key)),
	))
}

func (p *Pipeline) finishFetch(ctx context.Context, span trace.Span, start time.Time, key domain.Key, handlers, chainSteps int, outcome string, err error) {
	span.SetAttributes(attribute.String("pipeline.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	telemetry.RecordFetch(ctx, telemetry.FetchMetrics{
		Type:       string(key),
		Outcome:    outcome,
		Duration:   time.Since(start),
		Handlers:   handlers,
		ChainSteps: chainSteps,
	})
}

func (p *Pipeline) finishStore(ctx context.Context, span trace.Span, start time.Time, key domain.Key, sinks int, outcome string, err error) {
	span.SetAttributes(attribute.String("pipeline.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	telemetry.RecordStore(ctx, telemetry.StoreMetrics{
		Type:     string(key),
		Outcome:  outcome,
		Duration: time.Since(start),
		Sinks:    sinks,
	})
}
