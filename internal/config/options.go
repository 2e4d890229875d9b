package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"scodata/internal/attribute"
	"scodata/internal/core"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// Definitions compiles attribute configs into a validator set.
func Definitions(defs []AttributeConfig) (attribute.Set, error) {
	out := make([]attribute.Definition, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return attribute.Set{}, fmt.Errorf("attribute definition without name")
		}
		if seen[name] {
			return attribute.Set{}, fmt.Errorf("attribute %s defined twice", name)
		}
		seen[name] = true
		def, err := d.definition(name)
		if err != nil {
			return attribute.Set{}, fmt.Errorf("attribute %s: %w", name, err)
		}
		out = append(out, def)
	}
	return attribute.NewSet(out...), nil
}

func (d AttributeConfig) definition(name string) (attribute.Definition, error) {
	def := attribute.Definition{Name: name, Description: d.Description}
	var constraints []attribute.Constraint
	typ, err := attribute.ParseType(d.Type, d.Values)
	if err != nil {
		return def, err
	}
	if typ != nil {
		constraints = append(constraints, typ)
	}
	if d.Expr != "" {
		expr, err := attribute.Expr(d.Expr)
		if err != nil {
			return def, fmt.Errorf("expr: %w", err)
		}
		constraints = append(constraints, expr)
	}
	switch len(constraints) {
	case 0:
	case 1:
		def.Constraint = constraints[0]
	default:
		def.Constraint = attribute.All(constraints...)
	}
	if d.Default != nil {
		v, err := domain.ValueOf(d.Default)
		if err != nil {
			return def, fmt.Errorf("default: %w", err)
		}
		if def.Constraint != nil {
			if err := def.Constraint.Check(v); err != nil {
				return def, fmt.Errorf("default: %w", err)
			}
		}
		def.Default = &v
	}
	return def, nil
}

// Runtime holds the service options derived from a Config plus the shutdown
// hook for any telemetry pipeline it started.
type Runtime struct {
	Options  []core.Option
	Shutdown func(context.Context) error
}

// ServiceOptions translates suffix policies, attribute definitions and
// telemetry modes into service options. Trace output for the json and
// otel-stdout modes goes to w, or stderr when w is nil.
func (c Config) ServiceOptions(ctx context.Context, logger core.Logger, w io.Writer) (Runtime, error) {
	rt := Runtime{Shutdown: func(context.Context) error { return nil }}
	if w == nil {
		w = os.Stderr
	}
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithFunctionalDataPolicy(ingest.Policy{
			ArchiveSuffixes: c.FunctionalData.ArchiveSuffixes,
			DataSuffixes:    c.FunctionalData.DataSuffixes,
		}),
		core.WithArchiveSuffixes(c.ArchiveSuffixes...),
		core.WithImageSuffixes(c.ImageSuffixes...),
	}
	if len(c.ImageGroupOptions) > 0 {
		set, err := Definitions(c.ImageGroupOptions)
		if err != nil {
			return rt, fmt.Errorf("image_group_options: %w", err)
		}
		opts = append(opts, core.WithImageGroupOptions(set))
	}
	for collection, defs := range c.Properties {
		typ, ok := resourceType(collection)
		if !ok {
			return rt, fmt.Errorf("properties: unknown resource collection %q", collection)
		}
		set, err := Definitions(defs)
		if err != nil {
			return rt, fmt.Errorf("properties.%s: %w", collection, err)
		}
		opts = append(opts, core.WithPropertyDefinitions(typ, set))
	}

	switch strings.ToLower(c.Metrics.Mode) {
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
	case "prometheus":
		rec, err := core.NewPrometheusMetricsRecorder(nil)
		if err != nil {
			return rt, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}

	tracer, shutdown, err := c.Trace.tracer(ctx, w)
	if err != nil {
		return rt, err
	}
	if tracer != nil {
		opts = append(opts, core.WithTracer(tracer))
	}
	if shutdown != nil {
		rt.Shutdown = shutdown
	}
	rt.Options = opts
	return rt, nil
}

func resourceType(collection string) (domain.ResourceType, bool) {
	for _, t := range domain.ResourceTypes() {
		if t.Collection() == collection || strings.EqualFold(string(t), collection) {
			return t, true
		}
	}
	return "", false
}
