package core

import (
	"github.com/google/uuid"

	"scodata/internal/attribute"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l == nil {
			l = noopLogger{}
		}
		s.logger = l
	}
}

// WithClock overrides the timestamp source.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder installs an audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithIDGenerator overrides resource identifier generation. The default
// issues random UUIDs.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithPropertyDefinitions restricts the properties accepted for resources of
// type t to the given definitions. Types without definitions accept any
// property.
func WithPropertyDefinitions(t domain.ResourceType, set attribute.Set) Option {
	return func(s *Service) {
		s.propertyDefs[t] = set
	}
}

// WithImageGroupOptions registers the supported image group options.
func WithImageGroupOptions(set attribute.Set) Option {
	return func(s *Service) { s.groupOptions = set }
}

// WithFunctionalDataPolicy sets the suffixes accepted for functional data uploads.
func WithFunctionalDataPolicy(p ingest.Policy) Option {
	return func(s *Service) { s.funcdataPolicy = p }
}

// WithArchiveSuffixes sets the archive suffixes accepted for subject anatomies
// and image group archives.
func WithArchiveSuffixes(suffixes ...string) Option {
	return func(s *Service) {
		if len(suffixes) > 0 {
			s.archivePolicy = ingest.Policy{ArchiveSuffixes: append([]string(nil), suffixes...)}
		}
	}
}

// WithImageSuffixes sets the suffixes accepted for image files.
func WithImageSuffixes(suffixes ...string) Option {
	return func(s *Service) {
		if len(suffixes) > 0 {
			s.imagePolicy = ingest.Policy{DataSuffixes: append([]string(nil), suffixes...)}
		}
	}
}

func newUUID() string { return uuid.NewString() }
