package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"scodata/internal/attribute"
	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/internal/metadata"
	"scodata/pkg/domain"
)

// Service composes the metadata store and the file store into the resource
// managers. Both stores are owned by the caller until Close.
type Service struct {
	meta  metadata.Store
	blobs blob.Store
	locks keyedMutex

	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	newID   func() string

	propertyDefs   map[domain.ResourceType]attribute.Set
	groupOptions   attribute.Set
	funcdataPolicy ingest.Policy
	archivePolicy  ingest.Policy
	imagePolicy    ingest.Policy

	experiments *Experiments
	funcdata    *FunctionalDataManager
	images      *Images
	groups      *ImageGroups
	subjects    *Subjects
	runs        *ModelRuns
	attachments *Attachments
}

// DefaultImageSuffixes are the image file suffixes accepted by default.
var DefaultImageSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}

// NewService constructs a service over the supplied stores.
func NewService(meta metadata.Store, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		meta:           meta,
		blobs:          blobs,
		logger:         noopLogger{},
		clock:          systemClock{},
		metrics:        noopMetrics{},
		tracer:         noopTracer{},
		audit:          noopAudit{},
		newID:          newUUID,
		propertyDefs:   make(map[domain.ResourceType]attribute.Set),
		funcdataPolicy: ingest.DefaultPolicy(),
		archivePolicy:  ingest.ArchiveOnly(),
		imagePolicy:    ingest.Policy{DataSuffixes: append([]string(nil), DefaultImageSuffixes...)},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.attachments = &Attachments{svc: s}
	s.experiments = &Experiments{resources: newResources(s, domain.TypeExperiment, func(e *domain.Experiment) *domain.Handle { return &e.Handle })}
	s.funcdata = &FunctionalDataManager{
		resources: newResources(s, domain.TypeFunctionalData, func(f *domain.FunctionalData) *domain.Handle { return &f.Handle }),
		ingester:  ingest.New(blobs, s.funcdataPolicy),
	}
	s.images = &Images{resources: newResources(s, domain.TypeImage, func(i *domain.Image) *domain.Handle { return &i.Handle })}
	s.groups = &ImageGroups{
		resources: newResources(s, domain.TypeImageGroup, func(g *domain.ImageGroup) *domain.Handle { return &g.Handle }),
		ingester:  ingest.New(blobs, s.archivePolicy),
	}
	s.subjects = &Subjects{
		resources: newResources(s, domain.TypeSubject, func(a *domain.SubjectAnatomy) *domain.Handle { return &a.Handle }),
		ingester:  ingest.New(blobs, s.archivePolicy),
	}
	s.runs = &ModelRuns{resources: newResources(s, domain.TypeModelRun, func(r *domain.ModelRun) *domain.Handle { return &r.Handle })}
	return s
}

// NewInMemoryService creates a service over in-memory metadata and file stores.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(metadata.NewMemory(), blob.NewMemory(), opts...)
}

// Experiments returns the experiment manager.
func (s *Service) Experiments() *Experiments { return s.experiments }

// FunctionalData returns the functional data manager.
func (s *Service) FunctionalData() *FunctionalDataManager { return s.funcdata }

// Images returns the image manager.
func (s *Service) Images() *Images { return s.images }

// ImageGroups returns the image group manager.
func (s *Service) ImageGroups() *ImageGroups { return s.groups }

// Subjects returns the subject anatomy manager.
func (s *Service) Subjects() *Subjects { return s.subjects }

// ModelRuns returns the model run manager.
func (s *Service) ModelRuns() *ModelRuns { return s.runs }

// Attachments returns the attachment manager.
func (s *Service) Attachments() *Attachments { return s.attachments }

// Metadata returns the underlying metadata store.
func (s *Service) Metadata() metadata.Store { return s.meta }

// Blobs returns the underlying file store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Reset drops every collection and every stored file. It exists for first-run
// initialization and tests; no resource operation calls it.
func (s *Service) Reset(ctx context.Context) error {
	return s.run(ctx, "store.reset", domain.Ref{}, func(ctx context.Context) error {
		collections := []string{attachmentCollection}
		for _, t := range domain.ResourceTypes() {
			collections = append(collections, t.Collection())
		}
		for _, c := range collections {
			if err := s.meta.Clear(ctx, c); err != nil {
				return domain.StorageFailure("store.reset", domain.Ref{}, fmt.Errorf("clear %s: %w", c, err))
			}
			if _, err := blob.DeletePrefix(ctx, s.blobs, c+"/"); err != nil {
				return domain.StorageFailure("store.reset", domain.Ref{}, err)
			}
		}
		s.logger.Warn("data store reset", "collections", len(collections))
		return nil
	})
}

// Close releases both stores.
func (s *Service) Close() error {
	var errs []error
	if err := s.meta.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metadata store: %w", err))
	}
	if c, ok := s.blobs.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// run wraps one operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, name string, ref domain.Ref, fn func(context.Context) error) error {
	op := Operation{Name: name, Resource: ref}
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	entry := AuditEntry{
		Operation:    name,
		ResourceType: ref.Type,
		ResourceID:   ref.ID,
		Status:       AuditStatusSuccess,
		Duration:     elapsed,
		Timestamp:    s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "op", name, "type", ref.Type, "id", ref.ID, "error", err)
	} else {
		s.logger.Debug("operation completed", "op", name, "type", ref.Type, "id", ref.ID, "duration", elapsed)
	}
	if op.Mutation() {
		s.audit.Record(ctx, entry)
	}
	return err
}

func runValue[T any](s *Service, ctx context.Context, op string, ref domain.Ref, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := s.run(ctx, op, ref, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// lock serializes work on one resource id.
func (s *Service) lock(ref domain.Ref) func() {
	return s.locks.Lock(string(ref.Type) + "/" + ref.ID)
}

// prefix is the file-store directory owned by a resource.
func prefix(ref domain.Ref) string {
	return ref.Type.Collection() + "/" + ref.ID
}
