package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"scodata/internal/attribute"
	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/internal/metadata"
	"scodata/pkg/domain"
)

// ListOptions narrows a listing. Filter keys are dotted document paths such
// as "experiment_id" or "properties.name". A zero Limit means no limit.
type ListOptions struct {
	Filter metadata.Filter
	Offset int
	Limit  int
}

// resources holds the operations shared by every resource manager. T is the
// stored handle type; handle exposes its embedded domain.Handle.
type resources[T any] struct {
	svc    *Service
	typ    domain.ResourceType
	handle func(*T) *domain.Handle
}

func newResources[T any](svc *Service, typ domain.ResourceType, handle func(*T) *domain.Handle) resources[T] {
	return resources[T]{svc: svc, typ: typ, handle: handle}
}

func (r resources[T]) ref(id string) domain.Ref { return domain.Ref{Type: r.typ, ID: id} }

func (r resources[T]) op(verb string) string { return r.typ.Collection() + "." + verb }

func (r resources[T]) load(ctx context.Context, op, id string) (T, error) {
	var v T
	doc, err := r.svc.meta.Get(ctx, r.typ.Collection(), id)
	if errors.Is(err, metadata.ErrNotFound) {
		return v, domain.UnknownResource(op, r.ref(id))
	}
	if err != nil {
		return v, domain.StorageFailure(op, r.ref(id), err)
	}
	if err := doc.Decode(&v); err != nil {
		return v, domain.StorageFailure(op, r.ref(id), fmt.Errorf("decode document: %w", err))
	}
	return v, nil
}

func (r resources[T]) save(ctx context.Context, op string, v *T) error {
	h := r.handle(v)
	h.Type = r.typ
	doc, err := metadata.Encode(v)
	if err != nil {
		return domain.StorageFailure(op, h.Ref(), fmt.Errorf("encode document: %w", err))
	}
	if err := r.svc.meta.Put(ctx, r.typ.Collection(), h.ID, doc); err != nil {
		return domain.StorageFailure(op, h.Ref(), err)
	}
	return nil
}

// handback names a caller's local upload that was moved into the store at key.
type handback struct {
	key  string
	path string
}

func handbackOf(up ingest.Upload, key string) handback {
	if up.Path == "" {
		return handback{}
	}
	return handback{key: key, path: up.Path}
}

// commit writes the metadata document of a new resource whose files are
// already stored. When the write fails the files are discarded.
func (r resources[T]) commit(ctx context.Context, v *T, hb handback) error {
	err := r.save(ctx, r.op("create"), v)
	if err == nil {
		return nil
	}
	r.svc.discard(ctx, r.handle(v).Ref(), hb)
	return err
}

// discard removes the files of a resource that was never committed. A path
// upload is written back to its original location first; if that fails the
// files are kept so the data is not lost.
func (s *Service) discard(ctx context.Context, ref domain.Ref, hb handback) {
	ctx = context.WithoutCancel(ctx)
	if hb.path != "" {
		if err := blob.Export(ctx, s.blobs, hb.key, hb.path); err != nil {
			s.logger.Error("upload not returned, keeping stored files", "type", ref.Type, "id", ref.ID, "path", hb.path, "error", err)
			return
		}
	}
	if _, err := blob.DeletePrefix(ctx, s.blobs, prefix(ref)+"/"); err != nil {
		s.logger.Error("orphaned files after failed create", "type", ref.Type, "id", ref.ID, "error", err)
	}
}

// newHandle assigns an id and timestamp and validates the caller's properties.
// name defaults to defaultName.
func (r resources[T]) newHandle(props domain.Properties, defaultName string) (domain.Handle, error) {
	id := r.svc.newID()
	checked, err := r.svc.checkProperties(r.op("create"), r.typ, props)
	if err != nil {
		return domain.Handle{}, err
	}
	if _, ok := checked[domain.PropertyName]; !ok {
		checked[domain.PropertyName] = domain.String(defaultName)
	}
	return domain.Handle{ID: id, Type: r.typ, Properties: checked, CreatedAt: r.svc.now()}, nil
}

// Get returns the resource or domain.ErrUnknownResource.
func (r resources[T]) Get(ctx context.Context, id string) (T, error) {
	return runValue(r.svc, ctx, r.op("get"), r.ref(id), func(ctx context.Context) (T, error) {
		return r.load(ctx, r.op("get"), id)
	})
}

// Exists reports whether a resource with id is stored.
func (r resources[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.load(ctx, r.op("exists"), id)
	if errors.Is(err, domain.ErrUnknownResource) {
		return false, nil
	}
	return err == nil, err
}

// List yields the matching resources in insertion order. The sequence reads
// lazily and may be ranged over again.
func (r resources[T]) List(ctx context.Context, opts ListOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		skipped, emitted := 0, 0
		for doc, err := range r.svc.meta.List(ctx, r.typ.Collection(), opts.Filter) {
			if err != nil {
				yield(zero, domain.StorageFailure(r.op("list"), domain.Ref{Type: r.typ}, err))
				return
			}
			if skipped < opts.Offset {
				skipped++
				continue
			}
			if opts.Limit > 0 && emitted >= opts.Limit {
				return
			}
			var v T
			if err := doc.Decode(&v); err != nil {
				yield(zero, domain.StorageFailure(r.op("list"), domain.Ref{Type: r.typ}, fmt.Errorf("decode document: %w", err)))
				return
			}
			emitted++
			if !yield(v, nil) {
				return
			}
		}
	}
}

// All drains List into a slice.
func (r resources[T]) All(ctx context.Context, opts ListOptions) ([]T, error) {
	var out []T
	for v, err := range r.List(ctx, opts) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count returns how many resources match filter.
func (r resources[T]) Count(ctx context.Context, filter metadata.Filter) (int, error) {
	n := 0
	for _, err := range r.List(ctx, ListOptions{Filter: filter}) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// UpdateProperties replaces the caller-owned properties of a resource.
// Reserved properties are kept and the name is kept when props omits it.
func (r resources[T]) UpdateProperties(ctx context.Context, id string, props domain.Properties) (T, error) {
	return r.mutateProperties(ctx, "update_properties", id, func(cur domain.Properties) (domain.Properties, error) {
		next, err := r.svc.checkProperties(r.op("update_properties"), r.typ, props)
		if err != nil {
			return nil, err
		}
		if _, ok := next[domain.PropertyName]; !ok {
			if name, ok := cur[domain.PropertyName]; ok {
				next[domain.PropertyName] = name
			}
		}
		return next, nil
	})
}

// UpsertProperties merges props into the resource properties. An invalid
// (zero) domain.Value removes the key; the name cannot be removed.
func (r resources[T]) UpsertProperties(ctx context.Context, id string, props domain.Properties) (T, error) {
	op := r.op("upsert_properties")
	return r.mutateProperties(ctx, "upsert_properties", id, func(cur domain.Properties) (domain.Properties, error) {
		merged := make(domain.Properties, len(cur)+len(props))
		for k, v := range cur {
			if !r.svc.reserved(r.typ, k) {
				merged[k] = v
			}
		}
		for k, v := range props {
			if v.Valid() {
				merged[k] = v
				continue
			}
			if k == domain.PropertyName {
				return nil, domain.NewError(domain.ErrInvalidAttribute, op, r.ref(id), "name cannot be removed")
			}
			if r.svc.reserved(r.typ, k) {
				return nil, domain.NewError(domain.ErrInvalidAttribute, op, r.ref(id), fmt.Sprintf("%q is read-only", k))
			}
			delete(merged, k)
		}
		return r.svc.checkProperties(op, r.typ, merged)
	})
}

func (r resources[T]) mutateProperties(ctx context.Context, verb, id string, fn func(domain.Properties) (domain.Properties, error)) (T, error) {
	op := r.op(verb)
	return runValue(r.svc, ctx, op, r.ref(id), func(ctx context.Context) (T, error) {
		unlock := r.svc.lock(r.ref(id))
		defer unlock()
		v, err := r.load(ctx, op, id)
		if err != nil {
			return v, err
		}
		h := r.handle(&v)
		next, err := fn(h.Properties)
		if err != nil {
			var zero T
			return zero, withRef(err, r.ref(id))
		}
		for k, val := range h.Properties {
			if r.svc.reserved(r.typ, k) {
				next[k] = val
			}
		}
		h.Properties = next
		if err := r.save(ctx, op, &v); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	})
}

// Delete marks the document as deleting, then removes attachments, files and
// the document. It reports whether the resource existed. If the mark cannot be
// written nothing is removed; a later failure leaves the marked document in
// place so the resource stays visible and the delete can be retried.
func (r resources[T]) Delete(ctx context.Context, id string) (bool, error) {
	return runValue(r.svc, ctx, r.op("delete"), r.ref(id), func(ctx context.Context) (bool, error) {
		unlock := r.svc.lock(r.ref(id))
		defer unlock()
		return r.remove(ctx, id)
	})
}

func (r resources[T]) remove(ctx context.Context, id string) (bool, error) {
	op, ref := r.op("delete"), r.ref(id)
	v, err := r.load(ctx, op, id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownResource) {
			return false, nil
		}
		return false, err
	}
	if h := r.handle(&v); !h.Deleting {
		h.Deleting = true
		if err := r.save(ctx, op, &v); err != nil {
			return false, err
		}
	}
	if err := r.svc.attachments.deleteAll(ctx, ref); err != nil {
		return false, err
	}
	if _, err := blob.DeletePrefix(ctx, r.svc.blobs, prefix(ref)+"/"); err != nil {
		return false, domain.StorageFailure(op, ref, err)
	}
	if _, err := r.svc.meta.Delete(ctx, r.typ.Collection(), id); err != nil {
		return false, domain.StorageFailure(op, ref, err)
	}
	return true, nil
}

// reserved reports whether key is maintained by the store for type t.
func (s *Service) reserved(t domain.ResourceType, key string) bool {
	switch key {
	case domain.PropertyFilename:
		return t == domain.TypeFunctionalData || t == domain.TypeImage || t == domain.TypeImageGroup || t == domain.TypeSubject
	case domain.PropertyState, domain.PropertyModel:
		return t == domain.TypeModelRun
	}
	return false
}

// checkProperties validates caller-supplied properties for type t and returns
// a copy with definition defaults applied.
func (s *Service) checkProperties(op string, t domain.ResourceType, props domain.Properties) (domain.Properties, error) {
	out := make(domain.Properties, len(props)+1)
	user := make(map[string]domain.Value, len(props))
	for k, v := range props {
		switch {
		case strings.TrimSpace(k) == "":
			return nil, domain.NewError(domain.ErrInvalidAttribute, op, domain.Ref{Type: t}, "empty property name")
		case s.reserved(t, k):
			return nil, domain.NewError(domain.ErrInvalidAttribute, op, domain.Ref{Type: t}, fmt.Sprintf("%q is read-only", k))
		case !v.Valid():
			return nil, domain.NewError(domain.ErrInvalidAttributeValue, op, domain.Ref{Type: t}, fmt.Sprintf("%q has no value", k))
		case !v.Finite():
			return nil, domain.NewError(domain.ErrInvalidAttributeValue, op, domain.Ref{Type: t}, fmt.Sprintf("%q must be finite", k))
		case k == domain.PropertyName:
			if _, ok := v.Str(); !ok {
				return nil, domain.NewError(domain.ErrInvalidAttributeValue, op, domain.Ref{Type: t}, "name must be a string")
			}
			out[k] = v
		default:
			user[k] = v
		}
	}
	if set, ok := s.propertyDefs[t]; ok {
		validated, err := attribute.ValidateMap(user, set)
		if err != nil {
			return nil, err
		}
		user = attribute.WithDefaults(validated, set)
	}
	for k, v := range user {
		out[k] = v
	}
	return out, nil
}

// withRef fills in the resource reference of a domain error raised before the
// resource was known.
func withRef(err error, ref domain.Ref) error {
	var de *domain.Error
	if errors.As(err, &de) && de.ID == "" {
		cp := *de
		cp.Type, cp.ID = ref.Type, ref.ID
		return &cp
	}
	return err
}
