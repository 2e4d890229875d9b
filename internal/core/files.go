package core

import (
	"context"
	"io"
	"slices"

	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// openData streams the stored data file of a resource.
func (s *Service) openData(ctx context.Context, op string, ref domain.Ref, key string) (blob.Info, io.ReadCloser, error) {
	if key == "" {
		return blob.Info{}, nil, domain.NewError(domain.ErrUnknownResource, op, ref, "resource has no data file")
	}
	info, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return blob.Info{}, nil, domain.StorageFailure(op, ref, err)
	}
	return info, rc, nil
}

// member returns the bytes of an extracted archive member listed in members.
func member(ctx context.Context, in *ingest.Ingester, op string, ref domain.Ref, members []string, name string) ([]byte, error) {
	if !slices.Contains(members, name) {
		return nil, domain.NewError(domain.ErrUnknownResource, op, ref, "no member "+name)
	}
	b, err := in.GetMember(ctx, prefix(ref), name)
	if err != nil {
		return nil, domain.StorageFailure(op, ref, withRef(err, ref))
	}
	return b, nil
}
