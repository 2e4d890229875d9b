package core

import (
	"context"
	"io"
	"slices"

	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// FunctionalDataManager manages functional data. Each resource owns exactly
// one stored data file; archive members are a derived listing.
type FunctionalDataManager struct {
	resources[domain.FunctionalData]
	ingester *ingest.Ingester
}

// FunctionalDataInput describes a new functional data upload.
type FunctionalDataInput struct {
	ExperimentID string
	Upload       ingest.Upload
	Properties   domain.Properties
}

// Create ingests the upload and stores the resource. Unrecognised suffixes
// fail with domain.ErrUnsupportedFileType.
func (m *FunctionalDataManager) Create(ctx context.Context, in FunctionalDataInput) (domain.FunctionalData, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.FunctionalData, error) {
		if in.ExperimentID != "" {
			if err := m.svc.ownerExists(ctx, op, domain.Ref{Type: domain.TypeExperiment, ID: in.ExperimentID}); err != nil {
				return domain.FunctionalData{}, err
			}
		}
		if _, _, err := m.ingester.Policy().Classify(in.Upload.Filename); err != nil {
			return domain.FunctionalData{}, withRef(err, domain.Ref{Type: m.typ})
		}
		h, err := m.newHandle(in.Properties, in.Upload.Filename)
		if err != nil {
			return domain.FunctionalData{}, err
		}
		unlock := m.svc.lock(h.Ref())
		defer unlock()
		res, err := m.ingester.Ingest(ctx, prefix(h.Ref()), in.Upload)
		if err != nil {
			return domain.FunctionalData{}, domain.StorageFailure(op, h.Ref(), withRef(err, h.Ref()))
		}
		h.Properties[domain.PropertyFilename] = domain.String(res.Filename)
		fd := domain.FunctionalData{
			Handle:       h,
			ExperimentID: in.ExperimentID,
			DataFile:     res.DataFile,
			Filename:     res.Filename,
			Checksum:     res.Checksum,
			Archive:      res.Archive,
			Members:      res.Members,
		}
		if err := m.commit(ctx, &fd, handbackOf(in.Upload, res.DataFile)); err != nil {
			return domain.FunctionalData{}, err
		}
		return fd, nil
	})
}

// ListMembers returns the extracted member paths in archive order. It is
// empty for non-archive uploads.
func (m *FunctionalDataManager) ListMembers(ctx context.Context, id string) ([]string, error) {
	op := m.op("list_members")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) ([]string, error) {
		fd, err := m.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		return slices.Clone(fd.Members), nil
	})
}

// GetMember returns the bytes of one member. Names outside the listing fail
// with domain.ErrUnknownResource.
func (m *FunctionalDataManager) GetMember(ctx context.Context, id, name string) ([]byte, error) {
	op := m.op("get_member")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) ([]byte, error) {
		fd, err := m.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		return member(ctx, m.ingester, op, fd.Ref(), fd.Members, name)
	})
}

// Open streams the stored data file.
func (m *FunctionalDataManager) Open(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	op := m.op("open")
	fd, err := m.load(ctx, op, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return m.svc.openData(ctx, op, fd.Ref(), fd.DataFile)
}
