package core

import (
	"context"
	"io"
	"slices"

	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// Subjects manages subject anatomies uploaded as archives.
type Subjects struct {
	resources[domain.SubjectAnatomy]
	ingester *ingest.Ingester
}

// SubjectInput describes a new anatomy upload.
type SubjectInput struct {
	Upload     ingest.Upload
	Properties domain.Properties
}

// Create extracts the anatomy archive and stores the subject.
func (m *Subjects) Create(ctx context.Context, in SubjectInput) (domain.SubjectAnatomy, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.SubjectAnatomy, error) {
		if _, _, err := m.ingester.Policy().Classify(in.Upload.Filename); err != nil {
			return domain.SubjectAnatomy{}, withRef(err, domain.Ref{Type: m.typ})
		}
		h, err := m.newHandle(in.Properties, in.Upload.Filename)
		if err != nil {
			return domain.SubjectAnatomy{}, err
		}
		unlock := m.svc.lock(h.Ref())
		defer unlock()
		res, err := m.ingester.Ingest(ctx, prefix(h.Ref()), in.Upload)
		if err != nil {
			return domain.SubjectAnatomy{}, domain.StorageFailure(op, h.Ref(), withRef(err, h.Ref()))
		}
		h.Properties[domain.PropertyFilename] = domain.String(res.Filename)
		sub := domain.SubjectAnatomy{
			Handle:   h,
			DataFile: res.DataFile,
			Filename: res.Filename,
			Checksum: res.Checksum,
			Members:  res.Members,
		}
		if err := m.commit(ctx, &sub, handbackOf(in.Upload, res.DataFile)); err != nil {
			return domain.SubjectAnatomy{}, err
		}
		return sub, nil
	})
}

// ListMembers returns the extracted anatomy files.
func (m *Subjects) ListMembers(ctx context.Context, id string) ([]string, error) {
	sub, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(sub.Members), nil
}

// GetMember returns one extracted anatomy file.
func (m *Subjects) GetMember(ctx context.Context, id, name string) ([]byte, error) {
	op := m.op("get_member")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) ([]byte, error) {
		sub, err := m.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		return member(ctx, m.ingester, op, sub.Ref(), sub.Members, name)
	})
}

// Open streams the uploaded archive.
func (m *Subjects) Open(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	op := m.op("open")
	sub, err := m.load(ctx, op, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return m.svc.openData(ctx, op, sub.Ref(), sub.DataFile)
}
