package core

import (
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// Images manages single stimulus images.
type Images struct {
	resources[domain.Image]
}

// ImageInput describes a new image upload.
type ImageInput struct {
	Upload     ingest.Upload
	Properties domain.Properties
}

// Create stores an image file with a recognised image suffix.
func (m *Images) Create(ctx context.Context, in ImageInput) (domain.Image, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.Image, error) {
		filename := cleanName(in.Upload.Filename)
		if _, _, err := m.svc.imagePolicy.Classify(filename); err != nil || filename == "" {
			return domain.Image{}, domain.NewError(domain.ErrUnsupportedFileType, op, domain.Ref{Type: m.typ}, in.Upload.Filename)
		}
		if (in.Upload.Path == "") == (in.Upload.Body == nil) {
			return domain.Image{}, domain.NewError(domain.ErrInvalidAttributeValue, op, domain.Ref{Type: m.typ}, "exactly one of path or body is required")
		}
		h, err := m.newHandle(in.Properties, filename)
		if err != nil {
			return domain.Image{}, err
		}
		unlock := m.svc.lock(h.Ref())
		defer unlock()
		key := prefix(h.Ref()) + "/data/" + filename
		contentType, err := m.store(ctx, key, in.Upload)
		if err != nil {
			return domain.Image{}, domain.StorageFailure(op, h.Ref(), err)
		}
		h.Properties[domain.PropertyFilename] = domain.String(filename)
		img := domain.Image{Handle: h, DataFile: key, Filename: filename, ContentType: contentType}
		if err := m.commit(ctx, &img, handbackOf(in.Upload, key)); err != nil {
			return domain.Image{}, err
		}
		return img, nil
	})
}

func (m *Images) store(ctx context.Context, key string, up ingest.Upload) (string, error) {
	if up.Path != "" {
		mt, err := mimetype.DetectFile(up.Path)
		if err != nil {
			return "", fmt.Errorf("detect content type: %w", err)
		}
		if _, err := blob.Import(ctx, m.svc.blobs, key, up.Path, blob.PutOptions{ContentType: mt.String()}); err != nil {
			return "", err
		}
		return mt.String(), nil
	}
	body, contentType, err := sniff(up.Body)
	if err != nil {
		return "", err
	}
	if _, err := m.svc.blobs.Put(ctx, key, body, blob.PutOptions{ContentType: contentType}); err != nil {
		return "", err
	}
	return contentType, nil
}

// Open streams the image file.
func (m *Images) Open(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	op := m.op("open")
	img, err := m.load(ctx, op, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return m.svc.openData(ctx, op, img.Ref(), img.DataFile)
}
