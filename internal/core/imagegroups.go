package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"

	"github.com/gabriel-vasile/mimetype"

	"scodata/internal/attribute"
	"scodata/internal/blob"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

// ImageGroups manages ordered image collections. A group owns the images it
// created from an archive and any image that had no owner when it was grouped;
// deleting the group deletes them.
type ImageGroups struct {
	resources[domain.ImageGroup]
	ingester *ingest.Ingester
}

// ImageGroupInput builds a group from existing images.
type ImageGroupInput struct {
	ImageIDs   []string
	Options    []attribute.Attribute
	Properties domain.Properties
}

// ImageGroupArchiveInput builds a group from an uploaded image archive.
type ImageGroupArchiveInput struct {
	Upload     ingest.Upload
	Options    []attribute.Attribute
	Properties domain.Properties
}

func (m *ImageGroups) options(attrs []attribute.Attribute) (map[string]domain.Value, error) {
	values, err := attribute.Validate(attrs, m.svc.groupOptions)
	if err != nil {
		return nil, err
	}
	return attribute.WithDefaults(values, m.svc.groupOptions), nil
}

// Create groups existing images in the given order.
func (m *ImageGroups) Create(ctx context.Context, in ImageGroupInput) (domain.ImageGroup, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.ImageGroup, error) {
		if len(in.ImageIDs) == 0 {
			return domain.ImageGroup{}, domain.NewError(domain.ErrInvalidAttributeValue, op, domain.Ref{Type: m.typ}, "image group needs at least one image")
		}
		opts, err := m.options(in.Options)
		if err != nil {
			return domain.ImageGroup{}, withRef(err, domain.Ref{Type: m.typ})
		}
		h, err := m.newHandle(in.Properties, "")
		if err != nil {
			return domain.ImageGroup{}, err
		}
		unlock := m.svc.lock(h.Ref())
		defer unlock()

		seen := make(map[string]bool, len(in.ImageIDs))
		entries := make([]domain.GroupImage, 0, len(in.ImageIDs))
		for _, id := range in.ImageIDs {
			if seen[id] {
				return domain.ImageGroup{}, domain.NewError(domain.ErrInvalidAttributeValue, op, h.Ref(), "duplicate image "+id)
			}
			seen[id] = true
			img, err := m.svc.images.load(ctx, op, id)
			if err != nil {
				return domain.ImageGroup{}, err
			}
			entries = append(entries, domain.GroupImage{ID: id, Folder: "/", Name: img.Filename})
		}
		claimed, err := m.claim(ctx, h.ID, in.ImageIDs)
		if err != nil {
			m.release(ctx, claimed)
			return domain.ImageGroup{}, domain.StorageFailure(op, h.Ref(), err)
		}
		group := domain.ImageGroup{Handle: h, Images: entries, Options: opts}
		if err := m.commit(ctx, &group, handback{}); err != nil {
			m.release(ctx, claimed)
			return domain.ImageGroup{}, err
		}
		return group, nil
	})
}

// claim records groupID as owner of every listed image that has none.
func (m *ImageGroups) claim(ctx context.Context, groupID string, ids []string) ([]string, error) {
	var claimed []string
	for _, id := range ids {
		err := func() error {
			unlock := m.svc.lock(m.svc.images.ref(id))
			defer unlock()
			img, err := m.svc.images.load(ctx, "imagegroups.create", id)
			if err != nil || img.GroupID != "" {
				return err
			}
			img.GroupID = groupID
			if err := m.svc.images.save(ctx, "imagegroups.create", &img); err != nil {
				return err
			}
			claimed = append(claimed, id)
			return nil
		}()
		if err != nil {
			return claimed, err
		}
	}
	return claimed, nil
}

func (m *ImageGroups) release(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		unlock := m.svc.lock(m.svc.images.ref(id))
		if img, err := m.svc.images.load(ctx, "imagegroups.create", id); err == nil {
			img.GroupID = ""
			if err := m.svc.images.save(ctx, "imagegroups.create", &img); err != nil {
				m.svc.logger.Warn("release image ownership", "id", id, "error", err)
			}
		}
		unlock()
	}
}

// CreateFromArchive stores an image archive and creates one owned image per
// member with a recognised image suffix. Images read their bytes from the
// extracted member; nothing is copied twice.
func (m *ImageGroups) CreateFromArchive(ctx context.Context, in ImageGroupArchiveInput) (domain.ImageGroup, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.ImageGroup, error) {
		if _, _, err := m.ingester.Policy().Classify(in.Upload.Filename); err != nil {
			return domain.ImageGroup{}, withRef(err, domain.Ref{Type: m.typ})
		}
		opts, err := m.options(in.Options)
		if err != nil {
			return domain.ImageGroup{}, withRef(err, domain.Ref{Type: m.typ})
		}
		h, err := m.newHandle(in.Properties, in.Upload.Filename)
		if err != nil {
			return domain.ImageGroup{}, err
		}
		unlock := m.svc.lock(h.Ref())
		defer unlock()
		res, err := m.ingester.Ingest(ctx, prefix(h.Ref()), in.Upload)
		if err != nil {
			return domain.ImageGroup{}, domain.StorageFailure(op, h.Ref(), withRef(err, h.Ref()))
		}
		images, err := m.memberImages(ctx, h, res.Members)
		if err == nil && len(images) == 0 {
			err = domain.NewError(domain.ErrUnsupportedFileType, op, h.Ref(), "archive contains no images")
		}
		var saved []string
		for i := 0; err == nil && i < len(images); i++ {
			if err = m.svc.images.save(ctx, op, &images[i]); err == nil {
				saved = append(saved, images[i].ID)
			}
		}
		if err != nil {
			m.dropImages(ctx, saved)
			m.svc.discard(ctx, h.Ref(), handbackOf(in.Upload, res.DataFile))
			return domain.ImageGroup{}, domain.StorageFailure(op, h.Ref(), err)
		}
		h.Properties[domain.PropertyFilename] = domain.String(res.Filename)
		group := domain.ImageGroup{Handle: h, Options: opts, DataFile: res.DataFile, Filename: res.Filename}
		for _, img := range images {
			folder := path.Dir(path.Clean("/" + memberOf(h.Ref(), img.DataFile)))
			group.Images = append(group.Images, domain.GroupImage{ID: img.ID, Folder: folder, Name: img.Filename})
		}
		if err := m.commit(ctx, &group, handbackOf(in.Upload, res.DataFile)); err != nil {
			m.dropImages(ctx, saved)
			return domain.ImageGroup{}, err
		}
		return group, nil
	})
}

func (m *ImageGroups) memberImages(ctx context.Context, group domain.Handle, members []string) ([]domain.Image, error) {
	var out []domain.Image
	for _, name := range members {
		if kind, _, err := m.svc.imagePolicy.Classify(name); err != nil || kind != ingest.KindData {
			continue
		}
		contentType, err := m.detect(ctx, group.Ref(), name)
		if err != nil {
			return nil, err
		}
		base := path.Base(name)
		out = append(out, domain.Image{
			Handle: domain.Handle{
				ID:   m.svc.newID(),
				Type: domain.TypeImage,
				Properties: domain.Properties{
					domain.PropertyName:     domain.String(base),
					domain.PropertyFilename: domain.String(base),
				},
				CreatedAt: group.CreatedAt,
			},
			DataFile:    ingest.MemberKey(prefix(group.Ref()), name),
			Filename:    base,
			ContentType: contentType,
			GroupID:     group.ID,
		})
	}
	return out, nil
}

func (m *ImageGroups) detect(ctx context.Context, group domain.Ref, name string) (string, error) {
	rc, err := m.ingester.OpenMember(ctx, prefix(group), name)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}

func (m *ImageGroups) dropImages(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if _, err := m.svc.meta.Delete(ctx, domain.TypeImage.Collection(), id); err != nil {
			m.svc.logger.Warn("drop image after failed group create", "id", id, "error", err)
		}
	}
}

func memberOf(group domain.Ref, key string) string {
	p := prefix(group) + "/members/"
	if len(key) >= len(p) && key[:len(p)] == p {
		return key[len(p):]
	}
	return key
}

// UpdateOptions validates and replaces the group options.
func (m *ImageGroups) UpdateOptions(ctx context.Context, id string, attrs []attribute.Attribute) (domain.ImageGroup, error) {
	op := m.op("update_options")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) (domain.ImageGroup, error) {
		opts, err := m.options(attrs)
		if err != nil {
			return domain.ImageGroup{}, withRef(err, m.ref(id))
		}
		unlock := m.svc.lock(m.ref(id))
		defer unlock()
		group, err := m.load(ctx, op, id)
		if err != nil {
			return domain.ImageGroup{}, err
		}
		group.Options = opts
		if err := m.save(ctx, op, &group); err != nil {
			return domain.ImageGroup{}, err
		}
		return group, nil
	})
}

// Options returns the group options.
func (m *ImageGroups) Options(ctx context.Context, id string) (map[string]domain.Value, error) {
	group, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return maps.Clone(group.Options), nil
}

// GroupsForImage returns every group listing imageID, in insertion order.
func (m *ImageGroups) GroupsForImage(ctx context.Context, imageID string) ([]domain.ImageGroup, error) {
	var out []domain.ImageGroup
	for group, err := range m.List(ctx, ListOptions{}) {
		if err != nil {
			return nil, err
		}
		for _, img := range group.Images {
			if img.ID == imageID {
				out = append(out, group)
				break
			}
		}
	}
	return out, nil
}

// Open streams the uploaded archive of a group created from one.
func (m *ImageGroups) Open(ctx context.Context, id string) (blob.Info, io.ReadCloser, error) {
	op := m.op("open")
	group, err := m.load(ctx, op, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return m.svc.openData(ctx, op, group.Ref(), group.DataFile)
}

// Delete marks the group as deleting, removes its owned images and then the
// group with its files.
func (m *ImageGroups) Delete(ctx context.Context, id string) (bool, error) {
	op := m.op("delete")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) (bool, error) {
		unlock := m.svc.lock(m.ref(id))
		defer unlock()
		group, err := m.load(ctx, op, id)
		if errors.Is(err, domain.ErrUnknownResource) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !group.Deleting {
			group.Deleting = true
			if err := m.save(ctx, op, &group); err != nil {
				return false, err
			}
		}
		for _, entry := range group.Images {
			if err := m.dropOwned(ctx, id, entry.ID); err != nil {
				return false, fmt.Errorf("delete owned image %s: %w", entry.ID, err)
			}
		}
		return m.remove(ctx, id)
	})
}

func (m *ImageGroups) dropOwned(ctx context.Context, groupID, imageID string) error {
	unlock := m.svc.lock(m.svc.images.ref(imageID))
	defer unlock()
	img, err := m.svc.images.load(ctx, "imagegroups.delete", imageID)
	if errors.Is(err, domain.ErrUnknownResource) {
		return nil
	}
	if err != nil {
		return err
	}
	if img.GroupID != groupID {
		return nil
	}
	_, err = m.svc.images.remove(ctx, imageID)
	return err
}
