package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"scodata/internal/blob"
	"scodata/internal/metadata"
	"scodata/pkg/domain"
)

const attachmentCollection = "attachments"

// AttachmentInput is one file to attach. An empty MimeType is sniffed from
// the content.
type AttachmentInput struct {
	Filename string
	Body     io.Reader
	MimeType string
}

// Attachments manages auxiliary files owned by a resource. Files live under
// <collection>/<id>/attachments/<filename>; their records in the attachments
// collection.
type Attachments struct {
	svc *Service
}

type attachmentDoc struct {
	ID string `json:"_id"`
	domain.Attachment
}

func attachmentID(owner domain.Ref, filename string) string {
	return string(owner.Type) + "/" + owner.ID + "/" + filename
}

func attachmentKey(owner domain.Ref, filename string) string {
	return prefix(owner) + "/attachments/" + filename
}

// Add stores an attachment, replacing one with the same filename. Model run
// attachments go through ModelRuns.AddAttachment and need a successful run.
func (a *Attachments) Add(ctx context.Context, owner domain.Ref, in AttachmentInput) (domain.Attachment, error) {
	if owner.Type == domain.TypeModelRun {
		return a.svc.runs.AddAttachment(ctx, owner.ID, in)
	}
	return runValue(a.svc, ctx, "attachments.add", owner, func(ctx context.Context) (domain.Attachment, error) {
		unlock := a.svc.lock(owner)
		defer unlock()
		if err := a.svc.ownerExists(ctx, "attachments.add", owner); err != nil {
			return domain.Attachment{}, err
		}
		return a.put(ctx, owner, in)
	})
}

// put writes file then record. Replacing an attachment first copies the
// previous content aside so a failed record write can put it back. The caller
// holds the owner lock.
func (a *Attachments) put(ctx context.Context, owner domain.Ref, in AttachmentInput) (domain.Attachment, error) {
	const op = "attachments.add"
	name := cleanName(in.Filename)
	if name == "" {
		return domain.Attachment{}, domain.NewError(domain.ErrInvalidAttributeValue, op, owner, fmt.Sprintf("invalid attachment filename %q", in.Filename))
	}
	if in.Body == nil {
		return domain.Attachment{}, domain.NewError(domain.ErrInvalidAttributeValue, op, owner, "attachment body required")
	}
	body, mime := in.Body, in.MimeType
	if mime == "" {
		var err error
		body, mime, err = sniff(in.Body)
		if err != nil {
			return domain.Attachment{}, domain.StorageFailure(op, owner, err)
		}
	}
	key := attachmentKey(owner, name)
	backup, err := a.stash(ctx, owner, name)
	if err != nil {
		return domain.Attachment{}, domain.StorageFailure(op, owner, err)
	}
	if backup != "" {
		defer func() {
			if _, err := a.svc.blobs.Delete(context.WithoutCancel(ctx), backup); err != nil {
				a.svc.logger.Warn("remove attachment backup", "key", backup, "error", err)
			}
		}()
	}
	info, err := a.svc.blobs.Put(ctx, key, body, blob.PutOptions{ContentType: mime, Overwrite: true})
	if err != nil {
		a.rollback(ctx, key, backup)
		return domain.Attachment{}, domain.StorageFailure(op, owner, err)
	}
	att := domain.Attachment{
		ResourceID:   owner.ID,
		ResourceType: owner.Type,
		Filename:     name,
		MimeType:     mime,
		DataFile:     key,
		Size:         info.Size,
		CreatedAt:    a.svc.now(),
	}
	doc, err := metadata.Encode(attachmentDoc{ID: attachmentID(owner, name), Attachment: att})
	if err == nil {
		err = a.svc.meta.Put(ctx, attachmentCollection, attachmentID(owner, name), doc)
	}
	if err != nil {
		a.rollback(ctx, key, backup)
		return domain.Attachment{}, domain.StorageFailure(op, owner, err)
	}
	return att, nil
}

// stash copies the stored file of an existing attachment to a backup key and
// returns that key, or "" when there is no attachment to replace.
func (a *Attachments) stash(ctx context.Context, owner domain.Ref, name string) (string, error) {
	cur, err := a.Info(ctx, owner, name)
	if errors.Is(err, domain.ErrUnknownResource) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	backup := prefix(owner) + "/backup/" + uuid.NewString()
	_, err = blob.Copy(ctx, a.svc.blobs, cur.DataFile, backup, false)
	if errors.Is(err, blob.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("back up %s: %w", cur.DataFile, err)
	}
	return backup, nil
}

// rollback restores key from backup, or removes it when nothing was replaced.
func (a *Attachments) rollback(ctx context.Context, key, backup string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if backup == "" {
		_, err = a.svc.blobs.Delete(ctx, key)
	} else {
		_, err = blob.Copy(ctx, a.svc.blobs, backup, key, true)
	}
	if err != nil {
		a.svc.logger.Error("attachment rollback failed", "key", key, "error", err)
	}
}

// Info returns the record of one attachment.
func (a *Attachments) Info(ctx context.Context, owner domain.Ref, filename string) (domain.Attachment, error) {
	doc, err := a.svc.meta.Get(ctx, attachmentCollection, attachmentID(owner, cleanName(filename)))
	if errors.Is(err, metadata.ErrNotFound) {
		return domain.Attachment{}, domain.NewError(domain.ErrUnknownResource, "attachments.get", owner, fmt.Sprintf("attachment %q", filename))
	}
	if err != nil {
		return domain.Attachment{}, domain.StorageFailure("attachments.get", owner, err)
	}
	var d attachmentDoc
	if err := doc.Decode(&d); err != nil {
		return domain.Attachment{}, domain.StorageFailure("attachments.get", owner, err)
	}
	return d.Attachment, nil
}

// Open streams an attachment. The caller closes the reader.
func (a *Attachments) Open(ctx context.Context, owner domain.Ref, filename string) (domain.Attachment, io.ReadCloser, error) {
	att, err := a.Info(ctx, owner, filename)
	if err != nil {
		return domain.Attachment{}, nil, err
	}
	_, rc, err := a.svc.blobs.Get(ctx, att.DataFile)
	if err != nil {
		return domain.Attachment{}, nil, domain.StorageFailure("attachments.get", owner, err)
	}
	return att, rc, nil
}

// Get returns the bytes of an attachment or domain.ErrUnknownResource.
func (a *Attachments) Get(ctx context.Context, owner domain.Ref, filename string) ([]byte, error) {
	return runValue(a.svc, ctx, "attachments.get_attachment", owner, func(ctx context.Context) ([]byte, error) {
		_, rc, err := a.Open(ctx, owner, filename)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, domain.StorageFailure("attachments.get", owner, err)
		}
		return b, nil
	})
}

// List returns the attachment records of owner in the order they were first added.
func (a *Attachments) List(ctx context.Context, owner domain.Ref) ([]domain.Attachment, error) {
	filter := metadata.Filter{"resource_id": owner.ID, "resource_type": string(owner.Type)}
	var out []domain.Attachment
	for doc, err := range a.svc.meta.List(ctx, attachmentCollection, filter) {
		if err != nil {
			return nil, domain.StorageFailure("attachments.list", owner, err)
		}
		var d attachmentDoc
		if err := doc.Decode(&d); err != nil {
			return nil, domain.StorageFailure("attachments.list", owner, err)
		}
		out = append(out, d.Attachment)
	}
	return out, nil
}

// Delete removes one attachment and reports whether it existed. Model run
// attachments go through ModelRuns.DeleteAttachment so the run results stay
// in step.
func (a *Attachments) Delete(ctx context.Context, owner domain.Ref, filename string) (bool, error) {
	if owner.Type == domain.TypeModelRun {
		return a.svc.runs.DeleteAttachment(ctx, owner.ID, filename)
	}
	return runValue(a.svc, ctx, "attachments.delete", owner, func(ctx context.Context) (bool, error) {
		unlock := a.svc.lock(owner)
		defer unlock()
		return a.remove(ctx, owner, cleanName(filename))
	})
}

// remove drops the record and then the file, so a failure never leaves a
// record without its file.
func (a *Attachments) remove(ctx context.Context, owner domain.Ref, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	existed, err := a.svc.meta.Delete(ctx, attachmentCollection, attachmentID(owner, name))
	if err != nil {
		return false, domain.StorageFailure("attachments.delete", owner, err)
	}
	if _, err := a.svc.blobs.Delete(ctx, attachmentKey(owner, name)); err != nil {
		return existed, domain.StorageFailure("attachments.delete", owner, err)
	}
	return existed, nil
}

// DeleteAll removes every attachment of owner, leaving the owner itself.
func (a *Attachments) DeleteAll(ctx context.Context, owner domain.Ref) error {
	return a.svc.run(ctx, "attachments.delete_all", owner, func(ctx context.Context) error {
		unlock := a.svc.lock(owner)
		defer unlock()
		return a.deleteAll(ctx, owner)
	})
}

// deleteAll removes every attachment of owner. The caller holds the owner lock.
func (a *Attachments) deleteAll(ctx context.Context, owner domain.Ref) error {
	atts, err := a.List(ctx, owner)
	if err != nil {
		return err
	}
	for _, att := range atts {
		if _, err := a.remove(ctx, owner, att.Filename); err != nil {
			return err
		}
	}
	return nil
}

// ownerExists checks that owner names a stored resource.
func (s *Service) ownerExists(ctx context.Context, op string, owner domain.Ref) error {
	coll := owner.Type.Collection()
	if coll == "" || owner.ID == "" {
		return domain.UnknownResource(op, owner)
	}
	_, err := s.meta.Get(ctx, coll, owner.ID)
	if errors.Is(err, metadata.ErrNotFound) {
		return domain.UnknownResource(op, owner)
	}
	return domain.StorageFailure(op, owner, err)
}

// sniff detects the content type from the head of r and returns a reader
// that still yields the full content.
func sniff(r io.Reader) (io.Reader, string, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", err
	}
	head = head[:n]
	return io.MultiReader(bytes.NewReader(head), r), mimetype.Detect(head).String(), nil
}

// cleanName reduces a caller-supplied filename to a single path element.
func cleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
