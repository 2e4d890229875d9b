package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"scodata/internal/blob"
	"scodata/internal/core"
	"scodata/internal/metadata"
	"scodata/pkg/domain"
)

func TestAttachmentLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	f := seed(t, svc)
	exp := createExperiment(t, svc, f, "E1")
	atts := svc.Attachments()

	png, err := atts.Add(ctx, exp.Ref(), core.AttachmentInput{Filename: "layout.png", Body: bytes.NewReader(pngHeader)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if png.MimeType != "image/png" {
		t.Fatalf("mime type not sniffed: %q", png.MimeType)
	}
	if _, err := atts.Add(ctx, exp.Ref(), core.AttachmentInput{Filename: "notes.txt", Body: strings.NewReader("v1"), MimeType: "text/plain"}); err != nil {
		t.Fatalf("add notes: %v", err)
	}
	if _, err := atts.Add(ctx, exp.Ref(), core.AttachmentInput{Filename: "notes.txt", Body: strings.NewReader("v2"), MimeType: "text/plain"}); err != nil {
		t.Fatalf("overwrite notes: %v", err)
	}
	b, err := atts.Get(ctx, exp.Ref(), "notes.txt")
	if err != nil || string(b) != "v2" {
		t.Fatalf("get: %q %v", b, err)
	}
	list, err := atts.List(ctx, exp.Ref())
	if err != nil || len(list) != 2 || list[0].Filename != "layout.png" || list[1].Filename != "notes.txt" {
		t.Fatalf("list: %+v %v", list, err)
	}
	if _, err := atts.Get(ctx, exp.Ref(), "missing.txt"); !errors.Is(err, domain.ErrUnknownResource) {
		t.Fatalf("expected unknown attachment, got %v", err)
	}
	if ok, err := atts.Delete(ctx, exp.Ref(), "layout.png"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := atts.Delete(ctx, exp.Ref(), "layout.png"); ok {
		t.Fatal("second delete should report false")
	}

	if _, err := svc.Experiments().Delete(ctx, exp.ID); err != nil {
		t.Fatal(err)
	}
	list, err = atts.List(ctx, exp.Ref())
	if err != nil || len(list) != 0 {
		t.Fatalf("owner delete left attachments: %v %v", list, err)
	}
	files, _ := svc.Blobs().List(ctx, "experiments/"+exp.ID+"/")
	if len(files) != 0 {
		t.Fatalf("owner delete left files: %v", files)
	}
}

func TestAttachmentValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	f := seed(t, svc)
	owner := f.image.Ref()
	if _, err := svc.Attachments().Add(ctx, domain.Ref{Type: domain.TypeExperiment, ID: "nope"}, core.AttachmentInput{Filename: "a", Body: strings.NewReader("")}); !errors.Is(err, domain.ErrUnknownResource) {
		t.Fatalf("expected unknown owner, got %v", err)
	}
	for _, name := range []string{"", "..", "/"} {
		if _, err := svc.Attachments().Add(ctx, owner, core.AttachmentInput{Filename: name, Body: strings.NewReader("x")}); !errors.Is(err, domain.ErrInvalidAttributeValue) {
			t.Fatalf("%q: expected invalid value, got %v", name, err)
		}
	}
	att, err := svc.Attachments().Add(ctx, owner, core.AttachmentInput{Filename: "dir/inner.txt", Body: strings.NewReader("x")})
	if err != nil || att.Filename != "inner.txt" {
		t.Fatalf("filename should be reduced to its base: %+v %v", att, err)
	}
	if _, err := svc.Attachments().Add(ctx, owner, core.AttachmentInput{Filename: "labels.meta", Body: strings.NewReader("x")}); err != nil {
		t.Fatalf("plain .meta filename rejected: %v", err)
	}
}

func TestAttachmentDeleteAllKeepsOwner(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	f := seed(t, svc)
	owner := f.subject.Ref()
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := svc.Attachments().Add(ctx, owner, core.AttachmentInput{Filename: name, Body: strings.NewReader(name)}); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if err := svc.Attachments().DeleteAll(ctx, owner); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if list, _ := svc.Attachments().List(ctx, owner); len(list) != 0 {
		t.Fatalf("attachments left: %+v", list)
	}
	if ok, err := svc.Subjects().Exists(ctx, f.subject.ID); err != nil || !ok {
		t.Fatalf("owner should survive: %v %v", ok, err)
	}
}

func TestFailedOverwriteKeepsPreviousAttachment(t *testing.T) {
	ctx := context.Background()
	meta := &toggledMetadata{Store: metadata.NewMemory(), collection: "attachments"}
	svc := core.NewService(meta, blob.NewMemory())
	t.Cleanup(func() { _ = svc.Close() })
	f := seed(t, svc)
	exp := createExperiment(t, svc, f, "E1")
	atts := svc.Attachments()

	if _, err := atts.Add(ctx, exp.Ref(), core.AttachmentInput{Filename: "n.txt", Body: strings.NewReader("v1"), MimeType: "text/plain"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	meta.broken = true
	_, err := atts.Add(ctx, exp.Ref(), core.AttachmentInput{Filename: "n.txt", Body: strings.NewReader("v2"), MimeType: "text/plain"})
	if !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	meta.broken = false
	b, err := atts.Get(ctx, exp.Ref(), "n.txt")
	if err != nil || string(b) != "v1" {
		t.Fatalf("previous content lost: %q %v", b, err)
	}
	if _, err := atts.Add(ctx, exp.Ref(), core.AttachmentInput{Filename: "new.txt", Body: strings.NewReader("x")}); err != nil {
		t.Fatalf("add new: %v", err)
	}
	files, err := svc.Blobs().List(ctx, "experiments/"+exp.ID+"/")
	if err != nil || len(files) != 2 {
		t.Fatalf("expected only the two attachment files, got %+v %v", files, err)
	}
}
