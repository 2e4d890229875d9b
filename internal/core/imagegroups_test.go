package core_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"scodata/internal/attribute"
	"scodata/internal/core"
	"scodata/pkg/domain"
)

func groupOptions(t *testing.T) attribute.Set {
	t.Helper()
	stimulus := domain.String("gray")
	aperture, err := attribute.Expr("value >= 0.0 && value <= 1.0")
	if err != nil {
		t.Fatal(err)
	}
	return attribute.NewSet(
		attribute.Definition{Name: "stimulus_edge_value", Constraint: aperture},
		attribute.Definition{Name: "background", Default: &stimulus, Constraint: attribute.EnumType("gray", "black")},
		attribute.Definition{Name: "stimulus_pixels"},
	)
}

func TestImageGroupFromArchive(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, core.WithImageGroupOptions(groupOptions(t)))
	archive := tarball(t,
		"set/a.png", string(pngHeader),
		"set/sub/b.png", string(pngHeader),
		"README", "ignored",
	)
	group, err := svc.ImageGroups().CreateFromArchive(ctx, core.ImageGroupArchiveInput{
		Upload:  upload("stimuli.tar", archive),
		Options: []attribute.Attribute{attribute.New("stimulus_edge_value", 0.5)},
	})
	if err != nil {
		t.Fatalf("create from archive: %v", err)
	}
	if len(group.Images) != 2 {
		t.Fatalf("expected 2 images, got %+v", group.Images)
	}
	if group.Images[0].Folder != "/set" || group.Images[1].Folder != "/set/sub" || group.Images[1].Name != "b.png" {
		t.Fatalf("unexpected entries %+v", group.Images)
	}
	if v, _ := group.Options["background"].Str(); v != "gray" {
		t.Fatalf("default option missing: %v", group.Options)
	}
	img, err := svc.Images().Get(ctx, group.Images[0].ID)
	if err != nil || img.GroupID != group.ID || img.ContentType != "image/png" {
		t.Fatalf("owned image: %+v %v", img, err)
	}
	_, rc, err := svc.Images().Open(ctx, img.ID)
	if err != nil {
		t.Fatalf("open image: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != string(pngHeader) {
		t.Fatal("image bytes differ from archive member")
	}

	if ok, err := svc.ImageGroups().Delete(ctx, group.ID); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := svc.Images().Get(ctx, img.ID); !errors.Is(err, domain.ErrUnknownResource) {
		t.Fatalf("owned image should be deleted, got %v", err)
	}
	left, _ := svc.Blobs().List(ctx, "imagegroups/")
	if len(left) != 0 {
		t.Fatalf("group files left: %v", left)
	}
}

func TestImageGroupRejectsArchiveWithoutImages(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.ImageGroups().CreateFromArchive(ctx, core.ImageGroupArchiveInput{Upload: upload("docs.tar", tarball(t, "a.txt", "x"))})
	if !errors.Is(err, domain.ErrUnsupportedFileType) {
		t.Fatalf("expected unsupported file type, got %v", err)
	}
	if n, _ := svc.Images().Count(ctx, nil); n != 0 {
		t.Fatalf("images left behind: %d", n)
	}
}

func TestImageGroupOptions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, core.WithImageGroupOptions(groupOptions(t)))
	f := seed(t, svc)
	cases := []struct {
		name string
		opts []attribute.Attribute
		want error
	}{
		{"unknown option", []attribute.Attribute{attribute.New("zoom", 2)}, domain.ErrInvalidAttribute},
		{"out of range", []attribute.Attribute{attribute.New("stimulus_edge_value", 3)}, domain.ErrInvalidAttributeValue},
		{"not in enum", []attribute.Attribute{attribute.New("background", "white")}, domain.ErrInvalidAttributeValue},
	}
	for _, tc := range cases {
		if _, err := svc.ImageGroups().UpdateOptions(ctx, f.group.ID, tc.opts); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	updated, err := svc.ImageGroups().UpdateOptions(ctx, f.group.ID, []attribute.Attribute{
		attribute.New("stimulus_pixels", []float64{1, 2}),
		attribute.New("background", "black"),
	})
	if err != nil {
		t.Fatalf("update options: %v", err)
	}
	opts, err := svc.ImageGroups().Options(ctx, updated.ID)
	if err != nil || len(opts) != 2 {
		t.Fatalf("options: %v %v", opts, err)
	}
}

func TestGroupsForImageAndOwnership(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	f := seed(t, svc)
	other, err := svc.ImageGroups().Create(ctx, core.ImageGroupInput{ImageIDs: []string{f.image.ID}})
	if err != nil {
		t.Fatalf("second group: %v", err)
	}
	groups, err := svc.ImageGroups().GroupsForImage(ctx, f.image.ID)
	if err != nil || len(groups) != 2 || groups[0].ID != f.group.ID || groups[1].ID != other.ID {
		t.Fatalf("groups for image: %v %v", groups, err)
	}
	if _, err := svc.ImageGroups().Create(ctx, core.ImageGroupInput{ImageIDs: []string{"missing"}}); !errors.Is(err, domain.ErrUnknownResource) {
		t.Fatalf("expected unknown image, got %v", err)
	}
	if _, err := svc.ImageGroups().Delete(ctx, other.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Images().Get(ctx, f.image.ID); err != nil {
		t.Fatalf("image owned by the first group must survive: %v", err)
	}
	if _, err := svc.ImageGroups().Delete(ctx, f.group.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Images().Get(ctx, f.image.ID); !errors.Is(err, domain.ErrUnknownResource) {
		t.Fatalf("owning group delete should remove the image, got %v", err)
	}
}
