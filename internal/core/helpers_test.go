package core_test

import (
	"archive/tar"
	"bytes"
	"context"
	"strings"
	"testing"

	"scodata/internal/core"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newService(t *testing.T, opts ...core.Option) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// tarball builds a tar archive from name/body pairs.
func tarball(t *testing.T, pairs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for i := 0; i+1 < len(pairs); i += 2 {
		body := []byte(pairs[i+1])
		if err := tw.WriteHeader(&tar.Header{Name: pairs[i], Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func upload(name string, body []byte) ingest.Upload {
	return ingest.Upload{Filename: name, Body: bytes.NewReader(body)}
}

type fixture struct {
	subject domain.SubjectAnatomy
	image   domain.Image
	group   domain.ImageGroup
}

func seed(t *testing.T, svc *core.Service) fixture {
	t.Helper()
	ctx := context.Background()
	subject, err := svc.Subjects().Create(ctx, core.SubjectInput{
		Upload: upload("anatomy.tar", tarball(t, "mri/T1.mgz", "t1", "surf/lh.white", "lh")),
	})
	if err != nil {
		t.Fatalf("create subject: %v", err)
	}
	img, err := svc.Images().Create(ctx, core.ImageInput{Upload: upload("stim.png", pngHeader)})
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	group, err := svc.ImageGroups().Create(ctx, core.ImageGroupInput{ImageIDs: []string{img.ID}})
	if err != nil {
		t.Fatalf("create image group: %v", err)
	}
	return fixture{subject: subject, image: img, group: group}
}

func createExperiment(t *testing.T, svc *core.Service, f fixture, name string) domain.Experiment {
	t.Helper()
	exp, err := svc.Experiments().Create(context.Background(), core.ExperimentInput{
		SubjectID:    f.subject.ID,
		ImageGroupID: f.group.ID,
		Properties:   domain.Properties{domain.PropertyName: domain.String(name)},
	})
	if err != nil {
		t.Fatalf("create experiment: %v", err)
	}
	return exp
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
