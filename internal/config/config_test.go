package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scodata/internal/core"
	"scodata/internal/ingest"
	"scodata/pkg/domain"
)

const sample = `
metadata:
  driver: memory
files:
  driver: memory
functional_data:
  data_suffixes: [".nii"]
  archive_suffixes: [".tar"]
image_suffixes: [".png"]
image_group_options:
  - name: stimulus_duration
    description: seconds each image is shown
    type: float
    expr: "value > 0.0"
    default: 2.5
  - name: stimulus_edge_value
    type: enum
    values: ["0", "1"]
properties:
  funcdata:
    - name: protocol
      type: string
log:
  mode: nop
trace:
  mode: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scodata.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Metadata.Driver != "sqlite" || cfg.Files.Driver != "fs" {
		t.Fatalf("unexpected default drivers %+v %+v", cfg.Metadata, cfg.Files)
	}
	if len(cfg.FunctionalData.DataSuffixes) != len(ingest.DefaultDataSuffixes) {
		t.Fatalf("default suffixes %v", cfg.FunctionalData.DataSuffixes)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv(EnvConfigPath, path)
	t.Setenv("SCODATA_IMAGE_SUFFIXES", ".png, .jpg")
	t.Setenv("SCODATA_REDIS_DB", "3")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Metadata.Driver != "memory" || cfg.Metadata.RedisDB != 3 {
		t.Fatalf("metadata %+v", cfg.Metadata)
	}
	if strings.Join(cfg.ImageSuffixes, "|") != ".png|.jpg" {
		t.Fatalf("env override not applied: %v", cfg.ImageSuffixes)
	}
	if len(cfg.ArchiveSuffixes) != len(ingest.DefaultArchiveSuffixes) {
		t.Fatalf("unset keys should keep defaults: %v", cfg.ArchiveSuffixes)
	}
	if cfg.ImageGroupOptions[0].Default != 2.5 {
		t.Fatalf("default decoded as %#v", cfg.ImageGroupOptions[0].Default)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "colour: blue\n",
		"bad trace":    "trace:\n  mode: zipkin\n",
		"no suffixes":  "functional_data:\n  data_suffixes: []\n  archive_suffixes: []\n",
		"bad yaml":     "metadata: [\n",
		"bad metrics":  "metrics:\n  mode: statsd\n",
		"empty images": "image_suffixes: []\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing explicit path to fail")
	}
}

func TestDefinitions(t *testing.T) {
	set, err := Definitions([]AttributeConfig{
		{Name: "contrast", Type: "float", Expr: "value <= 1.0", Default: 0.5},
		{Name: "labels", Type: "list"},
	})
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	def, ok := set.Lookup("contrast")
	if !ok || def.Default == nil {
		t.Fatalf("contrast definition %+v", def)
	}
	if err := def.Constraint.Check(domain.Number(2)); err == nil {
		t.Fatal("expr constraint not applied")
	}
	bad := [][]AttributeConfig{
		{{Name: ""}},
		{{Name: "a"}, {Name: "a"}},
		{{Name: "a", Type: "colour"}},
		{{Name: "a", Expr: "value +"}},
		{{Name: "a", Type: "int", Default: "x"}},
	}
	for i, defs := range bad {
		if _, err := Definitions(defs); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestServiceOptionsBuildWorkingService(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	if err := Parse([]byte(sample), &cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	var traces bytes.Buffer
	rt, err := cfg.ServiceOptions(ctx, nil, &traces)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	t.Cleanup(func() { _ = rt.Shutdown(ctx) })
	svc, err := core.Open(ctx, cfg.Storage(), rt.Options...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	_, err = svc.FunctionalData().Create(ctx, core.FunctionalDataInput{Upload: ingest.Upload{Filename: "x.mgz", Body: strings.NewReader("x")}})
	if !errors.Is(err, domain.ErrUnsupportedFileType) {
		t.Fatalf("configured suffixes not applied: %v", err)
	}
	_, err = svc.FunctionalData().Create(ctx, core.FunctionalDataInput{
		Upload:     ingest.Upload{Filename: "x.nii", Body: strings.NewReader("x")},
		Properties: domain.Properties{"lab": domain.String("x")},
	})
	if !errors.Is(err, domain.ErrInvalidAttribute) {
		t.Fatalf("property definitions not applied: %v", err)
	}
	if !strings.Contains(traces.String(), `"operation":"funcdata.create"`) || !strings.Contains(traces.String(), `"service":"scodata"`) {
		t.Fatalf("json trace output missing: %s", traces.String())
	}
}

func TestServiceOptionsOTelStdout(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	cfg.Trace.Mode = "otel-stdout"
	var out bytes.Buffer
	rt, err := cfg.ServiceOptions(ctx, nil, &out)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	svc := core.NewInMemoryService(rt.Options...)
	_, _ = svc.Subjects().Get(ctx, "missing")
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(out.String(), "subjects.get") {
		t.Fatalf("span not exported: %s", out.String())
	}
}

func TestStorageConversion(t *testing.T) {
	cfg := Default()
	cfg.Files.S3 = S3Config{Bucket: "b", PathStyle: true}
	sc := cfg.Storage()
	if string(sc.Metadata.Driver) != "sqlite" || sc.Metadata.SQLitePath != "scodata.db" {
		t.Fatalf("metadata %+v", sc.Metadata)
	}
	if sc.Blob.FSRoot != "blobdata" || sc.Blob.S3.Bucket != "b" || !sc.Blob.S3.PathStyle {
		t.Fatalf("blob %+v", sc.Blob)
	}
}
