package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{InternalImportForbidden, "scodata/internal/core", true},
		{InternalImportForbidden, "scodata/pkg/domain", false},
		{InfraImportForbidden, "scodata/internal/infra/blob/fs", true},
		{InfraImportForbidden, "scodata/internal/blob", false},
		{StorageSDKImportForbidden, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{StorageSDKImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{StorageSDKImportForbidden, "modernc.org/sqlite", true},
		{StorageSDKImportForbidden, "modernc.org/sqlitex", false},
		{StorageSDKImportForbidden, "github.com/google/uuid", false},
		{Any(InfraImportForbidden, StorageSDKImportForbidden), "github.com/redis/go-redis/v9", true},
		{Any(), "fmt", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("predicate(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"scodata/internal/infra/blob/fs\"\n)\nvar _ = fmt.Sprint\nvar _ = fs.New\n")
	writeGo(t, dir, "a_test.go", "package tmp\nimport \"scodata/internal/infra/persistence/sqlite\"\n")
	writeGo(t, dir, "notes.txt", "import \"scodata/internal/infra\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	viols, err := directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "scodata/internal/infra/blob/fs") {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InfraImportForbidden); err == nil {
		t.Fatal("expected missing dir to fail")
	}
}

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfDirectViolations(t *testing.T) {
	var r recorder
	failIfDirectViolations(&r, "drivers", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfDirectViolations(&r, "drivers", []string{"x (in a.go)"})
	if !strings.Contains(r.msg, "drivers") || !strings.Contains(r.msg, "x (in a.go)") {
		t.Fatalf("message %q", r.msg)
	}
}
