package ingest

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"strings"

	"scodata/internal/blob"
	"scodata/pkg/domain"
)

// Upload is a single uploaded file. Exactly one of Path and Body is set. A
// Path upload is moved into the store on success; the caller keeps it when
// ingestion fails.
type Upload struct {
	Filename string
	Path     string
	Body     io.Reader
}

// Result describes what was stored.
type Result struct {
	DataFile    string
	Filename    string
	ContentType string
	Checksum    string
	Size        int64
	Archive     bool
	Members     []string
}

// Ingester stores uploads below a per-resource key prefix:
// <prefix>/data/<filename> and <prefix>/members/<member path>.
type Ingester struct {
	store  blob.Store
	policy Policy
}

// New returns an Ingester writing to store.
func New(store blob.Store, policy Policy) *Ingester {
	return &Ingester{store: store, policy: policy}
}

// Policy returns the active suffix policy.
func (in *Ingester) Policy() Policy { return in.policy }

// DataKey is the key of the single data file for prefix.
func DataKey(prefix, filename string) string { return prefix + "/data/" + filename }

// MemberKey is the key of an extracted member.
func MemberKey(prefix, member string) string { return membersPrefix(prefix) + member }

func membersPrefix(prefix string) string { return prefix + "/members/" }

// Ingest classifies up and stores it under prefix.
func (in *Ingester) Ingest(ctx context.Context, prefix string, up Upload) (Result, error) {
	filename := cleanFilename(up.Filename)
	if filename == "" {
		return Result{}, domain.NewError(domain.ErrUnsupportedFileType, "ingest", domain.Ref{}, "missing filename")
	}
	if (up.Path == "") == (up.Body == nil) {
		return Result{}, fmt.Errorf("ingest %s: exactly one of path or body is required", filename)
	}
	kind, suffix, err := in.policy.Classify(filename)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		DataFile:    DataKey(prefix, filename),
		Filename:    filename,
		ContentType: contentType(suffix),
		Archive:     kind == KindArchive,
	}
	if kind == KindArchive && up.Path != "" {
		// validate and unpack from the local file first so a rejected archive
		// leaves the caller's upload untouched
		members, err := in.extractFile(ctx, prefix, up.Path)
		if err != nil {
			in.purgeQuietly(ctx, prefix)
			return Result{}, err
		}
		res.Members = members
	}
	if err := in.storeData(ctx, &res, up); err != nil {
		in.purgeQuietly(ctx, prefix)
		return Result{}, err
	}
	if kind == KindArchive && up.Path == "" {
		members, err := in.extractStored(ctx, prefix, res.DataFile)
		if err != nil {
			in.purgeQuietly(ctx, prefix)
			return Result{}, err
		}
		res.Members = members
	}
	return res, nil
}

func (in *Ingester) storeData(ctx context.Context, res *Result, up Upload) error {
	opts := blob.PutOptions{ContentType: res.ContentType}
	if up.Path != "" {
		sum, err := checksumFile(up.Path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", up.Path, err)
		}
		info, err := blob.Import(ctx, in.store, res.DataFile, up.Path, opts)
		if err != nil {
			return fmt.Errorf("store %s: %w", res.DataFile, err)
		}
		res.Checksum, res.Size = sum, info.Size
		return nil
	}
	h := sha256.New()
	info, err := in.store.Put(ctx, res.DataFile, io.TeeReader(up.Body, h), opts)
	if err != nil {
		return fmt.Errorf("store %s: %w", res.DataFile, err)
	}
	res.Checksum, res.Size = hex.EncodeToString(h.Sum(nil)), info.Size
	return nil
}

func (in *Ingester) extractFile(ctx context.Context, prefix, srcPath string) ([]string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return in.extract(ctx, prefix, f)
}

func (in *Ingester) extractStored(ctx context.Context, prefix, key string) ([]string, error) {
	_, rc, err := in.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reopen %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	return in.extract(ctx, prefix, rc)
}

// extract unpacks the regular files of a (possibly gzip-compressed) tar
// stream. Members keep archive order; a repeated name keeps its first position
// and the content of its last entry.
func (in *Ingester) extract(ctx context.Context, prefix string, r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, unsupported("corrupt gzip stream: " + err.Error())
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}
	tr := tar.NewReader(src)
	var (
		members []string
		seen    = map[string]bool{}
	)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, unsupported("corrupt archive: " + err.Error())
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA { //nolint:staticcheck // TypeRegA still appears in old archives
			continue
		}
		name, ok := safeMemberPath(hdr.Name)
		if !ok {
			return nil, unsupported("unsafe member path " + hdr.Name)
		}
		if _, err := in.store.Put(ctx, MemberKey(prefix, name), tr, blob.PutOptions{Overwrite: true}); err != nil {
			return nil, fmt.Errorf("store member %s: %w", name, err)
		}
		if !seen[name] {
			seen[name] = true
			members = append(members, name)
		}
	}
	if len(members) == 0 {
		return nil, unsupported("archive contains no files")
	}
	return members, nil
}

func safeMemberPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := path.Clean(name)
	if clean == "." || clean == "" {
		return "", false
	}
	return clean, true
}

func unsupported(detail string) error {
	return domain.NewError(domain.ErrUnsupportedFileType, "ingest", domain.Ref{}, detail)
}

// ListMembers returns the extracted member paths found under prefix, sorted.
// Non-archive uploads have none.
func (in *Ingester) ListMembers(ctx context.Context, prefix string) ([]string, error) {
	infos, err := in.store.List(ctx, membersPrefix(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, strings.TrimPrefix(info.Key, membersPrefix(prefix)))
	}
	return out, nil
}

// OpenMember opens an extracted member. Missing members fail with
// domain.ErrUnknownResource.
func (in *Ingester) OpenMember(ctx context.Context, prefix, member string) (io.ReadCloser, error) {
	name, ok := safeMemberPath(member)
	if !ok {
		return nil, domain.NewError(domain.ErrUnknownResource, "get member", domain.Ref{}, member)
	}
	_, rc, err := in.store.Get(ctx, MemberKey(prefix, name))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, domain.NewError(domain.ErrUnknownResource, "get member", domain.Ref{}, member)
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// GetMember returns the bytes of an extracted member.
func (in *Ingester) GetMember(ctx context.Context, prefix, member string) ([]byte, error) {
	rc, err := in.OpenMember(ctx, prefix, member)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Purge removes everything stored under prefix.
func (in *Ingester) Purge(ctx context.Context, prefix string) error {
	_, err := blob.DeletePrefix(ctx, in.store, prefix+"/")
	return err
}

func (in *Ingester) purgeQuietly(ctx context.Context, prefix string) {
	_ = in.Purge(context.WithoutCancel(ctx), prefix)
}

func checksumFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	var h hash.Hash = sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func contentType(suffix string) string {
	switch suffix {
	case ".tar":
		return "application/x-tar"
	case ".tar.gz", ".tgz", ".nii.gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}
