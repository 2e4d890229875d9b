package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
)

// Exists reports whether key is stored.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReadAll returns the full content stored at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Import hands the local file at srcPath over to the store. Stores that
// implement Importer adopt the file directly; otherwise it is streamed in and
// removed afterwards. Either way the caller is left without a second copy.
func Import(ctx context.Context, s Store, key, srcPath string, opts PutOptions) (Info, error) {
	if im, ok := s.(Importer); ok {
		return im.Import(ctx, key, srcPath, opts)
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return Info{}, err
	}
	info, err := s.Put(ctx, key, f, opts)
	_ = f.Close()
	if err != nil {
		return Info{}, err
	}
	if err := os.Remove(srcPath); err != nil {
		return info, fmt.Errorf("remove imported source: %w", err)
	}
	return info, nil
}

// Export writes the content stored at key to the local file dstPath, replacing
// it atomically. It is the reverse of Import and leaves the stored copy alone.
func Export(ctx context.Context, s Store, key, dstPath string) error {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	pf, err := renameio.TempFile("", dstPath)
	if err != nil {
		return err
	}
	defer func() { _ = pf.Cleanup() }()
	if _, err := io.Copy(pf, rc); err != nil {
		return fmt.Errorf("export %s: %w", key, err)
	}
	return pf.CloseAtomicallyReplace()
}

// Copy duplicates the content and content type stored at src under dst.
func Copy(ctx context.Context, s Store, src, dst string, overwrite bool) (Info, error) {
	info, rc, err := s.Get(ctx, src)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = rc.Close() }()
	return s.Put(ctx, dst, rc, PutOptions{ContentType: info.ContentType, Metadata: info.Metadata, Overwrite: overwrite})
}

// DeletePrefix removes every key under prefix and returns how many existed.
// It stops at the first failure.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	infos, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, info := range infos {
		ok, err := s.Delete(ctx, info.Key)
		if err != nil {
			return n, fmt.Errorf("delete %s: %w", info.Key, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}
