package gcs

import (
	"context"
	"io"
	"strings"

	"scodata/internal/blob/core"
)

// prefixStore isolates each integration subtest inside a shared bucket.
type prefixStore struct {
	*Store
	prefix string
}

func (p *prefixStore) strip(info core.Info) core.Info {
	info.Key = strings.TrimPrefix(info.Key, p.prefix)
	return info
}

func (p *prefixStore) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	info, err := p.Store.Put(ctx, p.prefix+key, r, opts)
	return p.strip(info), err
}

func (p *prefixStore) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, rc, err := p.Store.Get(ctx, p.prefix+key)
	return p.strip(info), rc, err
}

func (p *prefixStore) Head(ctx context.Context, key string) (core.Info, error) {
	info, err := p.Store.Head(ctx, p.prefix+key)
	return p.strip(info), err
}

func (p *prefixStore) Delete(ctx context.Context, key string) (bool, error) {
	return p.Store.Delete(ctx, p.prefix+key)
}

func (p *prefixStore) List(ctx context.Context, prefix string) ([]core.Info, error) {
	infos, err := p.Store.List(ctx, p.prefix+prefix)
	for i := range infos {
		infos[i] = p.strip(infos[i])
	}
	return infos, err
}
