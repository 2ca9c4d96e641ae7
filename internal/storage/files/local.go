package files

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-core/internal/domain/variation"
)

var _ variation.FileRemover = (*Local)(nil)

// Local removes files from a directory served under a URL prefix, e.g.
// /uploads/a.jpg -> <root>/a.jpg.
type Local struct {
	root   string
	prefix string
}

// NewLocal creates a Local store rooted at dir.
func NewLocal(dir, urlPrefix string) *Local {
	return &Local{root: dir, prefix: urlPrefix}
}

// Remove deletes the file behind rawURL. A missing file is not an error.
func (l *Local) Remove(_ context.Context, rawURL string) error {
	key, err := objectKey(rawURL, l.prefix)
	if err != nil {
		return err
	}
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", p)
	}
	return nil
}
