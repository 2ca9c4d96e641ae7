// Package files removes stored image files referenced by public URLs.
package files

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/checkout-core/internal/domain/variation"
)

// ErrOutsideStore is returned for URLs that do not point into the store.
var ErrOutsideStore = errors.New("url is outside the file store")

// objectKey maps rawURL to a slash-separated key relative to prefix.
// Both absolute URLs and bare paths are accepted.
func objectKey(rawURL, prefix string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parse url")
	}
	p := path.Clean("/" + strings.TrimPrefix(u.Path, "/"))
	prefix = path.Clean("/" + strings.Trim(prefix, "/"))
	if prefix != "/" {
		prefix += "/"
	}
	if !strings.HasPrefix(p, prefix) {
		return "", ErrOutsideStore
	}
	key := strings.TrimPrefix(p, prefix)
	if key == "" || key == "." {
		return "", ErrOutsideStore
	}
	return key, nil
}

// Nop discards removal requests.
type Nop struct{}

var _ variation.FileRemover = Nop{}

func (Nop) Remove(context.Context, string) error { return nil }
