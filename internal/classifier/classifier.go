// Package classifier maps object keys to source kinds and derives the key
// a converted object is written to.
package classifier

import (
	"errors"
	"strings"

	"github.com/trunov/webpbucket/internal/entities"
)

const (
	DestinationPrefix = "webp/"
	DestinationExt    = ".webp"
)

var ErrNoExtension = errors.New("key has no extension")

var suffixes = []struct {
	ext  string
	kind entities.SourceKind
}{
	{".png", entities.KindRasterImage},
	{".jpg", entities.KindRasterImage},
	{".jpeg", entities.KindRasterImage},
	{".pdf", entities.KindPDF},
}

// Classify reports the source kind of key. Matching is case-insensitive.
// Keys with any other suffix, including keys with no extension, are not eligible.
func Classify(key string) (entities.SourceKind, bool) {
	_, kind, ok := match(key)
	return kind, ok
}

// DestinationKey strips everything from the last '.' of key and wraps the
// remainder as "webp/<rest>.webp". Case of the remainder is preserved.
func DestinationKey(key string) (string, error) {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return "", ErrNoExtension
	}
	return DestinationPrefix + key[:i] + DestinationExt, nil
}

// NewTask builds the conversion task for key, or returns false when key is not eligible.
func NewTask(key string) (entities.Task, bool) {
	ext, kind, ok := match(key)
	if !ok {
		return entities.Task{}, false
	}
	// an eligible key always carries a '.', so this cannot fail
	dst, _ := DestinationKey(key)
	return entities.Task{
		SourceKey:      key,
		Kind:           kind,
		Ext:            ext,
		DestinationKey: dst,
	}, true
}

func match(key string) (string, entities.SourceKind, bool) {
	lower := strings.ToLower(key)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.ext) {
			return s.ext, s.kind, true
		}
	}
	return "", entities.KindUnknown, false
}
