package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"agriconnect/pkg/types"
)

// maxPutAttempts bounds how many fresh names Put tries before giving up on
// a store that keeps reporting the name as taken.
const maxPutAttempts = 3

// ImageStore keeps submission photos. Put never overwrites an existing
// object: the returned reference names a blob that did not exist before.
type ImageStore interface {
	Put(ctx context.Context, data []byte, ext string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// ExtForFormat maps an image.Decode format name to the file extension blobs
// are stored under.
func ExtForFormat(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return ".jpg"
	case "":
		return ".img"
	default:
		return "." + strings.ToLower(format)
	}
}

// checkRef rejects references that could escape the store's namespace.
func checkRef(ref string) error {
	if ref == "" || ref != path.Base(ref) || strings.ContainsAny(ref, `/\`) || strings.HasPrefix(ref, ".") {
		return fmt.Errorf("%w: bad image reference %q", types.ErrImageNotFound, ref)
	}
	return nil
}
