// ABOUTME: Blob store contract for image and file content
// ABOUTME: Defines the bucket kinds and the operations the gateway and sweeper consume

package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested object does not exist
var ErrNotFound = errors.New("object not found")

// Kind selects the bucket a blob lives in. Images and files are kept in
// separate buckets, mirroring the content-item types.
type Kind string

const (
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// KindForContentType maps a content-item type to its bucket kind. Text items
// have no blob.
func KindForContentType(contentType string) (Kind, bool) {
	switch contentType {
	case "image":
		return KindImage, true
	case "file":
		return KindFile, true
	}
	return "", false
}

// Store is the blob-store contract. Keys are "<boxID>/<name>" so a whole
// box can be reclaimed by prefix.
type Store interface {
	// Put uploads an object.
	Put(ctx context.Context, kind Kind, key string, data []byte, contentType string) error

	// SignedGetURL returns a time-limited URL granting download access to
	// one object without exposing store credentials.
	SignedGetURL(ctx context.Context, kind Kind, key string) (string, error)

	// List returns the keys under a prefix.
	List(ctx context.Context, kind Kind, prefix string) ([]string, error)

	// Delete removes the given objects. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, kind Kind, keys []string) error
}
