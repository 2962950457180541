// ABOUTME: Store interface and data types for boxdrop persistence
// ABOUTME: Defines Box, ContentItem and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidBox is returned when a box violates the credential invariant:
// password_hash must be present if and only if the box is password protected.
var ErrInvalidBox = errors.New("password hash must be set iff box is password protected")

// Box is an ephemeral shareable container. Immutable after creation except
// for deletion by the retention sweeper.
type Box struct {
	ID                string
	Name              string
	PasswordProtected bool
	PasswordHash      string // empty unless PasswordProtected
	CreatedAt         time.Time
}

// ContentType constants for content item variants
const (
	ContentTypeText  = "text"  // inline text, stored in the content column
	ContentTypeImage = "image" // blob-store path reference
	ContentTypeFile  = "file"  // blob-store path reference
)

// ContentItem is a single text, image, or file entry belonging to a box.
// For image and file items Content holds the blob storage path; for text
// items it holds the text itself.
type ContentItem struct {
	ID        string
	BoxID     string
	Type      string // "text", "image", "file"
	Content   string
	CreatedAt time.Time
}

// Store is the content-store contract consumed by the access gateway and the
// retention sweeper.
type Store interface {
	// CreateBox persists a new box. Enforces the credential invariant.
	CreateBox(ctx context.Context, box *Box) error

	// GetBox returns a box by id, or ErrNotFound.
	GetBox(ctx context.Context, id string) (*Box, error)

	// SearchBoxes returns boxes whose name contains the query substring,
	// case-insensitively, newest first.
	SearchBoxes(ctx context.Context, query string) ([]*Box, error)

	// InsertContent persists a content item for a box.
	InsertContent(ctx context.Context, item *ContentItem) error

	// ListContent returns all content items of a box across every type,
	// ordered by creation time ascending.
	ListContent(ctx context.Context, boxID string) ([]*ContentItem, error)

	// GetContent returns a single content item of a box, or ErrNotFound.
	GetContent(ctx context.Context, boxID, itemID string) (*ContentItem, error)

	// ListExpiredBoxes returns boxes created before the cutoff.
	ListExpiredBoxes(ctx context.Context, cutoff time.Time) ([]*Box, error)

	// DeleteBox removes a box and, by cascade, its content items.
	DeleteBox(ctx context.Context, id string) error

	Close() error
}
