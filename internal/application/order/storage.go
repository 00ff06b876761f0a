package order

import (
	"context"
	"io"
	"time"
)

// DefaultDownloadURLExpiry is how long generated download links stay valid.
const DefaultDownloadURLExpiry = 1 * time.Hour

// ObjectStorageService is the port to the document store holding invoice and
// delivery-note files. Implemented by the infrastructure layer (S3 or a
// local stub).
type ObjectStorageService interface {
	// Upload stores an object and returns its public URL.
	Upload(ctx context.Context, storageKey, contentType string, body io.Reader) (string, error)

	// GenerateDownloadURL generates a presigned URL for downloading an
	// object, with its expiration time.
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)

	// DeleteObject deletes an object. Deleting an absent object is not an
	// error.
	DeleteObject(ctx context.Context, storageKey string) error
}
