package core

import (
	"context"
	"io"
)

// Mirror replicates newly archived content to a secondary store, keyed by
// content digest. Mirroring is best-effort: failures are logged and
// counted but never fail the download that produced the file.
type Mirror interface {
	// PutContent stores content under its digest. Idempotent: storing
	// the same digest twice is safe.
	PutContent(ctx context.Context, digest string, r io.Reader, size int64) error
}
