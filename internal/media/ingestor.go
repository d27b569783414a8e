// Package media persists transport-provided attachment bytes and derives the
// stored filename recorded on the owning message.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
)

// BlobStore persists raw bytes under a name and returns a locator for them.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (locator string, err error)
}

// extensions maps declared MIME types to stored-file extensions. Unrecognized
// types fall back to "bin".
var extensions = map[string]string{
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/webp":         "webp",
	"video/mp4":          "mp4",
	"video/3gpp":         "3gp",
	"audio/ogg":          "ogg",
	"audio/mpeg":         "mp3",
	"audio/mp4":          "m4a",
	"application/pdf":    "pdf",
	"text/plain":         "txt",
	"text/vcard":         "vcf",
	"application/zip":    "zip",
	"image/svg+xml":      "svg",
	"application/msword": "doc",
}

// Ingestor writes attachment bytes to a BlobStore exactly once and returns
// the attachment metadata to record on the message.
type Ingestor struct {
	store  BlobStore
	logger zerolog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(store BlobStore, logger zerolog.Logger) *Ingestor {
	return &Ingestor{store: store, logger: logger}
}

// Ingest stores data under a fresh time-ordered name derived from the
// declared MIME type. Failure is reported to the caller, who records the
// message without attachment fields rather than dropping it.
func (i *Ingestor) Ingest(ctx context.Context, data []byte, mimeType string) (*models.Attachment, error) {
	name := storedName(mimeType)

	locator, err := i.store.Put(ctx, name, bytes.NewReader(data))
	if err != nil {
		i.logger.Error().Err(err).
			Str("name", name).
			Str("mime_type", mimeType).
			Int("size_bytes", len(data)).
			Msg("media ingest failed")
		return nil, fmt.Errorf("store attachment %s: %w", name, err)
	}

	i.logger.Debug().
		Str("name", name).
		Str("locator", locator).
		Int("size_bytes", len(data)).
		Msg("attachment stored")

	return &models.Attachment{
		Name:     name,
		Locator:  locator,
		MIMEType: mimeType,
	}, nil
}

// storedName builds a collision-resistant, time-sortable filename. ULIDs
// encode millisecond time plus 80 bits of entropy, so concurrent ingests
// never collide.
func storedName(mimeType string) string {
	ext, ok := extensions[normalizeMIME(mimeType)]
	if !ok {
		ext = "bin"
	}
	return ulid.Make().String() + "." + ext
}

// normalizeMIME drops parameters such as "; codecs=opus" before the lookup.
func normalizeMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
