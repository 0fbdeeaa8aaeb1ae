// Package storage saves uploaded listing images.
//
// Two backends implement Store: LocalStore writes to a directory that the
// server exposes under /uploads/, and S3Store puts objects in a bucket.
// Either way the listing records whatever Save returns.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"

	"github.com/sakif/shareplate/internal/apperror"
)

// Upload limits for listing images.
const (
	MaxImageBytes = 5 << 20
	MaxImages     = 5
)

var allowedExt = regexp.MustCompile(`(?i)^\.(jpeg|jpg|png|gif)$`)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Store persists one file and returns the reference to keep on the listing.
type Store interface {
	Save(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
}

// ObjectName builds the stored name: "<unix millis>-<id>-<original name>"
// with spaces turned into dashes. Directory parts of the client-supplied name
// are dropped. The id keeps same-name uploads in the same millisecond apart;
// phones name nearly every photo "image.jpg".
func ObjectName(now time.Time, id, filename string) string {
	base := filepath.Base(filepath.Clean("/" + filename))
	base = strings.ReplaceAll(base, " ", "-")
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), id, base)
}

func newObjectID() string { return xid.New().String() }

// Image is an upload awaiting validation. Head holds the first bytes of the
// file (at least 512 when the file is that long) for content sniffing.
type Image struct {
	Filename string
	Size     int64
	Head     []byte
}

// Validate checks the extension, the size and the sniffed content type, and
// returns the content type to store the file with.
func (img Image) Validate() (string, error) {
	if !allowedExt.MatchString(filepath.Ext(img.Filename)) {
		return "", apperror.ValidationFailed("images", "Images only! (jpeg, jpg, png, gif)")
	}
	if img.Size > MaxImageBytes {
		return "", apperror.ValidationFailed("images", "Image exceeds the 5MB limit")
	}

	detected := mimetype.Detect(img.Head)
	contentType := detected.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !allowedTypes[contentType] {
		return "", apperror.ValidationFailed("images", "Images only! (jpeg, jpg, png, gif)")
	}
	return contentType, nil
}
