// Package storage keeps uploaded screenshots and hands back their public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrStore wraps failures writing an image.
var ErrStore = errors.New("image store failure")

var unsafeNameRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Disk stores images below a base directory. Files are expected to be served
// read-only at PublicURL.
type Disk struct {
	base      string
	publicURL string
	newID     func() string
}

// NewDisk creates the base directory if missing. publicURL is the URL prefix
// that maps to base (e.g. "http://localhost:5000/public").
func NewDisk(base, publicURL string) (*Disk, error) {
	if base == "" {
		base = "uploads"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create upload base dir %s: %v", ErrStore, base, err)
	}
	return &Disk{
		base:      base,
		publicURL: strings.TrimRight(publicURL, "/"),
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// Base returns the directory files are written to.
func (d *Disk) Base() string { return d.base }

// Put writes data under a fresh key and returns the public URL for it. Every
// call produces a new object, re-uploads never overwrite earlier screenshots.
func (d *Disk) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}
	key := d.newID() + "-" + SanitizeName(name)
	full := filepath.Join(d.base, key)
	tmp := full + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrStore, key, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: rename %s: %v", ErrStore, key, err)
	}
	return d.publicURL + "/" + key, nil
}

// SanitizeName reduces a client supplied filename to a safe basename. The
// stem and extension are cleaned separately so the extension survives a stem
// made entirely of non-ASCII characters.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := filepath.Ext(name)
	stem := cleanNamePart(strings.TrimSuffix(name, ext))
	if stem == "" {
		stem = "upload"
	}
	if ext = cleanNamePart(ext); ext != "" {
		return stem + "." + ext
	}
	return stem
}

func cleanNamePart(s string) string {
	return strings.Trim(unsafeNameRE.ReplaceAllString(s, "_"), "._")
}
