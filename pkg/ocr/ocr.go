package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// DefaultLanguages covers the Hangul labels and Latin driver names on the
// result screen.
var DefaultLanguages = []string{"kor", "eng"}

// DefaultMaxPixels caps the declared size of an accepted screenshot. 4K
// captures are about 8.3 megapixels.
const DefaultMaxPixels = 25_000_000

// Tesseract recognizes text with a local Tesseract install. A new engine
// handle is created per call, so a Tesseract value is safe for concurrent use.
type Tesseract struct {
	languages []string
	log       *zap.Logger
	engine    func(img []byte, languages []string) (string, error)
}

// NewTesseract returns a recognizer for the given languages (DefaultLanguages
// when empty).
func NewTesseract(log *zap.Logger, languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tesseract{languages: languages, log: log, engine: runTesseract}
}

// Recognize returns the full text block found in img. An image without any
// text yields "" and no error. Callers validate img with DecodeBounds first.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.engine(img, t.languages)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrRecognition, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrRecognition, r.err)
		}
		t.log.Debug("ocr text", zap.Int("bytes", len(img)), zap.String("snippet", snippet(r.text, 180)))
		return r.text, nil
	}
}

// DecodeBounds reads only the image header and returns the declared
// dimensions. Images larger than maxPixels (DefaultMaxPixels when <= 0) are
// rejected with ErrImageTooLarge before any pixel buffer is allocated.
func DecodeBounds(img []byte, maxPixels int) (image.Rectangle, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: empty %dx%d image", ErrNotImage, cfg.Width, cfg.Height)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return image.Rect(0, 0, cfg.Width, cfg.Height), nil
}

func runTesseract(img []byte, languages []string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	// result screens are laid out in columns; automatic segmentation keeps
	// the map title above its variant line.
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return client.Text()
}
