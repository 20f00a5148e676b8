// Package ingest runs the screenshot-to-record pipeline and the ranked
// leaderboard reads on top of injected collaborators.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"lapboard/models"
	"lapboard/pkg/laptime"
	"lapboard/pkg/ocr"
)

// Recognizer turns image bytes into a block of text.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// ImageStore keeps the raw upload and returns a public URL for it.
type ImageStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Store persists records and returns those matching a map filter.
type Store interface {
	Insert(ctx context.Context, rec *models.LapRecord) error
	Find(ctx context.Context, mapFilter string) ([]models.LapRecord, error)
}

// Upload is a single screenshot submission.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Pipeline is stateless apart from its collaborators and may be shared by
// concurrent requests.
type Pipeline struct {
	recognizer Recognizer
	images     ImageStore
	store      Store
	normalizer *laptime.Normalizer
	ordering   laptime.Ordering
	maxPixels  int
	log        *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNormalizer replaces the default normalizer (wall clock).
func WithNormalizer(n *laptime.Normalizer) Option {
	return func(p *Pipeline) { p.normalizer = n }
}

// WithOrdering selects the leaderboard ordering. The default is lexical.
func WithOrdering(o laptime.Ordering) Option {
	return func(p *Pipeline) { p.ordering = o }
}

// WithMaxPixels caps the declared image size; see ocr.DecodeBounds.
func WithMaxPixels(n int) Option {
	return func(p *Pipeline) { p.maxPixels = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New builds a Pipeline.
func New(r Recognizer, images ImageStore, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		recognizer: r,
		images:     images,
		store:      store,
		normalizer: laptime.NewNormalizer(nil),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process stores the image, recognizes its text, extracts and normalizes the
// record and persists it. Any collaborator error aborts the upload before a
// record is saved; the stored image is left in place.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*models.LapRecord, error) {
	if _, err := ocr.DecodeBounds(up.Data, p.maxPixels); err != nil {
		return nil, err
	}
	url, err := p.images.Put(ctx, up.Name, up.ContentType, up.Data)
	if err != nil {
		return nil, fmt.Errorf("store screenshot: %w", err)
	}
	p.log.Info("screenshot stored", zap.String("file", up.Name), zap.String("url", url))

	text, err := p.recognizer.Recognize(ctx, up.Data)
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", up.Name, err)
	}
	rec := p.Normalize(text, url)
	if err := p.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("save record: %w", err)
	}
	p.log.Info("lap record saved",
		zap.Uint("id", rec.ID),
		zap.String("username", rec.Username),
		zap.String("map_name", rec.MapName),
		zap.String("lap_time", rec.LapTime))
	return rec, nil
}

// Normalize extracts a record from recognized text without persisting it.
func (p *Pipeline) Normalize(text, screenshotURL string) *models.LapRecord {
	fields := laptime.Extract(text)
	missing := lo.Compact([]string{
		lo.Ternary(fields.MapName.Found, "", laptime.MapNameRule.Name),
		lo.Ternary(fields.LapTime.Found, "", laptime.LapTimeRule.Name),
		lo.Ternary(fields.Username.Found, "", laptime.UsernameRule.Name),
	})
	if len(missing) > 0 {
		p.log.Info("extraction rules without match, defaults applied", zap.Strings("rules", missing))
	}
	return models.NewLapRecord(p.normalizer.Normalize(fields, screenshotURL))
}

// Leaderboard returns the ranked records for mapFilter.
func (p *Pipeline) Leaderboard(ctx context.Context, mapFilter string) ([]models.LapRecord, error) {
	recs, err := p.store.Find(ctx, mapFilter)
	if err != nil {
		return nil, fmt.Errorf("load lap records: %w", err)
	}
	return laptime.RankBy(recs, models.LapTimeOf, models.MapNameOf, mapFilter, p.ordering), nil
}

// Maps lists the distinct map names prefixed with laptime.AllMaps, keeping
// only names containing query (case-insensitive) when query is set.
func (p *Pipeline) Maps(ctx context.Context, query string) ([]string, error) {
	recs, err := p.store.Find(ctx, laptime.AllMaps)
	if err != nil {
		return nil, fmt.Errorf("load lap records: %w", err)
	}
	names := lo.Uniq(append([]string{laptime.AllMaps}, laptime.MapNames(recs, models.MapNameOf)...))
	if query == "" {
		return names, nil
	}
	q := strings.ToLower(query)
	out := names[:0]
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), q) {
			out = append(out, n)
		}
	}
	return out, nil
}
