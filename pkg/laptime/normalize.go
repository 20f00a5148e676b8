package laptime

import (
	"strings"
	"time"
)

// Defaults substituted for fields the extractor could not find.
const (
	UnknownUsername = "Unknown"
	UnknownMapName  = "Unknown"
	DefaultLapTime  = "00:00.00"
)

// Zone is the civil timezone records are stamped in (Asia/Seoul, no DST).
var Zone = time.FixedZone("KST", 9*60*60)

// Record is a fully normalized lap record. It carries no identifier; the
// store assigns one on insert.
type Record struct {
	Username      string
	MapName       string
	LapTime       string
	ScreenshotURL string
	UploadedAt    time.Time
}

// Normalizer turns extracted fields into records.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer reading the given clock. A nil clock
// means time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize fills defaults, trims matches and stamps the upload time once.
func (n *Normalizer) Normalize(f Fields, screenshotURL string) Record {
	lap := orDefault(f.LapTime, DefaultLapTime)
	if !ValidLapTime(lap) {
		lap = DefaultLapTime
	}
	return Record{
		Username:      orDefault(f.Username, UnknownUsername),
		MapName:       orDefault(f.MapName, UnknownMapName),
		LapTime:       lap,
		ScreenshotURL: screenshotURL,
		UploadedAt:    n.now().In(Zone),
	}
}

// FromText runs extraction and normalization in one step.
func (n *Normalizer) FromText(text, screenshotURL string) Record {
	return n.Normalize(Extract(text), screenshotURL)
}

func orDefault(m Match, def string) string {
	if !m.Found {
		return def
	}
	v := strings.TrimSpace(m.Value)
	if v == "" {
		return def
	}
	return v
}
