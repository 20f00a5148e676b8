package models

import (
	"time"

	"lapboard/pkg/laptime"
)

// LapRecord is a stored leaderboard entry. The extracted fields are written
// once on insert and never updated.
type LapRecord struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	Username      string    `gorm:"size:255;not null" json:"username"`
	MapName       string    `gorm:"size:255;not null;index" json:"map_name"`
	LapTime       string    `gorm:"size:16;not null;index" json:"lap_time"`
	ScreenshotURL string    `gorm:"size:1024" json:"screenshot_url"`
	UploadedAt    time.Time `gorm:"not null" json:"uploaded_at"`
}

// NewLapRecord builds the persistable form of a normalized record.
func NewLapRecord(r laptime.Record) *LapRecord {
	return &LapRecord{
		Username:      r.Username,
		MapName:       r.MapName,
		LapTime:       r.LapTime,
		ScreenshotURL: r.ScreenshotURL,
		UploadedAt:    r.UploadedAt,
	}
}

// Record converts back to the core representation, keeping uploaded_at in
// the leaderboard zone regardless of how the database returned it.
func (l LapRecord) Record() laptime.Record {
	return laptime.Record{
		Username:      l.Username,
		MapName:       l.MapName,
		LapTime:       l.LapTime,
		ScreenshotURL: l.ScreenshotURL,
		UploadedAt:    l.UploadedAt.In(laptime.Zone),
	}
}

// LapTimeOf and MapNameOf are accessors for the generic ranking helpers.
func LapTimeOf(l LapRecord) string { return l.LapTime }

func MapNameOf(l LapRecord) string { return l.MapName }
