package ingest

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapboard/models"
	"lapboard/pkg/laptime"
	"lapboard/pkg/ocr"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) Recognize(context.Context, []byte) (string, error) { return f.text, f.err }

type fakeImages struct {
	err  error
	puts int
}

func (f *fakeImages) Put(_ context.Context, name, _ string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.puts++
	return "http://img.test/" + name, nil
}

type memStore struct {
	mu      sync.Mutex
	records []models.LapRecord
	err     error
}

func (m *memStore) Insert(_ context.Context, rec *models.LapRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = uint(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memStore) Find(_ context.Context, mapFilter string) ([]models.LapRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.LapRecord
	for _, r := range m.records {
		if mapFilter == "" || mapFilter == laptime.AllMaps || r.MapName == mapFilter {
			out = append(out, r)
		}
	}
	return out, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(10, 10, color.White), imaging.PNG))
	return buf.Bytes()
}

var fixedNow = time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

func newPipeline(r Recognizer, images ImageStore, s Store, opts ...Option) *Pipeline {
	opts = append(opts, WithNormalizer(laptime.NewNormalizer(func() time.Time { return fixedNow })))
	return New(r, images, s, opts...)
}

func TestProcess(t *testing.T) {
	store := &memStore{}
	images := &fakeImages{}
	p := newPipeline(fakeRecognizer{text: "CircuitX\n(Variant)\n최단 시간 ... 1:23.456\nTe 3 7 Racer99"}, images, store)

	rec, err := p.Process(context.Background(), Upload{Name: "shot.png", ContentType: "image/png", Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.ID)
	assert.Equal(t, "CircuitX", rec.MapName)
	assert.Equal(t, "1:23.456", rec.LapTime)
	assert.Equal(t, "Racer99", rec.Username)
	assert.Equal(t, "http://img.test/shot.png", rec.ScreenshotURL)
	assert.True(t, rec.UploadedAt.Equal(fixedNow))
	assert.Len(t, store.records, 1)
}

func TestProcessEmptyTextUsesDefaults(t *testing.T) {
	store := &memStore{}
	p := newPipeline(fakeRecognizer{}, &fakeImages{}, store)
	rec, err := p.Process(context.Background(), Upload{Name: "x.png", Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, laptime.UnknownMapName, rec.MapName)
	assert.Equal(t, laptime.UnknownUsername, rec.Username)
	assert.Equal(t, laptime.DefaultLapTime, rec.LapTime)
}

func TestProcessFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		rec       Recognizer
		images    *fakeImages
		store     *memStore
		data      []byte
		opts      []Option
		wantErr   error
		wantPuts  int
		wantSaved int
	}{
		{
			name:    "not an image",
			rec:     fakeRecognizer{},
			images:  &fakeImages{},
			store:   &memStore{},
			data:    []byte("plain text"),
			wantErr: ocr.ErrNotImage,
		},
		{
			name:    "dimensions over the cap",
			rec:     fakeRecognizer{},
			images:  &fakeImages{},
			store:   &memStore{},
			opts:    []Option{WithMaxPixels(10*10 - 1)},
			wantErr: ocr.ErrImageTooLarge,
		},
		{
			name:    "image store down",
			rec:     fakeRecognizer{},
			images:  &fakeImages{err: boom},
			store:   &memStore{},
			wantErr: boom,
		},
		{
			name:     "recognizer fails",
			rec:      fakeRecognizer{err: ocr.ErrRecognition},
			images:   &fakeImages{},
			store:    &memStore{},
			wantErr:  ocr.ErrRecognition,
			wantPuts: 1,
		},
		{
			name:     "store fails",
			rec:      fakeRecognizer{text: "x"},
			images:   &fakeImages{},
			store:    &memStore{err: boom},
			wantErr:  boom,
			wantPuts: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = pngBytes(t)
			}
			p := newPipeline(tt.rec, tt.images, tt.store, tt.opts...)
			rec, err := p.Process(context.Background(), Upload{Name: "a.png", Data: data})
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantPuts, tt.images.puts)
			assert.Len(t, tt.store.records, tt.wantSaved)
		})
	}
}

func seeded(laps map[string][]string) *memStore {
	s := &memStore{}
	for _, m := range []string{"Alpha", "Beta"} {
		for _, l := range laps[m] {
			_ = s.Insert(context.Background(), &models.LapRecord{MapName: m, LapTime: l})
		}
	}
	return s
}

func TestLeaderboard(t *testing.T) {
	s := seeded(map[string][]string{
		"Alpha": {"1:05.123", "10:05.000", "9:10.000"},
		"Beta":  {"0:59.999"},
	})
	p := newPipeline(fakeRecognizer{}, &fakeImages{}, s)

	all, err := p.Leaderboard(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"0:59.999", "1:05.123", "10:05.000", "9:10.000"}, laps(all))

	alpha, err := p.Leaderboard(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"1:05.123", "10:05.000", "9:10.000"}, laps(alpha))

	numeric := newPipeline(fakeRecognizer{}, &fakeImages{}, s, WithOrdering(laptime.Numeric))
	alpha, err = numeric.Leaderboard(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"1:05.123", "9:10.000", "10:05.000"}, laps(alpha))
}

func TestLeaderboardStoreFailure(t *testing.T) {
	p := newPipeline(fakeRecognizer{}, &fakeImages{}, &memStore{err: errors.New("db down")})
	_, err := p.Leaderboard(context.Background(), "")
	assert.Error(t, err)
}

func TestMaps(t *testing.T) {
	s := seeded(map[string][]string{"Alpha": {"1:00.00", "1:01.00"}, "Beta": {"1:00.00"}})
	p := newPipeline(fakeRecognizer{}, &fakeImages{}, s)

	names, err := p.Maps(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"All", "Alpha", "Beta"}, names)

	names, err = p.Maps(context.Background(), "BET")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta"}, names)
}

func laps(rs []models.LapRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.LapTime)
	}
	return out
}
