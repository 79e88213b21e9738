package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"findash/internal/domain"
)

// Compile-time interface check.
var _ ChartStore = (*ParquetStore)(nil)

// ParquetStore implements ChartStore with one Parquet file per chart:
//
//	<DataDir>/charts/<id>.parquet
//	<DataDir>/charts/<id>.png
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ChartRecord is the Parquet schema: one record per (row, key) cell. Every
// record repeats the chart metadata so a file is self-describing.
type ChartRecord struct {
	ChartID   string   `parquet:"chart_id"`
	Title     string   `parquet:"title"`
	Tab       string   `parquet:"tab"`
	Period    string   `parquet:"period"`
	CreatedAt int64    `parquet:"created_at,timestamp(millisecond)"` // Unix ms
	Row       int32    `parquet:"row"`
	Label     string   `parquet:"label"`
	KeyIndex  int32    `parquet:"key_index"`
	Key       string   `parquet:"key"`
	Value     *float64 `parquet:"value,optional"`
}

// Save writes c and, when image is non-empty, its PNG. A new ID is assigned
// when c.ID is empty.
func (s *ParquetStore) Save(_ context.Context, c SavedChart, image []byte) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	} else if _, err := uuid.Parse(c.ID); err != nil {
		return "", fmt.Errorf("invalid chart id %q: %w", c.ID, err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	records := flatten(c)
	if len(records) == 0 {
		return "", errors.New("chart has no rows")
	}
	if err := writeParquetFile(s.chartPath(c.ID), records); err != nil {
		return "", fmt.Errorf("writing chart %s: %w", c.ID, err)
	}
	if len(image) > 0 {
		if err := os.WriteFile(s.imagePath(c.ID), image, 0o644); err != nil {
			return "", fmt.Errorf("writing chart image %s: %w", c.ID, err)
		}
	}
	return c.ID, nil
}

// Load reads a chart back.
func (s *ParquetStore) Load(_ context.Context, id string) (*SavedChart, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	path := s.chartPath(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	records, err := readParquetFile[ChartRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading chart %s: %w", id, err)
	}
	c := unflatten(records)
	c.HasImage = s.hasImage(id)
	return c, nil
}

// Image returns the stored PNG for id.
func (s *ParquetStore) Image(_ context.Context, id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.imagePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the metadata of every saved chart, newest first.
func (s *ParquetStore) List(_ context.Context) ([]ChartMeta, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "charts"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []ChartMeta
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".parquet")
		if e.IsDir() || !ok {
			continue
		}
		records, err := readParquetFile[ChartRecord](s.chartPath(id))
		if err != nil || len(records) == 0 {
			continue
		}
		meta := metaOf(records[0])
		meta.HasImage = s.hasImage(id)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func flatten(c SavedChart) []ChartRecord {
	var out []ChartRecord
	for i, r := range c.Rows {
		for j, k := range r.Keys {
			rec := ChartRecord{
				ChartID:   c.ID,
				Title:     c.Title,
				Tab:       string(c.Tab),
				Period:    string(c.Period),
				CreatedAt: c.CreatedAt.UnixMilli(),
				Row:       int32(i),
				Label:     r.Name,
				KeyIndex:  int32(j),
				Key:       k,
			}
			if v, ok := r.Value(k); ok {
				rec.Value = domain.Float(v)
			}
			out = append(out, rec)
		}
	}
	return out
}

func unflatten(records []ChartRecord) *SavedChart {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Row != records[j].Row {
			return records[i].Row < records[j].Row
		}
		return records[i].KeyIndex < records[j].KeyIndex
	})

	c := &SavedChart{}
	if len(records) > 0 {
		c.ChartMeta = metaOf(records[0])
	}
	row := int32(-1)
	for _, rec := range records {
		if rec.Row != row {
			row = rec.Row
			c.Rows = append(c.Rows, domain.ChartRow{Name: rec.Label, Values: make(map[string]*float64)})
		}
		r := &c.Rows[len(c.Rows)-1]
		r.Keys = append(r.Keys, rec.Key)
		r.Values[rec.Key] = rec.Value
	}
	return c
}

func metaOf(r ChartRecord) ChartMeta {
	return ChartMeta{
		ID:        r.ChartID,
		Title:     r.Title,
		Tab:       domain.Tab(r.Tab),
		Period:    domain.Period(r.Period),
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
}

func (s *ParquetStore) chartPath(id string) string {
	return filepath.Join(s.DataDir, "charts", id+".parquet")
}

func (s *ParquetStore) imagePath(id string) string {
	return filepath.Join(s.DataDir, "charts", id+".png")
}

func (s *ParquetStore) hasImage(id string) bool {
	_, err := os.Stat(s.imagePath(id))
	return err == nil
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
