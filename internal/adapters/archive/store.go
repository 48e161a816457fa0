// Package archive persists cycles as hour-keyed directories of flat files.
//
// Layout under the root:
//
//	<YYYY-MM>/<DD-HH>/metadata.json
//	<YYYY-MM>/<DD-HH>/rawdata.json
//	<YYYY-MM>/<DD-HH>/<worker>.html
//
// Directory names sort chronologically as strings, so the latest cycle is
// found by taking the maximum name at each level.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/okian/aiweather/internal/domain/model"
	"github.com/okian/aiweather/pkg/logger"
	"github.com/okian/aiweather/pkg/metrics"
)

// File names and layout formats.
const (
	MetadataFile = "metadata.json"
	RawDataFile  = "rawdata.json"
	resultExt    = ".html"

	monthLayout = "2006-01"
	hourLayout  = "02-15"

	defaultDirMode  = 0o755
	defaultFileMode = 0o644
	jsonIndent      = "  "
)

// Write kinds used for metrics labels.
const (
	kindMetadata = "metadata"
	kindRawData  = "rawdata"
	kindResult   = "result"
)

// Metadata is the per-cycle record of what was expected and how it was prompted.
type Metadata struct {
	Timestamp string   `json:"timestamp"`
	Models    []string `json:"models"`
	Prompt    string   `json:"prompt"`
}

// Cycle is whatever subset of an archived hour could be read.
type Cycle struct {
	Dir       string
	Timestamp time.Time
	// RawData is nil when rawdata.json is absent or not valid JSON.
	RawData  json.RawMessage
	Metadata *Metadata
	Results  map[string]string
	Missing  []string
}

// Store is a filesystem-rooted archive. It assumes a single writer process.
type Store struct {
	root     string
	loc      *time.Location
	fileMode fs.FileMode
	log      logger.Logger
}

// New creates the root directory if needed and returns a Store.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:     root,
		loc:      time.UTC,
		fileMode: defaultFileMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("archive")
	}
	if err := os.MkdirAll(root, defaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %w", ErrArchiveWrite, root, err)
	}
	return s, nil
}

// Root returns the archive root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the hour directory for ts.
func (s *Store) Dir(ts time.Time) string {
	ts = ts.In(s.loc)
	return filepath.Join(s.root, ts.Format(monthLayout), ts.Format(hourLayout))
}

// FileName returns the result file name for a worker display name.
func FileName(worker string) string {
	r := strings.NewReplacer(" ", "_", "/", "_")
	return r.Replace(worker) + resultExt
}

// SaveMetadata writes metadata.json for the cycle and returns its directory.
func (s *Store) SaveMetadata(ctx context.Context, ts time.Time, workers []string, prompt string) (string, error) {
	if workers == nil {
		workers = []string{}
	}
	data, err := json.MarshalIndent(Metadata{
		Timestamp: ts.In(s.loc).Format(time.RFC3339),
		Models:    workers,
		Prompt:    prompt,
	}, "", jsonIndent)
	if err != nil {
		return "", fmt.Errorf("%w: encode metadata: %w", ErrArchiveWrite, err)
	}

	dir, err := s.write(ctx, ts, MetadataFile, data, kindMetadata)
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "metadata saved",
		logger.String("timestamp", ts.Format(time.RFC3339)),
		logger.Int("expected_models", len(workers)),
	)
	return dir, nil
}

// SaveRawData writes the verbatim payload and returns the cycle directory.
func (s *Store) SaveRawData(ctx context.Context, ts time.Time, payload string) (string, error) {
	dir, err := s.write(ctx, ts, RawDataFile, []byte(payload), kindRawData)
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "raw data saved", logger.String("timestamp", ts.Format(time.RFC3339)))
	return dir, nil
}

// SaveSnapshot writes metadata.json then rawdata.json for snap and returns
// the cycle directory. A metadata failure leaves rawdata.json unwritten.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.CycleSnapshot) (string, error) {
	if _, err := s.SaveMetadata(ctx, snap.Timestamp, snap.WorkerNames, snap.Prompt); err != nil {
		return "", err
	}
	return s.SaveRawData(ctx, snap.Timestamp, snap.RawData)
}

// SaveWorkerResult writes one worker's output. Metadata need not exist.
func (s *Store) SaveWorkerResult(ctx context.Context, ts time.Time, worker, output string) error {
	if _, err := s.write(ctx, ts, FileName(worker), []byte(output), kindResult); err != nil {
		return err
	}
	s.log.Debug(ctx, "result saved",
		logger.String("timestamp", ts.Format(time.RFC3339)),
		logger.String("model", worker),
		logger.Int("bytes", len(output)),
	)
	return nil
}

func (s *Store) write(ctx context.Context, ts time.Time, name string, data []byte, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir(ts)
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		metrics.RecordArchiveError(kind)
		return "", fmt.Errorf("%w: create %s: %w", ErrArchiveWrite, dir, err)
	}
	path := filepath.Join(dir, name)
	if err := renameio.WriteFile(path, data, s.fileMode); err != nil {
		metrics.RecordArchiveError(kind)
		return "", fmt.Errorf("%w: %s: %w", ErrArchiveWrite, path, err)
	}
	metrics.RecordArchiveWrite(kind)
	return dir, nil
}

// FindLatestCycle returns the lexicographically greatest hour directory
// inside the greatest month directory. An empty latest month yields
// ErrNoCycle; older months are not consulted.
func (s *Store) FindLatestCycle(ctx context.Context) (string, error) {
	month, err := latestChild(s.root, monthLayout)
	if err != nil {
		return "", err
	}
	hour, err := latestChild(filepath.Join(s.root, month), hourLayout)
	if err != nil {
		return "", err
	}
	s.log.Debug(ctx, "latest cycle found",
		logger.String("year_month", month),
		logger.String("day_hour", hour),
	)
	return filepath.Join(s.root, month, hour), nil
}

func latestChild(dir, layout string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoCycle
		}
		return "", fmt.Errorf("%w: list %s: %w", ErrArchiveRead, dir, err)
	}
	latest := ""
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || len(name) != len(layout) {
			continue
		}
		if _, err := time.Parse(layout, name); err != nil {
			continue
		}
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return "", ErrNoCycle
	}
	return latest, nil
}

// LoadLatest loads the most recent cycle.
func (s *Store) LoadLatest(ctx context.Context, workers []string) (*Cycle, error) {
	dir, err := s.FindLatestCycle(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoadCycle(ctx, dir, workers)
}

// LoadHour loads the cycle for ts, or ErrNoCycle if nothing was archived.
func (s *Store) LoadHour(ctx context.Context, ts time.Time, workers []string) (*Cycle, error) {
	dir := s.Dir(ts)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoCycle
		}
		return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
	}
	return s.LoadCycle(ctx, dir, workers)
}

// LoadCycle reads whatever exists in dir. Absent or corrupt metadata and raw
// data degrade the result; expected workers without a file are reported in
// Missing. Other filesystem errors are returned.
func (s *Store) LoadCycle(ctx context.Context, dir string, workers []string) (*Cycle, error) {
	c := &Cycle{Dir: dir, Results: make(map[string]string, len(workers))}

	if data, ok, err := readOptional(filepath.Join(dir, MetadataFile)); err != nil {
		return nil, err
	} else if ok {
		var md Metadata
		if err := json.Unmarshal(data, &md); err != nil {
			s.log.Warn(ctx, "metadata unreadable", logger.String("dir", dir), logger.Error(err))
		} else {
			c.Metadata = &md
		}
	}

	if data, ok, err := readOptional(filepath.Join(dir, RawDataFile)); err != nil {
		return nil, err
	} else if ok {
		if json.Valid(data) {
			c.RawData = json.RawMessage(data)
		} else {
			s.log.Warn(ctx, "raw data is not valid JSON", logger.String("dir", dir))
		}
	}

	for _, w := range workers {
		data, ok, err := readOptional(filepath.Join(dir, FileName(w)))
		if err != nil {
			return nil, err
		}
		if !ok {
			c.Missing = append(c.Missing, w)
			continue
		}
		c.Results[w] = string(data)
	}

	c.Timestamp = s.cycleTime(dir, c.Metadata)
	s.log.Info(ctx, "cycle loaded",
		logger.String("dir", dir),
		logger.Int("results", len(c.Results)),
		logger.Strings("missing", c.Missing),
	)
	return c, nil
}

// cycleTime prefers the metadata timestamp and falls back to the directory names.
func (s *Store) cycleTime(dir string, md *Metadata) time.Time {
	if md != nil {
		if ts, err := time.Parse(time.RFC3339, md.Timestamp); err == nil {
			return ts
		}
	}
	name := filepath.Base(filepath.Dir(dir)) + "/" + filepath.Base(dir)
	ts, err := time.ParseInLocation(monthLayout+"/"+hourLayout, name, s.loc)
	if err != nil {
		return time.Time{}
	}
	return model.TruncateToHour(ts)
}

// MissingWorkers reports which workers have no result file for ts. It only
// checks existence.
func (s *Store) MissingWorkers(ctx context.Context, ts time.Time, workers []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.Dir(ts)
	var missing []string
	for _, w := range workers {
		_, err := os.Stat(filepath.Join(dir, FileName(w)))
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, w)
		default:
			return nil, fmt.Errorf("%w: %w", ErrArchiveRead, err)
		}
	}
	return missing, nil
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %s: %w", ErrArchiveRead, path, err)
	}
	return data, true, nil
}
