// Package memory serves jobs from a YAML file held in memory.
package memory

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jenkinsci/calendar-view-plugin-sub000/internal/domain"
)

// MetricsSink receives reload outcomes.
type MetricsSink interface {
	ProviderReload(jobs int, err error)
}

// File is the top-level layout of a jobs file.
type File struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// Parse decodes a jobs file. Unknown keys and duplicate job names are
// rejected.
func Parse(data []byte) ([]*Job, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "decode jobs file")
	}

	jobs := make([]*Job, 0, len(f.Jobs))
	seen := make(map[string]bool, len(f.Jobs))
	for _, spec := range f.Jobs {
		j, err := NewJob(spec)
		if err != nil {
			return nil, err
		}
		if seen[j.FullName()] {
			return nil, errors.Newf("duplicate job %q", j.FullName())
		}
		seen[j.FullName()] = true
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Store holds the latest successfully parsed snapshot of a jobs file.
type Store struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
	metrics  MetricsSink // optional, nil = disabled

	mu     sync.RWMutex
	jobs   []*Job
	byName map[string]*Job
}

// NewStore returns an empty store for path. Call Load before serving.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		byName:   map[string]*Job{},
	}
}

func (s *Store) WithLogger(logger *zap.Logger) *Store {
	s.logger = logger
	return s
}

// WithMetrics attaches a metrics sink to the store.
func (s *Store) WithMetrics(sink MetricsSink) *Store {
	s.metrics = sink
	return s
}

func (s *Store) WithDebounce(d time.Duration) *Store {
	if d > 0 {
		s.debounce = d
	}
	return s
}

// Load reads and parses the jobs file. On failure the previous snapshot is
// kept.
func (s *Store) Load() error {
	jobs, err := s.read()
	if s.metrics != nil {
		s.metrics.ProviderReload(len(jobs), err)
	}
	if err != nil {
		return err
	}
	s.Replace(jobs)
	return nil
}

func (s *Store) read() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read jobs file %s", s.path)
	}
	jobs, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse jobs file %s", s.path)
	}
	return jobs, nil
}

// Replace swaps in a new snapshot.
func (s *Store) Replace(jobs []*Job) {
	byName := make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		byName[j.FullName()] = j
	}
	s.mu.Lock()
	s.jobs = jobs
	s.byName = byName
	s.mu.Unlock()
}

func (s *Store) Jobs(ctx context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j
	}
	return out, nil
}

// Job returns domain.ErrJobNotFound for an unknown name.
func (s *Store) Job(ctx context.Context, name string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byName[name]
	if !ok {
		return nil, errors.Wrapf(domain.ErrJobNotFound, "%q", name)
	}
	return j, nil
}

// Watch reloads the jobs file whenever it changes until ctx is cancelled.
// The parent directory is watched so editors that replace the file on save
// are followed.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}
	s.logger.Info("memory: watching jobs file", zap.String("path", s.path))

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := s.Load(); err != nil {
				s.logger.Warn("memory: reload failed, keeping previous jobs", zap.Error(err))
				continue
			}
			s.logger.Info("memory: jobs reloaded", zap.Int("jobs", s.count()))
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			s.logger.Warn("memory: watcher error", zap.Error(err))
		}
	}
}

func (s *Store) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
