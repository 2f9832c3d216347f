package pipeline

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/drm-lab/urbanrisk/internal/reader"
)

// ManifestFile is the run log kept in the processed dir.
const ManifestFile = "_manifest.yaml"

// Entry statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry is one step run.
type Entry struct {
	ID          string         `yaml:"id"`
	RunID       string         `yaml:"run_id"`
	Step        string         `yaml:"step"`
	Status      string         `yaml:"status"`
	StartedAt   time.Time      `yaml:"started_at"`
	CompletedAt *time.Time     `yaml:"completed_at,omitempty"`
	Rows        int64          `yaml:"rows"`
	Outputs     []string       `yaml:"outputs,omitempty"`
	Error       string         `yaml:"error,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
}

type manifestDoc struct {
	Entries []Entry `yaml:"entries"`
}

// Manifest provides read/write access to the YAML run log. Every write
// rewrites the file atomically.
type Manifest struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewManifest creates a manifest stored at path.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Path returns the manifest location.
func (m *Manifest) Path() string { return m.path }

func (m *Manifest) load() (*manifestDoc, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &manifestDoc{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "manifest: read")
	}
	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", m.path)
	}
	return &doc, nil
}

func (m *Manifest) save(doc *manifestDoc) error {
	return reader.WriteFileAtomic(m.path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return eris.Wrap(err, "manifest: encode")
		}
		return enc.Close()
	})
}

func (m *Manifest) update(id string, fn func(*Entry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return err
	}
	for i := range doc.Entries {
		if doc.Entries[i].ID == id {
			fn(&doc.Entries[i])
			return m.save(doc)
		}
	}
	return eris.Errorf("manifest: unknown entry %s", id)
}

// Start records the beginning of a step run and returns its entry ID.
func (m *Manifest) Start(ctx context.Context, runID, step string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	doc.Entries = append(doc.Entries, Entry{
		ID:        id,
		RunID:     runID,
		Step:      step,
		Status:    StatusRunning,
		StartedAt: m.now(),
	})
	if err := m.save(doc); err != nil {
		return "", eris.Wrapf(err, "manifest: start %s", step)
	}
	return id, nil
}

// Complete marks a step run as successfully completed.
func (m *Manifest) Complete(_ context.Context, id string, result *Result) error {
	now := m.now()
	return m.update(id, func(e *Entry) {
		e.Status = StatusComplete
		e.CompletedAt = &now
		if result != nil {
			e.Rows = result.Rows
			e.Outputs = result.Outputs
			e.Metadata = result.Metadata
		}
	})
}

// Fail marks a step run as failed with an error message.
func (m *Manifest) Fail(_ context.Context, id, errMsg string) error {
	now := m.now()
	return m.update(id, func(e *Entry) {
		e.Status = StatusFailed
		e.CompletedAt = &now
		e.Error = errMsg
	})
}

// ListAll returns all entries, most recent first.
func (m *Manifest) ListAll(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	out := doc.Entries
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// LastSuccess returns the start time of the most recent successful run of a
// step, or nil if it never completed.
func (m *Manifest) LastSuccess(ctx context.Context, step string) (*time.Time, error) {
	entries, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Step == step && e.Status == StatusComplete {
			t := e.StartedAt
			return &t, nil
		}
	}
	return nil, nil
}
