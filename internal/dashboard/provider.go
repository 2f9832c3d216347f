package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/config"
	"github.com/drm-lab/urbanrisk/internal/panel"
	"github.com/drm-lab/urbanrisk/internal/pipeline"
	"github.com/drm-lab/urbanrisk/internal/reader"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// Provider owns the current snapshot. Load builds a snapshot without
// publishing it; Reload builds one and swaps it in atomically, so readers
// holding the previous snapshot are unaffected.
type Provider struct {
	data    config.DataConfig
	current atomic.Pointer[Snapshot]
	reload  sync.Mutex
	now     func() time.Time
}

// NewProvider creates a provider reading from the configured directories.
func NewProvider(data config.DataConfig) *Provider {
	return &Provider{data: data, now: time.Now}
}

// Snapshot returns the current snapshot, or nil before the first Reload.
func (p *Provider) Snapshot() *Snapshot {
	return p.current.Load()
}

// Reload loads a fresh snapshot and publishes it. On error the previous
// snapshot stays current.
func (p *Provider) Reload(ctx context.Context) (*Snapshot, error) {
	p.reload.Lock()
	defer p.reload.Unlock()

	s, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	p.current.Store(s)
	return s, nil
}

type loaded struct {
	frame   *table.Frame
	markers []Marker
	missing string
}

// Load reads the classification and every dataset concurrently. Missing
// dataset files are recorded and logged; any other failure aborts the load.
func (p *Provider) Load(ctx context.Context) (*Snapshot, error) {
	log := zap.L().With(zap.String("component", "dashboard.provider"))
	start := p.now()

	g, gctx := errgroup.WithContext(ctx)

	var classifier *region.Classifier
	g.Go(func() error {
		c, err := region.Load(p.data.Definitions(pipeline.ClassificationFile))
		if err != nil {
			return err
		}
		classifier = c
		return nil
	})

	results := make([]loaded, len(Datasets))
	for i, d := range Datasets {
		g.Go(func() error {
			res, err := p.loadDataset(gctx, d)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Snapshot{
		LoadedAt:   start,
		classifier: classifier,
		frames:     make(map[string]*table.Frame, len(Datasets)),
		missing:    make(map[string]string),
	}
	for i, d := range Datasets {
		r := results[i]
		if r.missing != "" {
			s.missing[d.Name] = r.missing
			log.Warn("dataset file missing", zap.String("dataset", d.Name), zap.String("path", r.missing))
			continue
		}
		s.frames[d.Name] = r.frame
		if r.markers != nil {
			s.markers = r.markers
		}
	}

	var err error
	if f, ok := s.frames[DatasetProjections]; ok {
		if s.projections, err = panel.FromFrame(f); err != nil {
			return nil, eris.Wrap(err, "dashboard: projections panel")
		}
	}
	if f, ok := s.frames[DatasetGrowthRates]; ok {
		if s.growth, err = panel.FromFrame(f); err != nil {
			return nil, eris.Wrap(err, "dashboard: growth rate panel")
		}
	}

	log.Info("snapshot loaded",
		zap.Int("datasets", len(s.frames)),
		zap.Int("missing", len(s.missing)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return s, nil
}

func (p *Provider) loadDataset(ctx context.Context, d Dataset) (loaded, error) {
	path := p.data.Processed(d.File)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return loaded{missing: path}, nil
	}
	if err != nil {
		return loaded{}, eris.Wrapf(err, "dashboard: read %s", path)
	}

	f, err := reader.ParseCSV(ctx, bytes.NewReader(b))
	if err != nil {
		return loaded{}, apperr.Wrap(err, apperr.KindSchema, "unreadable dataset "+d.Name)
	}
	res := loaded{frame: f.Named(d.Name)}

	if d.Name == DatasetCentroids {
		markers := []Marker{}
		if err := csvutil.Unmarshal(b, &markers); err != nil {
			return loaded{}, apperr.Wrap(err, apperr.KindSchema, "invalid centroid file")
		}
		res.markers = markers
	}
	return res, nil
}
