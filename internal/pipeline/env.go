package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/config"
	"github.com/drm-lab/urbanrisk/internal/reader"
	"github.com/drm-lab/urbanrisk/internal/region"
	"github.com/drm-lab/urbanrisk/internal/table"
)

// ClassificationFile is the World Bank classification under the
// definitions directory.
const ClassificationFile = "WB_Classification.csv"

// Env carries what steps share: configuration and reference data.
type Env struct {
	Config *config.Config

	classifier *region.Classifier
}

// NewEnv creates an environment for cfg. The classifier is loaded on first use.
func NewEnv(cfg *config.Config) *Env {
	return &Env{Config: cfg}
}

// Classifier returns the country classification.
func (e *Env) Classifier() (*region.Classifier, error) {
	if e.classifier != nil {
		return e.classifier, nil
	}
	c, err := region.Load(e.Config.Data.Definitions(ClassificationFile))
	if err != nil {
		return nil, err
	}
	e.classifier = c
	return c, nil
}

func (e *Env) readRaw(ctx context.Context, what string, parts ...string) (*table.Frame, error) {
	return reader.ReadCSV(ctx, e.Config.Data.Raw(parts...), what)
}

func (e *Env) readProcessed(ctx context.Context, what, rel string) (*table.Frame, error) {
	return reader.ReadCSV(ctx, e.Config.Data.Processed(rel), what)
}

// write stores f under the processed dir and records it on res.
func (e *Env) write(ctx context.Context, res *Result, rel string, f *table.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := e.Config.Data.Processed(rel)
	if err := reader.WriteCSV(path, f); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", rel)
	}
	if len(res.Outputs) == 0 {
		res.Rows = int64(f.Len())
	}
	res.Outputs = append(res.Outputs, rel)
	zap.L().Debug("wrote output",
		zap.String("path", path),
		zap.Int("rows", f.Len()),
		zap.Int("columns", f.Width()),
	)
	return nil
}

// africapolisPath resolves the boundary file under the raw dir.
func (e *Env) africapolisPath() string {
	return e.Config.Data.Raw(e.Config.Data.Africapolis)
}
