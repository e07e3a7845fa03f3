package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/visionguard/internal/annotate"
	"github.com/ironsheep/visionguard/internal/imaging"
)

// Job is one image file to process.
type Job struct {
	Path string

	// Source defaults to "image:<basename>".
	Source string
}

// JobResult is the outcome of one Job.
type JobResult struct {
	Job        Job         `json:"job"`
	Detections []Detection `json:"detections"`

	// Annotated is the path of the written snapshot, if any.
	Annotated string `json:"annotated,omitempty"`
	Err       error  `json:"-"`
}

// Pool holds one Pipeline per worker.
type Pool struct {
	pipelines chan *Pipeline
	all       []*Pipeline
}

// NewPool builds n pipelines with newPipeline. Pipelines created before a
// failure are closed.
func NewPool(n int, newPipeline func() (*Pipeline, error)) (*Pool, error) {
	n = max(n, 1)
	p := &Pool{pipelines: make(chan *Pipeline, n)}
	for i := 0; i < n; i++ {
		pl, err := newPipeline()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		p.all = append(p.all, pl)
		p.pipelines <- pl
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.all) }

// Close closes every pipeline.
func (p *Pool) Close() error {
	var first error
	for _, pl := range p.all {
		if err := pl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BatchOptions controls Run.
type BatchOptions struct {
	// SnapshotDir receives annotated_<stem>.jpg per image when set.
	SnapshotDir string
	Annotate    annotate.Options
	Logger      zerolog.Logger
}

// DefaultSource returns the source tag for an image file.
func DefaultSource(path string) string {
	return "image:" + filepath.Base(path)
}

// SnapshotPath returns where the annotated copy of path is written.
func SnapshotPath(dir, path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "annotated_"+stem+".jpg")
}

// Run processes jobs with at most Size() images in flight. Results are in job
// order. A failing job does not stop the others; cancelling ctx does.
func (p *Pool) Run(ctx context.Context, jobs []Job, opts BatchOptions) []JobResult {
	results := make([]JobResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Size())

	for i, job := range jobs {
		if job.Source == "" {
			job.Source = DefaultSource(job.Path)
		}
		results[i].Job = job

		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return nil
			case pl := <-p.pipelines:
				defer func() { p.pipelines <- pl }()
				results[i] = processJob(ctx, pl, job, opts)
				return nil
			}
		})
	}
	_ = g.Wait()

	return results
}

func processJob(ctx context.Context, pl *Pipeline, job Job, opts BatchOptions) JobResult {
	res := JobResult{Job: job}

	img, err := imaging.Load(job.Path)
	if err != nil {
		res.Err = err
		opts.Logger.Error().Err(err).Str("path", job.Path).Msg("failed to load image")
		return res
	}

	res.Detections, res.Err = pl.Process(ctx, img, job.Source)

	if opts.SnapshotDir != "" {
		out := annotate.Annotate(img, Labels(res.Detections), opts.Annotate)
		path := SnapshotPath(opts.SnapshotDir, job.Path)
		if err := annotate.SaveJPEG(out, path); err != nil {
			opts.Logger.Warn().Err(err).Str("path", path).Msg("annotated snapshot not written")
		} else {
			res.Annotated = path
		}
	}
	return res
}
