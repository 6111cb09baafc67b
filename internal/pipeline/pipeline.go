// Package pipeline converts bucket objects to WebP. It streams the bucket
// listing into a bounded set of concurrent conversions, isolates per-item
// failures and counts successes per batch.
//
// ConvertOne and a running batch may touch the same keys at the same time;
// the last upload to a destination wins. No coordination is attempted.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"iter"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/trunov/webpbucket/internal/classifier"
	"github.com/trunov/webpbucket/internal/entities"
)

const (
	DefaultConcurrency = 100
	ContentTypeWebP    = "image/webp"
	OutcomeCancelled   = "cancelled"
)

type ObjectStore interface {
	List(ctx context.Context) iter.Seq2[string, error]
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key, contentType string, payload []byte) error
}

type Converter interface {
	Decode(data []byte, task entities.Task) (image.Image, error)
	Encode(img image.Image, task entities.Task) ([]byte, error)
}

// Reporter forwards per-item failures of a batch to an error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// Observer receives conversion and batch events, typically for metrics.
type Observer interface {
	ItemStarted(kind string)
	ItemFinished(kind string, stage string, d time.Duration) // stage is "" on success, OutcomeCancelled when no stage ran
	BatchFinished(result string, processed, failed int64)
}

type Options struct {
	Concurrency    int // in-flight conversions per batch, DefaultConcurrency when 0
	ConvertWorkers int // parallel decode/encode across all callers, GOMAXPROCS when 0
	Logger         *zerolog.Logger
	Reporter       Reporter
	Observer       Observer
}

type Pipeline struct {
	store    ObjectStore
	conv     Converter
	log      zerolog.Logger
	reporter Reporter
	observer Observer

	concurrency int
	cpu         *semaphore.Weighted

	last atomic.Pointer[BatchRun]
}

func New(store ObjectStore, conv Converter, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ConvertWorkers <= 0 {
		opts.ConvertWorkers = runtime.GOMAXPROCS(0)
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Pipeline{
		store:       store,
		conv:        conv,
		log:         log,
		reporter:    opts.Reporter,
		observer:    opts.Observer,
		concurrency: opts.Concurrency,
		cpu:         semaphore.NewWeighted(int64(opts.ConvertWorkers)),
	}
}

// ConvertOne converts a single object and uploads it to its derived key.
// Keys without a supported extension fail with ErrUnsupportedKey before any download.
func (p *Pipeline) ConvertOne(ctx context.Context, key string) error {
	task, ok := classifier.NewTask(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
	}
	return p.convert(ctx, task)
}

// ListAll yields every key in the bucket, page by page, as the caller consumes it.
func (p *Pipeline) ListAll(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for key, err := range p.store.List(ctx) {
			if err != nil {
				yield("", &ListingError{Err: err})
				return
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}

// CollectKeys materializes ListAll.
func (p *Pipeline) CollectKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	for key, err := range p.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ConvertAll starts a batch over the whole bucket and returns immediately.
// The batch lives until it finishes, ctx is cancelled or Cancel is called.
func (p *Pipeline) ConvertAll(ctx context.Context) *BatchRun {
	ctx, cancel := context.WithCancel(ctx)
	run := newBatchRun(cancel)
	p.last.Store(run)

	go func() {
		defer cancel()
		run.finish(p.runBatch(ctx, run))
	}()

	return run
}

// Run is the blocking form of ConvertAll.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	run := p.ConvertAll(ctx)
	<-run.Done()
	return run.Snapshot(), run.Err()
}

// LastBatch returns the most recently started batch, or nil.
func (p *Pipeline) LastBatch() *BatchRun {
	return p.last.Load()
}

func (p *Pipeline) runBatch(ctx context.Context, run *BatchRun) error {
	run.counter.Reset()
	log := p.log.With().Str("batch_id", run.ID).Logger()
	log.Info().Int("concurrency", p.concurrency).Msg("batch started")

	// g.Go blocks while the limit is reached, so listing never runs further
	// ahead of the conversions than one page.
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	var batchErr error
	for key, err := range p.store.List(ctx) {
		if ctx.Err() != nil {
			// cancelled; reported as the context error below
			break
		}
		if err != nil {
			batchErr = &ListingError{Err: err}
			break
		}

		task, ok := classifier.NewTask(key)
		if !ok {
			run.skipped.Add(1)
			continue
		}

		run.scheduled.Add(1)
		g.Go(func() error {
			p.runItem(ctx, run, task, log)
			return nil
		})
	}

	if batchErr != nil {
		// nothing else can be discovered; stop what is in flight
		run.Cancel()
	}
	_ = g.Wait()

	if batchErr == nil && ctx.Err() != nil {
		batchErr = ctx.Err()
	}

	result := "completed"
	event := log.Info()
	if batchErr != nil {
		result = "failed"
		event = log.Error().Err(batchErr)
	}
	event.
		Int64("scheduled", run.scheduled.Load()).
		Int64("processed", run.counter.Load()).
		Int64("failed", run.failed.Load()).
		Int64("skipped", run.skipped.Load()).
		Msg("batch finished")
	p.observer.BatchFinished(result, run.counter.Load(), run.failed.Load())

	return batchErr
}

func (p *Pipeline) runItem(ctx context.Context, run *BatchRun, task entities.Task, log zerolog.Logger) {
	err := p.convert(ctx, task)
	if err != nil {
		run.failed.Add(1)
		log.Error().Err(err).Str("key", task.SourceKey).Msg("error processing image")
		if ctx.Err() == nil {
			p.reporter.Report(ctx, err, map[string]string{
				"batch_id": run.ID,
				"key":      task.SourceKey,
				"stage":    string(StageOf(err)),
			})
		}
		return
	}

	count := run.counter.IncrementAndGet()
	log.Info().Int64("count", count).Str("key", task.SourceKey).Msg("processed image")
}

func (p *Pipeline) convert(ctx context.Context, task entities.Task) (err error) {
	kind := task.Kind.String()
	start := time.Now()
	p.observer.ItemStarted(kind)
	defer func() {
		p.observer.ItemFinished(kind, outcome(err), time.Since(start))
	}()

	data, err := p.store.Download(ctx, task.SourceKey)
	if err != nil {
		return &ConversionError{Stage: StageDownload, Key: task.SourceKey, Err: err}
	}

	webpBytes, err := p.transcode(ctx, task, data)
	if err != nil {
		return err
	}

	if err := p.store.Upload(ctx, task.DestinationKey, ContentTypeWebP, webpBytes); err != nil {
		return &ConversionError{Stage: StageUpload, Key: task.SourceKey, Err: err}
	}
	return nil
}

// transcode runs the CPU-bound decode/encode under the converter semaphore so
// at most ConvertWorkers images are being processed while I/O continues freely.
func (p *Pipeline) transcode(ctx context.Context, task entities.Task, data []byte) ([]byte, error) {
	if err := p.cpu.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for converter: %w", err)
	}
	defer p.cpu.Release(1)

	img, err := recovered(func() (image.Image, error) { return p.conv.Decode(data, task) })
	if err != nil {
		return nil, &ConversionError{Stage: StageDecode, Key: task.SourceKey, Err: err}
	}

	out, err := recovered(func() ([]byte, error) { return p.conv.Encode(img, task) })
	if err != nil {
		return nil, &ConversionError{Stage: StageEncode, Key: task.SourceKey, Err: err}
	}
	return out, nil
}

// recovered runs fn and reports a panic inside it as ErrConverterPanic.
func recovered[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrConverterPanic, r)
		}
	}()
	return fn()
}

// outcome is the observer label of a finished item: "" on success, the failed
// stage, or "cancelled" when the item gave up before reaching a stage.
func outcome(err error) string {
	if err == nil {
		return ""
	}
	if stage := StageOf(err); stage != "" {
		return string(stage)
	}
	return OutcomeCancelled
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, error, map[string]string) {}

type nopObserver struct{}

func (nopObserver) ItemStarted(string) {}

func (nopObserver) ItemFinished(string, string, time.Duration) {}

func (nopObserver) BatchFinished(string, int64, int64) {}
