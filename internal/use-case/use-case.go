package use_case

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/trunov/webpbucket/internal/pipeline"
)

type Pipeline interface {
	ConvertOne(ctx context.Context, key string) error
	ConvertAll(ctx context.Context) *pipeline.BatchRun
	CollectKeys(ctx context.Context) ([]string, error)
	LastBatch() *pipeline.BatchRun
}

type ListingCache interface {
	Keys(ctx context.Context) ([]string, bool, error)
	StoreKeys(ctx context.Context, keys []string) error
	Flush(ctx context.Context) error
}

type useCase struct {
	pipeline Pipeline
	cache    ListingCache // nil when redis is not configured
	baseCtx  context.Context
	log      zerolog.Logger
}

// New wires the pipeline to the command surface. Batches run on baseCtx, not
// on the request that started them, and stop when baseCtx is cancelled.
func New(baseCtx context.Context, p Pipeline, cache ListingCache, log zerolog.Logger) *useCase {
	return &useCase{
		pipeline: p,
		cache:    cache,
		baseCtx:  baseCtx,
		log:      log,
	}
}

func (c *useCase) ConvertImage(ctx context.Context, key string) error {
	if err := c.pipeline.ConvertOne(ctx, key); err != nil {
		return err
	}

	if c.cache != nil {
		// a new webp/ object exists now
		if err := c.cache.Flush(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("failed to flush listing cache")
		}
	}
	return nil
}

func (c *useCase) ConvertAllImages(_ context.Context) *pipeline.BatchRun {
	run := c.pipeline.ConvertAll(c.baseCtx)

	if c.cache != nil {
		go func() {
			<-run.Done()
			// converted objects changed the bucket contents
			if err := c.cache.Flush(context.WithoutCancel(c.baseCtx)); err != nil {
				c.log.Warn().Err(err).Str("batch_id", run.ID).Msg("failed to flush listing cache")
			}
		}()
	}

	return run
}

func (c *useCase) ListImages(ctx context.Context) ([]string, error) {
	if c.cache != nil {
		keys, ok, err := c.cache.Keys(ctx)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Msg("listing cache read failed")
		case ok:
			return keys, nil
		}
	}

	keys, err := c.pipeline.CollectKeys(ctx)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.StoreKeys(ctx, keys); err != nil {
			c.log.Warn().Err(err).Msg("listing cache write failed")
		}
	}
	return keys, nil
}

// BatchStatus reports the most recently started batch.
func (c *useCase) BatchStatus(_ context.Context) (pipeline.Summary, bool) {
	run := c.pipeline.LastBatch()
	if run == nil {
		return pipeline.Summary{}, false
	}
	return run.Snapshot(), true
}
