// Package service sits between the API and the worker pool. Identical
// requests in flight share one acquisition, and complete records without
// document gaps are served from cache until they expire.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

// Cache stores complete records by key.
type Cache interface {
	Get(ctx context.Context, key string) (cnr.CaseRecord, bool, error)
	Put(ctx context.Context, key string, rec cnr.CaseRecord) error
}

// Service implements cnr.Acquirer on top of another Acquirer.
type Service struct {
	acquirer cnr.Acquirer
	cache    Cache
	group    singleflight.Group
	logger   *zap.Logger
}

// New builds a Service. cache may be nil.
func New(acquirer cnr.Acquirer, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{acquirer: acquirer, cache: cache, logger: logger}
}

// Acquire validates req, then answers from cache or a shared acquisition.
// The shared call is detached from any single caller's cancellation; each
// caller stops waiting when its own ctx ends.
func (s *Service) Acquire(ctx context.Context, req cnr.Request) (cnr.CaseRecord, error) {
	if !req.Reference.Valid() {
		return cnr.CaseRecord{}, fmt.Errorf("acquire %q: %w", req.Reference, cnr.ErrInvalidReference)
	}
	key := req.Reference.CacheKey(req.Cutoff)
	logger := s.logger.With(zap.String("cnr", req.Reference.String()))

	if rec, ok := s.cached(ctx, key, logger); ok {
		return rec, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		rec, err := s.acquirer.Acquire(context.WithoutCancel(ctx), req)
		if err != nil {
			return cnr.CaseRecord{}, err
		}
		s.store(context.WithoutCancel(ctx), key, rec, logger)
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return cnr.CaseRecord{}, fmt.Errorf("acquire %s: %w", req.Reference, ctx.Err())
	case res := <-ch:
		if res.Shared {
			logger.Debug("shared in-flight acquisition")
		}
		rec, _ := res.Val.(cnr.CaseRecord)
		return rec, res.Err
	}
}

func (s *Service) cached(ctx context.Context, key string, logger *zap.Logger) (cnr.CaseRecord, bool) {
	if s.cache == nil {
		return cnr.CaseRecord{}, false
	}
	rec, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("record cache read failed", zap.Error(err))
		return cnr.CaseRecord{}, false
	}
	if ok {
		logger.Debug("record cache hit")
	}
	return rec, ok
}

// store caches complete records only. A record with document gaps is left
// out so the next request retries the missing documents.
func (s *Service) store(ctx context.Context, key string, rec cnr.CaseRecord, logger *zap.Logger) {
	if s.cache == nil || rec.RecordStatus != cnr.RecordStatusComplete {
		return
	}
	if rec.DocumentGaps > 0 {
		logger.Debug("record has document gaps; not cached", zap.Int("gaps", rec.DocumentGaps))
		return
	}
	if err := s.cache.Put(ctx, key, rec); err != nil {
		logger.Warn("record cache write failed", zap.Error(err))
	}
}
