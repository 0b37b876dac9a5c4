// Package service 编排摄取、对比和分类，并做结果缓存。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erozee1/bomkit/internal/bom/diff"
	"github.com/erozee1/bomkit/internal/bom/ingest"
	"github.com/erozee1/bomkit/internal/bom/store"
)

const classifyCachePrefix = "bomkit:classify:"

// SnapshotService 快照业务服务
type SnapshotService struct {
	store    store.SemanticStore
	ingestor *ingest.Ingestor
	engine   *diff.Engine
	rdb      *redis.Client
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewSnapshotService 创建快照服务。rdb可为nil（禁用缓存）。
func NewSnapshotService(st store.SemanticStore, rdb *redis.Client, logger *zap.Logger, cacheTTL time.Duration) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &SnapshotService{
		store:    st,
		ingestor: ingest.NewIngestor(st, logger),
		engine:   diff.NewEngine(st, logger),
		rdb:      rdb,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Ingest 摄取一批归一化行为新快照
func (s *SnapshotService) Ingest(ctx context.Context, orgID string, rows []ingest.NormalizedRow, opts ingest.Options) (*ingest.Result, error) {
	return s.ingestor.IngestSnapshot(ctx, orgID, rows, opts)
}

// GetSnapshot 取快照元数据
func (s *SnapshotService) GetSnapshot(ctx context.Context, snapshotID string) (*store.SnapshotInfo, error) {
	return s.store.GetSnapshotInfo(ctx, snapshotID)
}

// GetSnapshotItems 取快照全部行项
func (s *SnapshotService) GetSnapshotItems(ctx context.Context, snapshotID string) ([]store.ItemRecord, error) {
	if _, err := s.store.GetSnapshotInfo(ctx, snapshotID); err != nil {
		return nil, err
	}
	return s.store.GetSnapshotItems(ctx, snapshotID)
}

// Diff 对比两个快照
func (s *SnapshotService) Diff(ctx context.Context, snapshotAID, snapshotBID string) (*diff.DiffResult, error) {
	return s.engine.Diff(ctx, snapshotAID, snapshotBID)
}

// Classify 对比并分类。快照不可变，分类结果按快照对缓存。
func (s *SnapshotService) Classify(ctx context.Context, snapshotAID, snapshotBID string) (*diff.ClassificationResult, error) {
	cacheKey := classifyCachePrefix + snapshotAID + ":" + snapshotBID
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var result diff.ClassificationResult
			if err := json.Unmarshal(cached, &result); err == nil {
				return &result, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("classification cache read failed", zap.Error(err))
		}
	}

	diffResult, err := s.engine.Diff(ctx, snapshotAID, snapshotBID)
	if err != nil {
		return nil, fmt.Errorf("diff snapshots: %w", err)
	}
	result := diff.Classify(diffResult)

	if s.rdb != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := s.rdb.Set(ctx, cacheKey, data, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("classification cache write failed", zap.Error(err))
			}
		}
	}
	return result, nil
}
