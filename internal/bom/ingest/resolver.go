package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erozee1/bomkit/internal/bom/store"
)

// 实体识别阈值。零件匹配要求更高置信度（错并零件比多建零件代价大），
// 用法匹配在零件已定的前提下只比上下文，阈值放宽。
const (
	PartSimilarityThreshold  = 0.8
	UsageSimilarityThreshold = 0.7
)

// Resolver 实体识别器：把归一化行解析到已有Part/BOMItem或新建
type Resolver struct {
	store  store.SemanticStore
	logger *zap.Logger
	debug  bool
}

// NewResolver 创建识别器
func NewResolver(st store.SemanticStore, logger *zap.Logger, debug bool) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: st, logger: logger, debug: debug}
}

// ResolveOrCreatePart 解析零件：org内综合相似度≥阈值取最高分，否则新建
func (r *Resolver) ResolveOrCreatePart(ctx context.Context, orgID string, row NormalizedRow) (string, error) {
	attrs := partAttributes(row)

	matches, err := r.store.FindSimilarParts(ctx, orgID, row.PartName, attrs, PartSimilarityThreshold)
	if err != nil {
		return "", fmt.Errorf("find similar parts: %w", err)
	}
	if len(matches) > 0 {
		if r.debug {
			r.logger.Debug("part matched",
				zap.String("part_name", row.PartName),
				zap.String("part_id", matches[0].ID),
				zap.Float64("score", matches[0].Score),
				zap.Int("candidates", len(matches)))
		}
		return matches[0].ID, nil
	}

	partID, err := r.store.CreatePart(ctx, orgID, row.PartName, attrs)
	if err != nil {
		return "", fmt.Errorf("create part: %w", err)
	}
	if r.debug {
		r.logger.Debug("part created",
			zap.String("part_name", row.PartName),
			zap.String("part_id", partID))
	}
	return partID, nil
}

// ResolveOrCreateBOMItem 解析用法：同(assembly, part)下上下文相似度≥阈值取最高分，否则新建。
// 匹配和建档都只用过滤后的上下文，位号等快照态字段不进用法身份。
func (r *Resolver) ResolveOrCreateBOMItem(ctx context.Context, assemblyID, partID string, row NormalizedRow) (string, error) {
	usageCtx := usageContext(row)

	matches, err := r.store.FindSimilarBOMItems(ctx, assemblyID, partID, usageCtx, UsageSimilarityThreshold)
	if err != nil {
		return "", fmt.Errorf("find similar bom items: %w", err)
	}
	if len(matches) > 0 {
		if r.debug {
			r.logger.Debug("usage matched",
				zap.String("part_id", partID),
				zap.String("bom_item_id", matches[0].ID),
				zap.Float64("score", matches[0].Score))
		}
		return matches[0].ID, nil
	}

	itemID, err := r.store.CreateBOMItem(ctx, assemblyID, partID, usageCtx)
	if err != nil {
		return "", fmt.Errorf("create bom item: %w", err)
	}
	if r.debug {
		r.logger.Debug("usage created",
			zap.String("part_id", partID),
			zap.String("bom_item_id", itemID))
	}
	return itemID, nil
}
