package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/erozee1/bomkit/internal/bom/entity"
	"github.com/erozee1/bomkit/internal/bom/store"
)

// 摄取请求校验错误
var (
	ErrNoRows              = errors.New("no rows to ingest")
	ErrAssemblyRefRequired = errors.New("either assembly_id or assembly_name is required")
	ErrAssemblyRefConflict = errors.New("assembly_id and assembly_name are mutually exclusive")
)

// Options 摄取选项。AssemblyID和AssemblyName二选一。
type Options struct {
	AssemblyID       string
	AssemblyName     string
	ParentSnapshotID *string
	Source           string
	Debug            bool
}

// Result 摄取结果
type Result struct {
	SnapshotID string `json:"snapshot_id"`
	AssemblyID string `json:"assembly_id"`
	RowCount   int    `json:"row_count"`
	ItemCount  int    `json:"item_count"`
}

// Ingestor 快照摄取管线。单次摄取的全部写操作在一个事务内，
// 任一步失败整体回滚，不留半成品快照。
type Ingestor struct {
	store  store.SemanticStore
	logger *zap.Logger
}

// NewIngestor 创建摄取器
func NewIngestor(st store.SemanticStore, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: st, logger: logger}
}

// usageAccumulator 同一用法多行聚合的中间态
type usageAccumulator struct {
	quantity   float64
	hasQty     bool
	attrs      entity.AttrMap
	rowIndices []int
}

// IngestSnapshot 摄取一批归一化行为一个新快照。
// 流程：校验 → 事务内（解析org/assembly → 逐行实体识别 → 按用法聚合 →
// 创建快照 → 算checksum → 幂等写入行项）。
func (ig *Ingestor) IngestSnapshot(ctx context.Context, orgID string, rows []NormalizedRow, opts Options) (*Result, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if opts.AssemblyID == "" && opts.AssemblyName == "" {
		return nil, ErrAssemblyRefRequired
	}
	if opts.AssemblyID != "" && opts.AssemblyName != "" {
		return nil, ErrAssemblyRefConflict
	}
	source := opts.Source
	if source == "" {
		source = "csv"
	}

	var result *Result
	err := ig.store.InTransaction(ctx, func(tx store.SemanticStore) error {
		resolvedOrg, err := tx.GetOrCreateOrganization(ctx, orgID, orgID)
		if err != nil {
			return fmt.Errorf("resolve organization: %w", err)
		}

		var assemblyID string
		if opts.AssemblyID != "" {
			assemblyID, err = tx.GetAssemblyByID(ctx, resolvedOrg, opts.AssemblyID)
		} else {
			assemblyID, err = tx.GetOrCreateAssembly(ctx, resolvedOrg, opts.AssemblyName)
		}
		if err != nil {
			return fmt.Errorf("resolve assembly: %w", err)
		}

		resolver := NewResolver(tx, ig.logger, opts.Debug)

		// 逐行识别并按用法聚合：同一用法的多行合并成一个行项
		usages := make(map[string]*usageAccumulator)
		order := []string{}
		for _, row := range rows {
			partID, err := resolver.ResolveOrCreatePart(ctx, resolvedOrg, row)
			if err != nil {
				return err
			}
			itemID, err := resolver.ResolveOrCreateBOMItem(ctx, assemblyID, partID, row)
			if err != nil {
				return err
			}

			acc, ok := usages[itemID]
			if !ok {
				acc = &usageAccumulator{attrs: entity.AttrMap{}}
				usages[itemID] = acc
				order = append(order, itemID)
			}
			if row.Quantity != nil {
				acc.quantity += float64(*row.Quantity)
				acc.hasQty = true
			}
			mergeSnapshotAttrs(acc.attrs, snapshotAttributes(row))
			acc.rowIndices = append(acc.rowIndices, row.RowIndex)
		}

		snapshotID, err := tx.CreateSnapshot(ctx, resolvedOrg, assemblyID, source, opts.ParentSnapshotID)
		if err != nil {
			return fmt.Errorf("create snapshot: %w", err)
		}

		sort.Strings(order)
		for _, itemID := range order {
			acc := usages[itemID]

			var quantity *float64
			if acc.hasQty && acc.quantity > 0 {
				q := acc.quantity
				quantity = &q
			}
			attrs := acc.attrs.Clone()
			if len(acc.rowIndices) > 0 {
				// 出处记录，checksum会过滤掉
				attrs["row_index"] = entity.Number(float64(acc.rowIndices[0]))
			}

			checksum, err := Checksum(quantity, attrs)
			if err != nil {
				return fmt.Errorf("compute checksum: %w", err)
			}
			if err := tx.UpsertSnapshotItem(ctx, snapshotID, itemID, quantity, attrs, checksum); err != nil {
				return fmt.Errorf("upsert snapshot item: %w", err)
			}
		}

		result = &Result{
			SnapshotID: snapshotID,
			AssemblyID: assemblyID,
			RowCount:   len(rows),
			ItemCount:  len(order),
		}
		return nil
	})
	if err != nil {
		ig.logger.Error("snapshot ingestion failed",
			zap.String("org_id", orgID),
			zap.Int("rows", len(rows)),
			zap.Error(err))
		return nil, err
	}

	ig.logger.Info("snapshot ingested",
		zap.String("snapshot_id", result.SnapshotID),
		zap.String("assembly_id", result.AssemblyID),
		zap.Int("rows", result.RowCount),
		zap.Int("items", result.ItemCount))
	return result, nil
}

// mergeSnapshotAttrs 聚合快照态属性：位号累积（逗号拼接去重），
// 其余键first-non-empty，后来的行不覆盖已有值。
func mergeSnapshotAttrs(dst, src entity.AttrMap) {
	for k, v := range src {
		if v.IsEmpty() {
			continue
		}
		existing, ok := dst[k]
		if !ok || existing.IsEmpty() {
			dst[k] = v
			continue
		}
		if k == "reference_designator" && v.Kind == entity.KindString && existing.Kind == entity.KindString {
			dst[k] = entity.String(appendRefDes(existing.Str, v.Str))
		}
	}
}

// appendRefDes 追加位号，已存在的段不重复
func appendRefDes(existing, incoming string) string {
	seen := make(map[string]struct{})
	parts := strings.Split(existing, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		seen[parts[i]] = struct{}{}
	}
	for _, p := range strings.Split(incoming, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; !ok {
			parts = append(parts, p)
			seen[p] = struct{}{}
		}
	}
	return strings.Join(parts, ",")
}
