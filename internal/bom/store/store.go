// Package store 定义语义存储契约及其Postgres/内存两种实现。
// 核心逻辑只依赖SemanticStore接口，不关心底层引擎。
package store

import (
	"context"
	"errors"
	"time"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

// ErrNotFound 目标实体不存在（或不属于给定org）
var ErrNotFound = errors.New("not found")

// Match 相似度查询结果
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// ItemRecord 快照行项原始记录（diff引擎的输入）
type ItemRecord struct {
	BOMItemID  string         `json:"bom_item_id"`
	Quantity   *float64       `json:"quantity"`
	Attributes entity.AttrMap `json:"attributes"`
	Checksum   string         `json:"checksum"`
}

// ItemDetails bom_item关联的零件/装配体信息（批量查询用）
type ItemDetails struct {
	BOMItemID      string         `json:"bom_item_id"`
	AssemblyID     string         `json:"assembly_id"`
	AssemblyName   string         `json:"assembly_name"`
	PartID         string         `json:"part_id"`
	PartName       string         `json:"part_name"`
	PartAttributes entity.AttrMap `json:"part_attributes"`
	Context        entity.AttrMap `json:"context"`
}

// SnapshotInfo 快照元数据
type SnapshotInfo struct {
	SnapshotID       string    `json:"snapshot_id"`
	AssemblyID       string    `json:"assembly_id"`
	AssemblyName     string    `json:"assembly_name"`
	OrgID            string    `json:"org_id"`
	Source           string    `json:"source"`
	CreatedAt        time.Time `json:"created_at"`
	ParentSnapshotID *string   `json:"parent_snapshot_id,omitempty"`
}

// SemanticStore 语义存储接口。
//
// 事务语义：摄取管线的全部写操作都在InTransaction内执行，单层嵌套、
// 不要求savepoint；回调返回error即整体回滚，提交前的中间状态对并发
// 读不可见。并发摄取同一装配体时允许各自成功创建快照（快照只追加，
// 记录的是"观察到什么"而非"唯一真相"），依赖底层read-committed隔离。
type SemanticStore interface {
	// GetOrCreateOrganization 解析或懒创建组织
	GetOrCreateOrganization(ctx context.Context, orgID, name string) (string, error)

	// GetAssemblyByID 按ID取装配体，不存在或不属于org时返回ErrNotFound
	GetAssemblyByID(ctx context.Context, orgID, assemblyID string) (string, error)

	// GetOrCreateAssembly 按名称取或建装配体（org内名称唯一）
	GetOrCreateAssembly(ctx context.Context, orgID, name string) (string, error)

	// FindSimilarParts 在org范围内按综合相似度查零件，按分数降序
	FindSimilarParts(ctx context.Context, orgID, name string, attrs entity.AttrMap, threshold float64) ([]Match, error)

	// CreatePart 新建零件
	CreatePart(ctx context.Context, orgID, name string, attrs entity.AttrMap) (string, error)

	// FindSimilarBOMItems 在(assembly, part)范围内按上下文相似度查用法，按分数降序
	FindSimilarBOMItems(ctx context.Context, assemblyID, partID string, usageCtx entity.AttrMap, threshold float64) ([]Match, error)

	// CreateBOMItem 新建用法
	CreateBOMItem(ctx context.Context, assemblyID, partID string, usageCtx entity.AttrMap) (string, error)

	// CreateSnapshot 新建不可变快照
	CreateSnapshot(ctx context.Context, orgID, assemblyID, source string, parentSnapshotID *string) (string, error)

	// UpsertSnapshotItem 按(snapshot_id, bom_item_id)幂等写入快照行项
	UpsertSnapshotItem(ctx context.Context, snapshotID, bomItemID string, quantity *float64, attrs entity.AttrMap, checksum string) error

	// GetSnapshotItems 批量取快照全部行项
	GetSnapshotItems(ctx context.Context, snapshotID string) ([]ItemRecord, error)

	// GetBOMItemDetails 批量取用法关联的零件/装配体信息
	GetBOMItemDetails(ctx context.Context, bomItemIDs []string) (map[string]ItemDetails, error)

	// GetSnapshotInfo 取快照元数据，不存在时返回ErrNotFound
	GetSnapshotInfo(ctx context.Context, snapshotID string) (*SnapshotInfo, error)

	// InTransaction 单层事务：fn返回error则整体回滚并原样返回该error
	InTransaction(ctx context.Context, fn func(tx SemanticStore) error) error
}
