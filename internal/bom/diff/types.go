// Package diff 实现快照间的多级匹配对比和字段级差异计算。
package diff

import (
	"github.com/erozee1/bomkit/internal/bom/entity"
)

// 字段级变化类型
const (
	FieldQuantityChanged  = "QUANTITY_CHANGED"
	FieldAttributeAdded   = "ATTRIBUTE_ADDED"
	FieldAttributeRemoved = "ATTRIBUTE_REMOVED"
	FieldAttributeChanged = "ATTRIBUTE_CHANGED"
)

// ItemState 参与对比的行项状态
type ItemState struct {
	BOMItemID  string         `json:"bom_item_id"`
	PartID     string         `json:"part_id"`
	Quantity   *float64       `json:"quantity"`
	Attributes entity.AttrMap `json:"attributes"`
	Checksum   string         `json:"checksum"`
}

// FieldChange 单个字段的变化
type FieldChange struct {
	Type  string       `json:"type"`
	Field string       `json:"field"`
	From  entity.Value `json:"from"`
	To    entity.Value `json:"to"`
}

// ModifiedItem 匹配成功且内容有变的行项对。
// BOMItemID是B侧用法，MatchedFromID是A侧用法（同一用法时两者相等）。
type ModifiedItem struct {
	BOMItemID     string        `json:"bom_item_id"`
	MatchedFromID string        `json:"matched_from_id"`
	PartID        string        `json:"part_id"`
	Changes       []FieldChange `json:"changes"`
}

// DiffResult 两快照对比结果
type DiffResult struct {
	SnapshotAID    string         `json:"snapshot_a_id"`
	SnapshotBID    string         `json:"snapshot_b_id"`
	AddedItems     []ItemState    `json:"added_items"`
	RemovedItems   []ItemState    `json:"removed_items"`
	ModifiedItems  []ModifiedItem `json:"modified_items"`
	UnchangedCount int            `json:"unchanged_count"`
	// ItemParts 结果中出现的bom_item_id到part_id的映射，分类时免二次查询
	ItemParts map[string]string `json:"item_parts"`
}
