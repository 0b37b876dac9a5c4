package entity

import (
	"time"
)

// Organization 租户组织（引用不存在时懒创建）
type Organization struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:128"`
	CreatedAt time.Time `json:"created_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Assembly 装配体（产品/板卡），org内按名称唯一。只增不删，快照随时间累积。
type Assembly struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	OrgID     string    `json:"org_id" gorm:"size:36;not null;uniqueIndex:idx_assemblies_org_name"`
	Name      string    `json:"name" gorm:"size:256;not null;uniqueIndex:idx_assemblies_org_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Assembly) TableName() string {
	return "assemblies"
}

// Part 设计意图实体——零件"是什么"（值、封装、厂商等固有规格）。
// 约定不可变：固有规格变化应新建Part而不是修改已有Part。
type Part struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	OrgID      string    `json:"org_id" gorm:"size:36;not null;index"`
	Name       string    `json:"name" gorm:"size:256;not null"`
	Attributes AttrMap   `json:"attributes" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Part) TableName() string {
	return "parts"
}

// BOMItem 用法实体（usage）——零件在装配体中"怎么用"。
// context存稳定的使用上下文（安装备注、位置、扭矩），明确不含位号：
// 位号是快照态，放snapshot_items.attributes，这样位号变化走MODIFY而不是remove+add。
type BOMItem struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	AssemblyID string    `json:"assembly_id" gorm:"size:36;not null;index"`
	PartID     string    `json:"part_id" gorm:"size:36;not null;index"`
	Context    AttrMap   `json:"context" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (BOMItem) TableName() string {
	return "bom_items"
}

// Snapshot 快照：一次上传时刻装配体BOM状态的不可变记录。
// 每次摄取都创建，哪怕内容没变；创建后永不修改或删除。
type Snapshot struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	OrgID            string    `json:"org_id" gorm:"size:36;not null;index"`
	AssemblyID       string    `json:"assembly_id" gorm:"size:36;not null;index"`
	Source           string    `json:"source" gorm:"size:64;not null;default:csv"`
	ParentSnapshotID *string   `json:"parent_snapshot_id,omitempty" gorm:"size:36"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Snapshot) TableName() string {
	return "snapshots"
}

// SnapshotItem 某Usage在某快照中的物化状态：数量 + 语义属性 + 校验和。
// 按(snapshot_id, bom_item_id)唯一，diff的原子比较单元。
type SnapshotItem struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	SnapshotID string    `json:"snapshot_id" gorm:"size:36;not null;uniqueIndex:idx_snapshot_items_snapshot_usage"`
	BOMItemID  string    `json:"bom_item_id" gorm:"size:36;not null;uniqueIndex:idx_snapshot_items_snapshot_usage"`
	Quantity   *float64  `json:"quantity" gorm:"type:numeric(15,4)"`
	Attributes AttrMap   `json:"attributes" gorm:"type:jsonb"`
	Checksum   string    `json:"checksum" gorm:"size:64;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SnapshotItem) TableName() string {
	return "snapshot_items"
}
