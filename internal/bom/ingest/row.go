// Package ingest 实现BOM快照摄取管线：行归一化、实体识别、聚合、写入。
package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

// NormalizedRow 归一化后的BOM行，摄取管线的标准输入。
// Attributes混装零件固有属性和快照态属性（位号等），入库前由管线分流。
type NormalizedRow struct {
	PartName   string         `json:"part_name"`
	Quantity   *int           `json:"quantity"`
	Attributes entity.AttrMap `json:"attributes"`
	Context    entity.AttrMap `json:"context"`
	RowIndex   int            `json:"row_index"`
}

// partAttributeKeys 固有规格字段，进Part.Attributes
var partAttributeKeys = []string{
	"value",
	"tolerance",
	"material",
	"package",
	"manufacturer",
	"manufacturer_part_number",
	"description",
	"unit",
}

// contextKeys 使用上下文字段，进BOMItem.Context
var contextKeys = []string{
	"notes",
	"placement",
	"torque",
	"install_notes",
}

var toleranceRe = regexp.MustCompile(`(?i)tolerance[:\s]+([0-9.]+%)`)

// RowFromMap 从原始键值行构建归一化行。
// 零件名优先取part_number，其次description，都缺用占位名。
// 数量解析失败置nil（缺数量不是致命错误，diff时按缺失处理）。
// 上下文字段进Context，其余非空列（含位号）全部进Attributes。
func RowFromMap(raw map[string]string, rowIndex int) NormalizedRow {
	name := strings.TrimSpace(raw["part_number"])
	if name == "" {
		name = strings.TrimSpace(raw["description"])
	}
	if name == "" {
		name = "UNNAMED_PART"
	}

	var quantity *int
	if qs := strings.TrimSpace(raw["quantity"]); qs != "" {
		if f, err := strconv.ParseFloat(qs, 64); err == nil {
			q := int(f)
			quantity = &q
		}
	}

	ctxKeys := make(map[string]struct{}, len(contextKeys))
	for _, k := range contextKeys {
		ctxKeys[k] = struct{}{}
	}

	attrs := entity.AttrMap{}
	usageCtx := entity.AttrMap{}
	for k, v := range raw {
		if k == "part_number" || k == "quantity" {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := ctxKeys[k]; ok {
			usageCtx[k] = entity.String(v)
			continue
		}
		attrs[k] = entity.String(v)
	}

	// 公差常被塞在notes里（"Tolerance: 5%"），没独立列时从notes里捞
	if _, ok := attrs["tolerance"]; !ok {
		if m := toleranceRe.FindStringSubmatch(raw["notes"]); m != nil {
			attrs["tolerance"] = entity.String(m[1])
		}
	}

	return NormalizedRow{
		PartName:   name,
		Quantity:   quantity,
		Attributes: attrs,
		Context:    usageCtx,
		RowIndex:   rowIndex,
	}
}

// usageContext 过滤出稳定的使用上下文键（用法识别用）。
// 上游行常把位号连同备注一起塞进context，位号是快照态：
// 进了识别会让用法ID随位号漂移，必须滤掉。
func usageContext(row NormalizedRow) entity.AttrMap {
	attrs := entity.AttrMap{}
	for _, k := range contextKeys {
		if v, ok := row.Context[k]; ok && !v.IsEmpty() {
			attrs[k] = v
		}
	}
	return attrs
}

// partAttributes 从归一化行取零件固有属性子集（实体识别用）
func partAttributes(row NormalizedRow) entity.AttrMap {
	attrs := entity.AttrMap{}
	for _, k := range partAttributeKeys {
		if v, ok := row.Attributes[k]; ok && !v.IsEmpty() {
			attrs[k] = v
		}
	}
	return attrs
}

// snapshotAttributes 快照行项属性：行属性全量（含位号和固有规格）。
// 快照记录的是"这次上传观察到的状态"，固有规格也入快照，
// 这样规格漂移能在diff里显式暴露出来而不是藏在Part实体里。
// 混进Context的位号也要捞回来，否则位号变化会被diff判成无变化。
func snapshotAttributes(row NormalizedRow) entity.AttrMap {
	attrs := entity.AttrMap{}
	for k, v := range row.Attributes {
		if !v.IsEmpty() {
			attrs[k] = v
		}
	}
	if v, ok := row.Context["reference_designator"]; ok && !v.IsEmpty() {
		if cur, present := attrs["reference_designator"]; !present || cur.IsEmpty() {
			attrs["reference_designator"] = v
		}
	}
	return attrs
}
