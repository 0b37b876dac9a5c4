package diff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

// EventType 业务变更事件类型
type EventType string

const (
	EventPartAdded            EventType = "PART_ADDED"
	EventPartRemoved          EventType = "PART_REMOVED"
	EventPartSubstituted      EventType = "PART_SUBSTITUTED"
	EventManufacturerChanged  EventType = "MANUFACTURER_CHANGED"
	EventQuantityChanged      EventType = "QUANTITY_CHANGED"
	EventRefDesChanged        EventType = "REFERENCE_DESIGNATOR_CHANGED"
	EventSpecAttributeChanged EventType = "SPEC_ATTRIBUTE_CHANGED"
	EventUnclassifiedChange   EventType = "UNCLASSIFIED_CHANGE"
)

// Severity 事件严重度
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Domain 受影响的业务域
type Domain string

const (
	DomainEngineering   Domain = "ENGINEERING"
	DomainProcurement   Domain = "PROCUREMENT"
	DomainManufacturing Domain = "MANUFACTURING"
)

// 字段名关键词表。字段先精确匹配，再用小写子串兜底，
// 吸收上游列名的各种写法（Mfr_Part_Number、MPN等归一化后的变体）。
var (
	specAttributeKeys = []string{
		"value", "tolerance", "package", "footprint", "material",
		"voltage_rating", "current_rating", "power_rating",
		"temperature_rating", "description", "unit",
	}
	manufacturerKeys = []string{"manufacturer", "mfr", "vendor", "brand"}
	mpnKeys          = []string{
		"manufacturer_part_number", "mpn", "mfr_part_number",
		"part_number", "vendor_part_number",
	}
	refDesKeys = []string{"reference_designator", "refdes", "designator"}
)

// ChangeEvent 分类后的业务变更事件
type ChangeEvent struct {
	EventType EventType     `json:"event_type"`
	Severity  Severity      `json:"severity"`
	Domains   []Domain      `json:"domains"`
	BOMItemID string        `json:"bom_item_id"`
	PartID    string        `json:"part_id"`
	Summary   string        `json:"summary"`
	Changes   []FieldChange `json:"changes,omitempty"`
}

// ClassificationResult 分类结果
type ClassificationResult struct {
	SnapshotAID string        `json:"snapshot_a_id"`
	SnapshotBID string        `json:"snapshot_b_id"`
	Events      []ChangeEvent `json:"events"`
}

// EventsByType 按事件类型过滤
func (r *ClassificationResult) EventsByType(t EventType) []ChangeEvent {
	var out []ChangeEvent
	for _, e := range r.Events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// EventsBySeverity 按严重度过滤
func (r *ClassificationResult) EventsBySeverity(s Severity) []ChangeEvent {
	var out []ChangeEvent
	for _, e := range r.Events {
		if e.Severity == s {
			out = append(out, e)
		}
	}
	return out
}

// EventsByDomain 按业务域过滤
func (r *ClassificationResult) EventsByDomain(d Domain) []ChangeEvent {
	var out []ChangeEvent
	for _, e := range r.Events {
		for _, ed := range e.Domains {
			if ed == d {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// HighSeverityEvents 高严重度事件
func (r *ClassificationResult) HighSeverityEvents() []ChangeEvent {
	return r.EventsBySeverity(SeverityHigh)
}

// ProcurementEvents 采购相关事件
func (r *ClassificationResult) ProcurementEvents() []ChangeEvent {
	return r.EventsByDomain(DomainProcurement)
}

// ItemDelta 单行项变化的语义归纳，分类规则的判据
type ItemDelta struct {
	Added               bool
	Removed             bool
	QuantityChanged     bool
	QuantityFrom        entity.Value
	QuantityTo          entity.Value
	ManufacturerChanged bool
	ManufacturerFrom    entity.Value
	ManufacturerTo      entity.Value
	MPNChanged          bool
	RefDesChanged       bool
	RefDesFrom          entity.Value
	RefDesTo            entity.Value
	SpecAttrsChanged    []string
	OtherChanged        []string
}

// HasAnyChange 是否有任何变化
func (d *ItemDelta) HasAnyChange() bool {
	return d.Added || d.Removed || d.QuantityChanged || d.ManufacturerChanged ||
		d.MPNChanged || d.RefDesChanged || len(d.SpecAttrsChanged) > 0 || len(d.OtherChanged) > 0
}

// Classify 把diff结果翻译成业务变更事件。
// 每个变化行项先归纳成ItemDelta，再按规则表首条命中分类；
// 事件顺序与diff输出顺序一致。
func Classify(d *DiffResult) *ClassificationResult {
	result := &ClassificationResult{
		SnapshotAID: d.SnapshotAID,
		SnapshotBID: d.SnapshotBID,
		Events:      []ChangeEvent{},
	}

	for _, item := range d.AddedItems {
		e := classifyDelta(ItemDelta{Added: true}, nil)
		e.BOMItemID = item.BOMItemID
		e.PartID = item.PartID
		result.Events = append(result.Events, e)
	}
	for _, item := range d.RemovedItems {
		e := classifyDelta(ItemDelta{Removed: true}, nil)
		e.BOMItemID = item.BOMItemID
		e.PartID = item.PartID
		result.Events = append(result.Events, e)
	}
	for _, item := range d.ModifiedItems {
		e := classifyDelta(deltaFromModified(item), item.Changes)
		e.BOMItemID = item.BOMItemID
		e.PartID = item.PartID
		result.Events = append(result.Events, e)
	}
	return result
}

// deltaFromModified 从字段变化归纳语义判据。
// MPN关键词先于厂商关键词检查：manufacturer_part_number含manufacturer子串，
// 顺序反了会被误判成厂商变化。
func deltaFromModified(item ModifiedItem) ItemDelta {
	var delta ItemDelta
	for _, c := range item.Changes {
		if c.Type == FieldQuantityChanged {
			delta.QuantityChanged = true
			delta.QuantityFrom = c.From
			delta.QuantityTo = c.To
			continue
		}
		field := strings.ToLower(c.Field)
		switch {
		case matchesKeywords(field, mpnKeys):
			delta.MPNChanged = true
		case matchesKeywords(field, manufacturerKeys):
			delta.ManufacturerChanged = true
			delta.ManufacturerFrom = c.From
			delta.ManufacturerTo = c.To
		case matchesKeywords(field, refDesKeys):
			delta.RefDesChanged = true
			delta.RefDesFrom = c.From
			delta.RefDesTo = c.To
		case matchesKeywords(field, specAttributeKeys):
			delta.SpecAttrsChanged = append(delta.SpecAttrsChanged, c.Field)
		default:
			delta.OtherChanged = append(delta.OtherChanged, c.Field)
		}
	}
	return delta
}

// classifyDelta 规则表首条命中，保底规则保证总能产出事件
func classifyDelta(delta ItemDelta, evidence []FieldChange) ChangeEvent {
	event := ChangeEvent{
		Changes: evidence,
	}
	switch {
	case delta.Added:
		event.EventType = EventPartAdded
		event.Severity = SeverityHigh
		event.Domains = []Domain{DomainEngineering, DomainProcurement}
		event.Summary = "Part added"
	case delta.Removed:
		event.EventType = EventPartRemoved
		event.Severity = SeverityHigh
		event.Domains = []Domain{DomainEngineering, DomainProcurement}
		event.Summary = "Part removed"
	case delta.ManufacturerChanged && delta.MPNChanged:
		event.EventType = EventPartSubstituted
		event.Severity = SeverityHigh
		event.Domains = []Domain{DomainProcurement, DomainEngineering}
		event.Summary = "Part substituted (different manufacturer and MPN)"
	case delta.ManufacturerChanged:
		event.EventType = EventManufacturerChanged
		event.Severity = SeverityMedium
		event.Domains = []Domain{DomainProcurement}
		event.Summary = fmt.Sprintf("Manufacturer changed: %s → %s",
			delta.ManufacturerFrom.Display(), delta.ManufacturerTo.Display())
	case delta.QuantityChanged:
		event.EventType = EventQuantityChanged
		event.Severity = SeverityMedium
		event.Domains = []Domain{DomainProcurement, DomainManufacturing}
		event.Summary = fmt.Sprintf("Quantity changed: %s → %s",
			formatQuantity(delta.QuantityFrom), formatQuantity(delta.QuantityTo))
	case delta.RefDesChanged:
		event.EventType = EventRefDesChanged
		event.Severity = SeverityLow
		event.Domains = []Domain{DomainManufacturing}
		event.Summary = fmt.Sprintf("Reference designator changed: %s → %s",
			delta.RefDesFrom.Display(), delta.RefDesTo.Display())
	case len(delta.SpecAttrsChanged) > 0:
		event.EventType = EventSpecAttributeChanged
		event.Severity = SeverityMedium
		event.Domains = []Domain{DomainEngineering}
		// 摘要里的字段名排序输出，不依赖证据顺序
		names := append([]string(nil), delta.SpecAttrsChanged...)
		sort.Strings(names)
		event.Summary = "Specification changed: " + strings.Join(names, ", ")
	default:
		event.EventType = EventUnclassifiedChange
		event.Severity = SeverityLow
		event.Domains = []Domain{}
		event.Summary = fmt.Sprintf("Unclassified change (%d field(s))", len(evidence))
	}
	return event
}

// matchesKeywords 字段名精确或小写子串匹配
func matchesKeywords(field string, keywords []string) bool {
	for _, kw := range keywords {
		if field == kw {
			return true
		}
	}
	for _, kw := range keywords {
		if strings.Contains(field, kw) {
			return true
		}
	}
	return false
}

// formatQuantity 数量展示：整数不带小数点，null显示为none
func formatQuantity(v entity.Value) string {
	if v.Kind == entity.KindNumber {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	if v.Kind == entity.KindNull {
		return "none"
	}
	return v.Display()
}
