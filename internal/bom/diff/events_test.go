package diff

import (
	"testing"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

func modified(changes ...FieldChange) *DiffResult {
	return &DiffResult{
		SnapshotAID: "snap-a",
		SnapshotBID: "snap-b",
		ModifiedItems: []ModifiedItem{
			{BOMItemID: "usage-1", MatchedFromID: "usage-1", PartID: "part-1", Changes: changes},
		},
		ItemParts: map[string]string{"usage-1": "part-1"},
	}
}

func attrChanged(field, from, to string) FieldChange {
	return FieldChange{
		Type:  FieldAttributeChanged,
		Field: field,
		From:  entity.String(from),
		To:    entity.String(to),
	}
}

func TestClassifyAddedAndRemoved(t *testing.T) {
	d := &DiffResult{
		SnapshotAID:  "snap-a",
		SnapshotBID:  "snap-b",
		AddedItems:   []ItemState{{BOMItemID: "usage-new", PartID: "part-new"}},
		RemovedItems: []ItemState{{BOMItemID: "usage-old", PartID: "part-old"}},
	}
	result := Classify(d)
	if len(result.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(result.Events))
	}

	added := result.EventsByType(EventPartAdded)
	if len(added) != 1 || added[0].Severity != SeverityHigh {
		t.Errorf("PART_ADDED wrong: %+v", added)
	}
	removed := result.EventsByType(EventPartRemoved)
	if len(removed) != 1 || removed[0].Severity != SeverityHigh {
		t.Errorf("PART_REMOVED wrong: %+v", removed)
	}

	// 增删同时影响工程和采购
	for _, e := range result.Events {
		if len(e.Domains) != 2 {
			t.Errorf("event %s domains = %v", e.EventType, e.Domains)
		}
	}
}

func TestClassifyPartSubstituted(t *testing.T) {
	d := modified(
		attrChanged("manufacturer", "Murata", "TDK"),
		attrChanged("manufacturer_part_number", "ABC123", "XYZ789"),
	)
	result := Classify(d)
	if len(result.Events) != 1 {
		t.Fatalf("got %d events, want exactly 1", len(result.Events))
	}
	e := result.Events[0]
	if e.EventType != EventPartSubstituted {
		t.Errorf("EventType = %s, want PART_SUBSTITUTED", e.EventType)
	}
	if e.Severity != SeverityHigh {
		t.Errorf("Severity = %s, want HIGH", e.Severity)
	}
	if e.Summary != "Part substituted (different manufacturer and MPN)" {
		t.Errorf("Summary = %q", e.Summary)
	}
}

func TestClassifyManufacturerOnly(t *testing.T) {
	result := Classify(modified(attrChanged("manufacturer", "Murata", "TDK")))
	e := result.Events[0]
	if e.EventType != EventManufacturerChanged {
		t.Errorf("EventType = %s, want MANUFACTURER_CHANGED", e.EventType)
	}
	if e.Severity != SeverityMedium {
		t.Errorf("Severity = %s, want MEDIUM", e.Severity)
	}
	if e.Summary != "Manufacturer changed: Murata → TDK" {
		t.Errorf("Summary = %q", e.Summary)
	}
}

func TestClassifyMPNNotMistakenForManufacturer(t *testing.T) {
	// manufacturer_part_number含manufacturer子串，必须先按MPN归类
	result := Classify(modified(attrChanged("manufacturer_part_number", "ABC123", "XYZ789")))
	e := result.Events[0]
	if e.EventType == EventManufacturerChanged || e.EventType == EventPartSubstituted {
		t.Errorf("MPN-only change misclassified as %s", e.EventType)
	}
}

func TestClassifyQuantityChanged(t *testing.T) {
	result := Classify(modified(FieldChange{
		Type:  FieldQuantityChanged,
		Field: "quantity",
		From:  entity.Number(5),
		To:    entity.Number(10),
	}))
	e := result.Events[0]
	if e.EventType != EventQuantityChanged {
		t.Errorf("EventType = %s, want QUANTITY_CHANGED", e.EventType)
	}
	if e.Summary != "Quantity changed: 5 → 10" {
		t.Errorf("Summary = %q", e.Summary)
	}
}

func TestClassifyRefDesBeforeSpec(t *testing.T) {
	// 位号和规格同时变：规则表里位号在前
	result := Classify(modified(
		attrChanged("reference_designator", "R1", "R2"),
		attrChanged("value", "10k", "12k"),
	))
	e := result.Events[0]
	if e.EventType != EventRefDesChanged {
		t.Errorf("EventType = %s, want REFERENCE_DESIGNATOR_CHANGED", e.EventType)
	}
	if e.Severity != SeverityLow {
		t.Errorf("Severity = %s, want LOW", e.Severity)
	}
}

func TestClassifySpecAttributeChanged(t *testing.T) {
	result := Classify(modified(
		attrChanged("value", "10k", "12k"),
		attrChanged("tolerance", "5%", "1%"),
	))
	e := result.Events[0]
	if e.EventType != EventSpecAttributeChanged {
		t.Errorf("EventType = %s, want SPEC_ATTRIBUTE_CHANGED", e.EventType)
	}
	// 摘要字段名按字典序，与证据顺序无关
	if e.Summary != "Specification changed: tolerance, value" {
		t.Errorf("Summary = %q", e.Summary)
	}
	if len(e.Domains) != 1 || e.Domains[0] != DomainEngineering {
		t.Errorf("Domains = %v, want [ENGINEERING]", e.Domains)
	}
}

func TestClassifySpecSummaryOrderStable(t *testing.T) {
	// 两种证据顺序产出同一摘要
	forward := Classify(modified(
		attrChanged("material", "FR4", "ceramic"),
		attrChanged("value", "10k", "12k"),
	))
	reversed := Classify(modified(
		attrChanged("value", "10k", "12k"),
		attrChanged("material", "FR4", "ceramic"),
	))
	want := "Specification changed: material, value"
	if got := forward.Events[0].Summary; got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
	if got := reversed.Events[0].Summary; got != want {
		t.Errorf("reversed Summary = %q, want %q", got, want)
	}
}

func TestClassifyUnclassifiedFallback(t *testing.T) {
	// 每个修改行项必须产出事件，哪怕字段没有任何规则认识
	result := Classify(modified(attrChanged("warehouse_bin", "A3", "B7")))
	if len(result.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(result.Events))
	}
	e := result.Events[0]
	if e.EventType != EventUnclassifiedChange {
		t.Errorf("EventType = %s, want UNCLASSIFIED_CHANGE", e.EventType)
	}
	if e.Severity != SeverityLow {
		t.Errorf("Severity = %s, want LOW", e.Severity)
	}
}

func TestClassifyFilters(t *testing.T) {
	d := &DiffResult{
		SnapshotAID: "snap-a",
		SnapshotBID: "snap-b",
		AddedItems:  []ItemState{{BOMItemID: "u1", PartID: "p1"}},
		ModifiedItems: []ModifiedItem{
			{BOMItemID: "u2", MatchedFromID: "u2", PartID: "p2", Changes: []FieldChange{
				{Type: FieldQuantityChanged, Field: "quantity", From: entity.Number(1), To: entity.Number(2)},
			}},
		},
	}
	result := Classify(d)

	if got := len(result.HighSeverityEvents()); got != 1 {
		t.Errorf("HighSeverityEvents = %d, want 1", got)
	}
	if got := len(result.ProcurementEvents()); got != 2 {
		t.Errorf("ProcurementEvents = %d, want 2", got)
	}
	if got := len(result.EventsByDomain(DomainManufacturing)); got != 1 {
		t.Errorf("manufacturing events = %d, want 1", got)
	}
}

func TestItemDeltaHasAnyChange(t *testing.T) {
	var empty ItemDelta
	if empty.HasAnyChange() {
		t.Error("zero delta reports change")
	}
	d := ItemDelta{RefDesChanged: true}
	if !d.HasAnyChange() {
		t.Error("refdes delta not detected")
	}
}
