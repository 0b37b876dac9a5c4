package ingest

import (
	"testing"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

func qty(v float64) *float64 {
	return &v
}

func TestChecksumDeterministic(t *testing.T) {
	attrs := entity.AttrMap{
		"reference_designator": entity.String("R1,R2"),
		"value":                entity.String("10k"),
	}
	c1, err := Checksum(qty(5), attrs)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	c2, err := Checksum(qty(5), attrs.Clone())
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if c1 != c2 {
		t.Errorf("checksums differ for identical input: %s vs %s", c1, c2)
	}
	if len(c1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(c1))
	}
}

func TestChecksumWhitespaceCollapsed(t *testing.T) {
	a := entity.AttrMap{"value": entity.String("10  kΩ")}
	b := entity.AttrMap{"value": entity.String("10 kΩ")}
	ca, _ := Checksum(qty(1), a)
	cb, _ := Checksum(qty(1), b)
	if ca != cb {
		t.Errorf("whitespace variants should hash equal: %s vs %s", ca, cb)
	}
}

func TestChecksumIgnoresNonSemanticKeys(t *testing.T) {
	base := entity.AttrMap{"value": entity.String("10k")}
	withProvenance := base.Clone()
	withProvenance["row_index"] = entity.Number(7)
	withProvenance["source_file"] = entity.String("bom_v2.csv")

	ca, _ := Checksum(qty(2), base)
	cb, _ := Checksum(qty(2), withProvenance)
	if ca != cb {
		t.Errorf("provenance keys must not affect checksum: %s vs %s", ca, cb)
	}
}

func TestChecksumSensitivity(t *testing.T) {
	attrs := entity.AttrMap{"value": entity.String("10k")}
	base, _ := Checksum(qty(5), attrs)

	changedQty, _ := Checksum(qty(10), attrs)
	if base == changedQty {
		t.Error("quantity change must change checksum")
	}

	nilQty, _ := Checksum(nil, attrs)
	if base == nilQty {
		t.Error("nil quantity must hash differently from 5")
	}

	changedAttr, _ := Checksum(qty(5), entity.AttrMap{"value": entity.String("12k")})
	if base == changedAttr {
		t.Error("attribute change must change checksum")
	}
}

func TestFilterSemantic(t *testing.T) {
	attrs := entity.AttrMap{
		"value":          entity.String("10k"),
		"row_index":      entity.Number(3),
		"csv_row_number": entity.Number(4),
	}
	out := FilterSemantic(attrs)
	if len(out) != 1 {
		t.Fatalf("expected 1 key, got %d", len(out))
	}
	if _, ok := out["value"]; !ok {
		t.Error("semantic key dropped")
	}
	if len(attrs) != 3 {
		t.Error("input map mutated")
	}
}
