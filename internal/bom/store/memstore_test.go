package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

func TestMemStoreOrganizationIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	first, err := st.GetOrCreateOrganization(ctx, "org-1", "Acme")
	if err != nil {
		t.Fatalf("GetOrCreateOrganization: %v", err)
	}
	second, err := st.GetOrCreateOrganization(ctx, "org-1", "different name")
	if err != nil {
		t.Fatalf("GetOrCreateOrganization: %v", err)
	}
	if first != second {
		t.Errorf("same org id resolved differently: %s vs %s", first, second)
	}
}

func TestMemStoreAssemblyScoping(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	org1, _ := st.GetOrCreateOrganization(ctx, "org-1", "org-1")
	org2, _ := st.GetOrCreateOrganization(ctx, "org-2", "org-2")

	a1, _ := st.GetOrCreateAssembly(ctx, org1, "MAIN")
	a2, _ := st.GetOrCreateAssembly(ctx, org2, "MAIN")
	if a1 == a2 {
		t.Error("same assembly name in different orgs must not collide")
	}

	// org归属校验
	if _, err := st.GetAssemblyByID(ctx, org2, a1); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-org lookup should fail with ErrNotFound, got %v", err)
	}
	got, err := st.GetAssemblyByID(ctx, org1, a1)
	if err != nil {
		t.Fatalf("GetAssemblyByID: %v", err)
	}
	if got != a1 {
		t.Errorf("got %s, want %s", got, a1)
	}
}

func TestMemStoreUpsertSnapshotItem(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	org, _ := st.GetOrCreateOrganization(ctx, "org-1", "org-1")
	asm, _ := st.GetOrCreateAssembly(ctx, org, "MAIN")
	part, _ := st.CreatePart(ctx, org, "CAP-100nF", entity.AttrMap{})
	item, _ := st.CreateBOMItem(ctx, asm, part, entity.AttrMap{})
	snap, _ := st.CreateSnapshot(ctx, org, asm, "csv", nil)

	q1, q2 := 5.0, 10.0
	if err := st.UpsertSnapshotItem(ctx, snap, item, &q1, entity.AttrMap{}, "aaa"); err != nil {
		t.Fatalf("UpsertSnapshotItem: %v", err)
	}
	// 同键重复写入应覆盖而不是新增
	if err := st.UpsertSnapshotItem(ctx, snap, item, &q2, entity.AttrMap{}, "bbb"); err != nil {
		t.Fatalf("UpsertSnapshotItem: %v", err)
	}

	items, err := st.GetSnapshotItems(ctx, snap)
	if err != nil {
		t.Fatalf("GetSnapshotItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if *items[0].Quantity != 10 || items[0].Checksum != "bbb" {
		t.Errorf("upsert did not overwrite: %+v", items[0])
	}
}

func TestMemStoreGetBOMItemDetails(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	org, _ := st.GetOrCreateOrganization(ctx, "org-1", "org-1")
	asm, _ := st.GetOrCreateAssembly(ctx, org, "MAIN")
	part, _ := st.CreatePart(ctx, org, "CAP-100nF", entity.AttrMap{"value": entity.String("100nF")})
	item, _ := st.CreateBOMItem(ctx, asm, part, entity.AttrMap{"placement": entity.String("top")})

	details, err := st.GetBOMItemDetails(ctx, []string{item, "missing"})
	if err != nil {
		t.Fatalf("GetBOMItemDetails: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("got %d details, want 1", len(details))
	}
	d := details[item]
	if d.PartName != "CAP-100nF" || d.AssemblyName != "MAIN" {
		t.Errorf("details incomplete: %+v", d)
	}
	if d.Context["placement"].Str != "top" {
		t.Errorf("context lost: %+v", d.Context)
	}
}

func TestMemStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()
	org, _ := st.GetOrCreateOrganization(ctx, "org-1", "org-1")

	errBoom := errors.New("boom")
	err := st.InTransaction(ctx, func(tx SemanticStore) error {
		if _, err := tx.CreatePart(ctx, org, "GHOST-PART", entity.AttrMap{}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want errBoom", err)
	}

	matches, err := st.FindSimilarParts(ctx, org, "GHOST-PART", entity.AttrMap{}, 0.8)
	if err != nil {
		t.Fatalf("FindSimilarParts: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("rolled-back part still visible: %+v", matches)
	}
}

func TestMemStoreTransactionCommit(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()
	org, _ := st.GetOrCreateOrganization(ctx, "org-1", "org-1")

	var partID string
	err := st.InTransaction(ctx, func(tx SemanticStore) error {
		var err error
		partID, err = tx.CreatePart(ctx, org, "REAL-PART", entity.AttrMap{})
		return err
	})
	if err != nil {
		t.Fatalf("InTransaction: %v", err)
	}

	matches, _ := st.FindSimilarParts(ctx, org, "REAL-PART", entity.AttrMap{}, 0.8)
	if len(matches) != 1 || matches[0].ID != partID {
		t.Errorf("committed part not visible: %+v", matches)
	}
}
