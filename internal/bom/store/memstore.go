package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erozee1/bomkit/internal/bom/entity"
	"github.com/erozee1/bomkit/internal/bom/similarity"
)

// MemStore SemanticStore的内存实现，测试和本地开发用。
// 所有方法持锁，事务用复制状态、失败恢复的方式模拟回滚。
type MemStore struct {
	mu    sync.Mutex
	state *memState
	inTx  bool
}

type memState struct {
	orgs          map[string]*entity.Organization
	assemblies    map[string]*entity.Assembly
	parts         map[string]*entity.Part
	bomItems      map[string]*entity.BOMItem
	snapshots     map[string]*entity.Snapshot
	snapshotItems map[string]*entity.SnapshotItem // key: snapshotID + "/" + bomItemID
}

func newMemState() *memState {
	return &memState{
		orgs:          make(map[string]*entity.Organization),
		assemblies:    make(map[string]*entity.Assembly),
		parts:         make(map[string]*entity.Part),
		bomItems:      make(map[string]*entity.BOMItem),
		snapshots:     make(map[string]*entity.Snapshot),
		snapshotItems: make(map[string]*entity.SnapshotItem),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.orgs {
		c := *v
		out.orgs[k] = &c
	}
	for k, v := range s.assemblies {
		c := *v
		out.assemblies[k] = &c
	}
	for k, v := range s.parts {
		c := *v
		c.Attributes = v.Attributes.Clone()
		out.parts[k] = &c
	}
	for k, v := range s.bomItems {
		c := *v
		c.Context = v.Context.Clone()
		out.bomItems[k] = &c
	}
	for k, v := range s.snapshots {
		c := *v
		out.snapshots[k] = &c
	}
	for k, v := range s.snapshotItems {
		c := *v
		c.Attributes = v.Attributes.Clone()
		out.snapshotItems[k] = &c
	}
	return out
}

// NewMemStore 创建内存存储
func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

func (s *MemStore) lock() func() {
	if s.inTx {
		// 事务内重入：外层InTransaction已持锁
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// GetOrCreateOrganization 解析或懒创建组织
func (s *MemStore) GetOrCreateOrganization(ctx context.Context, orgID, name string) (string, error) {
	defer s.lock()()
	if org, ok := s.state.orgs[orgID]; ok {
		return org.ID, nil
	}
	s.state.orgs[orgID] = &entity.Organization{
		ID:        orgID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	return orgID, nil
}

// GetAssemblyByID 按ID取装配体并校验归属
func (s *MemStore) GetAssemblyByID(ctx context.Context, orgID, assemblyID string) (string, error) {
	defer s.lock()()
	asm, ok := s.state.assemblies[assemblyID]
	if !ok || asm.OrgID != orgID {
		return "", ErrNotFound
	}
	return asm.ID, nil
}

// GetOrCreateAssembly 按名称取或建装配体
func (s *MemStore) GetOrCreateAssembly(ctx context.Context, orgID, name string) (string, error) {
	defer s.lock()()
	for _, asm := range s.state.assemblies {
		if asm.OrgID == orgID && asm.Name == name {
			return asm.ID, nil
		}
	}
	now := time.Now()
	id := uuid.New().String()
	s.state.assemblies[id] = &entity.Assembly{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

// FindSimilarParts 在org范围内做综合相似度匹配
func (s *MemStore) FindSimilarParts(ctx context.Context, orgID, name string, attrs entity.AttrMap, threshold float64) ([]Match, error) {
	defer s.lock()()
	var matches []Match
	for _, p := range s.state.parts {
		if p.OrgID != orgID {
			continue
		}
		score := similarity.PartScore(name, p.Name, attrs, p.Attributes)
		if score >= threshold {
			matches = append(matches, Match{ID: p.ID, Score: score})
		}
	}
	sortMatches(matches)
	return matches, nil
}

// CreatePart 新建零件
func (s *MemStore) CreatePart(ctx context.Context, orgID, name string, attrs entity.AttrMap) (string, error) {
	defer s.lock()()
	id := uuid.New().String()
	s.state.parts[id] = &entity.Part{
		ID:         id,
		OrgID:      orgID,
		Name:       name,
		Attributes: attrs.Clone(),
		CreatedAt:  time.Now(),
	}
	return id, nil
}

// FindSimilarBOMItems 在(assembly, part)范围内按上下文相似度匹配用法
func (s *MemStore) FindSimilarBOMItems(ctx context.Context, assemblyID, partID string, usageCtx entity.AttrMap, threshold float64) ([]Match, error) {
	defer s.lock()()
	var matches []Match
	for _, it := range s.state.bomItems {
		if it.AssemblyID != assemblyID || it.PartID != partID {
			continue
		}
		score := similarity.MapSimilarity(usageCtx, it.Context)
		if score >= threshold {
			matches = append(matches, Match{ID: it.ID, Score: score})
		}
	}
	sortMatches(matches)
	return matches, nil
}

// CreateBOMItem 新建用法
func (s *MemStore) CreateBOMItem(ctx context.Context, assemblyID, partID string, usageCtx entity.AttrMap) (string, error) {
	defer s.lock()()
	now := time.Now()
	id := uuid.New().String()
	s.state.bomItems[id] = &entity.BOMItem{
		ID:         id,
		AssemblyID: assemblyID,
		PartID:     partID,
		Context:    usageCtx.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

// CreateSnapshot 新建不可变快照
func (s *MemStore) CreateSnapshot(ctx context.Context, orgID, assemblyID, source string, parentSnapshotID *string) (string, error) {
	defer s.lock()()
	id := uuid.New().String()
	s.state.snapshots[id] = &entity.Snapshot{
		ID:               id,
		OrgID:            orgID,
		AssemblyID:       assemblyID,
		Source:           source,
		ParentSnapshotID: parentSnapshotID,
		CreatedAt:        time.Now(),
	}
	return id, nil
}

// UpsertSnapshotItem 按(snapshot_id, bom_item_id)幂等写入
func (s *MemStore) UpsertSnapshotItem(ctx context.Context, snapshotID, bomItemID string, quantity *float64, attrs entity.AttrMap, checksum string) error {
	defer s.lock()()
	key := snapshotID + "/" + bomItemID
	if existing, ok := s.state.snapshotItems[key]; ok {
		existing.Quantity = quantity
		existing.Attributes = attrs.Clone()
		existing.Checksum = checksum
		return nil
	}
	s.state.snapshotItems[key] = &entity.SnapshotItem{
		ID:         uuid.New().String(),
		SnapshotID: snapshotID,
		BOMItemID:  bomItemID,
		Quantity:   quantity,
		Attributes: attrs.Clone(),
		Checksum:   checksum,
		CreatedAt:  time.Now(),
	}
	return nil
}

// GetSnapshotItems 批量取快照行项
func (s *MemStore) GetSnapshotItems(ctx context.Context, snapshotID string) ([]ItemRecord, error) {
	defer s.lock()()
	records := []ItemRecord{}
	for _, it := range s.state.snapshotItems {
		if it.SnapshotID != snapshotID {
			continue
		}
		attrs := it.Attributes
		if attrs == nil {
			attrs = entity.AttrMap{}
		}
		records = append(records, ItemRecord{
			BOMItemID:  it.BOMItemID,
			Quantity:   it.Quantity,
			Attributes: attrs.Clone(),
			Checksum:   it.Checksum,
		})
	}
	return records, nil
}

// GetBOMItemDetails 批量取用法详情
func (s *MemStore) GetBOMItemDetails(ctx context.Context, bomItemIDs []string) (map[string]ItemDetails, error) {
	defer s.lock()()
	result := make(map[string]ItemDetails, len(bomItemIDs))
	for _, id := range bomItemIDs {
		it, ok := s.state.bomItems[id]
		if !ok {
			continue
		}
		d := ItemDetails{
			BOMItemID:  it.ID,
			AssemblyID: it.AssemblyID,
			PartID:     it.PartID,
			Context:    it.Context.Clone(),
		}
		if asm, ok := s.state.assemblies[it.AssemblyID]; ok {
			d.AssemblyName = asm.Name
		}
		if p, ok := s.state.parts[it.PartID]; ok {
			d.PartName = p.Name
			d.PartAttributes = p.Attributes.Clone()
		}
		result[id] = d
	}
	return result, nil
}

// GetSnapshotInfo 取快照元数据
func (s *MemStore) GetSnapshotInfo(ctx context.Context, snapshotID string) (*SnapshotInfo, error) {
	defer s.lock()()
	snap, ok := s.state.snapshots[snapshotID]
	if !ok {
		return nil, ErrNotFound
	}
	info := &SnapshotInfo{
		SnapshotID:       snap.ID,
		AssemblyID:       snap.AssemblyID,
		OrgID:            snap.OrgID,
		Source:           snap.Source,
		CreatedAt:        snap.CreatedAt,
		ParentSnapshotID: snap.ParentSnapshotID,
	}
	if asm, ok := s.state.assemblies[snap.AssemblyID]; ok {
		info.AssemblyName = asm.Name
	}
	return info, nil
}

// InTransaction 复制状态执行，fn出错则丢弃副本恢复原状态
func (s *MemStore) InTransaction(ctx context.Context, fn func(tx SemanticStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.state.clone()
	tx := &MemStore{state: s.state, inTx: true}
	if err := fn(tx); err != nil {
		s.state = backup
		return err
	}
	return nil
}
