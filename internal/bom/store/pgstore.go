package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erozee1/bomkit/internal/bom/entity"
	"github.com/erozee1/bomkit/internal/bom/similarity"
)

// PGStore SemanticStore的Postgres实现
type PGStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPGStore 创建Postgres存储
func NewPGStore(db *gorm.DB, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{db: db, logger: logger}
}

// DB 暴露底层连接（迁移用）
func (s *PGStore) DB() *gorm.DB {
	return s.db
}

// GetOrCreateOrganization 解析或懒创建组织
func (s *PGStore) GetOrCreateOrganization(ctx context.Context, orgID, name string) (string, error) {
	var org entity.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error
	if err == nil {
		return org.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	org = entity.Organization{
		ID:        orgID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&org).Error; err != nil {
		return "", err
	}
	return org.ID, nil
}

// GetAssemblyByID 按ID取装配体并校验归属
func (s *PGStore) GetAssemblyByID(ctx context.Context, orgID, assemblyID string) (string, error) {
	var asm entity.Assembly
	err := s.db.WithContext(ctx).First(&asm, "id = ? AND org_id = ?", assemblyID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return asm.ID, nil
}

// GetOrCreateAssembly 按名称取或建装配体
func (s *PGStore) GetOrCreateAssembly(ctx context.Context, orgID, name string) (string, error) {
	var asm entity.Assembly
	err := s.db.WithContext(ctx).First(&asm, "org_id = ? AND name = ?", orgID, name).Error
	if err == nil {
		return asm.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	now := time.Now()
	asm = entity.Assembly{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&asm).Error; err != nil {
		return "", err
	}
	return asm.ID, nil
}

// FindSimilarParts 在org范围内做综合相似度匹配。
// 候选集在Go侧打分：org内零件量级可控，且编辑距离类打分SQL表达不划算。
func (s *PGStore) FindSimilarParts(ctx context.Context, orgID, name string, attrs entity.AttrMap, threshold float64) ([]Match, error) {
	var parts []entity.Part
	if err := s.db.WithContext(ctx).Where("org_id = ?", orgID).Find(&parts).Error; err != nil {
		return nil, err
	}

	var matches []Match
	for _, p := range parts {
		score := similarity.PartScore(name, p.Name, attrs, p.Attributes)
		if score >= threshold {
			matches = append(matches, Match{ID: p.ID, Score: score})
		}
	}
	sortMatches(matches)
	return matches, nil
}

// CreatePart 新建零件
func (s *PGStore) CreatePart(ctx context.Context, orgID, name string, attrs entity.AttrMap) (string, error) {
	part := entity.Part{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		Name:       name,
		Attributes: attrs,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&part).Error; err != nil {
		return "", err
	}
	return part.ID, nil
}

// FindSimilarBOMItems 在(assembly, part)范围内按上下文相似度匹配用法
func (s *PGStore) FindSimilarBOMItems(ctx context.Context, assemblyID, partID string, usageCtx entity.AttrMap, threshold float64) ([]Match, error) {
	var items []entity.BOMItem
	err := s.db.WithContext(ctx).
		Where("assembly_id = ? AND part_id = ?", assemblyID, partID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, it := range items {
		score := similarity.MapSimilarity(usageCtx, it.Context)
		if score >= threshold {
			matches = append(matches, Match{ID: it.ID, Score: score})
		}
	}
	sortMatches(matches)
	return matches, nil
}

// CreateBOMItem 新建用法
func (s *PGStore) CreateBOMItem(ctx context.Context, assemblyID, partID string, usageCtx entity.AttrMap) (string, error) {
	now := time.Now()
	item := entity.BOMItem{
		ID:         uuid.New().String(),
		AssemblyID: assemblyID,
		PartID:     partID,
		Context:    usageCtx,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return "", err
	}
	return item.ID, nil
}

// CreateSnapshot 新建不可变快照
func (s *PGStore) CreateSnapshot(ctx context.Context, orgID, assemblyID, source string, parentSnapshotID *string) (string, error) {
	snap := entity.Snapshot{
		ID:               uuid.New().String(),
		OrgID:            orgID,
		AssemblyID:       assemblyID,
		Source:           source,
		ParentSnapshotID: parentSnapshotID,
		CreatedAt:        time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		return "", err
	}
	return snap.ID, nil
}

// UpsertSnapshotItem 按(snapshot_id, bom_item_id)幂等写入：
// 聚合后同一用法可能重复出现，ON CONFLICT覆盖而不是报唯一约束冲突。
func (s *PGStore) UpsertSnapshotItem(ctx context.Context, snapshotID, bomItemID string, quantity *float64, attrs entity.AttrMap, checksum string) error {
	item := entity.SnapshotItem{
		ID:         uuid.New().String(),
		SnapshotID: snapshotID,
		BOMItemID:  bomItemID,
		Quantity:   quantity,
		Attributes: attrs,
		Checksum:   checksum,
		CreatedAt:  time.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "snapshot_id"}, {Name: "bom_item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "attributes", "checksum"}),
		}).
		Create(&item).Error
}

// GetSnapshotItems 批量取快照行项
func (s *PGStore) GetSnapshotItems(ctx context.Context, snapshotID string) ([]ItemRecord, error) {
	var items []entity.SnapshotItem
	err := s.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	records := make([]ItemRecord, 0, len(items))
	for _, it := range items {
		attrs := it.Attributes
		if attrs == nil {
			attrs = entity.AttrMap{}
		}
		records = append(records, ItemRecord{
			BOMItemID:  it.BOMItemID,
			Quantity:   it.Quantity,
			Attributes: attrs,
			Checksum:   it.Checksum,
		})
	}
	return records, nil
}

// GetBOMItemDetails 批量取用法详情（含零件和装配体）
func (s *PGStore) GetBOMItemDetails(ctx context.Context, bomItemIDs []string) (map[string]ItemDetails, error) {
	result := make(map[string]ItemDetails, len(bomItemIDs))
	if len(bomItemIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		entity.BOMItem
		AssemblyName   string         `gorm:"column:assembly_name"`
		PartName       string         `gorm:"column:part_name"`
		PartAttributes entity.AttrMap `gorm:"column:part_attributes"`
	}
	err := s.db.WithContext(ctx).Model(&entity.BOMItem{}).
		Joins("LEFT JOIN assemblies ON assemblies.id = bom_items.assembly_id").
		Joins("LEFT JOIN parts ON parts.id = bom_items.part_id").
		Select("bom_items.*, assemblies.name AS assembly_name, parts.name AS part_name, parts.attributes AS part_attributes").
		Where("bom_items.id IN ?", bomItemIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		result[r.ID] = ItemDetails{
			BOMItemID:      r.ID,
			AssemblyID:     r.AssemblyID,
			AssemblyName:   r.AssemblyName,
			PartID:         r.PartID,
			PartName:       r.PartName,
			PartAttributes: r.PartAttributes,
			Context:        r.Context,
		}
	}
	return result, nil
}

// GetSnapshotInfo 取快照元数据
func (s *PGStore) GetSnapshotInfo(ctx context.Context, snapshotID string) (*SnapshotInfo, error) {
	var snap entity.Snapshot
	err := s.db.WithContext(ctx).First(&snap, "id = ?", snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var asm entity.Assembly
	if err := s.db.WithContext(ctx).First(&asm, "id = ?", snap.AssemblyID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return &SnapshotInfo{
		SnapshotID:       snap.ID,
		AssemblyID:       snap.AssemblyID,
		AssemblyName:     asm.Name,
		OrgID:            snap.OrgID,
		Source:           snap.Source,
		CreatedAt:        snap.CreatedAt,
		ParentSnapshotID: snap.ParentSnapshotID,
	}, nil
}

// InTransaction gorm事务包装，回调出错自动回滚
func (s *PGStore) InTransaction(ctx context.Context, fn func(tx SemanticStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PGStore{db: tx, logger: s.logger})
	})
}

// sortMatches 分数降序，同分按ID保证稳定输出
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}
