package diff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/erozee1/bomkit/internal/bom/entity"
	"github.com/erozee1/bomkit/internal/bom/ingest"
	"github.com/erozee1/bomkit/internal/bom/store"
)

// Engine 快照对比引擎
type Engine struct {
	store  store.SemanticStore
	logger *zap.Logger
}

// NewEngine 创建对比引擎
func NewEngine(st store.SemanticStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, logger: logger}
}

// Diff 对比两个快照，A为基线，B为目标。
// 四级匹配：1) 同用法ID直接配对；2) 语义键（零件+数量+语义属性）配对，
// 吸收实体识别抖动导致的用法ID漂移；3) 仅按零件配对，捕获同零件换用法；
// 4) 剩余的判增删。全程按排序后的ID迭代，结果确定。
func (e *Engine) Diff(ctx context.Context, snapshotAID, snapshotBID string) (*DiffResult, error) {
	stateA, err := e.loadState(ctx, snapshotAID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", snapshotAID, err)
	}
	stateB, err := e.loadState(ctx, snapshotBID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", snapshotBID, err)
	}

	result := &DiffResult{
		SnapshotAID:   snapshotAID,
		SnapshotBID:   snapshotBID,
		AddedItems:    []ItemState{},
		RemovedItems:  []ItemState{},
		ModifiedItems: []ModifiedItem{},
		ItemParts:     map[string]string{},
	}
	for id, st := range stateA {
		result.ItemParts[id] = st.PartID
	}
	for id, st := range stateB {
		result.ItemParts[id] = st.PartID
	}

	matchedA := make(map[string]bool)
	matchedB := make(map[string]bool)
	var pairs [][2]*ItemState

	// 一级：同用法ID
	for _, id := range sortedIDs(stateB) {
		if a, ok := stateA[id]; ok {
			pairs = append(pairs, [2]*ItemState{a, stateB[id]})
			matchedA[id] = true
			matchedB[id] = true
		}
	}

	// 二级：语义键。同键组内优先配checksum相等的对，剩余按ID序配对。
	pairs = append(pairs, e.matchBySemanticKey(stateA, stateB, matchedA, matchedB)...)

	// 三级：仅按零件配对
	pairs = append(pairs, matchByGroup(stateA, stateB, matchedA, matchedB, func(st *ItemState) string {
		return st.PartID
	})...)

	for _, p := range pairs {
		a, b := p[0], p[1]
		if a.Checksum != "" && a.Checksum == b.Checksum {
			result.UnchangedCount++
			continue
		}
		changes := diffItem(a, b)
		if len(changes) == 0 {
			result.UnchangedCount++
			continue
		}
		result.ModifiedItems = append(result.ModifiedItems, ModifiedItem{
			BOMItemID:     b.BOMItemID,
			MatchedFromID: a.BOMItemID,
			PartID:        b.PartID,
			Changes:       changes,
		})
	}

	// 四级：剩余判增删
	for _, id := range sortedIDs(stateA) {
		if !matchedA[id] {
			result.RemovedItems = append(result.RemovedItems, *stateA[id])
		}
	}
	for _, id := range sortedIDs(stateB) {
		if !matchedB[id] {
			result.AddedItems = append(result.AddedItems, *stateB[id])
		}
	}

	e.logger.Debug("snapshots diffed",
		zap.String("snapshot_a", snapshotAID),
		zap.String("snapshot_b", snapshotBID),
		zap.Int("added", len(result.AddedItems)),
		zap.Int("removed", len(result.RemovedItems)),
		zap.Int("modified", len(result.ModifiedItems)),
		zap.Int("unchanged", result.UnchangedCount))
	return result, nil
}

// loadState 加载快照行项并补全part_id
func (e *Engine) loadState(ctx context.Context, snapshotID string) (map[string]*ItemState, error) {
	if _, err := e.store.GetSnapshotInfo(ctx, snapshotID); err != nil {
		return nil, err
	}
	records, err := e.store.GetSnapshotItems(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.BOMItemID)
	}
	details, err := e.store.GetBOMItemDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	state := make(map[string]*ItemState, len(records))
	for _, r := range records {
		st := &ItemState{
			BOMItemID:  r.BOMItemID,
			Quantity:   r.Quantity,
			Attributes: r.Attributes,
			Checksum:   r.Checksum,
		}
		if d, ok := details[r.BOMItemID]; ok {
			st.PartID = d.PartID
		}
		state[r.BOMItemID] = st
	}
	return state, nil
}

// matchBySemanticKey 二级匹配：组内先配checksum相等的对
func (e *Engine) matchBySemanticKey(stateA, stateB map[string]*ItemState, matchedA, matchedB map[string]bool) [][2]*ItemState {
	groupA := groupBy(stateA, matchedA, semanticKey)
	groupB := groupBy(stateB, matchedB, semanticKey)

	var pairs [][2]*ItemState
	for _, key := range sortedGroupKeys(groupB) {
		listA, ok := groupA[key]
		if !ok {
			continue
		}
		listB := groupB[key]

		// 先配checksum完全相等的对
		for _, b := range listB {
			if matchedB[b.BOMItemID] {
				continue
			}
			for _, a := range listA {
				if matchedA[a.BOMItemID] || a.Checksum != b.Checksum {
					continue
				}
				pairs = append(pairs, [2]*ItemState{a, b})
				matchedA[a.BOMItemID] = true
				matchedB[b.BOMItemID] = true
				break
			}
		}
		// 剩余按ID序配对
		for _, b := range listB {
			if matchedB[b.BOMItemID] {
				continue
			}
			for _, a := range listA {
				if matchedA[a.BOMItemID] {
					continue
				}
				pairs = append(pairs, [2]*ItemState{a, b})
				matchedA[a.BOMItemID] = true
				matchedB[b.BOMItemID] = true
				break
			}
		}
	}
	return pairs
}

// matchByGroup 按给定键分组后逐对匹配
func matchByGroup(stateA, stateB map[string]*ItemState, matchedA, matchedB map[string]bool, keyFn func(*ItemState) string) [][2]*ItemState {
	groupA := groupBy(stateA, matchedA, keyFn)
	groupB := groupBy(stateB, matchedB, keyFn)

	var pairs [][2]*ItemState
	for _, key := range sortedGroupKeys(groupB) {
		if key == "" {
			continue
		}
		listA, ok := groupA[key]
		if !ok {
			continue
		}
		for _, b := range groupB[key] {
			if matchedB[b.BOMItemID] {
				continue
			}
			for _, a := range listA {
				if matchedA[a.BOMItemID] {
					continue
				}
				pairs = append(pairs, [2]*ItemState{a, b})
				matchedA[a.BOMItemID] = true
				matchedB[b.BOMItemID] = true
				break
			}
		}
	}
	return pairs
}

// diffItem 字段级差异：数量在前，属性按键字典序，输出顺序确定
func diffItem(a, b *ItemState) []FieldChange {
	var changes []FieldChange

	if !quantityEqual(a.Quantity, b.Quantity) {
		changes = append(changes, FieldChange{
			Type:  FieldQuantityChanged,
			Field: "quantity",
			From:  quantityValue(a.Quantity),
			To:    quantityValue(b.Quantity),
		})
	}

	semA := canonicalSemantic(a.Attributes)
	semB := canonicalSemantic(b.Attributes)
	union := make(entity.AttrMap, len(semA)+len(semB))
	for k, v := range semA {
		union[k] = v
	}
	for k, v := range semB {
		union[k] = v
	}

	for _, k := range union.SortedKeys() {
		va, okA := semA[k]
		vb, okB := semB[k]
		switch {
		case !okA:
			changes = append(changes, FieldChange{Type: FieldAttributeAdded, Field: k, From: entity.Null(), To: vb})
		case !okB:
			changes = append(changes, FieldChange{Type: FieldAttributeRemoved, Field: k, From: va, To: entity.Null()})
		case !va.Equal(vb):
			changes = append(changes, FieldChange{Type: FieldAttributeChanged, Field: k, From: va, To: vb})
		}
	}
	return changes
}

// semanticKeyPayload 与checksum同构的规范载荷，多了part_id
type semanticKeyPayload struct {
	Attributes entity.AttrMap `json:"attributes"`
	PartID     string         `json:"part_id"`
	Quantity   *float64       `json:"quantity"`
}

// semanticKey 行项语义键：零件+数量+语义属性的规范JSON哈希
func semanticKey(st *ItemState) string {
	data, err := json.Marshal(semanticKeyPayload{
		Attributes: canonicalSemantic(st.Attributes),
		PartID:     st.PartID,
		Quantity:   st.Quantity,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalSemantic 过滤非语义键并做值规范化
func canonicalSemantic(attrs entity.AttrMap) entity.AttrMap {
	semantic := ingest.FilterSemantic(attrs)
	out := make(entity.AttrMap, len(semantic))
	for k, v := range semantic {
		out[k] = v.Canonical()
	}
	return out
}

func quantityEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func quantityValue(q *float64) entity.Value {
	if q == nil {
		return entity.Null()
	}
	return entity.Number(*q)
}

func sortedIDs(state map[string]*ItemState) []string {
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// groupBy 按键分组未匹配行项，组内按ID字典序
func groupBy(state map[string]*ItemState, matched map[string]bool, keyFn func(*ItemState) string) map[string][]*ItemState {
	groups := make(map[string][]*ItemState)
	for _, id := range sortedIDs(state) {
		if matched[id] {
			continue
		}
		st := state[id]
		groups[keyFn(st)] = append(groups[keyFn(st)], st)
	}
	return groups
}

func sortedGroupKeys(groups map[string][]*ItemState) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
