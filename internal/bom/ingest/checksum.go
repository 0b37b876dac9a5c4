package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

// NonSemanticAttributeKeys 出处元数据键，不参与checksum和语义比较。
// 同一份BOM换个行号重传不应被判为变化。
var NonSemanticAttributeKeys = map[string]struct{}{
	"row_index":           {},
	"source_row":          {},
	"raw_row":             {},
	"normalized_refdes":   {},
	"original_refdes":     {},
	"csv_row_number":      {},
	"import_timestamp":    {},
	"source_file":         {},
}

// FilterSemantic 剔除非语义键，返回新map
func FilterSemantic(attrs entity.AttrMap) entity.AttrMap {
	out := make(entity.AttrMap, len(attrs))
	for k, v := range attrs {
		if _, ok := NonSemanticAttributeKeys[k]; ok {
			continue
		}
		out[k] = v
	}
	return out
}

// checksumPayload 规范化序列化载荷。encoding/json按键字典序输出map，
// 配合Value.Canonical的空白折叠，保证字节级确定性。
type checksumPayload struct {
	Attributes entity.AttrMap `json:"attributes"`
	Quantity   *float64       `json:"quantity"`
}

// Checksum 快照行项的语义校验和：对数量+语义属性的规范JSON取SHA-256。
// 两个行项checksum相等当且仅当语义内容相同。
func Checksum(quantity *float64, attrs entity.AttrMap) (string, error) {
	semantic := FilterSemantic(attrs)
	canonical := make(entity.AttrMap, len(semantic))
	for k, v := range semantic {
		canonical[k] = v.Canonical()
	}
	data, err := json.Marshal(checksumPayload{
		Attributes: canonical,
		Quantity:   quantity,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
