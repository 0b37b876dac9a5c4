package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValueKind 属性值类型标签
type ValueKind int8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
)

// Value 属性值（string | number | null 三选一）。
// 上游数据是动态的dict，这里用显式tagged union保留schema灵活性。
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// Null 空值
func Null() Value { return Value{Kind: KindNull} }

// String 字符串值
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number 数值
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// IsEmpty null或空字符串
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == ""
	}
	return false
}

// Equal 严格相等（类型和内容都一致）
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	}
	return true
}

// Canonical 规范化：折叠字符串内连续空白（checksum前调用，避免格式差异引起假阳性）
func (v Value) Canonical() Value {
	if v.Kind != KindString {
		return v
	}
	return String(strings.Join(strings.Fields(v.Str), " "))
}

// Display 人类可读形式（用于摘要和日志）
func (v Value) Display() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		b, _ := json.Marshal(v.Num)
		return string(b)
	}
	return "null"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*v = Null()
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*v = String(str)
		return nil
	case s == "true" || s == "false":
		// 源数据偶尔夹杂bool，统一降级为字符串
		*v = String(s)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err == nil {
			*v = Number(n)
			return nil
		}
		// 数组/对象原样保留为字符串
		*v = String(s)
		return nil
	}
}

// AttrMap jsonb属性映射
type AttrMap map[string]Value

// Value gorm jsonb序列化
func (m AttrMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Scan gorm jsonb反序列化
func (m *AttrMap) Scan(src interface{}) error {
	if src == nil {
		*m = AttrMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
	if len(data) == 0 {
		*m = AttrMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Clone 浅拷贝
func (m AttrMap) Clone() AttrMap {
	out := make(AttrMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SortedKeys 字典序键列表
func (m AttrMap) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
