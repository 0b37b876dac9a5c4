// Package similarity 提供实体识别用的模糊匹配打分。
// 字符串相似度用归一化编辑距离，属性映射相似度按键并集逐键比对。
package similarity

import (
	"strings"

	"github.com/erozee1/bomkit/internal/bom/entity"
)

// Ratio 归一化字符串相似度，0.0（完全不同）到1.0（相同），大小写不敏感。
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return 1.0 - float64(levenshtein(a, b))/float64(longer)
}

// MapSimilarity 属性映射相似度：取键并集，双方都缺的键跳过；
// 非字符串值精确比对，字符串近似时按相似度打8折给部分分。
func MapSimilarity(a, b entity.AttrMap) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	var matches, total float64
	for k := range keys {
		va, okA := a[k]
		vb, okB := b[k]
		nullA := !okA || va.Kind == entity.KindNull
		nullB := !okB || vb.Kind == entity.KindNull
		if nullA && nullB {
			continue
		}
		total++
		if nullA || nullB {
			continue
		}
		if va.Kind == entity.KindString && vb.Kind == entity.KindString {
			if strings.EqualFold(va.Str, vb.Str) {
				matches++
			} else {
				matches += Ratio(va.Str, vb.Str) * 0.8
			}
			continue
		}
		if va.Equal(vb) {
			matches++
		}
	}
	if total == 0 {
		return 0.0
	}
	return matches / total
}

// PartScore 零件综合相似度：名称占0.6，属性占0.4。
// 名称信号量大（权重高），属性做辅助佐证。
func PartScore(nameA, nameB string, attrsA, attrsB entity.AttrMap) float64 {
	return 0.6*Ratio(nameA, nameB) + 0.4*MapSimilarity(attrsA, attrsB)
}

// levenshtein 两行滚动数组的编辑距离
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				curr[i] = prev[i-1]
			} else {
				curr[i] = 1 + min3(prev[i-1], prev[i], curr[i-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
