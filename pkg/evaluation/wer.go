package evaluation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Measures 词级对齐的统计结果
type Measures struct {
	WER           float64 `json:"wer"`
	Substitutions int     `json:"substitutions"`
	Deletions     int     `json:"deletions"`
	Insertions    int     `json:"insertions"`
	Hits          int     `json:"hits"`
	RefWords      int     `json:"reference_words"`
	HypWords      int     `json:"hypothesis_words"`
}

var folder = cases.Fold()

// Normalize NFKC 规范化、大小写折叠、去掉标点后切分为单词
func Normalize(text string) []string {
	text = folder.String(norm.NFKC.String(text))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			// 单词内部的撇号保留，例如 don't
			if r == '\'' || r == '’' {
				return r
			}
			return ' '
		}
		return r
	}, text)

	fields := strings.Fields(cleaned)
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'’")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// WER 词错误率 = 编辑距离 / 参考文本词数，范围 [0, ∞)
// 参考文本为空时：假设也为空返回 0，否则返回 1
func WER(reference, hypothesis string) float64 {
	return Compare(reference, hypothesis).WER
}

// Compare 计算编辑距离并回溯出替换、删除、插入数
func Compare(reference, hypothesis string) Measures {
	ref := Normalize(reference)
	hyp := Normalize(hypothesis)
	m := Measures{RefWords: len(ref), HypWords: len(hyp)}

	if len(ref) == 0 {
		m.Insertions = len(hyp)
		if len(hyp) > 0 {
			m.WER = 1
		}
		return m
	}

	rows, cols := len(ref)+1, len(hyp)+1
	dist := make([][]int, rows)
	for i := range dist {
		dist[i] = make([]int, cols)
		dist[i][0] = i
	}
	for j := 0; j < cols; j++ {
		dist[0][j] = j
	}

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			dist[i][j] = min(dist[i-1][j]+1, dist[i][j-1]+1, dist[i-1][j-1]+cost)
		}
	}

	i, j := len(ref), len(hyp)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1] && dist[i][j] == dist[i-1][j-1]:
			m.Hits++
			i, j = i-1, j-1
		case i > 0 && j > 0 && dist[i][j] == dist[i-1][j-1]+1:
			m.Substitutions++
			i, j = i-1, j-1
		case i > 0 && dist[i][j] == dist[i-1][j]+1:
			m.Deletions++
			i--
		default:
			m.Insertions++
			j--
		}
	}

	m.WER = float64(dist[len(ref)][len(hyp)]) / float64(len(ref))
	return m
}
