package diarize

import (
	"math"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// AttributeText 按时间重叠把带时间戳的转写段落分配给说话人片段
// 每段文本归入重叠最多的说话人，没有重叠时归入中点最近的说话人
// 没有分到文本的说话人片段会被丢弃；timed 为空时原样返回
func AttributeText(turns []models.Segment, timed []models.Segment) []models.Segment {
	if len(turns) == 0 || len(timed) == 0 {
		return turns
	}

	texts := make([][]string, len(turns))
	for _, piece := range timed {
		text := strings.TrimSpace(piece.Text)
		if text == "" {
			continue
		}
		idx := bestTurn(turns, piece)
		texts[idx] = append(texts[idx], text)
	}

	out := make([]models.Segment, 0, len(turns))
	for i, turn := range turns {
		if len(texts[i]) == 0 {
			continue
		}
		turn.Text = strings.Join(texts[i], " ")
		out = append(out, turn)
	}
	if len(out) == 0 {
		return turns
	}
	return out
}

func bestTurn(turns []models.Segment, piece models.Segment) int {
	best, bestOverlap := -1, 0.0
	for i, turn := range turns {
		overlap := math.Min(turn.End, piece.End) - math.Max(turn.Start, piece.Start)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	if best >= 0 {
		return best
	}

	mid := (piece.Start + piece.End) / 2
	best, bestDist := 0, math.Inf(1)
	for i, turn := range turns {
		dist := math.Abs((turn.Start+turn.End)/2 - mid)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
