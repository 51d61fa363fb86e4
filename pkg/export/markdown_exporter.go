package export

import (
	"fmt"
	"strings"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
)

// GenerateMarkdownContent 生成会议纪要 Markdown
func GenerateMarkdownContent(record *models.TranscriptRecord) string {
	var b strings.Builder
	b.WriteString("# Meeting Summary\n\n")
	b.WriteString(record.Summary)
	b.WriteString("\n\n---\n\n## Transcript\n")
	for _, seg := range record.Segments {
		fmt.Fprintf(&b, "- **%s** (%ss–%ss): %s\n",
			seg.Speaker, formatSeconds(seg.Start), formatSeconds(seg.End), seg.Text)
	}
	return b.String()
}
