package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// ProgressBar 按阶段推进的进度条
type ProgressBar struct {
	Total      int       // 总阶段数
	Current    int       // 已完成阶段数
	Prefix     string    // 前缀
	Suffix     string    // 后缀（当前阶段）
	Width      int       // 进度条宽度
	FillChar   string    // 填充字符
	EmptyChar  string    // 空白字符
	StartTime  time.Time // 开始时间
	LastUpdate time.Time // 上次更新时间

	term *TerminalManager
}

// NewProgressBar 创建新的进度条
func NewProgressBar(total int, prefix string, suffix string) *ProgressBar {
	if total <= 0 {
		total = 1
	}
	return &ProgressBar{
		Total:      total,
		Prefix:     prefix,
		Suffix:     suffix,
		Width:      30,
		FillChar:   "█",
		EmptyChar:  "░",
		StartTime:  time.Now(),
		LastUpdate: time.Now(),
		term:       GetTerminalManager(),
	}
}

// Update 更新进度
func (p *ProgressBar) Update(current int, suffix string) {
	if current < 0 {
		return
	}
	if current > p.Total {
		current = p.Total
	}

	p.Current = current
	if suffix != "" {
		p.Suffix = suffix
	}
	p.LastUpdate = time.Now()
	p.draw()
}

// Increment 前进一个阶段
func (p *ProgressBar) Increment(suffix string) {
	p.Update(p.Current+1, suffix)
}

// Complete 完成进度条
func (p *ProgressBar) Complete(suffix string) {
	p.Update(p.Total, suffix)
	p.term.PrintMsg("")
}

// Fail 以失败状态结束，保留当前进度
func (p *ProgressBar) Fail(suffix string) {
	p.Suffix = suffix
	p.term.UpdateProgress(color.RedString(p.String()))
	p.term.PrintMsg("")
}

func (p *ProgressBar) draw() {
	p.term.UpdateProgress(color.CyanString(p.String()))
}

// String 返回进度条的字符串表示
func (p *ProgressBar) String() string {
	percent := float64(p.Current) / float64(p.Total)
	filled := int(percent * float64(p.Width))
	if filled > p.Width {
		filled = p.Width
	}
	bar := strings.Repeat(p.FillChar, filled) + strings.Repeat(p.EmptyChar, p.Width-filled)

	elapsed := time.Since(p.StartTime)
	return fmt.Sprintf("%s [%s] %3.0f%% | %d/%d | %s | %s",
		p.Prefix, bar, percent*100, p.Current, p.Total, formatDuration(elapsed), p.Suffix)
}

// 格式化持续时间为 MM:SS 格式
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
