package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// TerminalManager 管理终端输出，确保进度条和消息不会混乱
type TerminalManager struct {
	mu  sync.Mutex
	out io.Writer
}

var (
	globalTerminalManager *TerminalManager
	once                  sync.Once
)

// GetTerminalManager 获取全局终端管理器实例
func GetTerminalManager() *TerminalManager {
	once.Do(func() {
		globalTerminalManager = &TerminalManager{out: os.Stdout}
	})
	return globalTerminalManager
}

// SetOutput 替换输出目标
func (tm *TerminalManager) SetOutput(w io.Writer) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.out = w
}

// PrintMsg 清除当前进度行后打印一行消息
func (tm *TerminalManager) PrintMsg(format string, args ...interface{}) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	fmt.Fprint(tm.out, "\033[2K\r")
	if len(args) > 0 {
		fmt.Fprintf(tm.out, format+"\n", args...)
	} else {
		fmt.Fprintln(tm.out, format)
	}
}

// UpdateProgress 在同一行刷新进度
func (tm *TerminalManager) UpdateProgress(line string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	fmt.Fprint(tm.out, "\033[2K\r")
	// 进度文本中可能含有 %，不作为格式串使用
	fmt.Fprint(tm.out, line)
}
