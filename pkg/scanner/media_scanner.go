package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ccp-p/meeting-transcriber/pkg/audio"
)

// Recording 表示收件目录中的一个录音文件
type Recording struct {
	Path    string    // 文件路径
	Name    string    // 文件名
	Ext     string    // 文件扩展名
	Size    int64     // 文件大小（字节）
	ModTime time.Time // 修改时间
	IsVideo bool      // 会议录屏
}

// ScanDirectory 扫描目录（非递归）中可转写的录音，按修改时间升序返回
func ScanDirectory(dir string) ([]Recording, error) {
	logrus.Infof("开始扫描目录: %s", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var recordings []Recording
	for _, entry := range entries {
		// 跳过目录、隐藏文件和未下载完的临时文件
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || IsPartial(name) {
			continue
		}

		path := filepath.Join(dir, name)
		if !audio.IsSupported(path) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logrus.Warnf("获取文件信息失败: %v", err)
			continue
		}
		if info.Size() == 0 {
			logrus.Debugf("跳过空文件: %s", name)
			continue
		}

		recordings = append(recordings, Recording{
			Path:    path,
			Name:    name,
			Ext:     strings.ToLower(filepath.Ext(name)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsVideo: audio.IsVideoFile(path),
		})
	}

	sort.SliceStable(recordings, func(i, j int) bool {
		if recordings[i].ModTime.Equal(recordings[j].ModTime) {
			return recordings[i].Name < recordings[j].Name
		}
		return recordings[i].ModTime.Before(recordings[j].ModTime)
	})

	logrus.Infof("扫描完成，共找到 %d 个录音文件", len(recordings))
	return recordings, nil
}

// FilterNew 过滤掉已处理的录音，processed 返回 true 表示已处理
func FilterNew(recordings []Recording, processed func(Recording) bool) []Recording {
	var fresh []Recording
	for _, rec := range recordings {
		if !processed(rec) {
			fresh = append(fresh, rec)
		}
	}

	logrus.Infof("过滤后剩余 %d 个新录音需要处理", len(fresh))
	return fresh
}

// IsPartial 浏览器或同步工具写入中的临时文件
func IsPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".part", ".crdownload", ".tmp", ".download"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.HasPrefix(name, "~$")
}
