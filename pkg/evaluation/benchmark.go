package evaluation

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// 指标名
const (
	MetricWER        = "WER"
	MetricLatencySec = "LatencySec" // 每分钟音频的处理耗时（秒）
	MetricRTF        = "RTF"        // 实时率
)

// 内置参考数据，仅用于对比展示
var defaultBenchmarks = []models.BenchmarkEntry{
	{
		Model:   "whisper-1 (accurate)",
		Metrics: map[string]float64{MetricWER: 0.08, MetricLatencySec: 12.5, MetricRTF: 0.21},
	},
	{
		Model:   "whisper.cpp base (fast)",
		Metrics: map[string]float64{MetricWER: 0.15, MetricLatencySec: 4.2, MetricRTF: 0.07},
	},
	{
		Model:   "vosk small (reference)",
		Metrics: map[string]float64{MetricWER: 0.22, MetricLatencySec: 2.1, MetricRTF: 0.035},
	},
}

// BenchmarkReport 返回 模型 -> 指标 的参考数据
func BenchmarkReport() map[string]map[string]float64 {
	return toReport(defaultBenchmarks)
}

// Entries 返回按 WER 升序排列的内置基准数据
func Entries() []models.BenchmarkEntry {
	return sortedCopy(defaultBenchmarks)
}

// LoadEntries 读取基准文件，文件中的模型覆盖或追加到内置数据
// 文件格式: {"benchmarks": [{"model": "...", "metrics": {"WER": 0.1}}]}
func LoadEntries(path string) ([]models.BenchmarkEntry, error) {
	if path == "" {
		return Entries(), nil
	}

	var raw map[string]interface{}
	if err := utils.LoadJSONFile(path, &raw); err != nil {
		return nil, fmt.Errorf("读取基准文件失败: %w", err)
	}

	var file struct {
		Benchmarks []models.BenchmarkEntry `mapstructure:"benchmarks"`
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &file,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("基准文件格式错误: %w", err)
	}

	merged := make(map[string]models.BenchmarkEntry)
	for _, entry := range defaultBenchmarks {
		merged[entry.Model] = entry
	}
	for _, entry := range file.Benchmarks {
		if entry.Model == "" {
			return nil, fmt.Errorf("基准文件中存在缺少 model 的条目")
		}
		merged[entry.Model] = entry
	}

	entries := make([]models.BenchmarkEntry, 0, len(merged))
	for _, entry := range merged {
		entries = append(entries, entry)
	}
	return sortedCopy(entries), nil
}

// SaveEntries 以 LoadEntries 可读取的格式写出基准数据
func SaveEntries(path string, entries []models.BenchmarkEntry) error {
	return utils.SaveJSONFile(path, map[string]interface{}{"benchmarks": entries})
}

// ReportFromEntries 转换为 模型 -> 指标
func ReportFromEntries(entries []models.BenchmarkEntry) map[string]map[string]float64 {
	return toReport(entries)
}

func toReport(entries []models.BenchmarkEntry) map[string]map[string]float64 {
	report := make(map[string]map[string]float64, len(entries))
	for _, entry := range entries {
		metrics := make(map[string]float64, len(entry.Metrics))
		for k, v := range entry.Metrics {
			metrics[k] = v
		}
		report[entry.Model] = metrics
	}
	return report
}

func sortedCopy(entries []models.BenchmarkEntry) []models.BenchmarkEntry {
	out := make([]models.BenchmarkEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := out[i].WER(), out[j].WER()
		if wi != wj {
			// 缺少 WER 的条目排在最后
			if wi < 0 {
				return false
			}
			if wj < 0 {
				return true
			}
			return wi < wj
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// MetricNames 返回条目中出现过的指标名，WER 排第一
func MetricNames(entries []models.BenchmarkEntry) []string {
	seen := map[string]bool{}
	var names []string
	for _, entry := range entries {
		for name := range entry.Metrics {
			if !seen[name] && name != MetricWER {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return append([]string{MetricWER}, names...)
}
