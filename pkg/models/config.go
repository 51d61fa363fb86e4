package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 转写模型选择
const (
	ModelFast     = "fast"     // 本地 whisper.cpp 模型
	ModelAccurate = "accurate" // OpenAI Whisper API
)

// EnvPrefix 环境变量前缀，例如 MEETING_OPENAI_API_KEY
const EnvPrefix = "MEETING"

// Config 表示应用程序的配置
type Config struct {
	InboxFolder  string `json:"inbox_folder" mapstructure:"inbox_folder"`   // 监听模式下的录音收件目录
	OutputFolder string `json:"output_folder" mapstructure:"output_folder"` // 导出结果文件夹
	TempDir      string `json:"temp_dir" mapstructure:"temp_dir"`           // 临时目录，空表示系统默认
	DatabasePath string `json:"database_path" mapstructure:"database_path"` // 记录数据库
	ListenAddr   string `json:"listen_addr" mapstructure:"listen_addr"`     // HTTP 监听地址
	LogLevel     string `json:"log_level" mapstructure:"log_level"`         // 日志级别
	LogFile      string `json:"log_file" mapstructure:"log_file"`           // 日志文件

	// 转写
	ModelChoice        string `json:"model_choice" mapstructure:"model_choice"` // fast | accurate
	OpenAIAPIKey       string `json:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIBaseURL      string `json:"openai_base_url" mapstructure:"openai_base_url"`
	TranscriptionModel string `json:"transcription_model" mapstructure:"transcription_model"`
	WhisperModelPath   string `json:"whisper_model_path" mapstructure:"whisper_model_path"` // ggml 模型文件
	Language           string `json:"language" mapstructure:"language"`

	// 说话人分离
	EnableDiarization bool   `json:"enable_diarization" mapstructure:"enable_diarization"`
	DiarizationPython string `json:"diarization_python" mapstructure:"diarization_python"`
	DiarizationModel  string `json:"diarization_model" mapstructure:"diarization_model"`
	HFToken           string `json:"hf_token" mapstructure:"hf_token"`

	// 摘要
	SummaryModel      string `json:"summary_model" mapstructure:"summary_model"`
	SummaryMinWords   int    `json:"summary_min_words" mapstructure:"summary_min_words"`
	SummaryMaxWords   int    `json:"summary_max_words" mapstructure:"summary_max_words"`
	SummaryInputWords int    `json:"summary_input_words" mapstructure:"summary_input_words"`
	ShortTextWords    int    `json:"short_text_words" mapstructure:"short_text_words"`

	// 导出
	ExportJSON     bool `json:"export_json" mapstructure:"export_json"`
	ExportMarkdown bool `json:"export_markdown" mapstructure:"export_markdown"`
	ExportCSV      bool `json:"export_csv" mapstructure:"export_csv"`
	ExportSRT      bool `json:"export_srt" mapstructure:"export_srt"`

	RequestTimeoutSec int     `json:"request_timeout_sec" mapstructure:"request_timeout_sec"` // 单次运行超时
	WatchDebounceSec  float64 `json:"watch_debounce_sec" mapstructure:"watch_debounce_sec"`
	MaxUploadMB       int     `json:"max_upload_mb" mapstructure:"max_upload_mb"`
	BenchmarkFile     string  `json:"benchmark_file" mapstructure:"benchmark_file"` // 覆盖内置基准数据的 JSON 文件
}

// ConfigValidationError 表示配置验证错误
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("配置验证错误: %s - %s", e.Field, e.Message)
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		InboxFolder:        "./inbox",
		OutputFolder:       "./output",
		TempDir:            "",
		DatabasePath:       "./data/meetings.db",
		ListenAddr:         ":8080",
		LogLevel:           "INFO",
		LogFile:            "",
		ModelChoice:        ModelAccurate,
		OpenAIBaseURL:      "https://api.openai.com/v1",
		TranscriptionModel: "whisper-1",
		WhisperModelPath:   "./models/ggml-base.bin",
		Language:           "auto",
		EnableDiarization:  true,
		DiarizationPython:  "python3",
		DiarizationModel:   "pyannote/speaker-diarization-3.0",
		SummaryModel:       "gpt-4o-mini",
		SummaryMinWords:    30,
		SummaryMaxWords:    130,
		SummaryInputWords:  500,
		ShortTextWords:     50,
		ExportJSON:         true,
		ExportMarkdown:     true,
		ExportCSV:          true,
		ExportSRT:          false,
		RequestTimeoutSec:  1800,
		WatchDebounceSec:   3,
		MaxUploadMB:        200,
	}
}

// Validate 验证配置是否有效
func (c *Config) Validate() error {
	if err := ensureDirExists(c.OutputFolder); err != nil {
		return &ConfigValidationError{"OutputFolder", err.Error()}
	}

	switch c.ModelChoice {
	case ModelFast, ModelAccurate:
	default:
		return &ConfigValidationError{"ModelChoice", "必须是 fast 或 accurate"}
	}

	if c.SummaryMinWords < 1 || c.SummaryMinWords > c.SummaryMaxWords {
		return &ConfigValidationError{"SummaryMinWords", "必须在1到SummaryMaxWords之间"}
	}

	if c.SummaryMaxWords > 1000 {
		return &ConfigValidationError{"SummaryMaxWords", "不能超过1000"}
	}

	if c.SummaryInputWords < c.ShortTextWords {
		return &ConfigValidationError{"SummaryInputWords", "不能小于ShortTextWords"}
	}

	if c.ShortTextWords < 0 {
		return &ConfigValidationError{"ShortTextWords", "不能为负数"}
	}

	if c.RequestTimeoutSec < 10 || c.RequestTimeoutSec > 24*3600 {
		return &ConfigValidationError{"RequestTimeoutSec", "必须在10-86400秒之间"}
	}

	if c.WatchDebounceSec < 0.1 || c.WatchDebounceSec > 60 {
		return &ConfigValidationError{"WatchDebounceSec", "必须在0.1-60秒之间"}
	}

	if c.MaxUploadMB < 1 {
		return &ConfigValidationError{"MaxUploadMB", "必须大于0"}
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return &ConfigValidationError{"ListenAddr", "不能为空"}
	}

	return nil
}

// LoadFromFile 从文件加载配置，支持 json/yaml/toml，环境变量 MEETING_* 可覆盖文件中的值
func (c *Config) LoadFromFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// 以当前值作为默认值，未在文件中出现的键也能被环境变量覆盖
	defaults := make(map[string]interface{})
	if err := mapstructure.Decode(c, &defaults); err != nil {
		logrus.Errorf("生成默认配置失败: %v", err)
		return err
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		logrus.Errorf("读取配置文件失败: %v", err)
		return err
	}

	if err := v.Unmarshal(c); err != nil {
		logrus.Errorf("解析配置文件失败: %v", err)
		return err
	}

	if err := c.Validate(); err != nil {
		logrus.Errorf("配置验证失败: %v", err)
		return err
	}

	return nil
}

// ApplyEnv 仅从环境变量读取覆盖值（未指定配置文件时使用）
func (c *Config) ApplyEnv() error {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = key
	}
	if token := os.Getenv("HF_TOKEN"); token != "" && c.HFToken == "" {
		c.HFToken = token
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	defaults := make(map[string]interface{})
	if err := mapstructure.Decode(c, &defaults); err != nil {
		return err
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return v.Unmarshal(c)
}

// SaveToFile 保存配置到文件
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.Errorf("创建目录失败: %v", err)
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		logrus.Errorf("序列化配置失败: %v", err)
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.Errorf("写入配置文件失败: %v", err)
		return err
	}

	return nil
}

// Update 批量更新配置，验证失败时回滚
func (c *Config) Update(updates map[string]interface{}) error {
	tempConfig := *c

	updateBytes, err := json.Marshal(updates)
	if err != nil {
		logrus.Errorf("序列化更新数据失败: %v", err)
		return err
	}

	if err := json.Unmarshal(updateBytes, c); err != nil {
		*c = tempConfig
		logrus.Errorf("应用配置更新失败: %v", err)
		return err
	}

	if err := c.Validate(); err != nil {
		*c = tempConfig
		logrus.Errorf("配置验证失败: %v", err)
		return err
	}

	return nil
}

// Reset 重置为默认配置
func (c *Config) Reset() {
	*c = *NewDefaultConfig()
}

// EnabledFormats 返回需要导出的格式
func (c *Config) EnabledFormats() []string {
	var formats []string
	if c.ExportJSON {
		formats = append(formats, "json")
	}
	if c.ExportMarkdown {
		formats = append(formats, "markdown")
	}
	if c.ExportCSV {
		formats = append(formats, "csv")
	}
	if c.ExportSRT {
		formats = append(formats, "srt")
	}
	return formats
}

// MaskedJSON 序列化配置，密钥以 ****** 代替
func (c *Config) MaskedJSON() ([]byte, error) {
	masked := *c
	if masked.OpenAIAPIKey != "" {
		masked.OpenAIAPIKey = "******"
	}
	if masked.HFToken != "" {
		masked.HFToken = "******"
	}
	return json.MarshalIndent(masked, "", "  ")
}

// PrintConfig 打印当前配置（隐藏密钥）
func (c *Config) PrintConfig() {
	bytes, err := c.MaskedJSON()
	if err != nil {
		logrus.Errorf("序列化配置失败: %v", err)
		return
	}
	logrus.Debug("当前配置:\n" + string(bytes))
}

// 确保目录存在，如果不存在则创建
func ensureDirExists(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}

	return nil
}
