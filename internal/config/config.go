package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/sherpa-tts/internal/logger"
	"github.com/iabetor/sherpa-tts/internal/tts"
)

// Config 是 sherpa-tts 的顶层配置结构。
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
	Data       DataConfig       `yaml:"data"`
	Phonemizer PhonemizerConfig `yaml:"phonemizer"`
	Output     OutputConfig     `yaml:"output"`
	Lexicon    LexiconConfig    `yaml:"lexicon"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// EngineConfig 合成引擎配置，对应一次请求的 tts.Config。
type EngineConfig struct {
	ModelPath   string  `yaml:"model_path"`
	TokensPath  string  `yaml:"tokens_path"`
	DataDir     string  `yaml:"data_dir"`
	LexiconPath string  `yaml:"lexicon_path"`
	Mode        string  `yaml:"mode"` // auto, lexicon_first, espeak_only
	Voice       string  `yaml:"voice"`
	SpeakerID   int     `yaml:"speaker_id"`
	Speed       float32 `yaml:"speed"`
	NumThreads  int     `yaml:"num_threads"`
	Debug       bool    `yaml:"debug"`
}

// DataConfig 工作目录与 espeak-ng 数据来源。
type DataConfig struct {
	// Dir 是工作目录，默认数据目录、输出、数据库都在其下。
	Dir string `yaml:"dir"`
	// EspeakSource 是系统安装的 espeak-ng-data，首次使用时复制到 Dir 下。
	EspeakSource string `yaml:"espeak_source"`
}

// PhonemizerConfig 音素引擎配置。
type PhonemizerConfig struct {
	EspeakBinary string `yaml:"espeak_binary"`
	// Disabled 为 true 时关闭音素回退路线。
	Disabled bool `yaml:"disabled"`
}

// OutputConfig 合成结果输出配置。
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LexiconConfig 用户词典配置。
type LexiconConfig struct {
	DBPath     string `yaml:"db_path"`
	ExportPath string `yaml:"export_path"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回只包含默认值的配置，用于没有配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Data.Dir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Data.Dir = filepath.Join(home, ".sherpa-tts")
		} else {
			cfg.Data.Dir = "./.sherpa-tts-data"
		}
	}
	if cfg.Data.EspeakSource == "" {
		cfg.Data.EspeakSource = "/usr/share/espeak-ng-data"
	}
	if cfg.Phonemizer.EspeakBinary == "" {
		cfg.Phonemizer.EspeakBinary = "espeak-ng"
	}

	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = "auto"
	}
	if cfg.Engine.Voice == "" {
		cfg.Engine.Voice = tts.DefaultVoice
	}
	if cfg.Engine.Speed == 0 {
		cfg.Engine.Speed = 1.0
	}
	if cfg.Engine.NumThreads == 0 {
		cfg.Engine.NumThreads = 1
	}

	// Go 不会自动展开 ~，需要手动替换为用户主目录
	for _, p := range []*string{
		&cfg.Log.File,
		&cfg.Data.Dir,
		&cfg.Data.EspeakSource,
		&cfg.Engine.ModelPath,
		&cfg.Engine.TokensPath,
		&cfg.Engine.DataDir,
		&cfg.Engine.LexiconPath,
		&cfg.Output.Dir,
		&cfg.Lexicon.DBPath,
		&cfg.Lexicon.ExportPath,
	} {
		*p = expandHome(strings.TrimSpace(*p))
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = filepath.Join(cfg.Data.Dir, "output")
	}
	if cfg.Lexicon.DBPath == "" {
		cfg.Lexicon.DBPath = filepath.Join(cfg.Data.Dir, "sherpa-tts.db")
	}
	if cfg.Lexicon.ExportPath == "" {
		cfg.Lexicon.ExportPath = filepath.Join(cfg.Data.Dir, "lexicons", "custom_lexicon.txt")
	}
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}

// LoggerConfig 转换为 logger.Init 的参数。
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
	}
}

// TTSConfig 把 engine 段转换为一次请求的 tts.Config。
// 未知的 mode 返回错误，而不是静默回退。
func (c *Config) TTSConfig() (tts.Config, error) {
	mode, err := tts.ParseMode(c.Engine.Mode)
	if err != nil {
		return tts.Config{}, err
	}
	return tts.Config{
		ModelPath:   c.Engine.ModelPath,
		TokensPath:  c.Engine.TokensPath,
		DataDir:     c.Engine.DataDir,
		LexiconPath: c.Engine.LexiconPath,
		Mode:        mode,
		Voice:       c.Engine.Voice,
		SpeakerID:   c.Engine.SpeakerID,
		Speed:       c.Engine.Speed,
		NumThreads:  c.Engine.NumThreads,
		Debug:       c.Engine.Debug,
	}, nil
}
