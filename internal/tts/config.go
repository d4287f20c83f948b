package tts

import (
	"fmt"
	"strings"

	"github.com/iabetor/sherpa-tts/internal/logger"
)

// DefaultVoice 是 voice 为空时使用的回退音色。
const DefaultVoice = "ru"

// Mode 是文本前端的发音解析策略。数值即传给后端的模式码。
type Mode int

const (
	// ModeAutomatic 先查词典，未命中时回退到音素引擎。
	ModeAutomatic Mode = iota
	// ModeDictionaryOnly 仅查词典，未命中即失败。
	ModeDictionaryOnly
	// ModePhoneticFallbackOnly 跳过词典，直接使用音素引擎（需要语言数据目录）。
	ModePhoneticFallbackOnly
)

var modeNames = [...]string{
	"auto",
	"lexicon_first",
	"espeak_only",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// Valid 报告 m 是否为已定义的模式。
func (m Mode) Valid() bool {
	return m >= ModeAutomatic && m <= ModePhoneticFallbackOnly
}

// ParseMode 解析模式名，兼容描述性别名。
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "automatic":
		return ModeAutomatic, nil
	case "lexicon_first", "lexicon", "dictionary", "dictionary_only":
		return ModeDictionaryOnly, nil
	case "espeak_only", "espeak", "phonetic", "phonetic_only":
		return ModePhoneticFallbackOnly, nil
	default:
		return ModeAutomatic, fmt.Errorf("未知的前端模式: %q", s)
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler，供文本格式的配置解析使用。
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText 实现 encoding.TextMarshaler。
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("无效的前端模式: %d", int(m))
	}
	return []byte(m.String()), nil
}

// Config 是一次合成请求的引擎配置。
// 所有字段均可比较，两个 Config 相等当且仅当所有字段相等；
// EngineCache 依据相等性决定复用还是重建引擎。
type Config struct {
	ModelPath   string
	TokensPath  string
	DataDir     string
	LexiconPath string
	Mode        Mode
	Voice       string
	SpeakerID   int
	Speed       float32
	NumThreads  int
	Debug       bool
}

func (c Config) String() string {
	return fmt.Sprintf("mode=%s voice=%s sid=%d speed=%.2f threads=%d model=%s data_dir=%s lexicon=%s",
		c.Mode, c.Voice, c.SpeakerID, c.Speed, c.NumThreads, c.ModelPath, c.DataDir, c.LexiconPath)
}

// Provisioner 负责准备进程级默认的语言数据目录。
// Ensure 返回前保证目录内包含所需的数据文件。
type Provisioner interface {
	Ensure() (string, error)
}

// Resolver 规范化请求配置：填充默认值并校验模式与数据目录的约束。
type Resolver struct {
	provisioner Provisioner
}

// NewResolver 创建配置解析器。provisioner 可以为 nil，此时不会填充数据目录。
func NewResolver(p Provisioner) *Resolver {
	return &Resolver{provisioner: p}
}

// Resolve 返回规范化后的配置。
// phonetic-only 模式下数据目录仍为空时返回 KindInvalidConfiguration，且不会触碰后端。
func (r *Resolver) Resolve(cfg Config) (Config, error) {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" && r.provisioner != nil {
		dir, err := r.provisioner.Ensure()
		if err != nil {
			logger.Warnf("[tts] 准备语言数据目录失败: %v", err)
		} else {
			cfg.DataDir = dir
		}
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 1
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	if err := CheckPreconditions(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
