package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/mozillazg/go-pinyin"

	"github.com/iabetor/sherpa-tts/internal/logger"
)

var (
	// ErrPhonemizerDisabled 表示音素引擎未安装或被禁用。
	ErrPhonemizerDisabled = errors.New("音素引擎不可用")
	// ErrPhonemizerInit 表示音素引擎无法在给定数据目录上运行。
	ErrPhonemizerInit = errors.New("音素引擎初始化失败")
)

// Phonemizer 把文本转换为音素符号序列，是音素回退路线的外部协作方。
type Phonemizer interface {
	Name() string
	// Framed 为 true 时输出需要 "^ (id _)* $" 包裹，要求词表中存在这三个特殊符号。
	Framed() bool
	Phonemize(text, voice, dataDir string) ([]string, error)
}

// selectPhonemizer 按音色选择音素引擎：中文音色使用拼音，其余使用 espeak-ng。
func selectPhonemizer(voice, espeakBinary string) Phonemizer {
	v := strings.ToLower(voice)
	if strings.HasPrefix(v, "zh") || strings.HasPrefix(v, "cmn") {
		return NewPinyinPhonemizer()
	}
	return NewEspeakPhonemizer(espeakBinary)
}

// EspeakPhonemizer 通过 espeak-ng 命令行输出 IPA 音素。
type EspeakPhonemizer struct {
	binary  string
	timeout time.Duration
}

// NewEspeakPhonemizer 创建 espeak-ng 音素引擎，binary 为空时使用 "espeak-ng"。
func NewEspeakPhonemizer(binary string) *EspeakPhonemizer {
	if binary == "" {
		binary = "espeak-ng"
	}
	return &EspeakPhonemizer{binary: binary, timeout: 30 * time.Second}
}

func (p *EspeakPhonemizer) Name() string { return "espeak-ng" }

func (p *EspeakPhonemizer) Framed() bool { return true }

// Phonemize 调用 espeak-ng。dataDir 指向 espeak-ng-data 目录本身，
// 传给 --path 的是它的父目录。
func (p *EspeakPhonemizer) Phonemize(text, voice, dataDir string) ([]string, error) {
	bin, err := exec.LookPath(p.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: 未找到 %s", ErrPhonemizerDisabled, p.binary)
	}
	if info, err := os.Stat(dataDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: 数据目录不可用 %s", ErrPhonemizerInit, dataDir)
	}
	if voice == "" {
		voice = "ru"
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-q", "--ipa", "-v", voice, "--path", filepath.Dir(dataDir), "--stdin")
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			logger.Warnf("[native] espeak-ng stderr: %s", s)
		}
		return nil, fmt.Errorf("%w: %v", ErrPhonemizerInit, err)
	}

	phonemes := splitIPA(stdout.String())
	logger.Debugf("[native] espeak-ng: voice=%s 得到 %d 个音素", voice, len(phonemes))
	return phonemes, nil
}

// splitIPA 把 espeak-ng 的 IPA 输出拆成单字符音素。词之间保留一个空格，
// 句子（行）之间直接拼接。
func splitIPA(out string) []string {
	var phonemes []string
	for _, line := range strings.Split(out, "\n") {
		space := false
		for _, r := range strings.TrimSpace(line) {
			if unicode.IsSpace(r) {
				space = true
				continue
			}
			if space {
				phonemes = append(phonemes, " ")
				space = false
			}
			phonemes = append(phonemes, string(r))
		}
	}
	return phonemes
}

// PinyinPhonemizer 把汉字转换为声母和带数字声调的韵母，如 "你好" → n i3 h ao3。
type PinyinPhonemizer struct {
	initials pinyin.Args
	finals   pinyin.Args
}

// NewPinyinPhonemizer 创建拼音音素引擎。
func NewPinyinPhonemizer() *PinyinPhonemizer {
	initials := pinyin.NewArgs()
	initials.Style = pinyin.Initials
	finals := pinyin.NewArgs()
	finals.Style = pinyin.FinalsTone3
	return &PinyinPhonemizer{initials: initials, finals: finals}
}

func (p *PinyinPhonemizer) Name() string { return "pinyin" }

func (p *PinyinPhonemizer) Framed() bool { return false }

// Phonemize 逐字转换，非汉字字符被忽略。
func (p *PinyinPhonemizer) Phonemize(text, _, _ string) ([]string, error) {
	var phonemes []string
	for _, r := range text {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		ch := string(r)
		if ini := pinyin.LazyPinyin(ch, p.initials); len(ini) > 0 && ini[0] != "" {
			phonemes = append(phonemes, ini[0])
		}
		if fin := pinyin.LazyPinyin(ch, p.finals); len(fin) > 0 && fin[0] != "" {
			phonemes = append(phonemes, fin[0])
		}
	}
	return phonemes, nil
}
