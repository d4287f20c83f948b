// Package native 是 tts.Backend 的参考实现：句柄注册表、词表与词典、
// 发音解析路由、音素引擎、sherpa-onnx 声学模型以及 WAV 输出。
package native

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/iabetor/sherpa-tts/internal/audio"
	"github.com/iabetor/sherpa-tts/internal/logger"
	"github.com/iabetor/sherpa-tts/internal/tts"
)

// engine 是一个句柄背后的全部状态。
type engine struct {
	mu        sync.Mutex
	cfg       tts.Config
	router    *Router
	vocoder   Vocoder
	speakerID int
}

// Option 配置 Backend。
type Option func(*Backend)

// WithVocoderFactory 替换声学模型的创建方式。
func WithVocoderFactory(f VocoderFactory) Option {
	return func(b *Backend) { b.factory = f }
}

// WithPhonemizer 为所有句柄指定音素引擎，p 为 nil 表示禁用音素回退。
func WithPhonemizer(p Phonemizer) Option {
	return func(b *Backend) {
		b.phonemizer = p
		b.phonemizerSet = true
	}
}

// WithEspeakBinary 指定 espeak-ng 可执行文件。
func WithEspeakBinary(bin string) Option {
	return func(b *Backend) { b.espeakBinary = bin }
}

// Backend 管理引擎句柄。句柄 id 单调递增，不会复用。
type Backend struct {
	factory       VocoderFactory
	phonemizer    Phonemizer
	phonemizerSet bool
	espeakBinary  string

	mu      sync.Mutex
	next    tts.Handle
	engines map[tts.Handle]*engine
}

var _ tts.Backend = (*Backend)(nil)

// NewBackend 创建后端，默认使用 sherpa-onnx 声学模型，并按音色选择音素引擎。
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		factory: NewSherpaVocoder,
		engines: make(map[tts.Handle]*engine),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create 加载词表、词典和声学模型，返回新句柄。
func (b *Backend) Create(cfg tts.Config) (tts.Handle, error) {
	if cfg.ModelPath == "" || cfg.TokensPath == "" {
		return 0, errors.New("model 或 tokens 路径为空")
	}
	if !cfg.Mode.Valid() {
		logger.Warnf("[native] 前端模式非法=%d，回退为 auto", int(cfg.Mode))
		cfg.Mode = tts.ModeAutomatic
	}
	if cfg.Voice == "" {
		cfg.Voice = tts.DefaultVoice
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 1
	}

	tokens, err := LoadTokenTable(cfg.TokensPath)
	if err != nil {
		return 0, err
	}

	var lex *Lexicon
	if cfg.LexiconPath != "" {
		l, skipped, err := LoadLexicon(cfg.LexiconPath)
		if err != nil {
			logger.Warnf("[native] 加载词典失败，按空词典处理: %v", err)
		} else {
			lex = l
			if skipped > 0 {
				logger.Warnf("[native] 词典中 %d 行格式错误已跳过", skipped)
			}
		}
	}

	phonemizer := b.phonemizer
	if !b.phonemizerSet {
		phonemizer = selectPhonemizer(cfg.Voice, b.espeakBinary)
	}

	vocoder, err := b.factory(cfg)
	if err != nil {
		return 0, fmt.Errorf("加载声学模型失败: %w", err)
	}
	if vocoder.SampleRate() <= 0 {
		vocoder.Close()
		return 0, fmt.Errorf("声学模型加载失败或 sample_rate=%d path=%s", vocoder.SampleRate(), cfg.ModelPath)
	}

	e := &engine{
		cfg: cfg,
		router: &Router{
			Mode:       cfg.Mode,
			Voice:      cfg.Voice,
			DataDir:    cfg.DataDir,
			Tokens:     tokens,
			Lexicon:    lex,
			Phonemizer: phonemizer,
		},
		vocoder:   vocoder,
		speakerID: cfg.SpeakerID,
	}

	b.mu.Lock()
	b.next++
	h := b.next
	b.engines[h] = e
	b.mu.Unlock()

	phName := "disabled"
	if phonemizer != nil {
		phName = phonemizer.Name()
	}
	logger.Infof("[native] 引擎已创建 handle=%d mode=%s voice=%s tokens=%d lexicon=%d phonemizer=%s",
		h, cfg.Mode, cfg.Voice, tokens.Len(), lex.Len(), phName)
	return h, nil
}

func (b *Backend) lookup(h tts.Handle) *engine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engines[h]
}

// Generate 合成 text 并写入 outputPath。成功返回采样率，失败返回负的状态码。
func (b *Backend) Generate(h tts.Handle, text string, speed float32, outputPath string) (int, string) {
	e := b.lookup(h)
	if e == nil {
		return tts.StatusInvalidHandle, fmt.Sprintf("未知句柄 %d", h)
	}

	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" || outputPath == "" {
		return tts.StatusInvalidInput, "text 或 outputPath 为空"
	}
	if speed <= 0 {
		speed = e.cfg.Speed
	}
	if speed <= 0 {
		speed = 1.0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, status := e.router.Resolve(text)
	detail := res.Detail(e.router)
	if status != 0 {
		logger.Warnf("[native] 前端失败 code=%d %s text_len=%d", status, detail, len(text))
		return status, detail
	}
	logger.Debugf("[native] 前端解析成功 route=%s token_ids=%d %s", res.Route, len(res.TokenIDs), detail)

	samples, err := e.vocoder.Synthesize(VocoderRequest{
		Route:     res.Route,
		Text:      text,
		TokenIDs:  res.TokenIDs,
		SpeakerID: e.speakerID,
		Speed:     speed,
	})
	if err != nil || len(samples) == 0 {
		if err == nil {
			err = ErrEmptyAudio
		}
		logger.Warnf("[native] 推理失败: %v", err)
		return tts.StatusInferenceEmptyOutput, err.Error()
	}

	sampleRate := e.vocoder.SampleRate()
	if err := audio.WriteWave(outputPath, sampleRate, samples); err != nil {
		logger.Warnf("[native] 写入 WAV 失败 path=%s: %v", outputPath, err)
		return tts.StatusAudioWriteFailed, err.Error()
	}
	return sampleRate, ""
}

// Release 销毁句柄，对未知句柄为空操作。
func (b *Backend) Release(h tts.Handle) {
	b.mu.Lock()
	e := b.engines[h]
	delete(b.engines, h)
	b.mu.Unlock()

	if e == nil {
		return
	}
	e.mu.Lock()
	e.vocoder.Close()
	e.mu.Unlock()
	logger.Infof("[native] 引擎已释放 handle=%d", h)
}

// Live 返回存活句柄数量。
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.engines)
}
