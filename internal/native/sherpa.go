package native

import (
	"errors"
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/sherpa-tts/internal/logger"
	"github.com/iabetor/sherpa-tts/internal/tts"
)

// VocoderRequest 是一次声学模型推理的输入。
type VocoderRequest struct {
	Route     Route
	Text      string
	TokenIDs  []int64
	SpeakerID int
	Speed     float32
}

// Vocoder 是声学模型与声码器的边界：输入解析结果，输出 float32 单声道样本。
type Vocoder interface {
	SampleRate() int
	Synthesize(req VocoderRequest) ([]float32, error)
	Close()
}

// VocoderFactory 按引擎配置创建 Vocoder。
type VocoderFactory func(cfg tts.Config) (Vocoder, error)

// ErrEmptyAudio 表示模型没有产出样本。
var ErrEmptyAudio = errors.New("模型返回空音频")

// SherpaVocoder 封装 sherpa-onnx 离线 VITS 合成器。
//
// 词典路线使用配置了 lexicon 的实例，音素路线使用配置了 data_dir 的实例，
// 只有 initialRoute 对应的实例在加载时创建，另一个在第一次需要时创建。
// sherpa-onnx 实例不是并发安全的，调用由互斥锁串行化。
//
// sherpa-onnx 的 Go 接口只接受文本，不接受 token id：路由器得到的 TokenIDs
// 只决定请求能否放行以及走哪条路线，实际的文本到 token 转换由对应实例的前端完成。
type SherpaVocoder struct {
	cfg tts.Config

	mu         sync.Mutex
	dictionary *sherpa.OfflineTts
	phonetic   *sherpa.OfflineTts
	sampleRate int
}

var _ Vocoder = (*SherpaVocoder)(nil)

// NewSherpaVocoder 加载模型，预先创建 initialRoute 对应的实例。
func NewSherpaVocoder(cfg tts.Config) (Vocoder, error) {
	v := &SherpaVocoder{cfg: cfg}

	route := initialRoute(cfg)
	impl, err := v.instanceLocked(route)
	if err != nil {
		return nil, err
	}
	v.sampleRate = impl.SampleRate()

	logger.Infof("[native] sherpa-onnx 合成器已初始化 (model=%s, route=%s, sample_rate=%d, threads=%d)",
		cfg.ModelPath, route, v.sampleRate, cfg.NumThreads)
	return v, nil
}

// initialRoute 返回加载时预先创建的实例路线。
// 自动模式下没有词典时路由器总是转入音素路线，词典实例不会被用到。
func initialRoute(cfg tts.Config) Route {
	switch {
	case cfg.Mode == tts.ModePhoneticFallbackOnly:
		return RoutePhonetic
	case cfg.Mode == tts.ModeAutomatic && cfg.LexiconPath == "":
		return RoutePhonetic
	default:
		return RouteDictionary
	}
}

// offlineTtsConfig 构造指定路线的 sherpa-onnx 配置。
// 词典路线没有词典文件时同样挂上 data_dir，否则 sherpa-onnx 无法为模型选择前端。
func offlineTtsConfig(cfg tts.Config, route Route) sherpa.OfflineTtsConfig {
	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = cfg.ModelPath
	config.Model.Vits.Tokens = cfg.TokensPath
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0

	if route == RouteDictionary && cfg.LexiconPath != "" {
		config.Model.Vits.Lexicon = cfg.LexiconPath
	} else {
		config.Model.Vits.DataDir = cfg.DataDir
	}

	config.Model.NumThreads = cfg.NumThreads
	config.Model.Provider = "cpu"
	if cfg.Debug {
		config.Model.Debug = 1
	}
	config.MaxNumSentences = 1
	return config
}

func newOfflineTts(cfg tts.Config, route Route) (*sherpa.OfflineTts, error) {
	config := offlineTtsConfig(cfg, route)
	impl := sherpa.NewOfflineTts(&config)
	if impl == nil {
		return nil, fmt.Errorf("创建离线合成器失败 route=%s model=%s", route, cfg.ModelPath)
	}
	return impl, nil
}

func (v *SherpaVocoder) SampleRate() int {
	return v.sampleRate
}

// Synthesize 在对应路线的实例上合成文本。
func (v *SherpaVocoder) Synthesize(req VocoderRequest) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	impl, err := v.instanceLocked(req.Route)
	if err != nil {
		return nil, err
	}

	audio := impl.Generate(req.Text, req.SpeakerID, req.Speed)
	if audio == nil || len(audio.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	if audio.SampleRate != v.sampleRate {
		logger.Warnf("[native] 采样率不一致: %d != %d", audio.SampleRate, v.sampleRate)
	}
	return audio.Samples, nil
}

// instanceLocked 返回路线对应的实例，不存在时创建。
func (v *SherpaVocoder) instanceLocked(route Route) (*sherpa.OfflineTts, error) {
	slot := &v.phonetic
	if route == RouteDictionary {
		if v.cfg.Mode == tts.ModePhoneticFallbackOnly {
			return nil, fmt.Errorf("词典路线不可用 (mode=%s)", v.cfg.Mode)
		}
		slot = &v.dictionary
	}

	if *slot == nil {
		impl, err := newOfflineTts(v.cfg, route)
		if err != nil {
			return nil, err
		}
		*slot = impl
		logger.Infof("[native] %s 路线合成器已创建", route)
	}
	return *slot, nil
}

// Close 释放底层 sherpa-onnx 资源。
func (v *SherpaVocoder) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dictionary != nil {
		sherpa.DeleteOfflineTts(v.dictionary)
		v.dictionary = nil
	}
	if v.phonetic != nil {
		sherpa.DeleteOfflineTts(v.phonetic)
		v.phonetic = nil
	}
	logger.Info("[native] sherpa-onnx 合成器已关闭")
}
