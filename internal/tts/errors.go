package tts

import (
	"fmt"
	"sort"
)

// 后端状态码。正数表示合成成功时的采样率，负数表示失败类别。
// 该集合是封闭的：新增状态码必须同步扩展 statusKinds。
const (
	StatusInvalidArguments   = -1
	StatusDictionaryMiss     = -2
	StatusDataMissing        = -3
	StatusFallbackDisabled   = -4
	StatusFallbackInitFailed = -5
	StatusEmptyPhonemes      = -6
	StatusTokenMiss          = -7

	StatusInvalidHandle        = -100
	StatusInvalidInput         = -101
	StatusInferenceEmptyOutput = -102
	StatusAudioWriteFailed     = -103
)

// Kind 是失败的语义类别，可直接用于本地化提示。
type Kind int

const (
	KindUnknown Kind = iota

	// 本地失败，不经过后端。
	KindInvalidConfiguration
	KindEngineCreateFailed

	// 前端（发音解析）失败。
	KindInvalidArguments
	KindDictionaryMiss
	KindDataMissing
	KindFallbackDisabled
	KindFallbackInitFailed
	KindEmptyPhonemes
	KindTokenMiss

	// 运行期失败。
	KindInvalidHandle
	KindInvalidInput
	KindInferenceEmptyOutput
	KindAudioWriteFailed
)

var kindNames = [...]string{
	KindUnknown:              "UNKNOWN",
	KindInvalidConfiguration: "INVALID_CONFIGURATION",
	KindEngineCreateFailed:   "ENGINE_CREATE_FAILED",
	KindInvalidArguments:     "FRONTEND_INVALID_ARGS",
	KindDictionaryMiss:       "FRONTEND_LEXICON_MISS",
	KindDataMissing:          "FRONTEND_DATA_MISSING",
	KindFallbackDisabled:     "FRONTEND_FALLBACK_DISABLED",
	KindFallbackInitFailed:   "FRONTEND_FALLBACK_INIT_FAILED",
	KindEmptyPhonemes:        "FRONTEND_PHONEME_EMPTY",
	KindTokenMiss:            "FRONTEND_TOKEN_MISS",
	KindInvalidHandle:        "ERR_INVALID_HANDLE",
	KindInvalidInput:         "ERR_INVALID_INPUT",
	KindInferenceEmptyOutput: "ERR_INFERENCE_EMPTY",
	KindAudioWriteFailed:     "ERR_WRITE_WAVE",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Group 表示失败所属的分组。
type Group int

const (
	GroupNone Group = iota
	GroupLocal
	GroupFrontend
	GroupRuntime
)

func (g Group) String() string {
	switch g {
	case GroupLocal:
		return "local"
	case GroupFrontend:
		return "frontend"
	case GroupRuntime:
		return "runtime"
	default:
		return "none"
	}
}

// Group 返回 k 所属的分组，KindUnknown 不属于任何分组。
func (k Kind) Group() Group {
	switch {
	case k == KindInvalidConfiguration || k == KindEngineCreateFailed:
		return GroupLocal
	case k >= KindInvalidArguments && k <= KindTokenMiss:
		return GroupFrontend
	case k >= KindInvalidHandle && k <= KindAudioWriteFailed:
		return GroupRuntime
	default:
		return GroupNone
	}
}

var kindHints = map[Kind]string{
	KindInvalidConfiguration: "配置无效：espeak_only 模式需要可用的语言数据目录（espeak-ng-data）。",
	KindEngineCreateFailed:   "引擎创建失败：请检查模型/tokens 路径以及原生库是否可用。",
	KindInvalidArguments:     "前端失败：文本为空或 tokens 表为空。",
	KindDictionaryMiss:       "前端失败：当前为词典模式且词典未命中。请补充词典或改为 auto/espeak_only。",
	KindDataMissing:          "前端失败：未找到语言数据目录。请检查 data_dir。",
	KindFallbackDisabled:     "前端失败：音素回退引擎不可用（未安装或已禁用）。",
	KindFallbackInitFailed:   "前端失败：音素回退引擎初始化失败。请检查 data_dir 内容是否完整。",
	KindEmptyPhonemes:        "前端失败：音素回退引擎未产出音素。请检查文本/voice 设置。",
	KindTokenMiss:            "前端失败：tokens 与音素集不匹配，未命中有效 token。",
	KindInvalidHandle:        "运行失败：引擎句柄无效。",
	KindInvalidInput:         "运行失败：文本或输出路径为空。",
	KindInferenceEmptyOutput: "推理失败：模型返回空音频。请检查模型、speaker_id 与输入 token。",
	KindAudioWriteFailed:     "写文件失败：WAV 输出路径不可写。",
}

// Hint 返回面向用户的提示文本，未登记的类别返回通用提示，结果总是非空。
func (k Kind) Hint() string {
	if h, ok := kindHints[k]; ok {
		return h
	}
	return "合成失败：未知错误。"
}

var statusKinds = map[int]Kind{
	StatusInvalidArguments:     KindInvalidArguments,
	StatusDictionaryMiss:       KindDictionaryMiss,
	StatusDataMissing:          KindDataMissing,
	StatusFallbackDisabled:     KindFallbackDisabled,
	StatusFallbackInitFailed:   KindFallbackInitFailed,
	StatusEmptyPhonemes:        KindEmptyPhonemes,
	StatusTokenMiss:            KindTokenMiss,
	StatusInvalidHandle:        KindInvalidHandle,
	StatusInvalidInput:         KindInvalidInput,
	StatusInferenceEmptyOutput: KindInferenceEmptyOutput,
	StatusAudioWriteFailed:     KindAudioWriteFailed,
}

// KindOf 将后端状态码映射为语义类别，未定义的状态码返回 KindUnknown。
func KindOf(code int) Kind {
	if k, ok := statusKinds[code]; ok {
		return k
	}
	return KindUnknown
}

// StatusOf 返回 k 对应的后端状态码；本地类别和 KindUnknown 返回 false。
func StatusOf(k Kind) (int, bool) {
	for code, kind := range statusKinds {
		if kind == k {
			return code, true
		}
	}
	return 0, false
}

// StatusCodes 返回所有已定义状态码，按数值降序。
func StatusCodes() []int {
	codes := make([]int, 0, len(statusKinds))
	for code := range statusKinds {
		codes = append(codes, code)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(codes)))
	return codes
}

// Error 是合成失败的结构化描述：稳定的类别、原始状态码以及后端诊断信息。
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("tts: %s (code=%d)", e.Kind, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按类别比较，使 errors.Is(err, ErrDictionaryMiss) 成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == 0 && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// 按类别比较用的哨兵错误。
var (
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrEngineCreateFailed   = &Error{Kind: KindEngineCreateFailed}
	ErrInvalidArguments     = &Error{Kind: KindInvalidArguments}
	ErrDictionaryMiss       = &Error{Kind: KindDictionaryMiss}
	ErrDataMissing          = &Error{Kind: KindDataMissing}
	ErrFallbackDisabled     = &Error{Kind: KindFallbackDisabled}
	ErrFallbackInitFailed   = &Error{Kind: KindFallbackInitFailed}
	ErrEmptyPhonemes        = &Error{Kind: KindEmptyPhonemes}
	ErrTokenMiss            = &Error{Kind: KindTokenMiss}
	ErrInvalidHandle        = &Error{Kind: KindInvalidHandle}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrInferenceEmptyOutput = &Error{Kind: KindInferenceEmptyOutput}
	ErrAudioWriteFailed     = &Error{Kind: KindAudioWriteFailed}
	ErrUnknown              = &Error{Kind: KindUnknown}
)

// statusError 根据后端状态码构造 Error。
func statusError(code int, detail string) *Error {
	return &Error{Kind: KindOf(code), Code: code, Message: detail}
}

// localError 构造不经过后端的本地失败，Code 取对应状态码（若有）。
func localError(kind Kind, msg string, err error) *Error {
	code, _ := StatusOf(kind)
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}
