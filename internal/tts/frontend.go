package tts

import "fmt"

// FrontendState 是发音解析状态机的状态。
// 状态机由后端执行，本层负责校验前置条件并解释终止状态。
type FrontendState int

const (
	// StateTryDictionary 在词典中查找整段输入。
	StateTryDictionary FrontendState = iota
	// StateTryPhoneticFallback 调用音素回退引擎。
	StateTryPhoneticFallback
	// StateTokenMap 将发音单元映射到模型词表。
	StateTokenMap
	// StateResolved 得到非空 token 序列。
	StateResolved
	// StateFailed：终止于失败，原因见 Transition.Failure。
	StateFailed
)

var frontendStateNames = [...]string{
	"TryDictionary",
	"TryPhoneticFallback",
	"TokenMap",
	"Resolved",
	"Failed",
}

func (s FrontendState) String() string {
	if s >= 0 && int(s) < len(frontendStateNames) {
		return frontendStateNames[s]
	}
	return "Unknown"
}

// Terminal 报告 s 是否为终止状态。
func (s FrontendState) Terminal() bool {
	return s == StateResolved || s == StateFailed
}

// FrontendEvent 是执行某个状态后得到的观察结果。
type FrontendEvent int

const (
	EventDictionaryHit FrontendEvent = iota
	EventDictionaryMiss
	EventDataMissing
	EventFallbackDisabled
	EventFallbackInitFailed
	EventPhonemesEmpty
	EventPhonemesReady
	EventTokensMatched
	EventTokensMissing
)

var frontendEventNames = [...]string{
	"DictionaryHit",
	"DictionaryMiss",
	"DataMissing",
	"FallbackDisabled",
	"FallbackInitFailed",
	"PhonemesEmpty",
	"PhonemesReady",
	"TokensMatched",
	"TokensMissing",
}

func (e FrontendEvent) String() string {
	if e >= 0 && int(e) < len(frontendEventNames) {
		return frontendEventNames[e]
	}
	return "Unknown"
}

// Transition 是一次状态转换的结果。Next 为 StateFailed 时 Failure 给出失败类别。
type Transition struct {
	Next    FrontendState
	Failure Kind
}

type stateEvent struct {
	state FrontendState
	event FrontendEvent
}

// fallbackTransitions 是音素回退及 token 映射阶段的转换表，与模式无关。
var fallbackTransitions = map[stateEvent]Transition{
	{StateTryPhoneticFallback, EventDataMissing}:        {StateFailed, KindDataMissing},
	{StateTryPhoneticFallback, EventFallbackDisabled}:   {StateFailed, KindFallbackDisabled},
	{StateTryPhoneticFallback, EventFallbackInitFailed}: {StateFailed, KindFallbackInitFailed},
	{StateTryPhoneticFallback, EventPhonemesEmpty}:      {StateFailed, KindEmptyPhonemes},
	{StateTryPhoneticFallback, EventPhonemesReady}:      {StateTokenMap, KindUnknown},
	{StateTokenMap, EventTokensMatched}:                 {StateResolved, KindUnknown},
	{StateTokenMap, EventTokensMissing}:                 {StateFailed, KindTokenMiss},
}

// InitialState 返回 mode 下状态机的起始状态。
//
//	auto          → TryDictionary
//	lexicon_first → TryDictionary
//	espeak_only   → TryPhoneticFallback
func InitialState(mode Mode) FrontendState {
	if mode == ModePhoneticFallbackOnly {
		return StateTryPhoneticFallback
	}
	return StateTryDictionary
}

// Step 根据模式、当前状态和事件返回下一步转换。
// 转换未定义（如 lexicon_first 模式进入音素回退）时返回 false。
//
//	TryDictionary       --hit-->   TokenMap
//	TryDictionary       --miss-->  Failed(DictionaryMiss)      (lexicon_first)
//	TryDictionary       --miss-->  TryPhoneticFallback          (auto)
//	TryPhoneticFallback --ready--> TokenMap
//	TryPhoneticFallback --其他-->  Failed(对应原因)
//	TokenMap            --matched--> Resolved
//	TokenMap            --missing--> Failed(TokenMiss)
func Step(mode Mode, s FrontendState, e FrontendEvent) (Transition, bool) {
	switch s {
	case StateTryDictionary:
		if mode == ModePhoneticFallbackOnly {
			return Transition{}, false
		}
		switch e {
		case EventDictionaryHit:
			return Transition{Next: StateTokenMap}, true
		case EventDictionaryMiss:
			if mode == ModeDictionaryOnly {
				return Transition{Next: StateFailed, Failure: KindDictionaryMiss}, true
			}
			return Transition{Next: StateTryPhoneticFallback}, true
		}
		return Transition{}, false
	case StateTryPhoneticFallback:
		if mode == ModeDictionaryOnly {
			return Transition{}, false
		}
	}

	t, ok := fallbackTransitions[stateEvent{s, e}]
	return t, ok
}

// FrontendTrace 记录一次解析所经过的状态，供诊断与测试使用。
type FrontendTrace struct {
	Mode    Mode
	States  []FrontendState
	Failure Kind
}

// NewFrontendTrace 创建从 InitialState(mode) 开始的轨迹。
func NewFrontendTrace(mode Mode) *FrontendTrace {
	return &FrontendTrace{Mode: mode, States: []FrontendState{InitialState(mode)}}
}

// Current 返回轨迹的当前状态。
func (t *FrontendTrace) Current() FrontendState {
	return t.States[len(t.States)-1]
}

// Fire 依据转换表推进轨迹。非法事件返回错误且不改变轨迹。
func (t *FrontendTrace) Fire(e FrontendEvent) (FrontendState, error) {
	cur := t.Current()
	if cur.Terminal() {
		return cur, fmt.Errorf("前端状态机已终止于 %s，忽略事件 %s", cur, e)
	}
	tr, ok := Step(t.Mode, cur, e)
	if !ok {
		return cur, fmt.Errorf("前端状态机非法转换: mode=%s state=%s event=%s", t.Mode, cur, e)
	}
	t.States = append(t.States, tr.Next)
	if tr.Next == StateFailed {
		t.Failure = tr.Failure
	}
	return tr.Next, nil
}

// Visited 报告轨迹是否经过状态 s。
func (t *FrontendTrace) Visited(s FrontendState) bool {
	for _, v := range t.States {
		if v == s {
			return true
		}
	}
	return false
}

// Status 返回轨迹终止时对应的后端状态码：成功返回 0，未终止返回 StatusInvalidArguments。
func (t *FrontendTrace) Status() int {
	switch t.Current() {
	case StateResolved:
		return 0
	case StateFailed:
		if code, ok := StatusOf(t.Failure); ok {
			return code
		}
	}
	return StatusInvalidArguments
}

// CheckPreconditions 在调用后端之前校验配置是否满足状态机的前置条件。
// espeak_only 模式没有词典可回退，数据目录为空无法恢复。
func CheckPreconditions(cfg Config) error {
	if !cfg.Mode.Valid() {
		return localError(KindInvalidConfiguration, fmt.Sprintf("未知的前端模式码 %d", int(cfg.Mode)), nil)
	}
	if cfg.Mode == ModePhoneticFallbackOnly && cfg.DataDir == "" {
		return localError(KindInvalidConfiguration, "espeak_only 模式需要可用的 data_dir（espeak-ng-data）", nil)
	}
	return nil
}

// Interpret 将后端返回的状态码解释为前端终止状态。
// 非前端失败的状态码返回 false。
func Interpret(code int) (FrontendState, Kind, bool) {
	if code > 0 {
		return StateResolved, KindUnknown, true
	}
	k := KindOf(code)
	if k.Group() != GroupFrontend {
		return StateFailed, k, false
	}
	return StateFailed, k, true
}
