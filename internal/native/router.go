package native

import (
	"errors"
	"fmt"

	"github.com/iabetor/sherpa-tts/internal/logger"
	"github.com/iabetor/sherpa-tts/internal/tts"
)

// Route 是解析成功时实际使用的路线。
type Route int

const (
	RouteDictionary Route = iota
	RoutePhonetic
)

func (r Route) String() string {
	if r == RoutePhonetic {
		return "phonetic"
	}
	return "dictionary"
}

// Resolution 是一次发音解析的结果与诊断计数。
type Resolution struct {
	Route    Route
	TokenIDs []int64
	Trace    *tts.FrontendTrace

	DictionaryTokens int
	Phonemes         int
	Matched          int
}

// Router 按 tts.Step 的转换表执行发音解析。
type Router struct {
	Mode       tts.Mode
	Voice      string
	DataDir    string
	Tokens     *TokenTable
	Lexicon    *Lexicon
	Phonemizer Phonemizer
}

// Resolve 把文本解析为 token 序列。status 为 0 表示成功，否则为前端状态码。
func (r *Router) Resolve(text string) (res Resolution, status int) {
	if r.Tokens.Len() == 0 || text == "" {
		return res, tts.StatusInvalidArguments
	}

	tr := tts.NewFrontendTrace(r.Mode)
	res.Trace = tr
	fire := func(e tts.FrontendEvent) bool {
		if _, err := tr.Fire(e); err != nil {
			// 轨迹停在非终止状态，Status 按参数错误上报
			logger.Errorf("[native] %v", err)
			return true
		}
		return tr.Current().Terminal()
	}

	if tr.Current() == tts.StateTryDictionary {
		ids := dictionaryIDs(text, r.Lexicon, r.Tokens)
		res.DictionaryTokens = len(ids)
		if len(ids) > 0 {
			fire(tts.EventDictionaryHit)
			fire(tts.EventTokensMatched)
			res.Route = RouteDictionary
			res.TokenIDs = ids
			return res, tr.Status()
		}
		if fire(tts.EventDictionaryMiss) {
			return res, tr.Status()
		}
	}

	res.Route = RoutePhonetic
	phonemes, event := r.phonemize(text)
	res.Phonemes = len(phonemes)
	if fire(event) {
		return res, tr.Status()
	}

	ids, matched := r.mapPhonemes(phonemes)
	res.Matched = matched
	if matched == 0 {
		fire(tts.EventTokensMissing)
		return res, tr.Status()
	}
	fire(tts.EventTokensMatched)
	res.TokenIDs = ids
	return res, tr.Status()
}

func (r *Router) phonemize(text string) ([]string, tts.FrontendEvent) {
	if r.DataDir == "" {
		return nil, tts.EventDataMissing
	}
	if r.Phonemizer == nil {
		return nil, tts.EventFallbackDisabled
	}
	phonemes, err := r.Phonemizer.Phonemize(text, r.Voice, r.DataDir)
	switch {
	case errors.Is(err, ErrPhonemizerDisabled):
		return nil, tts.EventFallbackDisabled
	case err != nil:
		return nil, tts.EventFallbackInitFailed
	case len(phonemes) == 0:
		return nil, tts.EventPhonemesEmpty
	}
	return phonemes, tts.EventPhonemesReady
}

// mapPhonemes 将音素映射为 token。带包裹的音素引擎输出 "^ (id _)* $"，
// 特殊符号缺失时 matched 为 0。
func (r *Router) mapPhonemes(phonemes []string) (ids []int64, matched int) {
	if !r.Phonemizer.Framed() {
		ids = r.Tokens.IDs(phonemes)
		return ids, len(ids)
	}

	bos, ok1 := r.Tokens.ID("^")
	pad, ok2 := r.Tokens.ID("_")
	eos, ok3 := r.Tokens.ID("$")
	if !ok1 || !ok2 || !ok3 {
		return nil, 0
	}

	ids = append(ids, bos)
	for _, ph := range phonemes {
		if id, ok := r.Tokens.ID(ph); ok {
			ids = append(ids, id, pad)
			matched++
		}
	}
	ids = append(ids, eos)
	return ids, matched
}

// Detail 返回用于日志和错误信息的诊断描述。
func (res Resolution) Detail(r *Router) string {
	return fmt.Sprintf("mode=%s voice=%s tokens=%d lexicon=%d data_dir_empty=%t lexicon_tokens=%d phonemes=%d matched=%d",
		r.Mode, r.Voice, r.Tokens.Len(), r.Lexicon.Len(), r.DataDir == "",
		res.DictionaryTokens, res.Phonemes, res.Matched)
}
