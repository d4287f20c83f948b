package native

import (
	"strings"
	"unicode/utf8"
)

// 全角标点，作为独立的词保留。
var widePunct = map[rune]bool{
	'，': true, '。': true, '！': true, '？': true, '；': true, '：': true, '、': true,
	'…': true, '—': true, '–': true, '（': true, '）': true, '《': true, '》': true,
	'【': true, '】': true, '「': true, '」': true, '『': true, '』': true,
}

func isASCIIPunct(r rune) bool {
	return r < utf8.RuneSelf && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r)
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// splitWords 按空白和标点切分文本，标点作为单独的词保留，
// 使 "слово," 中的词仍能命中词典。
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	for _, r := range text {
		switch {
		case isASCIISpace(r):
			flush()
		case isASCIIPunct(r) || widePunct[r]:
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// dictionaryIDs 是词典路线：词典命中的词取音素 id，否则尝试整词，
// 再逐字符查表。结果为空且文本含空格时，按空格分隔的符号重试（如 "n i2 h ao3"）。
func dictionaryIDs(text string, lex *Lexicon, tokens *TokenTable) []int64 {
	if tokens.Len() == 0 {
		return nil
	}

	var ids []int64
	for _, w := range splitWords(text) {
		if ph, ok := lex.Phonemes(w); ok {
			ids = append(ids, tokens.IDs(ph)...)
			continue
		}
		if id, ok := tokens.ID(w); ok {
			ids = append(ids, id)
			continue
		}
		for _, r := range w {
			if id, ok := tokens.ID(string(r)); ok {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 && strings.Contains(text, " ") {
		ids = tokens.IDs(strings.Fields(text))
	}
	return ids
}
