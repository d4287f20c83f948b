package native

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/iabetor/sherpa-tts/internal/lexicon"
)

// TokenTable 是模型词表：符号到 token id 的映射。
//
// 文件每行 "符号 id"。只有一个整数的行表示空格符号，
// 因为空格本身在按空白切分时会丢失。
type TokenTable struct {
	ids map[string]int64
}

// LoadTokenTable 从文件加载词表，空词表视为错误。
func LoadTokenTable(path string) (*TokenTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 tokens 文件失败: %w", err)
	}
	defer f.Close()

	t, err := ParseTokenTable(f)
	if err != nil {
		return nil, fmt.Errorf("解析 tokens 文件失败 path=%s: %w", path, err)
	}
	return t, nil
}

// ParseTokenTable 从 r 解析词表。
func ParseTokenTable(r io.Reader) (*TokenTable, error) {
	t := &TokenTable{ids: make(map[string]int64)}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		sym, idText := " ", fields[0]
		if len(fields) >= 2 {
			sym, idText = fields[0], fields[1]
		}
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil || id < 0 {
			continue
		}
		t.ids[sym] = id
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(t.ids) == 0 {
		return nil, fmt.Errorf("词表为空")
	}
	return t, nil
}

// Len 返回符号数量。
func (t *TokenTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ids)
}

// ID 返回符号对应的 id。
func (t *TokenTable) ID(sym string) (int64, bool) {
	id, ok := t.ids[sym]
	return id, ok
}

// IDs 将符号序列映射为 id，跳过词表中不存在的符号。
func (t *TokenTable) IDs(symbols []string) []int64 {
	ids := make([]int64, 0, len(symbols))
	for _, s := range symbols {
		if id, ok := t.ids[s]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Lexicon 是引擎加载的发音词典。
type Lexicon struct {
	words map[string][]string
}

// LoadLexicon 加载词典文件。格式错误的行被跳过并记录数量。
func LoadLexicon(path string) (*Lexicon, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("打开词典失败: %w", err)
	}
	defer f.Close()

	entries, skipped, err := lexicon.ParseLenient(f)
	if err != nil {
		return nil, skipped, err
	}
	return NewLexicon(entries), skipped, nil
}

// NewLexicon 由词条构造词典，重复的词以最后一个为准。
func NewLexicon(entries []lexicon.Entry) *Lexicon {
	l := &Lexicon{words: make(map[string][]string, len(entries))}
	for _, e := range entries {
		l.words[e.Word] = e.Phonemes
	}
	return l
}

// Len 返回词条数量。
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.words)
}

// Phonemes 返回词的音素序列。
func (l *Lexicon) Phonemes(word string) ([]string, bool) {
	if l == nil {
		return nil, false
	}
	ph, ok := l.words[word]
	return ph, ok
}
