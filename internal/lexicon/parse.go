// Package lexicon 实现自定义发音词典的解析、校验和存储。
//
// 词典文本每行一个词条：词本身，后接一个或多个以空白分隔的音素。
// 空行和以 # 开头的行被忽略。
package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Entry 是一个词条。
type Entry struct {
	Word     string
	Phonemes []string
}

// Line 返回词条的文本形式 "word ph1 ph2"。
func (e Entry) Line() string {
	return e.Word + " " + strings.Join(e.Phonemes, " ")
}

// InvalidLineError 表示某一行少于两个字段。
type InvalidLineError struct {
	Line int
	Text string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("词典第 %d 行格式错误（需要 \"词 音素...\"）: %q", e.Line, e.Text)
}

// NormalizeWord 将词规范化为 NFC 形式，词典查询与存储都使用该形式。
func NormalizeWord(w string) string {
	return norm.NFC.String(strings.TrimSpace(w))
}

// ParseLine 解析一行。ok 为 false 表示该行应被跳过（空行或注释）。
// 字段不足两个时返回错误。
func ParseLine(line string) (e Entry, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, false, fmt.Errorf("字段不足: %q", line)
	}
	return Entry{Word: NormalizeWord(fields[0]), Phonemes: fields[1:]}, true, nil
}

// Validate 检查词典文本，返回第一个格式错误的行。
func Validate(text string) error {
	_, err := Parse(strings.NewReader(text))
	return err
}

// Parse 严格解析词典文本，遇到第一个格式错误的行即返回 *InvalidLineError。
// 同一个词出现多次时以最后一次为准。
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	index := make(map[string]int)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Text()
		e, ok, err := ParseLine(raw)
		if err != nil {
			return nil, &InvalidLineError{Line: n, Text: raw}
		}
		if !ok {
			continue
		}
		if i, dup := index[e.Word]; dup {
			entries[i] = e
			continue
		}
		index[e.Word] = len(entries)
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取词典失败: %w", err)
	}
	return entries, nil
}

// ParseLenient 宽松解析：跳过格式错误的行，返回被跳过的行数。
// 供引擎加载词典文件使用。
func ParseLenient(r io.Reader) ([]Entry, int, error) {
	var entries []Entry
	skipped := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		e, ok, err := ParseLine(sc.Text())
		if err != nil {
			skipped++
			continue
		}
		if ok {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("读取词典失败: %w", err)
	}
	return entries, skipped, nil
}
