package lexicon

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/sherpa-tts/internal/database"
	"github.com/iabetor/sherpa-tts/internal/logger"
)

// Store 是基于 SQLite 的自定义词典存储。
type Store struct {
	db *database.DB
}

// NewStore 创建词典存储，db 需已完成迁移。
func NewStore(db *database.DB) *Store {
	s := &Store{db: db}
	logger.Infof("[lexicon] 自定义词典已加载，共 %d 个词条", s.Count())
	return s
}

// Put 新增或更新一个词条。
func (s *Store) Put(word string, phonemes []string) error {
	word = NormalizeWord(word)
	if word == "" || strings.ContainsAny(word, " \t") {
		return fmt.Errorf("词无效: %q", word)
	}
	ph := strings.Join(strings.Fields(strings.Join(phonemes, " ")), " ")
	if ph == "" {
		return fmt.Errorf("词 %q 缺少音素", word)
	}

	_, err := s.db.Exec(`INSERT INTO custom_lexicon (word, phonemes) VALUES (?, ?)
		ON CONFLICT(word) DO UPDATE SET phonemes = excluded.phonemes, updated_at = CURRENT_TIMESTAMP`,
		word, ph)
	if err != nil {
		return fmt.Errorf("保存词条失败: %w", err)
	}
	logger.Debugf("[lexicon] 已保存词条: %s -> %s", word, ph)
	return nil
}

// Delete 删除词条，返回是否存在。
func (s *Store) Delete(word string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM custom_lexicon WHERE word = ?`, NormalizeWord(word))
	if err != nil {
		return false, fmt.Errorf("删除词条失败: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Get 查询词条，不存在时返回 nil。
func (s *Store) Get(word string) (*Entry, error) {
	var ph string
	err := s.db.QueryRow(`SELECT phonemes FROM custom_lexicon WHERE word = ?`, NormalizeWord(word)).Scan(&ph)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查询词条失败: %w", err)
	}
	return &Entry{Word: NormalizeWord(word), Phonemes: strings.Fields(ph)}, nil
}

// List 返回所有词条，按词排序。
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT word, phonemes FROM custom_lexicon ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("查询词典失败: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var word, ph string
		if err := rows.Scan(&word, &ph); err != nil {
			return nil, fmt.Errorf("读取词条失败: %w", err)
		}
		entries = append(entries, Entry{Word: word, Phonemes: strings.Fields(ph)})
	}
	return entries, rows.Err()
}

// Count 返回词条数量，查询失败时记录警告并返回 0。
func (s *Store) Count() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM custom_lexicon`).Scan(&n); err != nil {
		logger.Warnf("[lexicon] 统计词条失败: %v", err)
		return 0
	}
	return n
}

// ImportText 用 text 的内容替换整个词典。
// text 中任意一行格式错误时返回 *InvalidLineError，词典保持不变。
func (s *Store) ImportText(text string) (int, error) {
	entries, err := Parse(strings.NewReader(text))
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM custom_lexicon`); err != nil {
		return 0, fmt.Errorf("清空词典失败: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.Exec(`INSERT INTO custom_lexicon (word, phonemes) VALUES (?, ?)`,
			e.Word, strings.Join(e.Phonemes, " ")); err != nil {
			return 0, fmt.Errorf("导入词条 %q 失败: %w", e.Word, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Infof("[lexicon] 已导入 %d 个词条", len(entries))
	return len(entries), nil
}

// Export 将词典写成引擎可加载的文本文件，返回文件路径。
func (s *Store) Export(path string) (string, error) {
	entries, err := s.List()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("创建词典目录失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("写入词典文件失败: %w", err)
	}

	if _, err := s.db.Exec(`INSERT INTO lexicon_exports (path, entries) VALUES (?, ?)`, path, len(entries)); err != nil {
		logger.Warnf("[lexicon] 记录导出失败: %v", err)
	}
	logger.Infof("[lexicon] 已导出 %d 个词条到 %s", len(entries), path)
	return path, nil
}
