// Package datadir 准备音素引擎使用的 espeak-ng 语言数据目录。
package datadir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/iabetor/sherpa-tts/internal/logger"
)

// DirName 是数据根目录下语言数据目录的名称。
const DirName = "espeak-ng-data"

// RequiredFiles 是一个可用的语言数据目录必须包含的文件。
var RequiredFiles = []string{"phontab", "phonindex", "phondata", "intonations", "ru_dict"}

// Provisioner 确保 <root>/espeak-ng-data 存在且完整，必要时从 source 复制。
// 成功结果会被缓存，之后的调用直接返回。
type Provisioner struct {
	root   string
	source fs.FS

	mu  sync.Mutex
	dir string
}

// New 创建 Provisioner。source 为 nil 时只校验已有目录。
func New(root string, source fs.FS) *Provisioner {
	return &Provisioner{root: root, source: source}
}

// Target 返回目标目录路径。
func (p *Provisioner) Target() string {
	return filepath.Join(p.root, DirName)
}

// Ensure 返回可用的语言数据目录的绝对路径。
func (p *Provisioner) Ensure() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dir != "" {
		return p.dir, nil
	}

	target, err := filepath.Abs(p.Target())
	if err != nil {
		return "", fmt.Errorf("解析数据目录失败: %w", err)
	}

	if len(Missing(target)) == 0 {
		logger.Infof("[datadir] 复用语言数据目录: %s", target)
		p.dir = target
		return target, nil
	}

	if p.source == nil {
		return "", fmt.Errorf("语言数据目录不完整且没有可用的数据源，缺失: %s path=%s",
			strings.Join(Missing(target), ","), target)
	}

	size, err := p.copy(target)
	if err != nil {
		return "", err
	}

	if missing := Missing(target); len(missing) > 0 {
		return "", fmt.Errorf("语言数据目录不完整，缺失: %s path=%s", strings.Join(missing, ","), target)
	}

	logger.Infof("[datadir] 语言数据目录已准备: %s (%s)", target, humanize.Bytes(uint64(size)))
	p.dir = target
	return target, nil
}

// copy 先把 source 复制到同级临时目录，再替换 target，避免留下半复制的目录。
func (p *Provisioner) copy(target string) (int64, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return 0, fmt.Errorf("创建数据根目录失败: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, DirName+".tmp-")
	if err != nil {
		return 0, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := os.CopyFS(tmp, p.source); err != nil {
		return 0, fmt.Errorf("复制语言数据失败: %w", err)
	}
	size, err := treeSize(tmp)
	if err != nil {
		return 0, err
	}

	if err := os.RemoveAll(target); err != nil {
		return 0, fmt.Errorf("清理旧数据目录失败: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return 0, fmt.Errorf("替换数据目录失败: %w", err)
	}
	return size, nil
}

// Missing 返回 dir 中缺失的必需文件。dir 不存在时返回全部。
func Missing(dir string) []string {
	var missing []string
	for _, name := range RequiredFiles {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.IsDir() {
			missing = append(missing, name)
		}
	}
	return missing
}

func treeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("统计数据目录失败: %w", err)
	}
	return total, nil
}
