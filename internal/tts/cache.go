package tts

import (
	"errors"
	"fmt"
	"sync"

	"github.com/iabetor/sherpa-tts/internal/logger"
)

// CacheStats 记录 EngineCache 对后端发起的生命周期调用次数。
type CacheStats struct {
	Creates  int
	Releases int
}

// EngineCache 持有至多一个存活的后端句柄，并以配置相等性决定复用或重建。
//
// 整个 ensure/替换/释放序列以及在句柄上的调用都在同一个互斥区内执行：
// 调用方不会观察到替换到一半的句柄，也不会在已被新配置取代的句柄上合成。
type EngineCache struct {
	backend Backend

	mu     sync.Mutex
	key    Config
	handle Handle
	stats  CacheStats
}

// NewEngineCache 创建绑定到 backend 的引擎缓存。
func NewEngineCache(backend Backend) *EngineCache {
	return &EngineCache{backend: backend}
}

// Ensure 返回与 cfg 匹配的存活句柄，必要时释放旧句柄并创建新句柄。
func (c *EngineCache) Ensure(cfg Config) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(cfg)
}

// With 在同一互斥区内确保句柄并执行 fn，fn 返回前其他请求不能替换或使用该句柄。
// fn 报告句柄失效时丢弃缓存的句柄，下一次请求会重新创建引擎。
func (c *EngineCache) With(cfg Config, fn func(h Handle) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.ensureLocked(cfg)
	if err != nil {
		return err
	}

	err = fn(h)
	var te *Error
	if errors.As(err, &te) && te.Kind == KindInvalidHandle && c.handle == h {
		logger.Warnf("[tts] 后端不再识别句柄，丢弃缓存的引擎 (handle=%d)", h)
		c.releaseLocked()
	}
	return err
}

func (c *EngineCache) ensureLocked(cfg Config) (Handle, error) {
	if c.handle != 0 && c.key == cfg {
		return c.handle, nil
	}

	if c.handle != 0 {
		logger.Infof("[tts] 配置变化，释放旧引擎 (handle=%d)", c.handle)
		c.releaseLocked()
	}

	logger.Infof("[tts] 创建引擎: %s", cfg)
	h, err := c.create(cfg)
	if err != nil {
		return 0, err
	}

	c.handle = h
	c.key = cfg
	return h, nil
}

// create 调用后端创建句柄。后端在返回错误的同时返回了句柄时，由守卫释放该句柄，
// 保证失败路径上不会遗留存活资源。
func (c *EngineCache) create(cfg Config) (h Handle, err error) {
	c.stats.Creates++

	guard := Handle(0)
	defer func() {
		if guard != 0 {
			c.backend.Release(guard)
			c.stats.Releases++
		}
	}()

	h, err = c.backend.Create(cfg)
	if err != nil {
		guard = h
		logger.Warnf("[tts] 引擎创建失败: %v", err)
		return 0, localError(KindEngineCreateFailed, "后端拒绝加载", err)
	}
	if h == 0 {
		return 0, localError(KindEngineCreateFailed, "后端返回空句柄", nil)
	}
	return h, nil
}

// Release 销毁存活句柄并清空缓存键。幂等。
func (c *EngineCache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

func (c *EngineCache) releaseLocked() {
	if c.handle == 0 {
		return
	}
	c.backend.Release(c.handle)
	c.stats.Releases++
	logger.Infof("[tts] 引擎已释放 (handle=%d)", c.handle)
	c.handle = 0
	c.key = Config{}
}

// Current 返回当前存活句柄及其配置，没有存活句柄时 ok 为 false。
func (c *EngineCache) Current() (h Handle, cfg Config, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle, c.key, c.handle != 0
}

// Stats 返回生命周期调用计数的快照。
func (c *EngineCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (s CacheStats) String() string {
	return fmt.Sprintf("creates=%d releases=%d", s.Creates, s.Releases)
}
