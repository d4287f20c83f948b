package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/iabetor/sherpa-tts/internal/logger"
)

// Service 是面向调用方的合成入口：解析配置、确保引擎、执行合成并解释失败。
type Service struct {
	resolver  *Resolver
	cache     *EngineCache
	invoker   *Invoker
	outputDir string

	// mu 保证 wg.Add 不与 Release 中的 wg.Wait 并发
	mu sync.RWMutex
	wg sync.WaitGroup
}

// NewService 创建合成服务，生成的 WAV 写入 outputDir。
func NewService(backend Backend, p Provisioner, outputDir string) *Service {
	return &Service{
		resolver:  NewResolver(p),
		cache:     NewEngineCache(backend),
		invoker:   NewInvoker(backend),
		outputDir: outputDir,
	}
}

// Cache 返回服务使用的引擎缓存。
func (s *Service) Cache() *EngineCache {
	return s.cache
}

type outcome struct {
	audio *GeneratedAudio
	err   error
}

// GenerateSpeech 合成 text 并返回输出文件。speed <= 0 时使用配置中的语速。
//
// 配置校验失败立即返回，不触碰后端。其余工作在后台 goroutine 上执行；
// ctx 结束时立即返回 ctx.Err()，但已开始的原生调用不可抢占，
// 其结果到达后被丢弃，产生的输出文件会被删除。
func (s *Service) GenerateSpeech(ctx context.Context, cfg Config, text string, speed float32) (*GeneratedAudio, error) {
	resolved, err := s.resolver.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if speed <= 0 {
		speed = resolved.Speed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := filepath.Join(s.outputDir, fmt.Sprintf("generated_%s.wav", uuid.NewString()))
	done := make(chan outcome, 1)

	s.mu.RLock()
	s.wg.Add(1)
	s.mu.RUnlock()
	go func() {
		defer s.wg.Done()
		var res outcome
		res.err = s.cache.With(resolved, func(h Handle) error {
			audio, err := s.invoker.Synthesize(h, text, speed, out)
			res.audio = audio
			return err
		})
		done <- res
	}()

	select {
	case res := <-done:
		return res.audio, res.err
	case <-ctx.Done():
		go discard(done, out)
		return nil, ctx.Err()
	}
}

// discard 等待被放弃的请求完成，并清理其输出文件。
func discard(done <-chan outcome, out string) {
	res := <-done
	if res.err != nil {
		return
	}
	if err := os.Remove(res.audio.Path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("[tts] 清理被放弃的输出失败: %v", err)
		return
	}
	logger.Debugf("[tts] 请求已被放弃，丢弃结果: %s", out)
}

// Release 等待在途请求结束后销毁缓存的引擎，应在退出前调用。幂等。
// 等待期间新提交的请求会阻塞到 Release 返回，之后照常创建引擎。
func (s *Service) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()
	s.cache.Release()
}
