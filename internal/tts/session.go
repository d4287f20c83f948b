package tts

import (
	"context"
	"sync"
)

// Result 是 Session 异步请求的结果。
type Result struct {
	Audio *GeneratedAudio
	Err   error
}

// Session 维护"最新请求优先"的语义：新请求提交时取消同一会话中尚未完成的旧请求。
// 被取消的请求收到 context.Canceled，其原生调用仍会执行完毕但结果被丢弃。
type Session struct {
	svc    *Service
	parent context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSession 创建绑定到 svc 的会话，parent 结束时所有请求都会被取消。
func (s *Service) NewSession(parent context.Context) *Session {
	return &Session{svc: s, parent: parent}
}

// Speak 提交一个请求并取消之前未完成的请求。返回的通道恰好收到一个结果。
func (se *Session) Speak(cfg Config, text string, speed float32) <-chan Result {
	se.mu.Lock()
	if se.cancel != nil {
		se.cancel()
	}
	ctx, cancel := context.WithCancel(se.parent)
	se.cancel = cancel
	se.mu.Unlock()

	ch := make(chan Result, 1)
	go func() {
		defer cancel()
		audio, err := se.svc.GenerateSpeech(ctx, cfg, text, speed)
		ch <- Result{Audio: audio, Err: err}
	}()
	return ch
}

// Cancel 取消当前未完成的请求。
func (se *Session) Cancel() {
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.cancel != nil {
		se.cancel()
		se.cancel = nil
	}
}
