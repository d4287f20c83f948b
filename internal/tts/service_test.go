package tts

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerateSpeech_SameConfigTwice(t *testing.T) {
	b := newFakeBackend()
	svc := NewService(b, nil, t.TempDir())
	defer svc.Release()

	ctx := context.Background()
	a1, err := svc.GenerateSpeech(ctx, testConfig(), "Привет", 1.0)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	a2, err := svc.GenerateSpeech(ctx, testConfig(), "Как дела?", 1.0)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if n := b.count("create"); n != 1 {
		t.Errorf("expected exactly one engine creation, got %d", n)
	}
	if n := b.count("generate"); n != 2 {
		t.Errorf("expected two synthesis calls, got %d", n)
	}
	if a1.Path == a2.Path {
		t.Errorf("each call should get its own output file")
	}
	for _, a := range []*GeneratedAudio{a1, a2} {
		if !strings.HasSuffix(a.Path, ".wav") {
			t.Errorf("unexpected output path %q", a.Path)
		}
		if _, err := os.Stat(a.Path); err != nil {
			t.Errorf("output file missing: %v", err)
		}
	}
}

func TestGenerateSpeech_ConfigChangeRecreates(t *testing.T) {
	b := newFakeBackend()
	svc := NewService(b, nil, t.TempDir())

	ctx := context.Background()
	cfg := testConfig()
	svc.GenerateSpeech(ctx, cfg, "один", 1.0)
	cfg.SpeakerID = 2
	svc.GenerateSpeech(ctx, cfg, "два", 1.0)

	if n := b.count("create"); n != 2 {
		t.Errorf("expected 2 creates, got %d", n)
	}
	if n := b.count("release"); n != 1 {
		t.Errorf("expected 1 release, got %d", n)
	}

	svc.Release()
	svc.Release()
	if n := b.count("release"); n != 2 {
		t.Errorf("expected release on shutdown exactly once, got %d", n)
	}
}

func TestGenerateSpeech_SpeedDefaultsToConfig(t *testing.T) {
	b := newFakeBackend()
	svc := NewService(b, nil, t.TempDir())
	defer svc.Release()

	if _, err := svc.GenerateSpeech(context.Background(), testConfig(), "text", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateSpeech_BackendFailureIsTyped(t *testing.T) {
	b := newFakeBackend()
	b.status = StatusDictionaryMiss
	svc := NewService(b, nil, t.TempDir())
	defer svc.Release()

	cfg := testConfig()
	cfg.Mode = ModeDictionaryOnly
	_, err := svc.GenerateSpeech(context.Background(), cfg, "unknown", 1.0)
	if !errors.Is(err, ErrDictionaryMiss) {
		t.Fatalf("expected DictionaryMiss, got %v", err)
	}
	// 失败的合成不会丢弃引擎
	if _, _, ok := svc.Cache().Current(); !ok {
		t.Errorf("engine should stay cached after a synthesis failure")
	}
}

func TestGenerateSpeech_RecreatesAfterInvalidHandle(t *testing.T) {
	b := newFakeBackend()
	svc := NewService(b, nil, t.TempDir())
	defer svc.Release()

	ctx := context.Background()
	if _, err := svc.GenerateSpeech(ctx, testConfig(), "раз", 1.0); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	h, _, _ := svc.Cache().Current()
	b.forget(h)

	if _, err := svc.GenerateSpeech(ctx, testConfig(), "два", 1.0); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected InvalidHandle, got %v", err)
	}
	for _, text := range []string{"три", "четыре"} {
		if _, err := svc.GenerateSpeech(ctx, testConfig(), text, 1.0); err != nil {
			t.Fatalf("call after recovery failed: %v", err)
		}
	}
	if n := b.count("create"); n != 2 {
		t.Errorf("expected the engine to be recreated once, got %d creates", n)
	}
	if h2, _, ok := svc.Cache().Current(); !ok || h2 == h {
		t.Errorf("expected a fresh cached handle, got %d (ok=%v)", h2, ok)
	}
}

func TestGenerateSpeech_CancelDiscardsResult(t *testing.T) {
	b := newFakeBackend()
	b.block = make(chan struct{})
	b.generateSeen = make(chan struct{}, 1)
	dir := t.TempDir()
	svc := NewService(b, nil, dir)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.GenerateSpeech(ctx, testConfig(), "long text", 1.0)
		errCh <- err
	}()

	<-b.generateSeen
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// 原生调用不可抢占：放行后它会完成，结果被丢弃
	close(b.block)
	svc.Release()

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := os.ReadDir(dir)
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("abandoned output should be removed, found %d files", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := b.count("generate"); n != 1 {
		t.Errorf("in-flight call should still complete once, got %d", n)
	}
}

func TestGenerateSpeech_CanceledBeforeStart(t *testing.T) {
	b := newFakeBackend()
	svc := NewService(b, nil, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.GenerateSpeech(ctx, testConfig(), "text", 1.0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls := b.history(); len(calls) != 0 {
		t.Errorf("backend must not be called, got %v", calls)
	}
}

func TestService_ReleaseConcurrentWithRequests(t *testing.T) {
	b := newFakeBackend()
	svc := NewService(b, nil, t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := svc.GenerateSpeech(context.Background(), testConfig(), "текст", 1.0); err != nil {
					errs <- err
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		svc.Release()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("request failed: %v", err)
	}

	svc.Release()
	if b.liveCount() != 0 {
		t.Errorf("expected no live handle after Release, got %d", b.liveCount())
	}
	if s := svc.Cache().Stats(); s.Creates != s.Releases {
		t.Errorf("unbalanced lifecycle: %s", s)
	}
}

func TestSession_NewerRequestSupersedes(t *testing.T) {
	b := newFakeBackend()
	b.block = make(chan struct{})
	b.generateSeen = make(chan struct{}, 2)
	svc := NewService(b, nil, t.TempDir())
	se := svc.NewSession(context.Background())

	first := se.Speak(testConfig(), "первый", 1.0)
	<-b.generateSeen
	second := se.Speak(testConfig(), "второй", 1.0)

	r1 := <-first
	if !errors.Is(r1.Err, context.Canceled) {
		t.Errorf("superseded request should be canceled, got %v", r1.Err)
	}

	close(b.block)
	r2 := <-second
	if r2.Err != nil {
		t.Fatalf("latest request failed: %v", r2.Err)
	}
	if r2.Audio.SampleRate != 22050 {
		t.Errorf("unexpected sample rate %d", r2.Audio.SampleRate)
	}
	svc.Release()
}

func TestSession_Cancel(t *testing.T) {
	b := newFakeBackend()
	b.block = make(chan struct{})
	b.generateSeen = make(chan struct{}, 1)
	svc := NewService(b, nil, t.TempDir())
	se := svc.NewSession(context.Background())

	res := se.Speak(testConfig(), "отмена", 1.0)
	<-b.generateSeen
	se.Cancel()
	se.Cancel()

	if r := <-res; !errors.Is(r.Err, context.Canceled) || r.Audio != nil {
		t.Fatalf("expected context.Canceled without audio, got %+v", r)
	}

	close(b.block)
	r := <-se.Speak(testConfig(), "снова", 1.0)
	if r.Err != nil {
		t.Fatalf("session should accept requests after Cancel: %v", r.Err)
	}
	svc.Release()
}
