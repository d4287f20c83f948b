package tts

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestEnsure_EqualConfigReusesHandle(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)

	h1, err := c.Ensure(testConfig())
	if err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	before := len(b.history())

	h2, err := c.Ensure(testConfig())
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected identical handle, got %d and %d", h1, h2)
	}
	if after := len(b.history()); after != before {
		t.Errorf("second Ensure should not call backend, calls %v", b.history())
	}
}

func TestEnsure_DifferentConfigReplaces(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)

	h1, _ := c.Ensure(testConfig())

	other := testConfig()
	other.Voice = "en-us"
	h2, err := c.Ensure(other)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if h1 == h2 {
		t.Errorf("expected a new handle")
	}

	want := []string{"create", "release", "create"}
	if got := b.history(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
	if b.liveCount() != 1 {
		t.Errorf("expected exactly one live handle, got %d", b.liveCount())
	}
	if _, cfg, ok := c.Current(); !ok || cfg != other {
		t.Errorf("cache key should be the new config")
	}
}

func TestEnsure_CreateFailureLeavesCacheEmpty(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)

	b.createErr = errModelLoad
	_, err := c.Ensure(testConfig())
	if !errors.Is(err, ErrEngineCreateFailed) {
		t.Fatalf("expected EngineCreateFailed, got %v", err)
	}
	if !errors.Is(err, errModelLoad) {
		t.Errorf("expected backend cause to be wrapped")
	}
	if _, _, ok := c.Current(); ok {
		t.Errorf("cache should hold no handle after failure")
	}

	// 下一次调用重试创建而不是复用失败的实例
	b.createErr = nil
	h, err := c.Ensure(testConfig())
	if err != nil || h == 0 {
		t.Fatalf("retry should succeed, got %d %v", h, err)
	}
	if n := b.count("create"); n != 2 {
		t.Errorf("expected 2 create calls, got %d", n)
	}
}

func TestEnsure_FailedReplacementDropsOldHandle(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)
	c.Ensure(testConfig())

	b.createErr = errModelLoad
	other := testConfig()
	other.ModelPath = "/missing.onnx"
	if _, err := c.Ensure(other); err == nil {
		t.Fatalf("expected failure")
	}
	if b.liveCount() != 0 {
		t.Errorf("old handle should be released before replacement, live=%d", b.liveCount())
	}
}

func TestEnsure_GuardReleasesPartialHandle(t *testing.T) {
	b := newFakeBackend()
	b.createErr = errModelLoad
	b.leakOnError = true
	c := NewEngineCache(b)

	if _, err := c.Ensure(testConfig()); err == nil {
		t.Fatalf("expected failure")
	}
	if b.liveCount() != 0 {
		t.Errorf("handle returned with an error must be released, live=%d", b.liveCount())
	}
}

func TestRelease_Idempotent(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)
	c.Ensure(testConfig())

	c.Release()
	c.Release()

	if n := b.count("release"); n != 1 {
		t.Errorf("expected exactly one release call, got %d", n)
	}
	if _, _, ok := c.Current(); ok {
		t.Errorf("cache should be empty after release")
	}

	// 释放后重新 Ensure 会重新创建
	c.Ensure(testConfig())
	if n := b.count("create"); n != 2 {
		t.Errorf("expected re-creation after release, got %d creates", n)
	}
}

func TestRelease_EmptyCacheIsNoop(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)
	c.Release()
	if calls := b.history(); len(calls) != 0 {
		t.Errorf("expected no backend calls, got %v", calls)
	}
}

func TestWith_SerializesCalls(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		cfg := testConfig()
		cfg.SpeakerID = i % 2
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.With(cfg, func(h Handle) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				if _, key, _ := c.currentUnlocked(); key != cfg {
					t.Errorf("handle used under a superseded config")
				}

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected serialized calls, saw %d concurrent", maxSeen)
	}
	if b.liveCount() != 1 {
		t.Errorf("expected one live handle, got %d", b.liveCount())
	}
	if s := c.Stats(); s.Creates-s.Releases != 1 {
		t.Errorf("unbalanced lifecycle: %s", s)
	}
}

func TestWith_InvalidHandleDiscardsEngine(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)
	cfg := testConfig()

	err := c.With(cfg, func(h Handle) error {
		return statusError(StatusInvalidHandle, "unknown handle")
	})
	if !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected InvalidHandle, got %v", err)
	}
	if _, _, ok := c.Current(); ok {
		t.Fatalf("invalid handle should not stay cached")
	}

	if err := c.With(cfg, func(Handle) error { return nil }); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if s := c.Stats(); s.Creates != 2 || s.Releases != 1 {
		t.Errorf("expected 2 creates and 1 release, got %s", s)
	}
}

func TestWith_OtherFailuresKeepEngine(t *testing.T) {
	b := newFakeBackend()
	c := NewEngineCache(b)

	for _, code := range []int{StatusDictionaryMiss, StatusTokenMiss, StatusInferenceEmptyOutput, StatusAudioWriteFailed} {
		err := c.With(testConfig(), func(Handle) error { return statusError(code, "") })
		if err == nil {
			t.Fatalf("code %d: expected error", code)
		}
		if _, _, ok := c.Current(); !ok {
			t.Errorf("code %d: engine should stay cached", code)
		}
	}
	if s := c.Stats(); s.Creates != 1 {
		t.Errorf("expected a single create, got %s", s)
	}
}

// currentUnlocked 在已持有互斥区时读取缓存状态，仅供测试使用。
func (c *EngineCache) currentUnlocked() (Handle, Config, bool) {
	return c.handle, c.key, c.handle != 0
}
