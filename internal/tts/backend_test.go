package tts

import (
	"errors"
	"os"
	"sync"
)

// fakeBackend 记录生命周期调用，Generate 写入一个非空文件并返回 status。
type fakeBackend struct {
	mu        sync.Mutex
	next      Handle
	live      map[Handle]Config
	calls     []string
	generates []string

	createErr    error
	leakOnError  bool
	status       int
	detail       string
	skipWrite    bool
	block        chan struct{}
	generateSeen chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{live: make(map[Handle]Config), status: 22050}
}

func (f *fakeBackend) Create(cfg Config) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		if f.leakOnError {
			f.next++
			f.live[f.next] = cfg
			return f.next, f.createErr
		}
		return 0, f.createErr
	}
	f.next++
	f.live[f.next] = cfg
	return f.next, nil
}

func (f *fakeBackend) Generate(h Handle, text string, speed float32, out string) (int, string) {
	if f.generateSeen != nil {
		f.generateSeen <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "generate")
	f.generates = append(f.generates, text)
	if _, ok := f.live[h]; !ok {
		return StatusInvalidHandle, "unknown handle"
	}
	if f.status <= 0 {
		return f.status, f.detail
	}
	if !f.skipWrite {
		if err := os.WriteFile(out, []byte("RIFF....WAVE"), 0644); err != nil {
			return StatusAudioWriteFailed, err.Error()
		}
	}
	return f.status, ""
}

func (f *fakeBackend) Release(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[h]; !ok {
		return
	}
	f.calls = append(f.calls, "release")
	delete(f.live, h)
}

// forget 模拟后端侧句柄失效：句柄被丢弃，但不记录 release 调用。
func (f *fakeBackend) forget(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, h)
}

func (f *fakeBackend) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

var errModelLoad = errors.New("model load failed")

// staticProvisioner 返回固定目录，并统计调用次数。
type staticProvisioner struct {
	dir   string
	err   error
	calls int
}

func (p *staticProvisioner) Ensure() (string, error) {
	p.calls++
	return p.dir, p.err
}

func testConfig() Config {
	return Config{
		ModelPath:  "/models/ru_vits.onnx",
		TokensPath: "/models/tokens.txt",
		DataDir:    "/data/espeak-ng-data",
		Mode:       ModeAutomatic,
		Voice:      "ru",
		Speed:      1.0,
		NumThreads: 1,
	}
}
