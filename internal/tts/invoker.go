package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/sherpa-tts/internal/logger"
)

// Invoker 在一个已确保的句柄上驱动单次合成调用。失败原样上报，不做重试。
type Invoker struct {
	backend Backend
}

// NewInvoker 创建合成调用器。
func NewInvoker(backend Backend) *Invoker {
	return &Invoker{backend: backend}
}

// Synthesize 在句柄 h 上合成 text，输出写入 out。
// h 必须是最近一次 Ensure 返回的句柄，调用方需持有 EngineCache 的互斥区。
func (iv *Invoker) Synthesize(h Handle, text string, speed float32, out string) (*GeneratedAudio, error) {
	if h == 0 {
		return nil, localError(KindInvalidHandle, "句柄为空", nil)
	}
	if strings.TrimSpace(text) == "" || out == "" {
		return nil, localError(KindInvalidInput, "文本或输出路径为空", nil)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return nil, localError(KindAudioWriteFailed, "输出目录不可写", err)
	}

	status, detail := iv.backend.Generate(h, text, speed, out)
	state, kind, frontend := Interpret(status)
	if state != StateResolved {
		switch {
		case kind == KindUnknown:
			// 状态码集合是封闭的，出现未知码说明后端版本与本层不一致
			logger.Errorf("[tts] 后端返回未定义的状态码 %d: %s", status, detail)
		case frontend:
			logger.Warnf("[tts] 前端解析失败: %s (code=%d) %s", kind, status, detail)
		default:
			logger.Warnf("[tts] 合成失败: %s (code=%d) %s", kind, status, detail)
		}
		return nil, statusError(status, detail)
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return nil, localError(KindAudioWriteFailed,
			fmt.Sprintf("后端报告成功但输出文件不存在或为空: %s", out), err)
	}

	logger.Debugf("[tts] 合成完成: sample_rate=%d path=%s size=%d", status, out, info.Size())
	return &GeneratedAudio{SampleRate: status, Path: out}, nil
}
