package tts

// Handle 是后端引擎实例的不透明句柄，0 表示无效句柄。
type Handle uint64

// Backend 是原生合成后端的边界契约。
//
// 句柄由 EngineCache 独占持有，不可共享或复制；同一句柄不保证可被并发调用。
type Backend interface {
	// Create 按配置加载模型并返回可用句柄。失败时返回 0 和错误。
	Create(cfg Config) (Handle, error)

	// Generate 在句柄上执行一次合成，将 WAV 写入 outputPath。
	// 成功返回正的采样率，失败返回负的状态码，detail 为后端诊断信息。
	Generate(h Handle, text string, speed float32, outputPath string) (status int, detail string)

	// Release 销毁句柄。对 0 或已释放的句柄为空操作。
	Release(h Handle)
}

// GeneratedAudio 描述一次成功合成的输出，文件所有权归调用方。
type GeneratedAudio struct {
	SampleRate int
	Path       string
}
