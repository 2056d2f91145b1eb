package volseg

import (
	"fmt"
	ort "github.com/getcharzp/onnxruntime_purego"
	"runtime"
	"sync"
)

// OnnxConfig ONNX Runtime 环境与会话选项
type OnnxConfig struct {
	OnnxEngine     *ort.Engine
	SessionOptions *ort.SessionOptions

	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	// 可选参数
	UseCuda           bool // (可选) 是否启用 CUDA
	NumThreads        int  // (可选) ONNX 线程数, 默认由CPU核心数决定
	EnableCpuMemArena bool // (可选) 是否开启 ONNX 内存池
}

var (
	engines   = make(map[string]*ort.Engine)
	enginesMu sync.Mutex
)

// New 初始化 ONNX 环境
//
// 同一个动态库只加载一次, 多个模型共享同一个 Engine。
func (cfg *OnnxConfig) New() error {
	if cfg.OnnxRuntimeLibPath == "" {
		return fmt.Errorf("OnnxRuntimeLibPath 不能为空")
	}

	enginesMu.Lock()
	engine, ok := engines[cfg.OnnxRuntimeLibPath]
	if !ok {
		var err error
		engine, err = ort.NewEngine(cfg.OnnxRuntimeLibPath)
		if err != nil {
			enginesMu.Unlock()
			return fmt.Errorf("初始化 ONNX Runtime 环境失败: %w", err)
		}
		engines[cfg.OnnxRuntimeLibPath] = engine
	}
	enginesMu.Unlock()

	// 创建会话选项 (设置线程)
	options, err := engine.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("创建 SessionOptions 失败: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(int32(cfg.NumThreads)); err != nil {
			return err
		}
	}
	if err := options.SetCpuMemArena(cfg.EnableCpuMemArena); err != nil {
		return fmt.Errorf("设置内存池失败: %w", err)
	}

	// 启用CUDA
	if cfg.UseCuda {
		if err := options.EnableCUDA(); err != nil {
			return fmt.Errorf("添加 CUDA 执行提供者失败: %w", err)
		}
	}

	cfg.OnnxEngine = engine
	cfg.SessionOptions = options
	return nil
}

// DefaultLibraryPath 根据运行时环境判断加载哪个库文件
func DefaultLibraryPath() string {
	baseDir := "./lib/"
	libName := "onnxruntime"

	// windows onnxruntime.dll
	if runtime.GOOS == "windows" {
		return baseDir + libName + ".dll"
	}

	// linux darwin ext
	var ext string
	switch runtime.GOOS {
	case "darwin":
		ext = "dylib"
	case "linux":
		ext = "so"
	default:
		return baseDir + libName + "_amd64.so" // 默认返回 linux amd64
	}

	// 拼接完整路径: ./lib/onnxruntime + _ + amd64/arm64 + . + so/dylib
	return fmt.Sprintf("%s%s_%s.%s", baseDir, libName, runtime.GOARCH, ext)
}
