package sam2

import (
	"github.com/getcharzp/volseg"
	"github.com/getcharzp/volseg/prompt"
	"path/filepath"
)

type Label int

const (
	LabelBackground  Label = 0 // 背景/排除
	LabelForeground  Label = 1 // 前景/点击
	LabelBoxTopLeft  Label = 2 // 框选左上
	LabelBoxBotRight Label = 3 // 框选右下
)

// labelOf 点提示极性对应的解码标签
func labelOf(pol prompt.Polarity) Label {
	if pol == prompt.Positive {
		return LabelForeground
	}
	return LabelBackground
}

// 均值和方差常量
const (
	MeanG = 0.456
	MeanB = 0.406
	MeanR = 0.485

	StdG = 0.224
	StdB = 0.225
	StdR = 0.229
)

const (
	// inputSize 输入图片的长边尺寸
	inputSize = 1024
	// maskThreshold 阈值
	maskThreshold = 0.0
	// maskDim 解码输出的 mask 边长
	maskDim = 256
)

// 权重文件名
const (
	EncoderFile = "vision_encoder.onnx"
	DecoderFile = "prompt_encoder_mask_decoder.onnx"
)

type Point struct {
	X, Y  float32
	Label Label
}

// Config 配置项
type Config struct {
	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	EncodeModelPath    string // 图片特征提取模型
	DecodeModelPath    string // Mask解码模型

	// 可选参数
	UseCuda           bool // (可选) 是否启用 CUDA
	NumThreads        int  // (可选) ONNX 线程数, 默认由CPU核心数决定
	EnableCpuMemArena bool // (可选) 是否开启 ONNX 内存池
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return WeightsConfig("./sam2_weights")
}

// WeightsConfig 使用 dir 下的标准权重文件名
func WeightsConfig(dir string) Config {
	return Config{
		OnnxRuntimeLibPath: volseg.DefaultLibraryPath(),
		EncodeModelPath:    filepath.Join(dir, EncoderFile),
		DecodeModelPath:    filepath.Join(dir, DecoderFile),
	}
}
