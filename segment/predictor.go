package segment

import (
	"context"
	"github.com/getcharzp/volseg/prompt"
	"image"
	"iter"
)

// State 模型持有的推理状态, 由 Predictor 创建, 对会话不透明
type State interface {
	// Frames 帧序列长度
	Frames() int
	// Size 帧尺寸
	Size() (width, height int)
}

// FrameMasks 模型在单帧上的输出
//
// ObjectIDs 与 Masks 一一对应, 顺序即模型自身的目标遍历顺序。
// Mask 中非零像素属于该目标。
type FrameMasks struct {
	Frame     int
	ObjectIDs []int
	Masks     []*image.Gray
}

// Predictor 可提示的视频分割模型
type Predictor interface {
	// InitState 在帧目录上初始化推理状态
	InitState(ctx context.Context, framesDir string) (State, error)
	// AddPoints 设置 (objectID, frame) 的点提示, 返回该帧上所有已跟踪目标的 mask
	AddPoints(ctx context.Context, state State, frame, objectID int, points []prompt.Point, polarities []prompt.Polarity) (FrameMasks, error)
	// Propagate 从 start 帧开始按方向传播, 惰性产出每帧的结果
	Propagate(ctx context.Context, state State, start int, reverse bool) iter.Seq2[FrameMasks, error]
	// ResetState 清除状态中的全部提示
	ResetState(ctx context.Context, state State) error
}
