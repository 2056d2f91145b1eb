package sam2

import (
	"context"
	"fmt"
	"github.com/getcharzp/volseg/framestore"
	"github.com/getcharzp/volseg/prompt"
	"github.com/getcharzp/volseg/segment"
	"github.com/up-zero/gotool/imageutil"
	"image"
	"iter"
	"log/slog"
)

// frameDecoder 单帧特征, 可以反复解码
type frameDecoder interface {
	Decode(points []Point) (*image.Gray, float32, error)
	Destroy()
}

// frameEncoder 帧特征提取
type frameEncoder interface {
	Encode(img image.Image) (frameDecoder, error)
}

type engineEncoder struct {
	engine *Engine
}

func (e engineEncoder) Encode(img image.Image) (frameDecoder, error) {
	return e.engine.EncodeImage(img)
}

// VideoPredictor 基于单帧 SAM2 的视频分割
//
// 每个目标使用传播方向上最近一个提示帧的点, 在当前帧重新解码。
// 正向传播只向后携带提示, 反向传播只向前携带, 两次结果由调用方合并。
type VideoPredictor struct {
	encoder frameEncoder
	logger  *slog.Logger
}

// NewVideoPredictor 创建视频分割器
func NewVideoPredictor(engine *Engine, logger *slog.Logger) *VideoPredictor {
	return newVideoPredictor(engineEncoder{engine: engine}, logger)
}

func newVideoPredictor(enc frameEncoder, logger *slog.Logger) *VideoPredictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoPredictor{encoder: enc, logger: logger}
}

// videoState 帧序列和全部提示
type videoState struct {
	frames        []string
	width, height int

	objects []int                   // 目标注册顺序
	prompts map[int]map[int][]Point // 目标 -> 帧 -> 点

	cachedFrame int
	cached      frameDecoder
}

func (s *videoState) Frames() int {
	return len(s.frames)
}

func (s *videoState) Size() (int, int) {
	return s.width, s.height
}

// Close 释放缓存的帧特征
func (s *videoState) Close() error {
	s.dropCache()
	return nil
}

func (s *videoState) dropCache() {
	if s.cached != nil {
		s.cached.Destroy()
		s.cached = nil
	}
}

// InitState 读取帧目录, 以首帧尺寸为准
func (p *VideoPredictor) InitState(ctx context.Context, framesDir string) (segment.State, error) {
	paths, err := framestore.ListFrames(framesDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("帧目录 %s 中没有帧", framesDir)
	}
	img, err := imageutil.Open(paths[0])
	if err != nil {
		return nil, fmt.Errorf("打开首帧失败: %w", err)
	}

	b := img.Bounds()
	p.logger.Debug("推理状态已创建", "frames", len(paths), "width", b.Dx(), "height", b.Dy())
	return &videoState{
		frames:      paths,
		width:       b.Dx(),
		height:      b.Dy(),
		prompts:     make(map[int]map[int][]Point),
		cachedFrame: -1,
	}, nil
}

// AddPoints 替换 (objectID, frame) 的点, 返回该帧上全部目标的 mask
func (p *VideoPredictor) AddPoints(ctx context.Context, state segment.State, frame, objectID int, points []prompt.Point, polarities []prompt.Polarity) (segment.FrameMasks, error) {
	s, err := asVideoState(state)
	if err != nil {
		return segment.FrameMasks{}, err
	}
	if frame < 0 || frame >= len(s.frames) {
		return segment.FrameMasks{}, fmt.Errorf("帧索引越界: %d", frame)
	}
	if len(points) == 0 || len(points) != len(polarities) {
		return segment.FrameMasks{}, fmt.Errorf("点数 (%d) 与极性数 (%d) 不匹配", len(points), len(polarities))
	}

	pts := make([]Point, len(points))
	for i, pt := range points {
		pts[i] = Point{X: pt.X, Y: pt.Y, Label: labelOf(polarities[i])}
	}
	if _, ok := s.prompts[objectID]; !ok {
		s.prompts[objectID] = make(map[int][]Point)
		s.objects = append(s.objects, objectID)
	}
	s.prompts[objectID][frame] = pts

	dec, err := p.encode(ctx, s, frame)
	if err != nil {
		return segment.FrameMasks{}, err
	}
	return p.decodeFrame(s, dec, frame, func(obj int) []Point {
		return s.prompts[obj][frame]
	})
}

// Propagate 从 start 开始逐帧解码, 每帧只提取一次特征
func (p *VideoPredictor) Propagate(ctx context.Context, state segment.State, start int, reverse bool) iter.Seq2[segment.FrameMasks, error] {
	return func(yield func(segment.FrameMasks, error) bool) {
		s, err := asVideoState(state)
		if err != nil {
			yield(segment.FrameMasks{}, err)
			return
		}

		step := 1
		if reverse {
			step = -1
		}
		for f := start; f >= 0 && f < len(s.frames); f += step {
			if err := ctx.Err(); err != nil {
				yield(segment.FrameMasks{}, err)
				return
			}
			dec, err := p.encode(ctx, s, f)
			if err != nil {
				yield(segment.FrameMasks{}, err)
				return
			}
			out, err := p.decodeFrame(s, dec, f, func(obj int) []Point {
				return s.carried(obj, f, reverse)
			})
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}

// ResetState 清除全部目标和提示
func (p *VideoPredictor) ResetState(ctx context.Context, state segment.State) error {
	s, err := asVideoState(state)
	if err != nil {
		return err
	}
	s.objects = nil
	s.prompts = make(map[int]map[int][]Point)
	s.dropCache()
	s.cachedFrame = -1
	return nil
}

// carried 返回目标在第 f 帧可用的点: 传播方向上不晚于 f 的最近提示帧
func (s *videoState) carried(obj, f int, reverse bool) []Point {
	best := -1
	for frame := range s.prompts[obj] {
		behind := frame <= f
		if reverse {
			behind = frame >= f
		}
		if !behind {
			continue
		}
		if best < 0 || abs(frame-f) < abs(best-f) {
			best = frame
		}
	}
	if best < 0 {
		return nil
	}
	return s.prompts[obj][best]
}

// encode 提取第 frame 帧的特征, 只缓存最近一帧
func (p *VideoPredictor) encode(ctx context.Context, s *videoState, frame int) (frameDecoder, error) {
	if s.cached != nil && s.cachedFrame == frame {
		return s.cached, nil
	}
	img, err := imageutil.Open(s.frames[frame])
	if err != nil {
		return nil, fmt.Errorf("打开第 %d 帧失败: %w", frame, err)
	}
	if b := img.Bounds(); b.Dx() != s.width || b.Dy() != s.height {
		return nil, fmt.Errorf("第 %d 帧尺寸 %dx%d 与首帧 %dx%d 不一致", frame, b.Dx(), b.Dy(), s.width, s.height)
	}
	dec, err := p.encoder.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("第 %d 帧特征提取失败: %w", frame, err)
	}
	s.dropCache()
	s.cached, s.cachedFrame = dec, frame
	return dec, nil
}

// decodeFrame 按注册顺序解码每个目标, 没有可用提示的目标为空 mask
func (p *VideoPredictor) decodeFrame(s *videoState, dec frameDecoder, frame int, pointsOf func(obj int) []Point) (segment.FrameMasks, error) {
	out := segment.FrameMasks{
		Frame:     frame,
		ObjectIDs: make([]int, 0, len(s.objects)),
		Masks:     make([]*image.Gray, 0, len(s.objects)),
	}
	for _, obj := range s.objects {
		pts := pointsOf(obj)
		mask := emptyMask(s.width, s.height)
		if len(pts) > 0 {
			m, score, err := dec.Decode(pts)
			if err != nil {
				return segment.FrameMasks{}, fmt.Errorf("目标 %d 第 %d 帧解码失败: %w", obj, frame, err)
			}
			p.logger.Debug("mask 已解码", "object", obj, "frame", frame, "score", score)
			mask = m
		}
		out.ObjectIDs = append(out.ObjectIDs, obj)
		out.Masks = append(out.Masks, mask)
	}
	return out, nil
}

func asVideoState(state segment.State) (*videoState, error) {
	s, ok := state.(*videoState)
	if !ok || s == nil {
		return nil, fmt.Errorf("无效的推理状态: %T", state)
	}
	return s, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
