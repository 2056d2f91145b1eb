package segment

import (
	"context"
	"errors"
	"github.com/getcharzp/volseg/prompt"
	"image"
	"iter"
)

type fakeState struct {
	frames, width, height int
	closed                bool
}

func (s *fakeState) Frames() int {
	return s.frames
}

func (s *fakeState) Size() (int, int) {
	return s.width, s.height
}

func (s *fakeState) Close() error {
	s.closed = true
	return nil
}

type addCall struct {
	frame, objectID int
	points          []prompt.Point
	polarities      []prompt.Polarity
}

// fakePredictor 返回确定性 mask 的模型替身
type fakePredictor struct {
	frames, width, height int

	initErr error
	addErr  error
	// onAdd 在 AddPoints 内部调用, 可用于模拟重入
	onAdd func()
	// addMasks 为 AddPoints 生成输出, 为 nil 时在点所在像素标记当前目标
	addMasks func(frame, objectID int, points []prompt.Point) FrameMasks
	// propagated 为传播生成单帧输出
	propagated func(frame int, reverse bool) FrameMasks
	// failAt 方向上遇到该帧时返回错误, -1 表示不失败
	failAt        int
	failReverse   bool
	propagateErr  error
	afterFrame    func(frame int, reverse bool)
	skip          func(frame int, reverse bool) bool
	calls         []addCall
	resets        int
	propagateRuns []bool
	state         *fakeState
}

func newFakePredictor(frames, width, height int) *fakePredictor {
	return &fakePredictor{frames: frames, width: width, height: height, failAt: -1}
}

func (p *fakePredictor) InitState(ctx context.Context, framesDir string) (State, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}
	p.state = &fakeState{frames: p.frames, width: p.width, height: p.height}
	return p.state, nil
}

func (p *fakePredictor) AddPoints(ctx context.Context, state State, frame, objectID int, points []prompt.Point, polarities []prompt.Polarity) (FrameMasks, error) {
	p.calls = append(p.calls, addCall{
		frame:      frame,
		objectID:   objectID,
		points:     append([]prompt.Point(nil), points...),
		polarities: append([]prompt.Polarity(nil), polarities...),
	})
	if p.onAdd != nil {
		p.onAdd()
	}
	if p.addErr != nil {
		return FrameMasks{}, p.addErr
	}
	if p.addMasks != nil {
		return p.addMasks(frame, objectID, points), nil
	}
	m := p.blank()
	last := points[len(points)-1]
	m.Pix[int(last.Y)*m.Stride+int(last.X)] = 255
	return FrameMasks{Frame: frame, ObjectIDs: []int{objectID}, Masks: []*image.Gray{m}}, nil
}

func (p *fakePredictor) Propagate(ctx context.Context, state State, start int, reverse bool) iter.Seq2[FrameMasks, error] {
	p.propagateRuns = append(p.propagateRuns, reverse)
	return func(yield func(FrameMasks, error) bool) {
		step := 1
		if reverse {
			step = -1
		}
		for f := start; f >= 0 && f < p.frames; f += step {
			if f == p.failAt && reverse == p.failReverse {
				err := p.propagateErr
				if err == nil {
					err = errors.New("propagation exploded")
				}
				yield(FrameMasks{}, err)
				return
			}
			if p.skip != nil && p.skip(f, reverse) {
				continue
			}
			out := FrameMasks{Frame: f}
			if p.propagated != nil {
				out = p.propagated(f, reverse)
			}
			if !yield(out, nil) {
				return
			}
			if p.afterFrame != nil {
				p.afterFrame(f, reverse)
			}
		}
	}
}

func (p *fakePredictor) ResetState(ctx context.Context, state State) error {
	p.resets++
	return nil
}

func (p *fakePredictor) blank() *image.Gray {
	return image.NewGray(image.Rect(0, 0, p.width, p.height))
}

// full 返回全部为前景的 mask
func (p *fakePredictor) full() *image.Gray {
	m := p.blank()
	for i := range m.Pix {
		m.Pix[i] = 255
	}
	return m
}
