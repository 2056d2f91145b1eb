package segment

import (
	"context"
	"fmt"
	"github.com/getcharzp/volseg/volume"
	"log/slog"
)

// ProgressFunc 接收 [0, 100] 的进度值
type ProgressFunc func(percent int)

// progress 保证上报的进度单调不减
type progress struct {
	fn      ProgressFunc
	last    int
	started bool
}

func (p *progress) report(v int) {
	v = min(max(v, 0), 100)
	if p.started && v < p.last {
		v = p.last
	}
	p.started = true
	p.last = v
	if p.fn != nil {
		p.fn(v)
	}
}

// Merger 正向、反向各传播一次, 再逐像素取最大值合并
type Merger struct {
	predictor Predictor
	logger    *slog.Logger
}

// NewMerger 创建传播合并器
func NewMerger(predictor Predictor, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{predictor: predictor, logger: logger}
}

// PropagateAndMerge 双向传播并把合并结果写回 labels
//
// 正向进度为 [0, 50), 反向进度为 [50, 100), 最后固定上报 100。
// 任一方向失败时直接返回, labels 保持调用前的内容。
func (m *Merger) PropagateAndMerge(ctx context.Context, state State, labels *volume.Labels, fn ProgressFunc) error {
	total := labels.Frames
	if total <= 0 {
		return fmt.Errorf("%w: 标签体没有帧", ErrChannelResolution)
	}

	// 两个方向互相独立, 都从传播前的标签体开始
	forward := labels.Clone()
	reverse := labels.Clone()
	p := &progress{fn: fn}

	m.logger.Info("开始正向传播", "frames", total)
	err := m.pass(ctx, state, forward, 0, false, func(frame int) {
		p.report(frame * 50 / total)
	})
	if err != nil {
		return err
	}

	m.logger.Info("开始反向传播", "frames", total)
	baseline := -1
	err = m.pass(ctx, state, reverse, total-1, true, func(frame int) {
		raw := frame * 50 / total
		if baseline < 0 {
			baseline = raw
		}
		p.report(abs(baseline-raw) + 50)
	})
	if err != nil {
		return err
	}

	if err := volume.Maximum(labels, forward, reverse); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelResolution, err)
	}
	p.report(100)
	m.logger.Info("传播完成", "frames", total)
	return nil
}

// pass 消费一次传播序列, 每帧合成后写入 dst
func (m *Merger) pass(ctx context.Context, state State, dst *volume.Labels, start int, reverse bool, onFrame func(frame int)) error {
	for out, err := range m.predictor.Propagate(ctx, state, start, reverse) {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPropagation, err)
		}
		if out.Frame < 0 || out.Frame >= dst.Frames {
			return fmt.Errorf("%w: 帧索引越界 %d", ErrPropagation, out.Frame)
		}
		mask, err := composite(out, dst.Width, dst.Height)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPropagation, err)
		}
		if err := dst.SetFrame(out.Frame, mask); err != nil {
			return fmt.Errorf("%w: %w", ErrPropagation, err)
		}
		onFrame(out.Frame)

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrPropagation, err)
		}
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
