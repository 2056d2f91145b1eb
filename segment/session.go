package segment

import (
	"context"
	"fmt"
	"github.com/getcharzp/volseg/prompt"
	"github.com/getcharzp/volseg/volume"
	"github.com/google/uuid"
	"log/slog"
	"slices"
	"sync"
)

// PointLayers 外部维护的正、负点图层, nil 表示该图层不存在
type PointLayers struct {
	Positive []prompt.Cursor
	Negative []prompt.Cursor
}

// Session 绑定一个推理状态和一个帧序列
//
// 同一时刻只允许一个操作, 并发调用返回 ErrBusy。
type Session struct {
	ID string

	predictor Predictor
	state     State
	ledger    *prompt.Ledger
	labels    *volume.Labels
	merger    *Merger
	logger    *slog.Logger

	mu sync.Mutex
}

// NewSession 在帧目录上初始化会话
//
// # Params:
//
//	predictor: 分割模型
//	framesDir: Materialize 生成的帧目录
//	labels: 外部持有的标签体, 与帧序列对齐
//	logger: 日志, 可为 nil
func NewSession(ctx context.Context, predictor Predictor, framesDir string, labels *volume.Labels, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if predictor == nil {
		return nil, fmt.Errorf("%w: 未提供模型", ErrModelInitialization)
	}
	if framesDir == "" {
		return nil, fmt.Errorf("%w: 帧目录为空", ErrModelInitialization)
	}

	state, err := predictor.InitState(ctx, framesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInitialization, err)
	}

	id := uuid.NewString()
	s := &Session{
		ID:        id,
		predictor: predictor,
		state:     state,
		ledger:    prompt.NewLedger(),
		labels:    labels,
		logger:    logger.With("session", id),
	}
	s.merger = NewMerger(predictor, s.logger)
	s.logger.Info("会话已初始化", "frames_dir", framesDir, "frames", state.Frames())
	return s, nil
}

// Ledger 会话的提示账本
func (s *Session) Ledger() *prompt.Ledger {
	return s.ledger
}

// State 模型推理状态
func (s *Session) State() State {
	return s.state
}

// Labels 当前绑定的标签体
func (s *Session) Labels() *volume.Labels {
	return s.labels
}

// BindLabels 切换输出标签体
func (s *Session) BindLabels(labels *volume.Labels) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()
	s.labels = labels
	return nil
}

// AddPoint 记录一次点击并立即推理该帧
//
// 点被追加到账本中 (objectID, 帧) 的记录, 然后以累积的全部点调用 AddPrompt。
func (s *Session) AddPoint(ctx context.Context, objectID int, c prompt.Cursor, pol prompt.Polarity) (*volume.Mask, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()
	return s.addPoint(ctx, objectID, c, pol)
}

// AddPrompt 以给定的点提示推理单帧, 合成结果覆盖标签体中的该帧
func (s *Session) AddPrompt(ctx context.Context, objectID, frame int, points []prompt.Point, polarities []prompt.Polarity) (*volume.Mask, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()
	return s.addPrompt(ctx, objectID, frame, points, polarities)
}

// Reset 重置模型状态并把标签体全部置为背景
//
// 账本不受影响, 需要时由调用方自行 Ledger().Clear()。
func (s *Session) Reset(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	labels, err := s.resolveLabels()
	if err != nil {
		return err
	}
	if err := s.predictor.ResetState(ctx, s.state); err != nil {
		return fmt.Errorf("重置模型状态失败: %w", err)
	}
	labels.Zero()
	s.logger.Info("会话已重置")
	return nil
}

// PropagateAndMerge 双向传播并合并到标签体
func (s *Session) PropagateAndMerge(ctx context.Context, fn ProgressFunc) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	labels, err := s.resolveLabels()
	if err != nil {
		return err
	}
	return s.merger.PropagateAndMerge(ctx, s.state, labels, fn)
}

// ResetAndPropagate 清空账本, 用点图层重建提示后传播
//
// 先回放正点图层, 再回放负点图层, 图层内按插入顺序, 全部归属 objectID。
// 模型状态不会被重置。
func (s *Session) ResetAndPropagate(ctx context.Context, objectID int, layers PointLayers, fn ProgressFunc) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	labels, err := s.resolveLabels()
	if err != nil {
		return err
	}

	s.ledger.Clear()
	replay := []struct {
		points []prompt.Cursor
		pol    prompt.Polarity
	}{
		{layers.Positive, prompt.Positive},
		{layers.Negative, prompt.Negative},
	}
	for _, r := range replay {
		for _, c := range r.points {
			if _, err := s.addPoint(ctx, objectID, c, r.pol); err != nil {
				return err
			}
		}
	}
	s.logger.Info("点图层已回放", "positive", len(layers.Positive), "negative", len(layers.Negative))

	return s.merger.PropagateAndMerge(ctx, s.state, labels, fn)
}

// Restore 回放一份账本, 重建会话的提示
//
// 每条 (目标, 帧) 记录只推理一次, 使用该记录的全部点。
// l 为会话自身的账本时只重新推理, 不再写入账本。
func (s *Session) Restore(ctx context.Context, l *prompt.Ledger) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	labels, err := s.resolveLabels()
	if err != nil {
		return err
	}
	own := l == s.ledger
	for _, p := range slices.Collect(l.Replay()) {
		if len(p.Points) == 0 {
			continue
		}
		if err := checkFrame(labels, p.Frame); err != nil {
			return err
		}
		entry := p.Entry
		if !own {
			for i, pt := range p.Points {
				entry = s.ledger.Add(p.ObjectID, p.Frame, pt, p.Polarities[i])
			}
		}
		if _, err := s.addPrompt(ctx, p.ObjectID, p.Frame, entry.Points, entry.Polarities); err != nil {
			return err
		}
	}
	s.logger.Info("账本已回放", "entries", l.Len())
	return nil
}

// Close 释放模型状态持有的资源
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.state.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *Session) addPoint(ctx context.Context, objectID int, c prompt.Cursor, pol prompt.Polarity) (*volume.Mask, error) {
	labels, err := s.resolveLabels()
	if err != nil {
		return nil, err
	}
	// 越界的点不进入账本
	if err := checkFrame(labels, c.Frame); err != nil {
		return nil, err
	}
	entry := s.ledger.Add(objectID, c.Frame, c.Point(), pol)
	return s.addPrompt(ctx, objectID, c.Frame, entry.Points, entry.Polarities)
}

func (s *Session) addPrompt(ctx context.Context, objectID, frame int, points []prompt.Point, polarities []prompt.Polarity) (*volume.Mask, error) {
	labels, err := s.resolveLabels()
	if err != nil {
		return nil, err
	}
	if err := checkFrame(labels, frame); err != nil {
		return nil, err
	}
	if len(points) == 0 || len(points) != len(polarities) {
		return nil, fmt.Errorf("%w: 点数 (%d) 与极性数 (%d) 不匹配", ErrModelInference, len(points), len(polarities))
	}

	out, err := s.predictor.AddPoints(ctx, s.state, frame, objectID, points, polarities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInference, err)
	}
	mask, err := composite(out, labels.Width, labels.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInference, err)
	}
	if err := labels.SetFrame(frame, mask); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelResolution, err)
	}

	s.logger.Debug("点提示已应用", "object", objectID, "frame", frame, "points", len(points))
	return mask, nil
}

func checkFrame(labels *volume.Labels, frame int) error {
	if frame < 0 || frame >= labels.Frames {
		return fmt.Errorf("%w: 帧索引越界 %d", ErrModelInference, frame)
	}
	return nil
}

// resolveLabels 在任何修改操作前确认标签体仍然存在且与帧序列对齐
func (s *Session) resolveLabels() (*volume.Labels, error) {
	if s.labels == nil {
		return nil, fmt.Errorf("%w: 未绑定标签体", ErrChannelResolution)
	}
	w, h := s.state.Size()
	l := s.labels
	if l.Frames != s.state.Frames() || l.Width != w || l.Height != h {
		return nil, fmt.Errorf("%w: 标签体 %dx%dx%d 与帧序列 %dx%dx%d 不一致",
			ErrChannelResolution, l.Frames, l.Height, l.Width, s.state.Frames(), h, w)
	}
	return l, nil
}
