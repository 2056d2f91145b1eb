package prompt

import (
	"iter"
	"slices"
)

// Polarity 点提示的极性
type Polarity int

const (
	Negative Polarity = 0 // 排除
	Positive Polarity = 1 // 包含
)

// Point 帧内像素坐标
type Point struct {
	X, Y float32
}

// Cursor 三维光标位置 (帧, 行, 列)
type Cursor struct {
	Frame, Row, Col int
}

// Point 去掉帧分量, 行列转为 (x, y)
func (c Cursor) Point() Point {
	return Point{X: float32(c.Col), Y: float32(c.Row)}
}

// Entry 某个目标在某一帧上累积的点提示
type Entry struct {
	Frame      int
	Points     []Point
	Polarities []Polarity // 与 Points 一一对应
}

// Prompt 回放时产出的一条提示
type Prompt struct {
	ObjectID int
	Entry
}

type history struct {
	objectID int
	entries  []*Entry
	byFrame  map[int]*Entry
}

// Ledger 按目标、按帧累积点提示
//
// 同一 (目标, 帧) 只有一条记录, 新点只追加不删除。
// 非并发安全。
type Ledger struct {
	objects []*history
	index   map[int]*history
}

// NewLedger 创建空账本
func NewLedger() *Ledger {
	return &Ledger{index: make(map[int]*history)}
}

// Add 为 (objectID, frame) 追加一个点, 返回该记录追加后的副本
func (l *Ledger) Add(objectID, frame int, pt Point, pol Polarity) Entry {
	if l.index == nil {
		l.index = make(map[int]*history)
	}
	h, ok := l.index[objectID]
	if !ok {
		h = &history{objectID: objectID, byFrame: make(map[int]*Entry)}
		l.index[objectID] = h
		l.objects = append(l.objects, h)
	}
	e, ok := h.byFrame[frame]
	if !ok {
		e = &Entry{Frame: frame}
		h.byFrame[frame] = e
		h.entries = append(h.entries, e)
	}
	e.Points = append(e.Points, pt)
	e.Polarities = append(e.Polarities, pol)
	return e.clone()
}

// Entry 查询 (objectID, frame) 的记录副本
func (l *Ledger) Entry(objectID, frame int) (Entry, bool) {
	h, ok := l.index[objectID]
	if !ok {
		return Entry{}, false
	}
	e, ok := h.byFrame[frame]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Objects 按首次出现的顺序返回目标 ID
func (l *Ledger) Objects() []int {
	ids := make([]int, len(l.objects))
	for i, h := range l.objects {
		ids[i] = h.objectID
	}
	return ids
}

// Len 记录条数
func (l *Ledger) Len() int {
	n := 0
	for _, h := range l.objects {
		n += len(h.entries)
	}
	return n
}

// Clear 清空账本
func (l *Ledger) Clear() {
	l.objects = nil
	l.index = make(map[int]*history)
}

// Replay 按账本顺序惰性产出全部提示
//
// 顺序为目标首次出现的顺序, 目标内为帧首次出现的顺序。
func (l *Ledger) Replay() iter.Seq[Prompt] {
	return func(yield func(Prompt) bool) {
		for _, h := range l.objects {
			for _, e := range h.entries {
				if !yield(Prompt{ObjectID: h.objectID, Entry: e.clone()}) {
					return
				}
			}
		}
	}
}

func (e *Entry) clone() Entry {
	return Entry{
		Frame:      e.Frame,
		Points:     slices.Clone(e.Points),
		Polarities: slices.Clone(e.Polarities),
	}
}
