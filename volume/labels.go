package volume

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Background 背景标签
const Background int32 = 0

// Mask 单帧标签图, 像素值为目标 ID, 0 为背景
type Mask struct {
	Width, Height int
	Pix           []int32
}

// NewMask 创建全背景的标签图
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]int32, width*height)}
}

// At 获取 (x, y) 处的目标 ID
func (m *Mask) At(x, y int) int32 {
	return m.Pix[y*m.Width+x]
}

// Paint 将 src 中非零像素写为 id, 覆盖已有的值
func (m *Mask) Paint(src *image.Gray, id int32) error {
	b := src.Bounds()
	if b.Dx() != m.Width || b.Dy() != m.Height {
		return fmt.Errorf("mask 尺寸 %dx%d 与帧尺寸 %dx%d 不一致", b.Dx(), b.Dy(), m.Width, m.Height)
	}
	for y := 0; y < m.Height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+m.Width]
		for x, v := range row {
			if v > 0 {
				m.Pix[y*m.Width+x] = id
			}
		}
	}
	return nil
}

// Gray16 转为 16 位灰度图, 像素值即目标 ID
//
// 目标 ID 必须在 [0, 65535] 内。
func (m *Mask) Gray16() (*image.Gray16, error) {
	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v < 0 || v > math.MaxUint16 {
			return nil, fmt.Errorf("目标 ID %d 超出 16 位范围", v)
		}
		img.SetGray16(i%m.Width, i/m.Width, color.Gray16{Y: uint16(v)})
	}
	return img, nil
}

// Labels 标签体, 与帧序列按索引对齐
type Labels struct {
	Frames, Height, Width int
	Pix                   []int32
}

// NewLabels 创建全背景的标签体
func NewLabels(frames, width, height int) *Labels {
	return &Labels{
		Frames: frames,
		Height: height,
		Width:  width,
		Pix:    make([]int32, frames*width*height),
	}
}

// Frame 返回第 i 帧的数据视图
func (l *Labels) Frame(i int) []int32 {
	n := l.Width * l.Height
	return l.Pix[i*n : (i+1)*n]
}

// Mask 复制第 i 帧为 Mask
func (l *Labels) Mask(i int) *Mask {
	m := NewMask(l.Width, l.Height)
	copy(m.Pix, l.Frame(i))
	return m
}

// SetFrame 用 m 覆盖第 i 帧
func (l *Labels) SetFrame(i int, m *Mask) error {
	if i < 0 || i >= l.Frames {
		return fmt.Errorf("帧索引越界: %d", i)
	}
	if m.Width != l.Width || m.Height != l.Height {
		return fmt.Errorf("mask 尺寸 %dx%d 与标签体 %dx%d 不一致", m.Width, m.Height, l.Width, l.Height)
	}
	copy(l.Frame(i), m.Pix)
	return nil
}

// Clone 深拷贝
func (l *Labels) Clone() *Labels {
	c := *l
	c.Pix = append([]int32(nil), l.Pix...)
	return &c
}

// Zero 全部重置为背景
func (l *Labels) Zero() {
	clear(l.Pix)
}

// SameShape 判断两个标签体形状是否一致
func (l *Labels) SameShape(o *Labels) bool {
	return l.Frames == o.Frames && l.Width == o.Width && l.Height == o.Height
}

// Maximum 逐元素取最大值, 写入 dst
//
// dst 可以与 a 或 b 相同
func Maximum(dst, a, b *Labels) error {
	if !a.SameShape(b) || !dst.SameShape(a) {
		return fmt.Errorf("标签体形状不一致")
	}
	for i := range dst.Pix {
		dst.Pix[i] = max(a.Pix[i], b.Pix[i])
	}
	return nil
}
