package volume

import (
	"fmt"
)

// Number 支持的像素元素类型
type Number interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~int64 | ~float32 | ~float64
}

// Volume 图像体数据，帧优先存储
//
//	Shape 为 (H, W) 时视为单帧
//	Shape 为 (N, H, W) 时为 N 帧
type Volume struct {
	Shape []int
	Data  any // []uint8, []int8, []uint16, []int16, []uint32, []int32, []int64, []float32, []float64
}

// New 创建体数据并校验元素数量
//
// # Params:
//
//	data: 像素数据
//	shape: 形状, 元素个数必须与 data 长度一致
func New[T Number](data []T, shape ...int) (*Volume, error) {
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("非法的形状: %v", shape)
		}
		n *= s
	}
	if len(shape) == 0 || n != len(data) {
		return nil, fmt.Errorf("形状 %v 与数据长度 %d 不匹配", shape, len(data))
	}
	return &Volume{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Rank 维度数
func (v *Volume) Rank() int {
	return len(v.Shape)
}

// Frames 帧数, 二维图像返回 1
func (v *Volume) Frames() int {
	if len(v.Shape) == 3 {
		return v.Shape[0]
	}
	return 1
}

// Size 单帧宽高
func (v *Volume) Size() (width, height int) {
	n := len(v.Shape)
	if n < 2 {
		return 0, 0
	}
	return v.Shape[n-1], v.Shape[n-2]
}

// Slice 返回第 i 帧的数据视图, 与 Data 共享底层数组
func (v *Volume) Slice(i int) (any, error) {
	if i < 0 || i >= v.Frames() {
		return nil, fmt.Errorf("帧索引越界: %d", i)
	}
	w, h := v.Size()
	lo, hi := i*w*h, (i+1)*w*h
	switch d := v.Data.(type) {
	case []uint8:
		return d[lo:hi], nil
	case []int8:
		return d[lo:hi], nil
	case []uint16:
		return d[lo:hi], nil
	case []int16:
		return d[lo:hi], nil
	case []uint32:
		return d[lo:hi], nil
	case []int32:
		return d[lo:hi], nil
	case []int64:
		return d[lo:hi], nil
	case []float32:
		return d[lo:hi], nil
	case []float64:
		return d[lo:hi], nil
	default:
		return nil, fmt.Errorf("不支持的数据类型: %T", v.Data)
	}
}
