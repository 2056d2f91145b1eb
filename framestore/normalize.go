package framestore

import (
	"fmt"
	"github.com/getcharzp/volseg/volume"
)

// toUint8 将单帧数据归一化到 8 位
//
//	uint8: 原样返回
//	uint16: [0, 65535]
//	int16: [-32768, 32767]
//	float32/float64: [0, 1], 最大值超过 1 时上界为 255 (最大值 < 256) 或最大值本身
//	其他: 帧内 [min, max]
func toUint8(slice any) ([]uint8, error) {
	switch s := slice.(type) {
	case []uint8:
		return s, nil
	case []uint16:
		return scale(s, 0, 65535), nil
	case []int16:
		return scale(s, -32768, 32767), nil
	case []float32:
		lo, hi := floatBounds(s)
		return scale(s, lo, hi), nil
	case []float64:
		lo, hi := floatBounds(s)
		return scale(s, lo, hi), nil
	case []int8:
		lo, hi := observedBounds(s)
		return scale(s, lo, hi), nil
	case []uint32:
		lo, hi := observedBounds(s)
		return scale(s, lo, hi), nil
	case []int32:
		lo, hi := observedBounds(s)
		return scale(s, lo, hi), nil
	case []int64:
		lo, hi := observedBounds(s)
		return scale(s, lo, hi), nil
	default:
		return nil, fmt.Errorf("不支持的数据类型: %T", slice)
	}
}

func floatBounds[T float32 | float64](s []T) (float64, float64) {
	hi := 1.0
	if _, m := observedBounds(s); m > 1.0 {
		hi = 255.0
		if m >= 256.0 {
			hi = m
		}
	}
	return 0, hi
}

func observedBounds[T volume.Number](s []T) (float64, float64) {
	if len(s) == 0 {
		return 0, 0
	}
	lo, hi := s[0], s[0]
	for _, v := range s[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return float64(lo), float64(hi)
}

// scale 线性拉伸到 [0, 255] 并截断, lo == hi 时返回全 0
func scale[T volume.Number](s []T, lo, hi float64) []uint8 {
	out := make([]uint8, len(s))
	if lo == hi {
		return out
	}
	for i, v := range s {
		f := (float64(v) - lo) / (hi - lo) * 255.0
		switch {
		case f <= 0 || f != f:
			out[i] = 0
		case f >= 255:
			out[i] = 255
		default:
			out[i] = uint8(f)
		}
	}
	return out
}
