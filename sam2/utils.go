package sam2

import (
	"image"
	"slices"
)

// normalizeAndPad 归一化和填充
//
// 帧为灰度图时三个通道取相同的值, 右侧和下方补 0。
func normalizeAndPad(src image.Image, targetW, targetH int) []float32 {
	bounds := src.Bounds()
	w, h := min(bounds.Dx(), targetW), min(bounds.Dy(), targetH)
	plane := targetW * targetH
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 0-65535
			rf := (float32(r)/65535.0 - MeanR) / StdR
			gf := (float32(g)/65535.0 - MeanG) / StdG
			bf := (float32(b)/65535.0 - MeanB) / StdB

			// 目标索引 (CHW)
			idx := y*targetW + x
			data[idx] = rf
			data[plane+idx] = gf
			data[2*plane+idx] = bf
		}
	}
	return data
}

// upscaleMaskLogits 最近邻放大到原图尺寸并二值化
//
// # Params:
//
//	logits: 解码输出的单个 mask, 行宽为 logitsDim
//	validW, validH: logits 中对应原图 (未填充) 的区域
//	dstW, dstH: 原图尺寸
func upscaleMaskLogits(logits []float32, logitsDim, validW, validH, dstW, dstH int) []uint8 {
	output := make([]uint8, dstW*dstH)
	validW, validH = max(validW, 1), max(validH, 1)
	xRatio := float32(validW) / float32(dstW)
	yRatio := float32(validH) / float32(dstH)

	for y := 0; y < dstH; y++ {
		srcY := min(int(float32(y)*yRatio), validH-1)
		for x := 0; x < dstW; x++ {
			srcX := min(int(float32(x)*xRatio), validW-1)
			if logits[srcY*logitsDim+srcX] > maskThreshold {
				output[y*dstW+x] = 255
			}
		}
	}
	return output
}

// emptyMask 全背景 mask
func emptyMask(width, height int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, width, height))
}

// emptyBoxes 空框输入, 形状 (1, 0, 4)
//
// 元素数由形状决定为 0, 数据保留一个元素以便取首地址。
func emptyBoxes() ([]int64, []float32) {
	return []int64{1, 0, 4}, make([]float32, 1)
}

// hasInput 模型是否声明了该输入
func hasInput(names []string, name string) bool {
	return slices.Contains(names, name)
}
