package volume

import (
	"fmt"
	"github.com/up-zero/gotool/imageutil"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
)

// Load 从切片图像文件读取体数据
//
// 单个文件得到二维数据, 多个文件按顺序堆叠为三维数据。
// 16 位灰度图保留为 uint16, 其余格式转为 8 位灰度。
func Load(paths ...string) (*Volume, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("没有输入文件")
	}

	var (
		width, height int
		wide          bool
		gray8         []uint8
		gray16        []uint16
	)
	for i, p := range paths {
		img, err := imageutil.Open(p)
		if err != nil {
			return nil, fmt.Errorf("打开图片 %s 失败: %w", p, err)
		}
		b := img.Bounds()
		if i == 0 {
			width, height = b.Dx(), b.Dy()
			_, wide = img.(*image.Gray16)
		} else if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("图片 %s 尺寸 %dx%d 与首帧 %dx%d 不一致", p, b.Dx(), b.Dy(), width, height)
		}

		if wide {
			gray16 = appendGray16(gray16, img)
		} else {
			gray8 = appendGray8(gray8, img)
		}
	}

	shape := []int{height, width}
	if len(paths) > 1 {
		shape = []int{len(paths), height, width}
	}
	if wide {
		return New(gray16, shape...)
	}
	return New(gray8, shape...)
}

func appendGray8(dst []uint8, img image.Image) []uint8 {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst = append(dst, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
	return dst
}

func appendGray16(dst []uint16, img image.Image) []uint16 {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst = append(dst, color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
		}
	}
	return dst
}
