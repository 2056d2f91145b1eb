package volseg

import (
	"fmt"
	"github.com/getcharzp/volseg/volume"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sort"
	"strconv"
)

// TextDrawer 文本绘制工具
type TextDrawer struct {
	font     *opentype.Font
	face     font.Face
	fontSize float64
}

// NewTextDrawer 创建文本绘制工具
//
// # Params:
//
//	fontPath: 字体路径
func NewTextDrawer(fontPath string) (*TextDrawer, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("打开字体文件失败：%w", err)
	}
	return NewTextDrawerFromBytes(fontBytes)
}

// NewTextDrawerFromBytes 从字体数据创建文本绘制工具, fontBytes 为空时使用内置 Go 字体
func NewTextDrawerFromBytes(fontBytes []byte) (*TextDrawer, error) {
	if len(fontBytes) == 0 {
		fontBytes = goregular.TTF
	}
	ttFont, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败：%w", err)
	}

	d := &TextDrawer{font: ttFont}
	if err := d.SetSize(12); err != nil {
		return nil, err
	}
	return d, nil
}

// SetSize 动态调整字体大小
//
// # Params:
//
//	fontSize: 字体大小
func (d *TextDrawer) SetSize(fontSize float64) error {
	if d.face != nil && d.fontSize == fontSize {
		return nil
	}

	// 释放旧 Face 内存
	if d.face != nil {
		d.face.Close()
	}

	nf, err := opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}

	d.face = nf
	d.fontSize = fontSize
	return nil
}

// DrawText 绘制文本, (x, y) 为基线起点
func (d *TextDrawer) DrawText(img draw.Image, text string, x, y int, c color.Color) {
	d1 := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: d.face,
		Dot:  fixed.P(x, y),
	}
	d1.DrawString(text)
}

// DrawCenteredText 以 (x, y) 为中心绘制文本
func (d *TextDrawer) DrawCenteredText(img draw.Image, text string, x, y int, c color.Color) {
	width := font.MeasureString(d.face, text).Round()
	m := d.face.Metrics()
	height := (m.Ascent - m.Descent).Round()
	d.DrawText(img, text, x-width/2, y+height/2, c)
}

// Close 释放资源
func (d *TextDrawer) Close() {
	if d.face != nil {
		d.face.Close()
	}
}

// Palette 目标颜色表, 按目标 ID 循环取色
var Palette = []color.RGBA{
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 255, G: 225, B: 25, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
	{R: 145, G: 30, B: 180, A: 255},
	{R: 70, G: 240, B: 240, A: 255},
	{R: 240, G: 50, B: 230, A: 255},
	{R: 210, G: 245, B: 60, A: 255},
	{R: 250, G: 190, B: 212, A: 255},
}

// ColorOf 目标 ID 对应的颜色, 背景为透明
func ColorOf(id int32) color.RGBA {
	if id == volume.Background {
		return color.RGBA{}
	}
	n := int32(len(Palette))
	return Palette[((id-1)%n+n)%n]
}

// RenderOverlay 在帧上叠加标签颜色, 并在每个目标的质心处绘制 ID
//
// # Params:
//
//	frame: 原始帧, 尺寸需与 mask 一致
//	mask: 单帧标签
//	drawer: 文本绘制工具, 为 nil 时不绘制 ID
//	alpha: 标签颜色的不透明度, 取值 [0, 1]
func RenderOverlay(frame image.Image, mask *volume.Mask, drawer *TextDrawer, alpha float64) (*image.RGBA, error) {
	b := frame.Bounds()
	if b.Dx() != mask.Width || b.Dy() != mask.Height {
		return nil, fmt.Errorf("帧尺寸 %dx%d 与标签尺寸 %dx%d 不一致", b.Dx(), b.Dy(), mask.Width, mask.Height)
	}
	alpha = min(max(alpha, 0), 1)

	dst := image.NewRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)

	type centroid struct{ sx, sy, n int }
	centroids := make(map[int32]*centroid)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			id := mask.At(x, y)
			if id == volume.Background {
				continue
			}
			c := ColorOf(id)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = blend(dst.Pix[i+0], c.R, alpha)
			dst.Pix[i+1] = blend(dst.Pix[i+1], c.G, alpha)
			dst.Pix[i+2] = blend(dst.Pix[i+2], c.B, alpha)

			ct := centroids[id]
			if ct == nil {
				ct = new(centroid)
				centroids[id] = ct
			}
			ct.sx += x
			ct.sy += y
			ct.n++
		}
	}

	if drawer != nil {
		ids := make([]int32, 0, len(centroids))
		for id := range centroids {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			ct := centroids[id]
			drawer.DrawCenteredText(dst, strconv.Itoa(int(id)), ct.sx/ct.n, ct.sy/ct.n, color.White)
		}
	}
	return dst, nil
}

func blend(dst, src uint8, alpha float64) uint8 {
	return uint8(float64(dst)*(1-alpha) + float64(src)*alpha + 0.5)
}
