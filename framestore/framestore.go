package framestore

import (
	"errors"
	"fmt"
	"github.com/getcharzp/volseg/volume"
	"github.com/up-zero/gotool/imageutil"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FrameExt 帧文件扩展名
const FrameExt = ".jpg"

// frameQuality 帧编码质量
const frameQuality = 100

// ErrUnsupportedDimensionality 体数据既不是二维也不是三维
var ErrUnsupportedDimensionality = errors.New("不支持的维度")

// FramePath 返回第 i 帧的规范路径, 形如 dir/0007.jpg
func FramePath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("%04d%s", i, FrameExt))
}

// Materialize 将体数据逐帧写为 8 位灰度图片
//
// 已存在的帧文件保持不变, 因此重复调用不会重新编码。
//
// # Params:
//
//	v: 体数据, 二维视为单帧, 三维按帧优先
//	dir: 输出目录, 不存在时自动创建
//	logger: 日志, 可为 nil
func Materialize(v *volume.Volume, dir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if r := v.Rank(); r != 2 && r != 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDimensionality, r)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建帧目录失败: %w", err)
	}

	width, height := v.Size()
	paths := make([]string, 0, v.Frames())
	written := 0
	for i := 0; i < v.Frames(); i++ {
		p := FramePath(dir, i)
		paths = append(paths, p)
		if _, err := os.Stat(p); err == nil {
			continue
		}

		slice, err := v.Slice(i)
		if err != nil {
			return nil, err
		}
		pix, err := toUint8(slice)
		if err != nil {
			return nil, fmt.Errorf("第 %d 帧归一化失败: %w", i, err)
		}

		img := image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, pix)
		if err := imageutil.Save(p, img, frameQuality); err != nil {
			return nil, fmt.Errorf("保存第 %d 帧失败: %w", i, err)
		}
		written++
	}

	logger.Info("帧序列已生成", "dir", dir, "frames", len(paths), "written", written)
	return paths, nil
}

// ListFrames 按帧序号列出目录中的帧文件
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取帧目录失败: %w", err)
	}

	type frame struct {
		idx  int
		path string
	}
	var frames []frame
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() || (ext != ".jpg" && ext != ".jpeg") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		frames = append(frames, frame{idx: idx, path: filepath.Join(dir, name)})
	}
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].idx < frames[j].idx
	})

	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.path
	}
	return paths, nil
}
