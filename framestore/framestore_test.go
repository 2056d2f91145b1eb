package framestore

import (
	"errors"
	"github.com/getcharzp/volseg/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/up-zero/gotool/imageutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestToUint8_Uint8Bypass(t *testing.T) {
	in := []uint8{0, 1, 128, 255, 7}
	out, err := toUint8(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	// 同一底层数组, 未做任何拷贝
	assert.Same(t, &in[0], &out[0])
}

func TestToUint8_IntegerRanges(t *testing.T) {
	out, err := toUint8([]uint16{0, 65535, 32768})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 127}, out)

	out, err = toUint8([]int16{-32768, 32767, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 127}, out)

	// 其他类型使用帧内最小最大值
	out, err = toUint8([]int32{10, 20, 15})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 127}, out)
}

func TestToUint8_FloatBranches(t *testing.T) {
	// 最大值 0.5: 按 [0, 1] 拉伸
	out, err := toUint8([]float32{0, 0.25, 0.5})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 63, 127}, out)

	// 最大值 200: 上界为 255
	out, err = toUint8([]float64{0, 100.5, 200.5})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 100, 200}, out)

	// 最大值 300: 上界为最大值本身
	out, err = toUint8([]float64{0, 150, 300})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 127, 255}, out)

	// 负值截断为 0
	out, err = toUint8([]float32{-1, 1})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255}, out)
}

func TestToUint8_Degenerate(t *testing.T) {
	out, err := toUint8([]int32{42, 42, 42})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0}, out)

	out, err = toUint8([]float64{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMaterialize_UnsupportedDimensionality(t *testing.T) {
	v, err := volume.New(make([]uint8, 8), 2, 2, 2, 1)
	require.NoError(t, err)

	_, err = Materialize(v, t.TempDir(), nil)
	require.True(t, errors.Is(err, ErrUnsupportedDimensionality))
}

func TestMaterialize_SingleFrame(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "layer")
	v, err := volume.New([]uint16{0, 65535, 0, 65535}, 2, 2)
	require.NoError(t, err)

	paths, err := Materialize(v, dir, nil)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "0000.jpg")}, paths)

	img, err := imageutil.Open(paths[0])
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestMaterialize_Idempotent(t *testing.T) {
	dir := t.TempDir()
	data := make([]float32, 3*4*4)
	for i := range data {
		data[i] = float32(i) / float32(len(data))
	}
	v, err := volume.New(data, 3, 4, 4)
	require.NoError(t, err)

	first, err := Materialize(v, dir, nil)
	require.NoError(t, err)
	require.Len(t, first, 3)

	before := make(map[string][]byte)
	stamps := make(map[string]time.Time)
	for _, p := range first {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		before[p] = b
		info, err := os.Stat(p)
		require.NoError(t, err)
		stamps[p] = info.ModTime()
	}

	// 修改数据后再次生成, 已存在的帧不会被重新编码
	for i := range data {
		data[i] = 0
	}
	second, err := Materialize(v, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	for _, p := range second {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, before[p], b)
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, stamps[p], info.ModTime())
	}
}

func TestMaterialize_FillsMissingFrames(t *testing.T) {
	dir := t.TempDir()
	v, err := volume.New(make([]uint8, 3*2*2), 3, 2, 2)
	require.NoError(t, err)

	paths, err := Materialize(v, dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(paths[1]))

	_, err = Materialize(v, dir, nil)
	require.NoError(t, err)
	_, err = os.Stat(paths[1])
	require.NoError(t, err)
}

func TestListFrames_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0010.jpg", "0002.jpeg", "0001.jpg", "notes.txt", "abc.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003.jpg"), 0o755))

	paths, err := ListFrames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "0001.jpg"),
		filepath.Join(dir, "0002.jpeg"),
		filepath.Join(dir, "0010.jpg"),
	}, paths)

	_, err = ListFrames(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
