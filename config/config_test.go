package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VOLSEG_CONFIG_PATH", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sam2_hiera_tiny", cfg.Model.Variant)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "volseg.db", cfg.Ledger.DBPath)
	assert.NotEmpty(t, cfg.Onnx.LibPath)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volseg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
onnx:
  lib_path: /opt/ort/libonnxruntime.so
  num_threads: 4
model:
  variant: sam2_hiera_large
checkpoint:
  dir: /data/weights
  base_url: https://example.invalid/sam2
log:
  level: debug
`), 0o644))

	t.Setenv("VOLSEG_CONFIG_PATH", path)
	t.Setenv("VOLSEG_LOG_LEVEL", "warn")
	t.Setenv("VOLSEG_ONNX_USE_CUDA", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.Onnx.LibPath)
	assert.Equal(t, 4, cfg.Onnx.NumThreads)
	assert.True(t, cfg.Onnx.UseCuda)
	assert.Equal(t, "sam2_hiera_large", cfg.Model.Variant)
	assert.Equal(t, "warn", cfg.Log.Level)
	// 未出现在文件中的项保持默认值
	assert.Equal(t, "volseg.db", cfg.Ledger.DBPath)

	p := cfg.Provider()
	assert.Equal(t, "/data/weights", p.Dir)
	assert.Equal(t, "https://example.invalid/sam2", p.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("VOLSEG_CONFIG_PATH", "")
	t.Setenv("VOLSEG_ONNX_NUM_THREADS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestConfig_SAM2(t *testing.T) {
	cfg := Default()
	cfg.Onnx.NumThreads = 2
	cfg.Model.DecoderPath = "/models/decoder.onnx"

	sc := cfg.SAM2("/weights/sam2_hiera_tiny")
	assert.Equal(t, "/weights/sam2_hiera_tiny/vision_encoder.onnx", sc.EncodeModelPath)
	assert.Equal(t, "/models/decoder.onnx", sc.DecodeModelPath)
	assert.Equal(t, 2, sc.NumThreads)
	assert.Equal(t, cfg.Onnx.LibPath, sc.OnnxRuntimeLibPath)
}
