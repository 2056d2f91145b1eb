package config

import (
	"fmt"
	"github.com/getcharzp/volseg"
	"github.com/getcharzp/volseg/checkpoint"
	"github.com/getcharzp/volseg/sam2"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strconv"
)

// Config 全局配置
type Config struct {
	Onnx       OnnxConfig       `yaml:"onnx"`
	Model      ModelConfig      `yaml:"model"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Frames     FramesConfig     `yaml:"frames"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Log        LogConfig        `yaml:"log"`
}

type OnnxConfig struct {
	LibPath           string `yaml:"lib_path"`
	UseCuda           bool   `yaml:"use_cuda"`
	NumThreads        int    `yaml:"num_threads"`
	EnableCpuMemArena bool   `yaml:"enable_cpu_mem_arena"`
}

type ModelConfig struct {
	Variant string `yaml:"variant"`
	// 为空时使用 checkpoint 目录下的标准文件名
	EncoderPath string `yaml:"encoder_path"`
	DecoderPath string `yaml:"decoder_path"`
}

type CheckpointConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

type FramesConfig struct {
	Dir string `yaml:"dir"`
}

type LedgerConfig struct {
	DBPath string `yaml:"db_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Onnx: OnnxConfig{
			LibPath: volseg.DefaultLibraryPath(),
		},
		Model: ModelConfig{
			Variant: checkpoint.DefaultVariant,
		},
		Checkpoint: CheckpointConfig{
			Dir: "./sam2_weights",
		},
		Frames: FramesConfig{
			Dir: filepath.Join(os.TempDir(), "volseg"),
		},
		Ledger: LedgerConfig{
			DBPath: "volseg.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 读取配置, 顺序为默认值, YAML 文件 (path 为空时读 VOLSEG_CONFIG_PATH), 环境变量
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOLSEG_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"VOLSEG_ONNX_LIB_PATH":       &cfg.Onnx.LibPath,
		"VOLSEG_MODEL_VARIANT":       &cfg.Model.Variant,
		"VOLSEG_MODEL_ENCODER_PATH":  &cfg.Model.EncoderPath,
		"VOLSEG_MODEL_DECODER_PATH":  &cfg.Model.DecoderPath,
		"VOLSEG_CHECKPOINT_DIR":      &cfg.Checkpoint.Dir,
		"VOLSEG_CHECKPOINT_BASE_URL": &cfg.Checkpoint.BaseURL,
		"VOLSEG_FRAMES_DIR":          &cfg.Frames.Dir,
		"VOLSEG_LEDGER_DB_PATH":      &cfg.Ledger.DBPath,
		"VOLSEG_LOG_LEVEL":           &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("VOLSEG_ONNX_USE_CUDA"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("无效的 VOLSEG_ONNX_USE_CUDA: %w", err)
		}
		cfg.Onnx.UseCuda = b
	}
	if v := os.Getenv("VOLSEG_ONNX_ENABLE_CPU_MEM_ARENA"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("无效的 VOLSEG_ONNX_ENABLE_CPU_MEM_ARENA: %w", err)
		}
		cfg.Onnx.EnableCpuMemArena = b
	}
	if v := os.Getenv("VOLSEG_ONNX_NUM_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("无效的 VOLSEG_ONNX_NUM_THREADS: %w", err)
		}
		cfg.Onnx.NumThreads = n
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// Provider 权重提供者
func (c Config) Provider() *checkpoint.Provider {
	return &checkpoint.Provider{BaseURL: c.Checkpoint.BaseURL, Dir: c.Checkpoint.Dir}
}

// SAM2 根据权重目录生成引擎配置, 显式路径优先
func (c Config) SAM2(weightsDir string) sam2.Config {
	cfg := sam2.WeightsConfig(weightsDir)
	if c.Model.EncoderPath != "" {
		cfg.EncodeModelPath = c.Model.EncoderPath
	}
	if c.Model.DecoderPath != "" {
		cfg.DecodeModelPath = c.Model.DecoderPath
	}
	cfg.OnnxRuntimeLibPath = c.Onnx.LibPath
	cfg.UseCuda = c.Onnx.UseCuda
	cfg.NumThreads = c.Onnx.NumThreads
	cfg.EnableCpuMemArena = c.Onnx.EnableCpuMemArena
	return cfg
}
