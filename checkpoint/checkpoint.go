package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"github.com/getcharzp/volseg/sam2"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrUnknownVariant 模型名称不在变体表中
var ErrUnknownVariant = errors.New("无法识别的模型")

// Variants 支持的模型变体, 每个变体的权重位于同名子目录
var Variants = []string{
	"sam2_hiera_tiny",
	"sam2_hiera_small",
	"sam2_hiera_base_plus",
	"sam2_hiera_large",
}

// DefaultVariant 默认变体
const DefaultVariant = "sam2_hiera_tiny"

// Files 每个变体需要的权重文件
var Files = []string{sam2.EncoderFile, sam2.DecoderFile}

// Checkpoint 解析后的本地权重
type Checkpoint struct {
	Variant    string
	Dir        string
	Downloaded []string // 本次下载的文件
	Warnings   []error  // 下载失败, 不中断流程
}

// Ready 全部权重文件都存在
func (c *Checkpoint) Ready() bool {
	for _, f := range Files {
		if _, err := os.Stat(filepath.Join(c.Dir, f)); err != nil {
			return false
		}
	}
	return true
}

// Config 以该权重生成 sam2 配置
func (c *Checkpoint) Config() sam2.Config {
	return sam2.WeightsConfig(c.Dir)
}

// Provider 权重提供者, 本地缺失时从 BaseURL 下载
type Provider struct {
	BaseURL string // 下载地址, 文件地址为 BaseURL/<variant>/<file>
	Dir     string // 本地缓存目录
	Client  *http.Client
	Logger  *slog.Logger
}

// Resolve 返回变体的本地权重, 必要时下载
//
// 下载失败只作为警告记录在返回值中, 调用方可以继续使用已有的文件。
func (p *Provider) Resolve(ctx context.Context, variant string) (*Checkpoint, error) {
	if !slices.Contains(Variants, variant) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cp := &Checkpoint{Variant: variant, Dir: filepath.Join(p.Dir, variant)}
	for _, f := range Files {
		dst := filepath.Join(cp.Dir, f)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if p.BaseURL == "" {
			err := fmt.Errorf("权重 %s 不存在且未配置下载地址", dst)
			logger.Warn("权重缺失", "variant", variant, "file", f)
			cp.Warnings = append(cp.Warnings, err)
			continue
		}

		url := strings.TrimRight(p.BaseURL, "/") + "/" + variant + "/" + f
		logger.Info("权重不存在, 开始下载", "variant", variant, "url", url)
		if err := p.download(ctx, url, dst); err != nil {
			logger.Warn("权重下载失败", "variant", variant, "url", url, "error", err)
			cp.Warnings = append(cp.Warnings, fmt.Errorf("下载 %s 失败: %w", url, err))
			continue
		}
		logger.Info("权重下载完成", "variant", variant, "file", f)
		cp.Downloaded = append(cp.Downloaded, dst)
	}
	return cp, nil
}

// download 先写入同目录临时文件, 完成后改名
func (p *Provider) download(ctx context.Context, url, dst string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
