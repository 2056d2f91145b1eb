package main

import (
	"errors"
	"fmt"
	"github.com/getcharzp/volseg"
	"github.com/getcharzp/volseg/framestore"
	"github.com/getcharzp/volseg/prompt"
	"github.com/getcharzp/volseg/sam2"
	"github.com/getcharzp/volseg/segment"
	"github.com/getcharzp/volseg/volume"
	"github.com/spf13/cobra"
	"github.com/up-zero/gotool/imageutil"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var segmentFlags struct {
	layer       string
	prompts     string
	session     string
	object      int
	positive    []string
	negative    []string
	out         string
	overlay     bool
	saveSession bool
}

var segmentCmd = &cobra.Command{
	Use:   "segment <slice>...",
	Short: "按提示点分割并在整个体数据上传播",
	Long: `segment 读取切片, 写出帧序列, 然后用以下任一来源的提示点初始化会话:

  --prompts   YAML 格式的提示文件
  --session   SQLite 中保存的会话
  --positive / --negative  单个目标的点, 格式 frame,row,col

传播结果按帧写为 16 位 PNG, 像素值为目标 ID。`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSegment,
}

func init() {
	f := segmentCmd.Flags()
	f.StringVar(&segmentFlags.layer, "layer", "image", "图层名称, 作为帧目录名")
	f.StringVar(&segmentFlags.prompts, "prompts", "", "提示文件 (YAML)")
	f.StringVar(&segmentFlags.session, "session", "", "从 SQLite 恢复的会话 ID")
	f.IntVar(&segmentFlags.object, "object", 1, "--positive/--negative 所属的目标 ID")
	f.StringSliceVar(&segmentFlags.positive, "positive", nil, "正向点 frame,row,col, 可重复")
	f.StringSliceVar(&segmentFlags.negative, "negative", nil, "负向点 frame,row,col, 可重复")
	f.StringVarP(&segmentFlags.out, "out", "o", "labels", "输出目录")
	f.BoolVar(&segmentFlags.overlay, "overlay", false, "同时输出彩色叠加图")
	f.BoolVar(&segmentFlags.saveSession, "save-session", true, "将提示保存到 SQLite")
	segmentCmd.MarkFlagsMutuallyExclusive("prompts", "session")
	rootCmd.AddCommand(segmentCmd)
}

func runSegment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	layers, err := parseLayers(segmentFlags.positive, segmentFlags.negative)
	if err != nil {
		return err
	}
	hasPoints := len(layers.Positive)+len(layers.Negative) > 0
	restoring := segmentFlags.prompts != "" || segmentFlags.session != ""
	if hasPoints == restoring {
		return errors.New("需要 --prompts, --session 或 --positive/--negative 中的一种")
	}

	framesDir := filepath.Join(cfg.Frames.Dir, segmentFlags.layer)
	v, _, err := materialize(args, framesDir, logger)
	if err != nil {
		return err
	}

	p := cfg.Provider()
	p.Logger = logger
	cp, err := p.Resolve(ctx, cfg.Model.Variant)
	if err != nil {
		return err
	}
	engine, err := sam2.NewEngine(cfg.SAM2(cp.Dir))
	if err != nil {
		return fmt.Errorf("%w: %w", segment.ErrModelInitialization, err)
	}
	defer engine.Destroy()

	width, height := v.Size()
	labels := volume.NewLabels(v.Frames(), width, height)
	session, err := segment.NewSession(ctx, sam2.NewVideoPredictor(engine, logger), framesDir, labels, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	var store *prompt.Store
	if segmentFlags.session != "" || segmentFlags.saveSession {
		if store, err = prompt.OpenStore(cfg.Ledger.DBPath); err != nil {
			return err
		}
		defer store.Close()
	}

	ledger, err := loadLedger(cmd, store)
	if err != nil {
		return err
	}
	if ledger != nil {
		if err := session.Restore(ctx, ledger); err != nil {
			return err
		}
	}

	progress := func(pct int) {
		logger.Info("传播进度", "percent", pct)
	}
	if hasPoints {
		err = session.ResetAndPropagate(ctx, segmentFlags.object, layers, progress)
	} else {
		err = session.PropagateAndMerge(ctx, progress)
	}
	if err != nil {
		return err
	}

	if err := writeLabels(segmentFlags.out, framesDir, session.Labels(), segmentFlags.overlay, logger); err != nil {
		return err
	}

	if store != nil && segmentFlags.saveSession {
		id := segmentFlags.session
		if id == "" {
			id = session.ID
		}
		if err := store.Save(ctx, id, session.Ledger()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "会话 %s 已保存\n", id)
	}
	return nil
}

func loadLedger(cmd *cobra.Command, store *prompt.Store) (*prompt.Ledger, error) {
	switch {
	case segmentFlags.prompts != "":
		return prompt.LoadFile(segmentFlags.prompts)
	case segmentFlags.session != "":
		return store.Load(cmd.Context(), segmentFlags.session)
	}
	return nil, nil
}

// parseLayers 解析 frame,row,col 形式的点
func parseLayers(positive, negative []string) (segment.PointLayers, error) {
	var layers segment.PointLayers
	for _, s := range positive {
		c, err := parseCursor(s)
		if err != nil {
			return layers, err
		}
		layers.Positive = append(layers.Positive, c)
	}
	for _, s := range negative {
		c, err := parseCursor(s)
		if err != nil {
			return layers, err
		}
		layers.Negative = append(layers.Negative, c)
	}
	return layers, nil
}

func parseCursor(s string) (prompt.Cursor, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return prompt.Cursor{}, fmt.Errorf("无效的点 %q, 格式为 frame,row,col", s)
	}
	var v [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return prompt.Cursor{}, fmt.Errorf("无效的点 %q: %w", s, err)
		}
		v[i] = n
	}
	return prompt.Cursor{Frame: v[0], Row: v[1], Col: v[2]}, nil
}

// writeLabels 按帧写出标签, 可选叠加图
func writeLabels(out, framesDir string, labels *volume.Labels, overlay bool, logger *slog.Logger) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	var drawer *volseg.TextDrawer
	if overlay {
		d, err := volseg.NewTextDrawerFromBytes(nil)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.SetSize(16); err != nil {
			return fmt.Errorf("设置字体大小失败: %w", err)
		}
		drawer = d
	}

	for i := 0; i < labels.Frames; i++ {
		mask := labels.Mask(i)
		gray, err := mask.Gray16()
		if err != nil {
			return fmt.Errorf("第 %d 帧: %w", i, err)
		}
		if err := imageutil.Save(filepath.Join(out, fmt.Sprintf("%04d.png", i)), gray, 100); err != nil {
			return fmt.Errorf("保存第 %d 帧标签失败: %w", i, err)
		}
		if !overlay {
			continue
		}
		frame, err := imageutil.Open(framestore.FramePath(framesDir, i))
		if err != nil {
			return err
		}
		img, err := volseg.RenderOverlay(frame, mask, drawer, 0.5)
		if err != nil {
			return err
		}
		if err := imageutil.Save(filepath.Join(out, fmt.Sprintf("overlay_%04d.png", i)), img, 100); err != nil {
			return fmt.Errorf("保存第 %d 帧叠加图失败: %w", i, err)
		}
	}
	logger.Info("标签已写出", "dir", out, "frames", labels.Frames)
	return nil
}
