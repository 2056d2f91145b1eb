package main

import (
	"fmt"
	"github.com/getcharzp/volseg/framestore"
	"github.com/getcharzp/volseg/volume"
	"github.com/spf13/cobra"
	"log/slog"
	"path/filepath"
)

var framesLayer string

var framesCmd = &cobra.Command{
	Use:   "frames <slice>...",
	Short: "将体数据切片写为模型使用的帧序列",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		_, paths, err := materialize(args, filepath.Join(cfg.Frames.Dir, framesLayer), logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d 帧已写入 %s\n", len(paths), filepath.Join(cfg.Frames.Dir, framesLayer))
		return nil
	},
}

func init() {
	framesCmd.Flags().StringVar(&framesLayer, "layer", "image", "图层名称, 作为帧目录名")
	rootCmd.AddCommand(framesCmd)
}

// materialize 读取切片并写出帧序列
func materialize(slices []string, dir string, logger *slog.Logger) (*volume.Volume, []string, error) {
	v, err := volume.Load(slices...)
	if err != nil {
		return nil, nil, err
	}
	paths, err := framestore.Materialize(v, dir, logger)
	if err != nil {
		return nil, nil, err
	}
	return v, paths, nil
}
