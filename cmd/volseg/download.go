package main

import (
	"fmt"
	"github.com/getcharzp/volseg/checkpoint"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:       "download [variant]...",
	Short:     "下载模型权重, 默认使用配置中的变体",
	ValidArgs: checkpoint.Variants,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			args = []string{cfg.Model.Variant}
		}

		p := cfg.Provider()
		p.Logger = logger
		for _, variant := range args {
			cp, err := p.Resolve(cmd.Context(), variant)
			if err != nil {
				return err
			}
			status := "就绪"
			if !cp.Ready() {
				status = "不完整"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s, 新下载 %d 个文件)\n", variant, cp.Dir, status, len(cp.Downloaded))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
