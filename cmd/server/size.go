package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/model-fetcher/internal/domain"
)

func newSizeCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "size <source> <modelId>",
		Short: "Print the total size of a model's weights",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			taskService := newTaskService(cfg, logger)
			resp, err := taskService.CheckSize(cmd.Context(), domain.SizeCheckRequest{
				Source:    args[0],
				ModelID:   args[1],
				AuthToken: token,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token for gated or private models")
	return cmd
}
