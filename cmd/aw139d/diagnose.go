package main

import (
	"github.com/spf13/cobra"

	"github.com/hangarlabs/aw139-certainty/internal/application"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
)

func newDiagnoseCmd(root *rootOptions) *cobra.Command {
	var req domain.DiagnosisRequest
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run one diagnosis and print the report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx := logger.ContextWithLogger(cmd.Context(), log)

			app, err := application.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Service.Diagnose(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&req.Query, "query", "q", "", "Maintenance question or symptom")
	flags.StringVar(&req.SerialNumber, "serial", "", "Aircraft serial number (default "+domain.DefaultSerialNumber+")")
	flags.StringVar(&req.ATACode, "ata", "", "ATA chapter or training material identifier")
	flags.StringVar(&req.TaskType, "task-type", "", "Task type, fault_isolation when empty")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
