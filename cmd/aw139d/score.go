package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hangarlabs/aw139-certainty/internal/application"
	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/server"
)

// errRequiresExpert is returned by score --strict when the diagnosis does
// not clear the threshold.
var errRequiresExpert = fmt.Errorf("certainty below threshold: %s", domain.StatusRequireExpert)

func newScoreCmd(root *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Score a diagnosis read as JSON from a file or stdin",
		Long: "Reads a certainty request ({documents, diagnosis, query, ata_code, task_type, has_awdp}) " +
			"and prints the certainty result. With no file or \"-\" the request is read from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.loadConfig()
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var req server.CertaintyRequest
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("decode certainty request: %w", err)
			}

			scorer, err := certainty.NewScorer(cfg.Certainty)
			if err != nil {
				return err
			}
			res, err := application.NewDiagnosisService(nil, scorer).Score(cmd.Context(), req.Input())
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if strict && res.Status != domain.StatusSafeToProceed {
				return errRequiresExpert
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the result requires an expert")
	return cmd
}
