package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/echocode/echo/backend/internal/service/simulator"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a Python file through the execution simulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("delay") {
				delay = cfg.Simulator.Delay
			}
			res, err := simulator.New(logger, delay).Run(cmd.Context(), string(source))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Output)
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "simulated run time (defaults to SIMULATOR_DELAY)")
	return cmd
}
