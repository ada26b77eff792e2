package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/echocode/echo/backend/internal/app"
	"github.com/echocode/echo/backend/internal/service/workspace"
)

var errNoGenerator = errors.New("no code generator configured: set GENERATION_ENDPOINT or ARK_* variables")

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	var contextFile string
	cmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate Python code from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			gens, err := app.NewGenerators(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if gens.Workspace == nil {
				return errNoGenerator
			}

			ws := workspace.New(gens.Workspace, logger)
			if contextFile != "" {
				raw, err := os.ReadFile(contextFile)
				if err != nil {
					return err
				}
				if _, err := ws.ImportFile(filepath.Base(contextFile), string(raw)); err != nil {
					return err
				}
			}

			res, err := ws.Generate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, res.Code)
			if res.Explanation != "" {
				_, _ = fmt.Fprintf(out, "\n# %s\n", strings.ReplaceAll(res.Explanation, "\n", "\n# "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contextFile, "context-file", "", "existing code to send as context")
	return cmd
}
