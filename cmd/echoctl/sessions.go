package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/echocode/echo/backend/internal/app"
	"github.com/echocode/echo/backend/internal/model/session"
	"github.com/echocode/echo/backend/internal/service/sessions"
	"github.com/echocode/echo/backend/internal/storage"
)

func openStore(cmd *cobra.Command, opts *globalOptions) (*sessions.Store, storage.KV, error) {
	cfg, logger, err := opts.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	return app.OpenSessions(cmd.Context(), cfg.Store, logger)
}

func newSessionsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Manage saved sessions"}

	var output string
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, kv, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer kv.Close()
			return writeSessions(cmd.OutOrStdout(), output, store.List())
		},
	}
	list.Flags().StringVarP(&output, "output", "o", "table", "output format: table|json|yaml")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, kv, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer kv.Close()
			saved, err := store.Load(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id: %d\nname: %s\nsaved: %s\nprompt: %s\n\n%s\n", saved.ID, saved.Name, saved.Timestamp, saved.Prompt, saved.Code)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, kv, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer kv.Close()
			if err := store.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}

	var name, prompt, codeFile string
	save := &cobra.Command{
		Use:   "save --name <name> [--prompt <text>] [--code-file <path>]",
		Short: "Save a prompt/code pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var code string
			if codeFile != "" {
				raw, err := os.ReadFile(codeFile)
				if err != nil {
					return err
				}
				code = string(raw)
			}
			store, kv, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer kv.Close()
			saved, err := store.Save(cmd.Context(), name, code, prompt)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %d %s\n", saved.ID, saved.Name)
			return nil
		},
	}
	save.Flags().StringVar(&name, "name", "", "session name (generated when empty)")
	save.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	save.Flags().StringVar(&codeFile, "code-file", "", "file holding the code to save")

	cmd.AddCommand(list, show, del, save)
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", raw)
	}
	return id, nil
}

func writeSessions(w io.Writer, format string, items []session.SavedSession) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		if len(items) == 0 {
			_, err := fmt.Fprintln(w, "no saved sessions")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tSAVED\tPROMPT")
		for _, s := range items {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Name, s.Timestamp, truncate(s.Prompt, 40))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

