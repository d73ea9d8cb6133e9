package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/genai-kitchen/internal/boot"
	"github.com/fpang/genai-kitchen/internal/history"
	"github.com/fpang/genai-kitchen/internal/kitchen"
	"github.com/fpang/genai-kitchen/internal/persist"
)

func newHistoryCmd() *cobra.Command {
	var dir, workspace string
	var top int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect persisted workspace history",
	}
	cmd.PersistentFlags().StringVar(&dir, "history-dir", os.Getenv(boot.EnvHistoryDir), "History directory")
	cmd.PersistentFlags().StringVar(&workspace, "workspace", kitchen.DefaultWorkspace, "Workspace name")

	load := func(ctx context.Context) (*history.Store[kitchen.Workspace], error) {
		if dir == "" {
			return nil, fmt.Errorf("--history-dir or %s is required", boot.EnvHistoryDir)
		}
		sink, err := persist.NewFileSink(dir)
		if err != nil {
			return nil, err
		}
		store := history.New[kitchen.Workspace]()
		found, err := persist.Restore(ctx, sink, workspace, store)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("no history saved for workspace %q in %s", workspace, dir)
		}
		return store, nil
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print entry counts and the most frequent actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := load(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(store.Stats(top))
		},
	}
	stats.Flags().IntVar(&top, "top", 5, "Number of actions to list")

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the history export document",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := load(cmd.Context())
			if err != nil {
				return err
			}
			data, err := store.Export()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List entries, marking the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := load(cmd.Context())
			if err != nil {
				return err
			}
			current := store.Index()
			for i, e := range store.Entries() {
				marker := " "
				if i == current {
					marker = "*"
				}
				fmt.Printf("%s %3d  %s  %-20s %s\n", marker, i, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Next.Prompt)
			}
			return nil
		},
	}

	cmd.AddCommand(stats, export, list)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
