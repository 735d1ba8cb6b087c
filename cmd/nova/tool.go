package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/tools"
)

func newToolCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "List and run tools",
	}
	cmd.AddCommand(newToolListCmd(c), newToolRunCmd(c))
	return cmd
}

func newToolListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMemory(c, cmd, func(a *app) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), a.router.Registry().Describe())
				return err
			})
		},
	}
}

func newToolRunCmd(c *cli) *cobra.Command {
	var (
		timeout time.Duration
		retries int
	)
	cmd := &cobra.Command{
		Use:   "run NAME [JSON]",
		Short: "Execute one tool call through the router",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			call := core.ToolCall{Name: args[0], Args: map[string]any{}}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &call.Args); err != nil {
					return fmt.Errorf("tool arguments must be a JSON object: %w", err)
				}
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = c.cfg.Tools.Timeout
			}
			if !cmd.Flags().Changed("retries") {
				retries = c.cfg.Tools.Retries
			}

			return withMemory(c, cmd, func(a *app) error {
				res := a.router.Execute(cmd.Context(), call, tools.ExecOptions{Timeout: timeout, Retries: retries})
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", tools.DefaultTimeout, "Per-attempt timeout")
	cmd.Flags().IntVar(&retries, "retries", tools.DefaultRetries, "Extra attempts after a failure")
	return cmd
}
