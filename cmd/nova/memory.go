package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/MarcusD9722/Nova/memory"
)

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and maintain long-term memory",
	}
	cmd.AddCommand(
		newMemorySearchCmd(c),
		newMemoryFactsCmd(c),
		newMemoryAddFactCmd(c),
		newMemoryPurgeCmd(c),
		newMemoryRebuildCmd(c),
	)
	return cmd
}

// withMemory opens the app without the assistant and closes it afterwards.
func withMemory(c *cli, cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd.Context(), c.cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newMemorySearchCmd(c *cli) *cobra.Command {
	var (
		limit          int
		conversationID string
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search facts, people, events and recent turns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(c, cmd, func(a *app) error {
				hits, err := a.memory.Search(cmd.Context(), strings.Join(args, " "), conversationID, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hits)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Max results")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Also match recent turns of this conversation")
	return cmd
}

func newMemoryFactsCmd(c *cli) *cobra.Command {
	var (
		limit       int
		oldestFirst bool
	)
	cmd := &cobra.Command{
		Use:   "facts ENTITY [ATTRIBUTE]",
		Short: "List facts about an entity",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var attribute string
			if len(args) == 2 {
				attribute = args[1]
			}
			return withMemory(c, cmd, func(a *app) error {
				facts, err := a.memory.GetFacts(cmd.Context(), args[0], attribute, limit, !oldestFirst)
				if err != nil {
					return err
				}
				if facts == nil {
					facts = []memory.Fact{}
				}
				return printJSON(cmd.OutOrStdout(), facts)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 25, "Max results")
	cmd.Flags().BoolVar(&oldestFirst, "oldest-first", false, "Sort oldest first")
	return cmd
}

func newMemoryAddFactCmd(c *cli) *cobra.Command {
	var confidence float64
	cmd := &cobra.Command{
		Use:   "add-fact ENTITY ATTRIBUTE VALUE",
		Short: "Write a fact through the write guard",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(c, cmd, func(a *app) error {
				fact, err := a.memory.AddFact(cmd.Context(), args[0], args[1], args[2], confidence)
				if err != nil {
					return err
				}
				if fact == nil {
					return printJSON(cmd.OutOrStdout(), map[string]any{"ok": false, "rejected": true})
				}
				return printJSON(cmd.OutOrStdout(), fact)
			})
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", 0.8, "Confidence between 0 and 1")
	return cmd
}

func newMemoryPurgeCmd(c *cli) *cobra.Command {
	var req memory.PurgeRequest
	cmd := &cobra.Command{
		Use:   "purge ENTITY",
		Short: "Delete matching facts (dry run unless --apply)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Entity = args[0]
			return withMemory(c, cmd, func(a *app) error {
				res, err := a.memory.PurgeFacts(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&req.Attribute, "attribute", "", "Only this attribute")
	cmd.Flags().StringSliceVar(&req.ValueIn, "value-in", nil, "Values to match, case-insensitive")
	cmd.Flags().StringVar(&req.ValueLike, "value-like", "", "Pattern to match; * is a wildcard")
	cmd.Flags().IntVar(&req.Limit, "limit", 500, "Max facts to match")
	cmd.Flags().BoolVar(&req.Apply, "apply", false, "Actually delete")
	return cmd
}

func newMemoryRebuildCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the semantic index from the durable store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMemory(c, cmd, func(a *app) error {
				counts, err := a.memory.RebuildSemanticIndex(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"ok":     true,
					"counts": counts,
					"total":  counts.Total(),
				})
			})
		},
	}
}
