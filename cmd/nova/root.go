package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MarcusD9722/Nova/config"
	"github.com/MarcusD9722/Nova/logging"
)

// cli carries state shared by every command.
type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "nova",
		Short:         "Personal assistant with durable memory and tools",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file (default: ./nova.yaml or ~/.nova/nova.yaml)")

	root.AddCommand(
		newChatCmd(c),
		newMemoryCmd(c),
		newToolCmd(c),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
