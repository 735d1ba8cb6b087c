package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MarcusD9722/Nova/metrics"
)

func newChatCmd(c *cli) *cobra.Command {
	var (
		conversationID string
		metricsAddr    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with Nova line by line",
		Long:  "Reads one message per line from stdin and prints Nova's reply. Type exit or quit to stop.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr)
				defer stop()
			}

			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())
			in.Buffer(make([]byte, 64*1024), 1024*1024)

			fmt.Fprint(out, "> ")
			for in.Scan() {
				line := strings.TrimSpace(in.Text())
				switch strings.ToLower(line) {
				case "":
					fmt.Fprint(out, "> ")
					continue
				case "exit", "quit":
					return nil
				}

				reply, err := a.assistant.Chat(ctx, line, conversationID)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				conversationID = reply.ConversationID
				fmt.Fprintf(out, "%s\n> ", reply.Text)
			}
			return in.Err()
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Continue an existing conversation")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// serveMetrics exposes /metrics until the returned function is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
