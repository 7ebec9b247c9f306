// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarantool-go/tntgo/client"
	"github.com/tarantool-go/tntgo/iproto"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "tntcli",
		Short: "tntcli talks to a Tarantool instance over IPROTO",
	}

	root.PersistentFlags().String("addr", "", "Tarantool address (tcp://host:port or unix:///path)")
	root.PersistentFlags().String("username", "", "auth username (anonymous if empty)")
	root.PersistentFlags().String("password", "", "auth password")
	root.PersistentFlags().Duration("timeout", 5*time.Second, "request timeout")
	root.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090) until the command exits")
	_ = v.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("username", root.PersistentFlags().Lookup("username"))
	_ = v.BindPFlag("password", root.PersistentFlags().Lookup("password"))
	_ = v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))
	_ = v.BindPFlag("metrics_addr", root.PersistentFlags().Lookup("metrics-addr"))

	root.AddCommand(
		newPingCmd(v),
		newCallCmd(v),
		newEvalCmd(v),
	)
	return root
}

// dial builds a Connector from the merged config/flags/environment.
func dial(v *viper.Viper) (*client.Connector, cliConfig, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, cliConfig{}, err
	}
	if len(cfg.Addrs) == 0 {
		return nil, cliConfig{}, fmt.Errorf("tntcli: no address configured (set --addr, TNTCLI_ADDR, or tntcli.yaml)")
	}

	opts := []client.Option{client.WithDialTimeout(cfg.Timeout)}
	if cfg.Username != "" {
		opts = append(opts, client.WithAuth(cfg.Username, cfg.Password))
	}

	c, err := client.Dial(cfg.Addrs, opts...)
	if err != nil {
		return nil, cliConfig{}, err
	}
	return c, cfg, nil
}

// serveMetrics starts an HTTP server exposing c's pool/connection
// collectors on addr's "/metrics" path, returning a func that shuts it
// down. Registration failures (e.g. a collector already registered)
// are logged to stderr rather than aborting the command, since metrics
// are diagnostic, not load-bearing.
func serveMetrics(addr string, c *client.Connector) func() {
	reg := prometheus.NewRegistry()
	for _, col := range c.Collectors() {
		if err := reg.Register(col); err != nil {
			fmt.Fprintf(os.Stderr, "tntcli: metrics: %v\n", err)
		}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "tntcli: metrics server: %v\n", err)
		}
	}()
	return func() { _ = srv.Close() }
}

func printResponse(resp iproto.Response) {
	if resp.IsError() {
		fmt.Printf("error (code=%d)\n", resp.Header.Code)
		return
	}
	body, err := decodeBody(resp.Body)
	if err != nil {
		fmt.Printf("ok (sync=%d), body undecoded: %v\n", resp.Header.Sync, err)
		return
	}
	fmt.Printf("ok (sync=%d): %+v\n", resp.Header.Sync, body)
}

func newPingCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "send IPROTO_PING",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := dial(v)
			if err != nil {
				return err
			}
			defer c.Close()
			if cfg.MetricsAddr != "" {
				stop := serveMetrics(cfg.MetricsAddr, c)
				defer stop()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()
			resp, err := c.Ping(ctx)
			if err != nil {
				return err
			}
			printResponse(resp)
			return nil
		},
	}
}

func newCallCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "call <function> [args...]",
		Short: "call a stored Lua function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := dial(v)
			if err != nil {
				return err
			}
			defer c.Close()
			if cfg.MetricsAddr != "" {
				stop := serveMetrics(cfg.MetricsAddr, c)
				defer stop()
			}

			callArgs := make([]any, len(args)-1)
			for i, a := range args[1:] {
				callArgs[i] = a
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()
			resp, err := c.Call(ctx, args[0], callArgs)
			if err != nil {
				return err
			}
			printResponse(resp)
			return nil
		},
	}
}

func newEvalCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expression>",
		Short: "evaluate a Lua expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := dial(v)
			if err != nil {
				return err
			}
			defer c.Close()
			if cfg.MetricsAddr != "" {
				stop := serveMetrics(cfg.MetricsAddr, c)
				defer stop()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()
			resp, err := c.Eval(ctx, args[0], nil)
			if err != nil {
				return err
			}
			printResponse(resp)
			return nil
		},
	}
}
