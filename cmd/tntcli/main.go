// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tntcli is a small interactive-friendly client for exercising
// package client from a shell: dial a Tarantool instance, send one
// request family (ping, call, eval), print the decoded
// response, exit. Connection target and credentials load from
// tntcli.yaml, TNTCLI_-prefixed environment variables, or flags, via
// spf13/viper — the same config layering spf13/cobra-based CLIs in
// the example pack use.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
