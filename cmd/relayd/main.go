// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luxfi/relay/cmd/relayd/op"
	"github.com/luxfi/relay/cmd/relayd/run"
)

func main() {
	cmd := &cobra.Command{
		Use:   "relayd",
		Short: "Relays cross-chain operations once enough transmitters signed them",
	}
	cmd.AddCommand(
		run.Command(),
		op.HashCommand(),
		op.SignCommand(),
		op.AuthorizeCommand(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
