// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package op holds the offline operation tools: hashing an operation and
// signing it as a transmitter.
package op

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/signature"
)

type HashReply struct {
	ContentHash common.Hash `json:"contentHash"`
	SigningHash common.Hash `json:"signingHash"`
}

type SignReply struct {
	ContentHash common.Hash         `json:"contentHash"`
	Signature   signature.Signature `json:"signature"`
	Bytes       hexutil.Bytes       `json:"bytes"`
}

func HashCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "hash",
		Short: "Prints the content and signing hashes of an operation",
		RunE:  hashFunc,
	}
	AddFlags(c.Flags())
	return c
}

func SignCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "sign",
		Short: "Signs an operation with a transmitter key",
		RunE:  signFunc,
	}
	AddSignFlags(c.Flags())
	return c
}

func hashFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args, c.InOrStdin())
	if err != nil {
		return err
	}
	contentHash, err := config.Operation.ContentHash()
	if err != nil {
		return err
	}
	return write(c, &HashReply{
		ContentHash: contentHash,
		SigningHash: operation.SigningHashOf(contentHash),
	})
}

func signFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args, c.InOrStdin())
	if err != nil {
		return err
	}
	contentHash, err := config.Operation.ContentHash()
	if err != nil {
		return err
	}
	sig, err := signature.Sign(operation.SigningHashOf(contentHash), config.PrivateKey)
	if err != nil {
		return err
	}
	return write(c, &SignReply{
		ContentHash: contentHash,
		Signature:   sig,
		Bytes:       sig.Bytes(),
	})
}

func write(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "\t")
	return enc.Encode(v)
}
