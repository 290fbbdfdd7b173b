// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package op

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/luxfi/relay/api/relay"
)

const (
	MethodKey      = "method"
	RequestFileKey = "request-file"
	CallerKeyKey   = "caller-key"
	TTLKey         = "ttl"
)

var (
	errMissingCallerKey = errors.New("caller key is required")
	errInvalidCallerKey = errors.New("caller key must be a 32-byte ed25519 seed")
	errInvalidTTL       = errors.New("ttl must be positive and within the auth window")
)

func AddAuthorizeFlags(flags *pflag.FlagSet) {
	flags.String(MethodKey, "", "Relay method the request is for: Load, Sign, Execute, ExecuteGovernance or Propose")
	flags.String(RequestFileKey, "-", "JSON request args file, - reads stdin")
	flags.String(CallerKeyKey, "", "Hex encoded ed25519 seed of the executor or proposer (required)")
	flags.Duration(TTLKey, time.Minute, "How long the signed request stays valid")
}

type AuthorizeConfig struct {
	Request   relay.Request
	CallerKey ed25519.PrivateKey
	TTL       time.Duration
}

func ParseAuthorizeFlags(flags *pflag.FlagSet, args []string, stdin io.Reader) (*AuthorizeConfig, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	method, err := flags.GetString(MethodKey)
	if err != nil {
		return nil, err
	}
	request, err := relay.NewRequest(method)
	if err != nil {
		return nil, err
	}
	path, err := flags.GetString(RequestFileKey)
	if err != nil {
		return nil, err
	}
	b, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s args: %w", method, err)
	}

	keyStr, err := flags.GetString(CallerKeyKey)
	if err != nil {
		return nil, err
	}
	if keyStr == "" {
		return nil, errMissingCallerKey
	}
	seed, err := hexutil.Decode("0x" + strings.TrimPrefix(keyStr, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidCallerKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errInvalidCallerKey
	}

	ttl, err := flags.GetDuration(TTLKey)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 || ttl > relay.MaxAuthWindow {
		return nil, errInvalidTTL
	}
	return &AuthorizeConfig{
		Request:   request,
		CallerKey: ed25519.NewKeyFromSeed(seed),
		TTL:       ttl,
	}, nil
}

// AuthorizeCommand signs relay request args with an executor or proposer key
// and prints the args with their auth filled in.
func AuthorizeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "authorize",
		Short: "Signs relay request args as an executor or proposer",
		RunE:  authorizeFunc,
	}
	AddAuthorizeFlags(c.Flags())
	return c
}

func authorizeFunc(c *cobra.Command, args []string) error {
	config, err := ParseAuthorizeFlags(c.Flags(), args, c.InOrStdin())
	if err != nil {
		return err
	}
	if err := relay.Authorize(config.Request, config.CallerKey, time.Now().Add(config.TTL)); err != nil {
		return err
	}
	return write(c, config.Request)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
