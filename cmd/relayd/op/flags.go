// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package op

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"

	"github.com/luxfi/relay/operation"
)

const (
	OperationFileKey = "operation-file"
	PrivateKeyKey    = "private-key"
)

var errMissingPrivateKey = errors.New("private key is required")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(OperationFileKey, "-", "JSON operation file, - reads stdin")
}

func AddSignFlags(flags *pflag.FlagSet) {
	AddFlags(flags)
	flags.String(PrivateKeyKey, "", "Hex encoded secp256k1 transmitter key (required)")
}

type Config struct {
	Operation  *operation.Operation
	PrivateKey *ecdsa.PrivateKey
}

func ParseFlags(flags *pflag.FlagSet, args []string, stdin io.Reader) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	path, err := flags.GetString(OperationFileKey)
	if err != nil {
		return nil, err
	}
	b, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	op := new(operation.Operation)
	if err := json.Unmarshal(b, op); err != nil {
		return nil, err
	}

	c := &Config{Operation: op}
	if flags.Lookup(PrivateKeyKey) == nil {
		return c, nil
	}
	keyStr, err := flags.GetString(PrivateKeyKey)
	if err != nil {
		return nil, err
	}
	if keyStr == "" {
		return nil, errMissingPrivateKey
	}
	c.PrivateKey, err = crypto.HexToECDSA(strings.TrimPrefix(keyStr, "0x"))
	return c, err
}
