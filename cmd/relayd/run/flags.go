// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/luxfi/relay/config"
)

const (
	ConfigFileKey  = "config-file"
	GenesisFileKey = "genesis-file"
	DataDirKey     = "data-dir"
	ChainIDKey     = "chain-id"
	HTTPHostKey    = "http-host"
	HTTPPortKey    = "http-port"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigFileKey, "", "JSON config file")
	flags.String(GenesisFileKey, "", "Genesis file used to initialize an empty database")
	flags.String(DataDirKey, "", "Database directory. State is kept in memory when empty")
	flags.String(ChainIDKey, "", "Chain id of this ledger, in decimal")
	flags.String(HTTPHostKey, config.DefaultHTTPHost, "Address the API listens on")
	flags.Uint16(HTTPPortKey, config.DefaultHTTPPort, "Port the API listens on")
}

// ParseFlags loads the config file and applies the flags that were set on top
// of it.
func ParseFlags(flags *pflag.FlagSet, args []string) (*config.Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	configFile, err := flags.GetString(ConfigFileKey)
	if err != nil {
		return nil, err
	}
	var b []byte
	if configFile != "" {
		b, err = os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
	}
	c, err := config.Parse(b)
	if err != nil {
		return nil, err
	}

	for key, dst := range map[string]*string{
		GenesisFileKey: &c.GenesisFile,
		DataDirKey:     &c.DataDir,
		ChainIDKey:     &c.ChainID,
		HTTPHostKey:    &c.HTTPHost,
	} {
		if !flags.Changed(key) {
			continue
		}
		if *dst, err = flags.GetString(key); err != nil {
			return nil, err
		}
	}
	if flags.Changed(HTTPPortKey) {
		if c.HTTPPort, err = flags.GetUint16(HTTPPortKey); err != nil {
			return nil, err
		}
	}
	return &c, c.Validate()
}
