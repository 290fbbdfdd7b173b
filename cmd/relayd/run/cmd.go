// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/relay/api/metrics"
	"github.com/luxfi/relay/api/relay"
	"github.com/luxfi/relay/api/server"
	"github.com/luxfi/relay/config"
	"github.com/luxfi/relay/dispatch"
	"github.com/luxfi/relay/engine"
	"github.com/luxfi/relay/genesis"
)

var errMissingGenesis = errors.New("database is not initialized and no genesis file was given")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs the relay JSON-RPC server",
		RunE:  runFunc,
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	cfg, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	logger := log.NewLogger("relayd")
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	gatherer := metrics.NewPrefixGatherer()
	engineRegistry, err := metrics.MakeAndRegister(gatherer, "relay")
	if err != nil {
		return err
	}
	apiRegistry, err := metrics.MakeAndRegister(gatherer, "api")
	if err != nil {
		return err
	}
	e, err := engine.New(engineConfig, logger, db, dispatch.NewRouter(), nil, engineRegistry)
	if err != nil {
		return err
	}
	if err := initialize(e, cfg); err != nil {
		return err
	}

	service, err := relay.NewService(logger, e)
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return err
	}
	srv, err := server.New(
		logger,
		listener,
		cfg.AllowedOrigins,
		cfg.ShutdownTimeout,
		apiRegistry,
		server.HTTPConfig{ReadHeaderTimeout: cfg.ReadHeaderTimeout},
	)
	if err != nil {
		return err
	}
	if err := srv.AddRoute(service, relay.ServiceName); err != nil {
		return err
	}
	if err := srv.AddRoute(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), "metrics"); err != nil {
		return err
	}

	logger.Info("relay listening",
		log.String("address", listener.Addr().String()),
		log.String("chainID", engineConfig.ChainID.Dec()),
	)

	eg, ctx := errgroup.WithContext(c.Context())
	eg.Go(srv.Dispatch)
	eg.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown()
	})
	return eg.Wait()
}

func openDB(cfg *config.Config) (database.Database, error) {
	if cfg.DataDir == "" {
		return memdb.New(), nil
	}
	db, err := badgerdb.New(cfg.DataDir, nil, "", nil)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func initialize(e *engine.Engine, cfg *config.Config) error {
	_, err := e.RelayConfig()
	if !errors.Is(err, engine.ErrNotInitialized) {
		return err
	}
	if cfg.GenesisFile == "" {
		return errMissingGenesis
	}
	b, err := os.ReadFile(cfg.GenesisFile)
	if err != nil {
		return err
	}
	g, err := genesis.Parse(b)
	if err != nil {
		return err
	}
	return e.Initialize(g)
}
