// Command grfserve exposes legacy GRF archives over HTTP.
package main

import (
	"context"
	"net/http"
	"os"

	flag "github.com/spf13/pflag"

	internal "github.com/raiken-mf/grfserve/grfsrv"
	"github.com/raiken-mf/grfserve/grfsrv/config"
	"github.com/raiken-mf/grfserve/grfsrv/server"
	"github.com/raiken-mf/grfserve/grfsrv/service"
)

func main() {
	logger := internal.GetLogger()

	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("data", "", "directory holding DATA.INI and the archives")
	listen := flag.String("listen", "", "listen address")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	svc, err := service.New(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("boot failed")
	}
	defer svc.Close()

	stats := svc.Stats()
	logger.Info().
		Int("archives", stats.Index.Archives).
		Int("entries", stats.Index.Entries).
		Str("listen", cfg.Listen).
		Msg("serving")

	if err := http.ListenAndServe(cfg.Listen, server.New(svc)); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
