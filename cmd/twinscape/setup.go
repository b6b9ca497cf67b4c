package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/config"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/scene"
	"github.com/twinscape/twinscape/telemetry"
)

// buildAdapter loads config and wires the composite scene adapter.
func buildAdapter() (*scene.Adapter, *config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := telemetry.NewLogger("twinscape")
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log := logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	tokens, err := auth.NewDefaultTokenProvider(cfg.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up auth: %w", err)
	}

	adapter := scene.New(tokens, scene.Config{
		ADTHostURL:          cfg.ADTHostURL,
		BlobContainerURL:    cfg.BlobContainerURL,
		TenantID:            cfg.TenantID,
		ObjectID:            cfg.ObjectID,
		ADTProxyPath:        cfg.ADTProxyPath,
		BlobProxyPath:       cfg.BlobProxyPath,
		TwinCacheMaxAge:     cfg.Cache.TwinMaxAge,
		ModelCacheMaxAge:    cfg.Cache.ModelMaxAge,
		InstanceCacheMaxAge: cfg.Cache.InstanceMaxAge,
	}, scene.WithLogger(log))

	return adapter, cfg, nil
}

// reportErrors prints the envelope's error records and returns a
// command error when the call failed catastrophically.
func reportErrors(info *result.ErrorInfo) error {
	if info == nil {
		return nil
	}
	for _, rec := range info.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", rec.Error())
	}
	if info.Catastrophic != nil {
		return fmt.Errorf("%s", info.Catastrophic.Error())
	}
	return nil
}
