package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/medisync/recordcrypt/api/keyhandler"
	"github.com/medisync/recordcrypt/cmd/flags"
	"github.com/medisync/recordcrypt/httpserver"
	"github.com/medisync/recordcrypt/registry"
)

var serviceLogFlag = flags.LogServiceFlagFn("recordcrypt-server")

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

func main() {
	app := &cli.App{
		Name:  "recordcrypt-server",
		Usage: "Serve the wrapped key storage API",
		Flags: append([]cli.Flag{
			listenAddrFlag,
			flags.RegistryURIFlag,
			flags.AuthTokenFlag,
			serviceLogFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(listenAddrFlag.Name)
			registryURI := cCtx.String(flags.RegistryURIFlag.Name)
			authToken := cCtx.String(flags.AuthTokenFlag.Name)

			logger := flags.SetupLogger(cCtx)

			keyRegistry, err := registry.NewFactory(logger).RegistryFor(registryURI)
			if err != nil {
				logger.Error("Failed to create key registry", "err", err)
				return err
			}
			if !keyRegistry.Available(cCtx.Context) {
				logger.Warn("Key registry backend is not reachable", "backend", keyRegistry.Name())
			}
			logger.Info("Key registry initialized", "backend", keyRegistry.Name())

			var authorize keyhandler.Authorizer
			if authToken != "" {
				authorize = keyhandler.BearerTokenAuthorizer(authToken)
			} else {
				logger.Warn("No auth token configured, API is unauthenticated")
			}

			srv, err := httpserver.New(
				flags.ConfigureServer(cCtx, logger, listenAddr),
				keyhandler.NewHandler(keyRegistry, authorize, logger),
			)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			srv.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
