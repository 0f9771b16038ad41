package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/cocoro-lab/cocoro/pkg/cli/config"
	httpctrl "github.com/cocoro-lab/cocoro/pkg/controller/http"
	"github.com/cocoro-lab/cocoro/pkg/service/knowledge"
	"github.com/cocoro-lab/cocoro/pkg/service/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
	"github.com/cocoro-lab/cocoro/pkg/service/vector"
	"github.com/cocoro-lab/cocoro/pkg/usecase"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
	"github.com/cocoro-lab/cocoro/pkg/utils/safe"
)

func cmdServe() *cli.Command {
	var addr string
	var repoCfg config.Repository
	var llmCfg config.LLM
	var catalogCfg config.Catalog

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("COCORO_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, catalogCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			llmClient, err := llmCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure LLM client")
			}

			catalog, err := catalogCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to load stage catalog")
			}

			embedder, err := vector.New(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to create embedding adapter")
			}

			memories, err := memory.New(repo.Memory(), embedder)
			if err != nil {
				return goerr.Wrap(err, "failed to create memory service")
			}

			knowledgeSvc, err := knowledge.New(repo.Knowledge(), embedder, llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to create knowledge service")
			}

			machine, err := stage.NewMachine(catalog, llmClient, repo.Session(), memories)
			if err != nil {
				return goerr.Wrap(err, "failed to create stage machine")
			}

			uc, err := usecase.New(repo, machine, memories, knowledgeSvc, llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to create use cases")
			}

			httpHandler, err := httpctrl.New(uc)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
