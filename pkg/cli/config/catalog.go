package config

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/cocoro-lab/cocoro/pkg/service/stage"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
	"github.com/cocoro-lab/cocoro/pkg/utils/safe"
)

// Catalog holds CLI flags for the stage catalog
type Catalog struct {
	path string
}

// Flags returns CLI flags for stage catalog configuration
func (c *Catalog) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "stage-catalog",
			Usage:       "Path to a TOML stage catalog (uses the built-in stages when empty)",
			Sources:     cli.EnvVars("COCORO_STAGE_CATALOG"),
			Destination: &c.path,
		},
	}
}

// Path returns the configured catalog file path
func (c *Catalog) Path() string {
	return c.path
}

// Configure loads the stage catalog from the configured path, falling
// back to the built-in stages when no path is given.
func (c *Catalog) Configure(ctx context.Context) (*stage.Catalog, error) {
	if c.path == "" {
		logging.Default().Info("Using built-in stage catalog")
		return stage.DefaultCatalog(), nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	f, err := os.Open(c.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open stage catalog", goerr.V("path", c.path))
	}
	defer safe.Close(ctx, f)

	catalog, err := stage.LoadCatalog(f)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load stage catalog", goerr.V("path", c.path))
	}

	logging.Default().Info("Loaded stage catalog",
		"path", c.path,
		"stages", len(catalog.IDs()),
	)
	return catalog, nil
}
