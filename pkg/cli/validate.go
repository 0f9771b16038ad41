package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/cocoro-lab/cocoro/pkg/cli/config"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
)

func cmdValidate() *cli.Command {
	var catalogCfg config.Catalog

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the stage catalog configuration",
		Flags:   catalogCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			catalog, err := catalogCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "stage catalog validation failed")
			}

			ids := catalog.IDs()
			logger.Info("Stage catalog validation passed", "stage_count", len(ids))
			for _, id := range ids {
				def := catalog.Get(id)
				logger.Info("Stage validated",
					"id", id,
					"likely_next", len(def.LikelyNext),
					"switch_keywords", len(def.SwitchKeywords),
				)
			}

			return nil
		},
	}
}
