package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func importCommand() *cli.Command {
	var (
		cfg       config
		inputPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSON file containing an array of content items",
			Sources:     cli.EnvVars("AINEWS_INPUT"),
			Destination: &inputPath,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "import",
		Usage: "Store content items from a JSON file in the repository",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)

			items, err := readContentItems(inputPath)
			if err != nil {
				return err
			}

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			if err := repo.PutContentItems(ctx, items); err != nil {
				return goerr.Wrap(err, "failed to import content items", goerr.V("path", inputPath))
			}

			logging.From(ctx).Info("content items imported", "count", len(items), "path", inputPath)
			fmt.Fprintf(c.Root().Writer, "Imported %d content items\n", len(items))
			return nil
		},
	}
}

func readContentItems(path string) ([]*model.ContentItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read input file", goerr.V("path", path))
	}

	var items []*model.ContentItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, goerr.Wrap(err, "failed to parse content items", goerr.V("path", path))
	}

	for i, item := range items {
		if item == nil || item.CID == "" {
			return nil, goerr.New("content item without cid", goerr.V("path", path), goerr.V("index", i))
		}
	}
	return items, nil
}
