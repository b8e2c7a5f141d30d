package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dkovac/depot/core/pipeline"
)

func newSystem() (*pipeline.System, error) {
	cfg, err := pipeline.GetConfig()
	if err != nil {
		return nil, err
	}

	return pipeline.NewSystem(cfg)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}

var storeCmd = &cli.Command{
	Name:      "store",
	Usage:     "Run files through the dedup, compress and replicate pipeline",
	ArgsUsage: "FILE [FILE...]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-dedup",
			Usage: "Skip the deduplication stage",
		},
		&cli.BoolFlag{
			Name:  "no-compress",
			Usage: "Skip the compression stage",
		},
		&cli.BoolFlag{
			Name:  "no-replicate",
			Usage: "Skip the replication stage",
		},
		&cli.IntFlag{
			Name:  "workers",
			Value: 4,
			Usage: "Number of files stored concurrently",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.Args().Len() == 0 {
			return fmt.Errorf("no files given")
		}

		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		opts := pipeline.StoreOptions{
			Deduplicate: !ctx.Bool("no-dedup"),
			Compress:    !ctx.Bool("no-compress"),
			Replicate:   !ctx.Bool("no-replicate"),
		}

		g, gctx := errgroup.WithContext(context.Background())
		g.SetLimit(ctx.Int("workers"))

		for _, path := range ctx.Args().Slice() {
			path := path
			g.Go(func() error {
				record, err := system.StoreFile(gctx, path, opts)
				if err != nil {
					log.Errorw("store", "file", path, "err", err)
					return err
				}

				log.Infow("store", "file", path, "contentID", record.ContentID)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		return printJSON(system.Stats())
	},
}

var reconstructCmd = &cli.Command{
	Name:  "reconstruct",
	Usage: "Rebuild a deduplicated file from its chunks",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file-key",
			Required: true,
			Usage:    "Original file path the chunk index was recorded under",
		},
		&cli.StringFlag{
			Name:     "output",
			Required: true,
			Usage:    "Path to write the reconstructed file to",
		},
	},
	Action: func(ctx *cli.Context) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		if !system.Reconstruct(context.Background(), ctx.String("file-key"), ctx.String("output")) {
			return fmt.Errorf("reconstruction failed for %s", ctx.String("file-key"))
		}

		log.Infow("reconstruct", "fileKey", ctx.String("file-key"), "output", ctx.String("output"))
		return nil
	},
}

var retrieveCmd = &cli.Command{
	Name:  "retrieve",
	Usage: "Copy a replicated blob back from any live location",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "content-id",
			Required: true,
			Usage:    "Content id the blob was stored under",
		},
		&cli.StringFlag{
			Name:     "output",
			Required: true,
			Usage:    "Path to write the retrieved blob to",
		},
	},
	Action: func(ctx *cli.Context) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		if !system.Retrieve(ctx.String("content-id"), ctx.String("output")) {
			return fmt.Errorf("no live replica for %s", ctx.String("content-id"))
		}

		return nil
	},
}

var verifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "Report replica health for a content id",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "content-id",
			Required: true,
			Usage:    "Content id to verify",
		},
	},
	Action: func(ctx *cli.Context) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		return printJSON(system.Verify(ctx.String("content-id")))
	},
}

var organizeCmd = &cli.Command{
	Name:  "organize",
	Usage: "Collect a directory into category folders and catalog every file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "source",
			Required: true,
			Usage:    "Directory or file to collect",
		},
		&cli.BoolFlag{
			Name:  "no-categorize",
			Usage: "Catalog only, without copying files into category folders",
		},
		&cli.BoolFlag{
			Name:  "pipeline",
			Usage: "Also run every organized file through dedup and compression",
		},
	},
	Action: func(ctx *cli.Context) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		cctx := context.Background()
		autoCategorize := !ctx.Bool("no-categorize")

		if ctx.Bool("pipeline") {
			stats, err := system.SmartCollection(cctx, ctx.String("source"), autoCategorize, true, true)
			if err != nil {
				return err
			}
			return printJSON(stats)
		}

		return printJSON(system.CollectAndOrganize(cctx, ctx.String("source"), autoCategorize))
	},
}

var searchCmd = &cli.Command{
	Name:  "search",
	Usage: "Search the catalog by filename, category and size",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "query",
			Usage: "Substring match against filenames",
		},
		&cli.StringFlag{
			Name:  "category",
			Usage: "Restrict to one category",
		},
		&cli.Int64Flag{
			Name:  "min-size",
			Usage: "Minimum file size in bytes",
		},
		&cli.Int64Flag{
			Name:  "max-size",
			Usage: "Maximum file size in bytes",
		},
	},
	Action: func(ctx *cli.Context) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		results, err := system.Search(context.Background(),
			ctx.String("query"),
			ctx.String("category"),
			ctx.Int64("min-size"),
			ctx.Int64("max-size"),
		)
		if err != nil {
			return err
		}

		return printJSON(results)
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "Print aggregate storage statistics",
	Action: func(ctx *cli.Context) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		defer system.Close()

		return printJSON(system.Stats())
	},
}
