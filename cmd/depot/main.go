package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dkovac/depot/lib/logger"
)

var log, _ = logger.New("depot-cli")

func main() {
	app := &cli.App{
		Name:  "depot",
		Usage: "content-addressed storage with dedup, compression and replication",
		Commands: []*cli.Command{
			storeCmd,
			reconstructCmd,
			retrieveCmd,
			verifyCmd,
			organizeCmd,
			searchCmd,
			statsCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}
