// cmd/server/main.go
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "careops",
		Usage: "Provider and patient lifecycle backend for home healthcare",
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			seedAdminCommand,
			rolloverCommand,
			retryCommunicationsCommand,
			reconcileCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
