// cmd/server/jobs.go
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/homecare/careops-backend/internal/database"
	"github.com/homecare/careops-backend/internal/services"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Apply database migrations",
	Action: func(cCtx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.UsesMemory() {
			return errors.New("migrate requires STORE_DRIVER=postgres")
		}

		db, err := database.Initialize(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		return database.RunMigrations(db)
	},
}

var seedAdminCommand = &cli.Command{
	Name:  "seed-admin",
	Usage: "Create the first super admin if that email is not registered yet",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "email",
			Usage:    "Login email",
			EnvVars:  []string{"ADMIN_EMAIL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "name",
			Usage:   "Display name",
			EnvVars: []string{"ADMIN_NAME"},
			Value:   "Administrator",
		},
		&cli.StringFlag{
			Name:     "password",
			Usage:    "Initial password",
			EnvVars:  []string{"ADMIN_PASSWORD"},
			Required: true,
		},
	},
	Action: func(cCtx *cli.Context) error {
		return withRuntime(func(ctx context.Context, c *services.Container) error {
			user, created, err := c.Users.SeedAdmin(ctx, cCtx.String("email"), cCtx.String("name"), cCtx.String("password"))
			if err != nil {
				return err
			}

			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"email":   user.Email,
				"created": created,
			}).Info("Super admin ready")
			return nil
		})
	},
}

var rolloverCommand = &cli.Command{
	Name:  "rollover",
	Usage: "Advance every subscription whose period has ended",
	Action: func(cCtx *cli.Context) error {
		return runJob("rollover", func(ctx context.Context, c *services.Container) (int, error) {
			return c.Subscriptions.RolloverDue(ctx, time.Now().UTC())
		})
	},
}

var retryCommunicationsCommand = &cli.Command{
	Name:  "retry-communications",
	Usage: "Redeliver failed communications past the retry backoff",
	Action: func(cCtx *cli.Context) error {
		return runJob("retry-communications", func(ctx context.Context, c *services.Container) (int, error) {
			return c.Communications.RetryFailed(ctx)
		})
	},
}

var reconcileCommand = &cli.Command{
	Name:  "reconcile",
	Usage: "Create missing providers for approved applications",
	Action: func(cCtx *cli.Context) error {
		return runJob("reconcile", func(ctx context.Context, c *services.Container) (int, error) {
			return c.Applications.ReconcileApprovals(ctx)
		})
	},
}

func withRuntime(fn func(ctx context.Context, c *services.Container) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt.container)
}

func runJob(name string, job func(ctx context.Context, c *services.Container) (int, error)) error {
	return withRuntime(func(ctx context.Context, c *services.Container) error {
		started := time.Now()
		processed, err := job(ctx, c)
		if err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"job":       name,
			"processed": processed,
			"duration":  time.Since(started).String(),
		}).Info("Job completed")
		return nil
	})
}
