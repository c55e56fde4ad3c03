// cmd/server/bootstrap.go
package main

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/homecare/careops-backend/internal/config"
	"github.com/homecare/careops-backend/internal/database"
	"github.com/homecare/careops-backend/internal/i18n"
	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/services"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// runtime is everything a command needs, plus the teardown for it.
type runtime struct {
	cfg       *config.Config
	db        *gorm.DB
	redis     *redis.Client
	container *services.Container
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing redis client")
		}
	}
	if rt.db != nil {
		database.Close(rt.db)
	}
}

func setupLogging(cfg config.LogConfig) {
	logrus.SetOutput(os.Stdout)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.Log)

	if err := i18n.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize i18n: %w", err)
	}
	utils.SetJWTSecret(cfg.JWT.SecretKey)
	return cfg, nil
}

// bootstrap connects the store and every outbound integration and builds
// the service container.
func bootstrap() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg}

	var st store.Store
	if cfg.Database.UsesMemory() {
		logrus.Warn("Using the in-memory store; data is lost on exit")
		st = store.NewMemoryStore()
	} else {
		rt.db, err = database.Initialize(cfg.Database)
		if err != nil {
			return nil, err
		}
		st = store.NewGormStore(rt.db)
	}

	notifiers, err := rt.notifiers()
	if err != nil {
		rt.Close()
		return nil, err
	}

	blobs, err := services.NewBlobStore(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	rt.container = services.NewContainer(cfg, services.Dependencies{
		Store:     st,
		Blobs:     blobs,
		Notifiers: notifiers,
		Billing:   services.NewBilling(cfg.Payment),
	})
	return rt, nil
}

func (rt *runtime) notifiers() (map[models.CommunicationChannel]services.Notifier, error) {
	cfg := rt.cfg
	notifiers := make(map[models.CommunicationChannel]services.Notifier, len(cfg.Communications.Channels))

	for _, channel := range services.Channels(cfg.Communications.Channels) {
		switch channel {
		case models.ChannelEmail:
			notifiers[channel] = services.NewEmailNotifier(cfg)
		case models.ChannelWebhook:
			notifiers[channel] = services.NewWebhookNotifier(
				cfg.Communications.WebhookURL,
				cfg.Communications.WebhookSecret,
				cfg.Communications.WebhookRetries,
				cfg.Communications.SendTimeout,
			)
		case models.ChannelStream:
			if rt.redis == nil {
				rt.redis = redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr(),
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
			}
			notifiers[channel] = services.NewStreamNotifier(rt.redis, cfg.Communications.StreamName, cfg.Communications.StreamMaxLen)
		case models.ChannelLog:
			notifiers[channel] = services.LogNotifier{}
		default:
			return nil, fmt.Errorf("unknown communication channel %q", channel)
		}
	}

	logrus.WithField("channels", cfg.Communications.Channels).Info("Communication channels configured")
	return notifiers, nil
}
