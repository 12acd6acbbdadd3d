package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisadapter "whatsapp-broadcast/internal/adapters/cache/redis"
	"whatsapp-broadcast/internal/adapters/db/postgres"
	"whatsapp-broadcast/internal/adapters/queue/rabbitmq"
	"whatsapp-broadcast/internal/adapters/transport/dryrun"
	"whatsapp-broadcast/internal/adapters/transport/whatsapp"
	"whatsapp-broadcast/internal/app"
	cfg "whatsapp-broadcast/internal/config"
	"whatsapp-broadcast/internal/domain"
	"whatsapp-broadcast/internal/ports"
	"whatsapp-broadcast/internal/variation"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(log); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf := cfg.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Adapters ─────────────────────────────────────────────────────────────
	store, err := postgres.New(conf.DatabaseURL, log)
	if err != nil {
		return errors.New("failed to connect to postgres: " + err.Error())
	}
	defer store.Close()

	if conf.RedisAddr != "" {
		cache, err := redisadapter.New(ctx, conf.RedisAddr)
		if err != nil {
			// The store answers cooldown checks from postgres either way.
			log.Warn("redis unavailable, cooldown cache disabled", "err", err)
		} else {
			store = store.WithCache(cache, conf.Batch.Cooldown)
		}
	}

	consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
	if err != nil {
		return errors.New("failed to connect to rabbitmq: " + err.Error())
	}
	defer consumer.Close()

	sender, err := buildTransport(ctx, conf, log)
	if err != nil {
		return err
	}

	// ── Application ──────────────────────────────────────────────────────────
	processor := app.NewProcessor(store, variation.NewGenerator(), log)
	recovery := app.NewRecovery(store, processor, log)
	recovery.RegisterTransport(sender)

	// Catch campaigns interrupted before this process started.
	go func() {
		if err := recovery.RecoverSession(ctx, conf.SessionName); err != nil && ctx.Err() == nil {
			log.Error("startup recovery failed", "session", conf.SessionName, "err", err)
		}
	}()

	log.Info("campaign-worker started", "session", conf.SessionName, "dry_run", conf.DryRun)

	err = consumer.Consume(ctx, func(ctx context.Context, job ports.CampaignJob) error {
		return handleJob(ctx, job, store, processor, sender, log)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("shutting down campaign-worker")
	return nil
}

func handleJob(ctx context.Context, job ports.CampaignJob, store ports.DeliveryStateStore, processor *app.Processor, sender ports.SendCapability, log *slog.Logger) error {
	campaign, err := store.GetCampaign(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			log.Warn("dropping job for unknown campaign", "campaign_id", job.CampaignID)
			return nil
		}
		return err
	}

	if campaign.Status != domain.StatusActive {
		log.Info("skipping job, campaign not active",
			"campaign_id", campaign.ID, "status", campaign.Status)
		return nil
	}

	var result domain.CampaignResult
	if job.Resume {
		result, err = processor.Resume(ctx, campaign, sender, job.StartBatch, campaign.Meta.Batch.Conservative())
	} else {
		result, err = processor.Run(ctx, campaign, sender)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNoTransport) {
			// Back off before the requeue so a disconnected session does not
			// spin the job through the broker.
			time.Sleep(5 * time.Second)
		}
		return err
	}

	log.Info("campaign job done",
		"campaign_id", campaign.ID,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"interrupted", result.Interrupted)
	return nil
}

func buildTransport(ctx context.Context, conf cfg.Config, log *slog.Logger) (ports.SendCapability, error) {
	if conf.DryRun {
		return dryrun.New(conf.SessionName, log), nil
	}

	client, err := whatsapp.New(ctx, conf.SessionName, conf.SessionDir, conf.QRDir, log)
	if err != nil {
		return nil, errors.New("failed to open whatsapp session: " + err.Error())
	}
	if err := client.Connect(ctx); err != nil {
		return nil, errors.New("failed to connect whatsapp session: " + err.Error())
	}
	return client, nil
}
