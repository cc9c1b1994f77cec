package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/bot"
	"github.com/tbourn/go-referral-bot/internal/config"
	httpapi "github.com/tbourn/go-referral-bot/internal/http"
	"github.com/tbourn/go-referral-bot/internal/observability"
	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/services"
	"github.com/tbourn/go-referral-bot/internal/sysutil"
	"github.com/tbourn/go-referral-bot/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (long polling or webhook, per MODE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, cfg.Mode)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openServeStore(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	tg, err := telegram.New(telegram.Config{
		Token:     cfg.Telegram.Token,
		APIURL:    cfg.Telegram.APIURL,
		Timeout:   cfg.Telegram.Timeout,
		SendRPS:   cfg.Telegram.SendRPS,
		SendBurst: cfg.Telegram.SendBurst,
	})
	if err != nil {
		return err
	}
	b := wireBot(ctx, cfg, db, tg)

	log.Info().
		Str("version", version).
		Str("mode", cfg.Mode).
		Str("token", sysutil.MaskToken(cfg.Telegram.Token)).
		Str("db", cfg.DBPath).
		Msg("starting referralbot")

	go bot.RunPurger(ctx, db, bot.DefaultPurgeInterval)

	g, gctx := errgroup.WithContext(ctx)
	srv := newServer(cfg, b)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	switch cfg.Mode {
	case config.ModeWebhook:
		err := tg.SetWebhook(ctx, telegram.SetWebhookParams{
			URL:            cfg.Webhook.URL,
			SecretToken:    cfg.Webhook.Secret,
			AllowedUpdates: telegram.AllowedUpdates,
		})
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("setWebhook: %w", err)
		}
		log.Info().Str("path", cfg.Webhook.Path).Msg("webhook registered")
	default:
		// getUpdates is refused while a webhook is set.
		if err := tg.DeleteWebhook(ctx, false); err != nil {
			log.Warn().Err(err).Msg("deleteWebhook failed; polling may be rejected")
		}
		p := &bot.Poller{
			Source:  tg,
			Handler: b,
			Workers: cfg.Polling.Workers,
			Timeout: cfg.Polling.Timeout,
		}
		g.Go(func() error { return p.Run(gctx) })
	}

	err = g.Wait()
	log.Info().Msg("referralbot stopped")
	return err
}

// openServeStore opens and migrates the database. Failure here is the only fatal
// startup error.
func openServeStore(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing disabled")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// wireBot builds the services and the update handler on top of tg and db.
func wireBot(ctx context.Context, cfg config.Config, db *gorm.DB, tg *telegram.Client) *bot.Bot {
	msgr := telegram.NewMessenger(tg)
	ident := services.NewIdentityCache(msgr)
	reg := services.NewRegistryService(db, msgr, ident)
	links := services.NewLinkService(db, ident)

	bc := services.NewBroadcastService(db, msgr, links)
	bc.Text = sysutil.FirstNonEmpty(cfg.Broadcast.Text, bc.Text)
	bc.ButtonText = sysutil.FirstNonEmpty(cfg.Broadcast.ButtonText, bc.ButtonText)
	bc.ButtonCount = cfg.Broadcast.ButtonCount

	if cfg.OwnerID != 0 {
		seeded, err := reg.SeedOwner(ctx, cfg.OwnerID)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("seed owner")
		case seeded:
			log.Info().Int64("owner_id", cfg.OwnerID).Msg("owner seeded from OWNER_ID")
		}
	}

	// Resolving the username early surfaces a bad token in the startup log;
	// the cache retries lazily on failure.
	if id, err := ident.Get(ctx); err != nil {
		log.Warn().Err(err).Msg("getMe failed")
	} else {
		log.Info().Str("username", id.Username).Int64("bot_id", id.ID).Msg("bot identity")
	}

	return bot.New(tg, db, reg, links, bc, bot.Options{
		ClaimSecret: cfg.OwnerClaimSecret,
		PageSize:    cfg.ListPageSize,
		DedupTTL:    cfg.UpdateDedupTTL,
	})
}

func newServer(cfg config.Config, b *bot.Bot) *http.Server {
	r := gin.New()
	httpapi.RegisterRoutes(r, b, cfg)
	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
