package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velikov/smetabot/internal/bot"
	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/chat"
	discordadapter "github.com/velikov/smetabot/internal/chat/discord"
	slackadapter "github.com/velikov/smetabot/internal/chat/slack"
	telegramadapter "github.com/velikov/smetabot/internal/chat/telegram"
	"github.com/velikov/smetabot/internal/config"
	"github.com/velikov/smetabot/internal/proclock"
	"github.com/velikov/smetabot/internal/render"
	"github.com/velikov/smetabot/internal/wizard"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Smetabot daemon",
		Long:  "Connects to the configured chat platform, guides users through the estimate wizard, and renders the resulting documents.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to Smetabot config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock, err := proclock.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	renderer, err := render.New(render.Opts{
		Store: store,
		Dir:   cfg.OutputDir,
		Company: render.Company{
			Name:  cfg.Company.Name,
			Phone: cfg.Company.Phone,
			Email: cfg.Company.Email,
		},
		Out: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	engine, err := wizard.NewEngine(wizard.EngineOpts{
		Store:    store,
		Renderer: renderer,
		Out:      cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Config:  cfg,
		Store:   store,
		Adapter: adapter,
		Engine:  engine,
		Version: Version,
		Out:     cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return daemon.Run(ctx)
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (chat.Adapter, error) {
	switch cfg.Platform {
	case "telegram":
		return telegramadapter.New(telegramadapter.AdapterOpts{
			Token: cfg.Telegram.Token,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	default:
		return nil, fmt.Errorf("serve: unsupported platform %q", cfg.Platform)
	}
}
