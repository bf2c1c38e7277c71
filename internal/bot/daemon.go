// Package bot runs the Smetabot daemon: it connects a chat adapter, routes
// inbound messages through the estimate wizard, reloads the catalog on a
// schedule, and optionally serves the status dashboard.
package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/chat"
	"github.com/velikov/smetabot/internal/config"
	"github.com/velikov/smetabot/internal/dashboard"
	"github.com/velikov/smetabot/internal/wizard"
)

// Daemon is the long-running bot process.
type Daemon struct {
	cfg     *config.Config
	store   *catalog.Store
	adapter chat.Adapter
	engine  *wizard.Engine
	version string
	out     io.Writer
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Config  *config.Config
	Store   *catalog.Store
	Adapter chat.Adapter
	Engine  *wizard.Engine
	Version string    // reported by the dashboard; optional
	Out     io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: catalog store is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("bot: engine is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		cfg:     opts.Config,
		store:   opts.Store,
		adapter: opts.Adapter,
		engine:  opts.Engine,
		version: opts.Version,
		out:     out,
	}, nil
}

// Run starts the daemon. It connects the adapter, builds the message router,
// schedules catalog reloads, and blocks pumping inbound messages until the
// context is cancelled. On shutdown it closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Smetabot connecting (%s)...\n", d.cfg.Platform)
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(chat.BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := chat.NewRouter(chat.RouterOpts{
		Engine:    d.engine,
		Adapter:   d.adapter,
		BotUserID: botUserID,
		Out:       d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	sched, err := d.startReloadSchedule()
	if err != nil {
		d.adapter.Close()
		return err
	}
	if sched != nil {
		defer sched.Stop()
	}

	if d.cfg.Dashboard.Enabled {
		go func() {
			if err := dashboard.Start(ctx, dashboard.StartOpts{
				Store:    d.store,
				Sessions: d.engine,
				Platform: d.cfg.Platform,
				Version:  d.version,
				Port:     d.cfg.Dashboard.Port,
				Out:      d.out,
			}); err != nil {
				log.Printf("bot: dashboard: %v", err)
			}
		}()
	}

	fmt.Fprintf(d.out, "Smetabot online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Smetabot shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Smetabot stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Smetabot inbound channel closed\n")
				if err := d.adapter.Close(); err != nil {
					log.Printf("bot: close adapter: %v", err)
				}
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// startReloadSchedule starts the catalog hot-reload cron if one is configured.
// Returns nil when catalog_reload_cron is empty.
func (d *Daemon) startReloadSchedule() (*cron.Cron, error) {
	expr := d.cfg.CatalogReloadCron
	if expr == "" {
		return nil, nil
	}
	sched := cron.New(cron.WithParser(cronParser))
	_, err := sched.AddFunc(expr, func() {
		if err := d.store.Reload(); err != nil {
			log.Printf("bot: catalog reload: %v", err)
			return
		}
		fmt.Fprintf(d.out, "bot: catalog reloaded from %s\n", d.cfg.CatalogPath)
	})
	if err != nil {
		return nil, fmt.Errorf("bot: catalog_reload_cron %q: %w", expr, err)
	}
	sched.Start()
	return sched, nil
}
