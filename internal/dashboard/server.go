// Package dashboard serves a small status page and JSON API for a running
// bot: live wizard sessions, catalog section counts, and build info.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velikov/smetabot/internal/catalog"
)

// SessionCounter reports the number of wizard sessions in progress.
type SessionCounter interface {
	SessionCount() int
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store    *catalog.Store
	Sessions SessionCounter
	Platform string
	Version  string
	Port     int
	Out      io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: catalog store is required")
	}
	if opts.Sessions == nil {
		return fmt.Errorf("dashboard: session counter is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8350
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return fmt.Errorf("dashboard: parse template: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts, time.Now())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts, startedAt time.Time) {
	router.GET("/", handleIndex(opts))
	router.GET("/healthz", handleHealthz)
	router.GET("/api/status", handleStatus(opts, startedAt))
	router.GET("/api/events", handleSSE(opts.Sessions))
}

func handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	Platform       string         `json:"platform"`
	Version        string         `json:"version"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	ActiveSessions int            `json:"active_sessions"`
	Catalog        map[string]int `json:"catalog"`
}

func handleStatus(opts StartOpts, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{
			Platform:       opts.Platform,
			Version:        opts.Version,
			UptimeSeconds:  int64(time.Since(startedAt).Seconds()),
			ActiveSessions: opts.Sessions.SessionCount(),
			Catalog:        opts.Store.SectionCounts(),
		})
	}
}

func handleIndex(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts := opts.Store.SectionCounts()
		c.HTML(http.StatusOK, "index", gin.H{
			"Platform": opts.Platform,
			"Version":  opts.Version,
			"Sessions": opts.Sessions.SessionCount(),
			"Catalog":  counts,
		})
	}
}

const indexTemplate = `{{define "index"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Smetabot status</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #222; }
  h1 { color: #003366; }
  table { border-collapse: collapse; margin-top: 16px; }
  th, td { border: 1px solid #aaa; padding: 6px 14px; }
  th { background: #eee; text-align: left; }
</style>
</head>
<body>
<h1>Smetabot</h1>
<p>Platform: <b>{{.Platform}}</b> · Version: {{.Version}} · Active sessions: <b>{{.Sessions}}</b></p>
<table>
  <tr><th>Catalog section</th><th>Items</th></tr>
  {{- range $section, $count := .Catalog}}
  <tr><td>{{$section}}</td><td>{{$count}}</td></tr>
  {{- end}}
</table>
</body>
</html>
{{end}}`
