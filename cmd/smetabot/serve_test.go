package main

import (
	"bytes"
	"testing"

	"github.com/velikov/smetabot/internal/config"
)

func TestCreateAdapter(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "telegram",
			yaml: "platform: telegram\ntelegram:\n  token: tg-token\n",
		},
		{
			name: "discord",
			yaml: "platform: discord\ndiscord:\n  bot_token: dc-token\n",
		},
		{
			name: "slack",
			yaml: "platform: slack\nslack:\n  bot_token: xoxb-1\n  app_token: xapp-1\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("parse config: %v", err)
			}
			adapter, err := createAdapter(cfg)
			if err != nil {
				t.Fatalf("createAdapter: %v", err)
			}
			if adapter == nil {
				t.Fatal("createAdapter returned nil adapter")
			}
		})
	}
}

func TestCreateAdapter_UnknownPlatform(t *testing.T) {
	// Bypass validation to hit the adapter switch directly.
	cfg := &config.Config{Platform: "icq"}
	if _, err := createAdapter(cfg); err == nil {
		t.Fatal("createAdapter should fail for an unknown platform")
	}
}

func TestServeCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"serve", "-c", "/nonexistent/config.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("serve should fail when the config file is missing")
	}
}
