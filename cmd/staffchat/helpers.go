package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	staffchat "github.com/staffloop/staffchat-go"
)

// newChatClient builds a REST client from the stored configuration.
func newChatClient() (*staffchat.Client, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts := []staffchat.ClientOption{
		staffchat.WithLogger(cliLogger()),
	}
	if cfg.Auth.Token != "" {
		opts = append(opts, staffchat.WithToken(cfg.Auth.Token))
	}
	return staffchat.NewClient(cfg.Hub.BaseURL, opts...), cfg, nil
}

// configIdentity adapts the stored config to the session's identity source.
type configIdentity struct {
	cfg *Config
}

func (c configIdentity) LocalID() (string, error) {
	if c.cfg.Auth.EmployeeID == "" {
		return "", fmt.Errorf("no employee id configured; run 'staffchat init <employee-id>'")
	}
	return c.cfg.Auth.EmployeeID, nil
}

func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.WarnLevel).
		With().Timestamp().Logger()
}
