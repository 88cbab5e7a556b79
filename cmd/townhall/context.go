package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"townhall/internal/api"
	"townhall/internal/config"
	"townhall/internal/queue"
	"townhall/internal/queueaccess"
	"townhall/internal/videos"
)

const pingTimeout = 2 * time.Second

type globalFlags struct {
	config  string
	api     string
	token   string
	offline bool
	json    bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.flags != nil && c.flags.json
}

func (c *commandContext) apiToken() string {
	if token := strings.TrimSpace(c.flags.token); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv("TOWNHALL_TOKEN"))
}

func (c *commandContext) apiBind() string {
	if bind := strings.TrimSpace(c.flags.api); bind != "" {
		return bind
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return ""
	}
	return cfg.Paths.APIBind
}

// client returns an API client for a daemon that answered /healthz.
func (c *commandContext) client(ctx context.Context) (*api.Client, error) {
	if c.flags.offline {
		return nil, api.ErrAPIUnavailable
	}
	client, err := api.NewClient(c.apiBind(), c.apiToken())
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *commandContext) openStores() (*queue.Store, *videos.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	videoStore, err := videos.Open(context.Background(), cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, videoStore, nil
}

func (c *commandContext) withAccess(cmd *cobra.Command, fn func(queueaccess.Access) error) error {
	session, err := queueaccess.OpenWithFallback(
		func() (*api.Client, error) { return c.client(cmd.Context()) },
		c.openStores,
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func requireArg(args []string, name string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New(name + " is required")
	}
	return strings.TrimSpace(args[0]), nil
}
