package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mepipe/internal/config"
	"mepipe/internal/logging"
	"mepipe/internal/services/xnat"
)

type commandContext struct {
	configFlag *string
	verbosity  *int

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verbosity *int) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbosity:  verbosity,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
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

// ensureLogger builds the shared logger once, teeing to stdout and the log
// file. A -v count overrides the configured level.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}

		level := cfg.Logging.Level
		if c.verbosity != nil && *c.verbosity > 0 {
			level = logging.VerbosityLevel(*c.verbosity)
		}

		outputs := []string{"stdout"}
		if cfg.Paths.LogDir != "" {
			outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, "mepipe.log"))
		}

		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:       level,
			Format:      cfg.Logging.Format,
			OutputPaths: outputs,
		})
	})
	return c.logger, c.loggerErr
}

// xnatClient assembles an authenticated client from config plus optional
// per-command overrides. The password comes from XNAT_PASSWORD or the config
// file.
func (c *commandContext) xnatClient(userFlag string) (*xnat.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(userFlag)
	if username == "" {
		username = cfg.XNAT.Username
	}
	password := cfg.XNATPassword()
	if username == "" || password == "" {
		return nil, fmt.Errorf("xnat credentials missing: set [xnat] username in the config and export XNAT_PASSWORD")
	}

	var httpClient *http.Client
	if cfg.XNAT.RequestTimeout > 0 {
		httpClient = &http.Client{Timeout: time.Duration(cfg.XNAT.RequestTimeout) * time.Second}
	}
	return xnat.New(cfg.ServerURL(), username, password, httpClient), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
