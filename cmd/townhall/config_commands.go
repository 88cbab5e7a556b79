package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"townhall/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold the townhall configuration",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

// configSummary is the machine-readable result of config validate.
type configSummary struct {
	Path          string `json:"path"`
	FileExists    bool   `json:"fileExists"`
	DataDir       string `json:"dataDir"`
	RawDir        string `json:"rawDir"`
	ServingDir    string `json:"servingDir"`
	VideoDriver   string `json:"videoDriver"`
	Renditions    int    `json:"renditions"`
	MaxAttempts   int    `json:"maxAttempts"`
	APIAuth       bool   `json:"apiAuth"`
	IngestEnabled bool   `json:"ingestEnabled"`
}

func summarizeConfig(cfg *config.Config, path string, exists bool) configSummary {
	return configSummary{
		Path:          path,
		FileExists:    exists,
		DataDir:       cfg.Paths.DataDir,
		RawDir:        cfg.Paths.RawDir,
		ServingDir:    cfg.Paths.ServingDir,
		VideoDriver:   cfg.Videos.Driver,
		Renditions:    len(cfg.Encoding.Renditions),
		MaxAttempts:   cfg.Queue.MaxAttempts,
		APIAuth:       strings.TrimSpace(cfg.API.JWTSecret) != "",
		IngestEnabled: strings.TrimSpace(cfg.Ingest.AMQPURL) != "",
	}
}

func (s configSummary) details() [][2]string {
	source := "file"
	if !s.FileExists {
		source = "defaults (file missing)"
	}
	return [][2]string{
		{"Config path", s.Path},
		{"Source", source},
		{"Data directory", s.DataDir},
		{"Raw uploads", s.RawDir},
		{"Serving directory", s.ServingDir},
		{"Video records", s.VideoDriver},
		{"Rendition ladder", strconv.Itoa(s.Renditions) + " rungs"},
		{"Max attempts", strconv.Itoa(s.MaxAttempts)},
		{"API auth", yesNo(s.APIAuth)},
		{"AMQP ingest", yesNo(s.IngestEnabled)},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration, create its directories, and report the result",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(ctx.flags.config))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			summary := summarizeConfig(cfg, path, exists)
			if ctx.JSONMode() {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderDetails(summary.details()))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveConfigTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				if err := refuseExisting(target); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set paths.raw_dir and paths.serving_dir before starting townhalld.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveConfigTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func refuseExisting(path string) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("check config path: %w", err)
	}
}
