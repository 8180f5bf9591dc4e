package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/cadence/internal/database"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes the config file when missing and bootstraps the library database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			config, err := shared.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load created config: %w", err)
			}
			r.config = config
		}
	}

	opts, err := database.OptionsFromConfig(r.config, r.logger)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", opts.Path, "schema", opts.Schema)
	db, err := database.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", opts.Path)
	r.writePlain("✓ Library ready\n")
	r.writePlain("Config:   %s\n", configPath)
	r.writePlain("Database: %s\n", opts.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Run 'cadence import ~/Music' to add files\n")
	r.writePlain("2. Run 'cadence list' to see what was imported\n")
	return nil
}
