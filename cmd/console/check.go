package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/internal/definition"
	"github.com/pitabwire/maximiza/internal/guard"
	"github.com/pitabwire/maximiza/internal/openapi"
)

// checkCmd loads and validates the configuration, backend contract and
// screen definitions without starting the server.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			index, registry, err := loadDefinitions(cfg)
			if err != nil {
				return err
			}
			if _, err := guard.New(append(guard.DefaultRules(), guard.RulesFromPages(registry.AllPages())...)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "definitions: %d domains, %d pages (checksum %s)\n",
				registry.Len(), len(registry.AllPages()), registry.Checksum())
			if index.Loaded() {
				fmt.Fprintf(out, "backend contract: %d operations\n", index.Count())
			}
			return nil
		},
	}
}

// loadDefinitions indexes the optional backend contract, then loads and
// validates the definition directories.
func loadDefinitions(cfg *config.Config) (*openapi.Index, *definition.Registry, error) {
	index := openapi.NewIndex()
	if err := index.Load(cfg.Backend.SpecFile); err != nil {
		return nil, nil, err
	}

	defs, err := definition.NewLoader(cfg.Definitions.StrictChecksums).LoadAll(cfg.Definitions.Directories)
	if err != nil {
		return nil, nil, err
	}
	if verrs := definition.NewValidator().Validate(defs, index); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, nil, fmt.Errorf("definition validation failed: %w", errors.Join(errs...))
	}
	return index, definition.NewRegistry(defs), nil
}
