package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicereader/speakd/internal/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speakd",
		Short: "Loopback text-to-speech engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{Cmd: cmd})
			if err != nil {
				return err
			}

			bootstrapStdin, _ := cmd.Flags().GetBool("bootstrap-stdin")
			if bootstrapStdin {
				cfg, err = applyBootstrapStdin(cfg, os.Stdin)
				if err != nil {
					return err
				}
			}

			serverFlag, _ := cmd.Flags().GetBool("server")
			if !serverFlag {
				return cmd.Help()
			}

			return runServe(cfg)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// applyBootstrapStdin reads a {token,port,data_dir} JSON object from r and
// overlays the fields it sets onto cfg, taking precedence over whatever
// --token/--port/--data-dir resolved to.
func applyBootstrapStdin(cfg config.EngineConfig, r io.Reader) (config.EngineConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, fmt.Errorf("bootstrap-stdin: read: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	var overrides config.BootstrapOverrides
	if err := json.Unmarshal(data, &overrides); err != nil {
		return cfg, fmt.Errorf("bootstrap-stdin: malformed JSON payload: %w", err)
	}
	applied := overrides.Apply(cfg)
	if applied.Token == "" {
		return cfg, fmt.Errorf("bootstrap-stdin: resolved token is empty")
	}
	return applied, nil
}
