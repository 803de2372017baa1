package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jcrypt/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	// Writing a config must not depend on the one being replaced loading cleanly.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file",
	Long: `Init writes an example config with saving and run history enabled.

The path defaults to --config, then ./jcrypt.yaml. Its extension picks the
format (yaml, json or toml). An existing file is kept unless --force is given.`,
	Example: `  jcrypt config init
  jcrypt config init ~/.config/jcrypt/jcrypt.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false,
		"Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "jcrypt.yaml"
	switch {
	case len(args) == 1:
		path = args[0]
	case configPath != "":
		path = configPath
	}

	if _, err := os.Stat(path); err == nil {
		if !configInitForce {
			return usageError(fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return configError(fmt.Errorf("check %s: %w", path, err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return configError(fmt.Errorf("create directory: %w", err))
	}

	if err := config.SaveExample(path); err != nil {
		return configError(err)
	}

	if jsonOutput {
		printJSON(os.Stdout, map[string]interface{}{"success": true, "path": path})
	} else {
		printSuccess("Wrote %s", path)
	}
	return nil
}
