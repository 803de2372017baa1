package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jcrypt/internal/config"
	"github.com/TheMichaelB/jcrypt/internal/events"
)

var (
	cfg    *config.Config
	logger *events.Logger

	configPath string
	logLevel   string
	jsonOutput bool
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "jcrypt [flags] files...",
	Short: "Encrypt and decrypt batches of files with a password",
	Long: `jcrypt encrypts, decrypts and re-encrypts files in the legacy
PBEWithMD5AndDES format with a CRC-32 integrity check.

Files are processed concurrently. Results go to stdout unless --save is
given, in which case each result is written next to its source (or into
--output-dir): encrypting appends ".encrypted", decrypting strips it.

The format uses a 56-bit DES key and a fixed salt. It is kept for
compatibility with existing files and is not safe for new data.

A file whose name matches a subcommand ("history", "config") must follow
"--" so it is not taken as the command.`,
	Example: `  jcrypt -e swordfish -s -t 4 notes.txt todo.txt
  jcrypt -d swordfish notes.txt.encrypted
  jcrypt -d old -e new -s -o rotated/ *.encrypted
  jcrypt --prompt -s --strategy latch report.pdf
  jcrypt -e swordfish -s -- history`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: initConfig,
	RunE:              runCrypt,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: ./jcrypt.yaml, ~/.config/jcrypt/jcrypt.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&jsonOutput, "json", false, "Print a JSON summary instead of status lines")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
}

// initConfig loads configuration with bound flags taking precedence, then sets up logging.
func initConfig(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(configPath)

	bindings := map[string]string{
		"crypt.workers":    "threads",
		"crypt.save":       "save",
		"crypt.output_dir": "output-dir",
		"crypt.strategy":   "strategy",
		"log.level":        "log-level",
	}
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.Root().Flags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		if err := loader.BindFlag(key, flag); err != nil {
			return configError(err)
		}
	}

	loaded, err := loader.Load()
	if err != nil {
		return configError(err)
	}
	cfg = loaded

	if err := cfg.EnsureDirectories(); err != nil {
		return configError(err)
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return configError(fmt.Errorf("create logger: %w", err))
	}
	events.SetDefault(logger)

	if used := loader.ConfigFileUsed(); used != "" {
		logger.WithField("file", used).Debug("Loaded config file")
	}

	return nil
}

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func usageError(err error) error {
	return &exitError{code: 1, err: err}
}

func configError(err error) error {
	return &exitError{code: 2, err: err}
}

// exitCode maps an error to the process exit status. Errors without a code are usage errors.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		if jsonOutput {
			printJSON(os.Stderr, map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("%v", err)
		}
	}
	os.Exit(exitCode(err))
}
