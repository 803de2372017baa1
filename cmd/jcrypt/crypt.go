package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/jcrypt/internal/config"
	"github.com/TheMichaelB/jcrypt/internal/events"
	"github.com/TheMichaelB/jcrypt/internal/models"
	"github.com/TheMichaelB/jcrypt/internal/services/batch"
	"github.com/TheMichaelB/jcrypt/internal/workers"
)

var (
	cryptCrack     bool
	cryptSave      bool
	cryptDecrypt   string
	cryptEncrypt   string
	cryptThreads   int
	cryptOutputDir string
	cryptStrategy  string
	cryptPrompt    bool
	cryptKeepPlain bool
)

func init() {
	flags := rootCmd.Flags()
	flags.BoolVarP(&cryptCrack, "crack", "c", false,
		"Decrypt files by guessing the password")
	flags.BoolVarP(&cryptSave, "save", "s", false,
		"Save output to files instead of stdout")
	flags.StringVarP(&cryptDecrypt, "decrypt", "d", "",
		"Decrypt files with this password")
	flags.StringVarP(&cryptEncrypt, "encrypt", "e", "",
		"Encrypt files with this password (after decrypting, if -d or -c is given)")
	flags.IntVarP(&cryptThreads, "threads", "t", 0,
		"Number of worker threads (0 = serial)")
	flags.StringVarP(&cryptOutputDir, "output-dir", "o", "",
		"Directory for saved files (default: beside each source)")
	flags.StringVar(&cryptStrategy, "strategy", string(workers.DefaultStrategy),
		fmt.Sprintf("Work distribution strategy %v", workers.Strategies()))
	flags.BoolVar(&cryptPrompt, "prompt", false,
		"Prompt for passwords not given on the command line")
	flags.BoolVar(&cryptKeepPlain, "keep-plaintext", false,
		"When re-encrypting with --save, also save the decrypted plaintext")
}

func runCrypt(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("no files specified"))
	}

	if cryptPrompt {
		if err := promptMissingPasswords(); err != nil {
			return usageError(fmt.Errorf("read password: %w", err))
		}
	}

	req, err := buildRequest(cfg, args, cryptEncrypt, cryptDecrypt, cryptCrack)
	if err != nil {
		return err
	}
	if cryptKeepPlain {
		req.KeepPlaintext = true
		if err := req.Validate(); err != nil {
			return usageError(err)
		}
	}

	showProgress := !jsonOutput && !noProgress && isatty.IsTerminal(os.Stderr.Fd())

	// Results on stdout share it with nothing else; status goes to stderr.
	svc, err := batch.NewService(cfg, os.Stdout, serviceLogger(logger, showProgress, cfg.Log.File))
	if err != nil {
		return configError(err)
	}
	defer svc.Close()

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			printWarning("\nInterrupted, finishing running tasks...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if jsonOutput {
		return runCryptJSON(ctx, svc, req)
	}
	return runCryptInteractive(ctx, svc, req, showProgress)
}

// serviceLogger quiets per-file info lines while the progress bar owns stderr.
// Debug logging and log files are left alone.
func serviceLogger(base *events.Logger, showProgress bool, logFile string) *events.Logger {
	if !showProgress || logFile != "" || base.Enabled(events.DebugLevel) {
		return base
	}
	return base.AtLeast(events.WarnLevel)
}

// buildRequest turns configuration and command-line input into a batch request.
func buildRequest(cfg *config.Config, files []string, encryptPw, decryptPw string, crack bool) (*batch.Request, error) {
	strategy, err := workers.ParseStrategy(cfg.Crypt.Strategy)
	if err != nil {
		return nil, configError(err)
	}

	// -t 0 means serial
	threads := cfg.Crypt.Workers
	if threads <= 0 {
		threads = 1
	}

	req := &batch.Request{
		Files:           files,
		EncryptPassword: encryptPw,
		DecryptPassword: decryptPw,
		Crack:           crack,
		SaveToFile:      cfg.Crypt.SaveToFile,
		OutputDir:       cfg.Crypt.OutputDir,
		Workers:         threads,
		Strategy:        strategy,
	}

	if err := req.Validate(); err != nil {
		return nil, usageError(err)
	}

	return req, nil
}

func runCryptInteractive(ctx context.Context, svc *batch.Service, req *batch.Request, showProgress bool) error {
	var progress *ProgressDisplay
	if showProgress {
		progress = NewProgressDisplay(len(req.Files))
	}

	// Monitor events
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range svc.Events() {
			switch event.Type {
			case batch.EventTaskStarted:
				if progress != nil {
					progress.SetCurrent(event.Task.Name())
				}

			case batch.EventTaskComplete, batch.EventTaskFailed:
				if progress != nil && event.Progress != nil {
					progress.Update(event.Progress.ProcessedFiles, event.Progress.TotalFiles)
				}

			case batch.EventCompleted:
				if progress != nil {
					progress.Finish()
				}
			}
		}
	}()

	report, err := svc.Run(ctx, req)
	<-done
	if progress != nil {
		progress.Close()
	}
	if err != nil {
		return err
	}

	// Per-file failures are reported here and never change the exit status.
	printSummary(os.Stderr, report)
	return nil
}

func printSummary(w io.Writer, report *batch.Report) {
	outcome := report.Outcome

	for _, f := range outcome.Failures {
		printError("%v", f.Err)
	}

	fmt.Fprintf(w, "\nSummary (%s):\n", report.Mode)
	fmt.Fprintf(w, "   Files processed: %d/%d\n", outcome.Processed(), outcome.Total)
	fmt.Fprintf(w, "   Data: %s\n", humanize.Bytes(uint64(outcome.Bytes)))
	fmt.Fprintf(w, "   Time taken (%s, %d workers): %.3fs\n",
		report.Strategy, report.Workers, report.Elapsed.Seconds())

	switch {
	case outcome.Cancelled:
		printWarning("Cancelled after %d of %d files", outcome.Processed(), outcome.Total)
	case outcome.AllFailed():
		printWarning("All %d files failed", outcome.Total)
	case outcome.Failed() > 0:
		printWarning("Completed with %d failed file(s)", outcome.Failed())
	default:
		printSuccess("All %d files processed", outcome.Completed)
	}
}

func runCryptJSON(ctx context.Context, svc *batch.Service, req *batch.Request) error {
	// Collect all events
	var collected []map[string]interface{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range svc.Events() {
			eventData := map[string]interface{}{
				"type":      event.Type,
				"timestamp": event.Timestamp,
			}

			if event.Task != nil {
				eventData["file"] = event.Task.Source
			}
			if event.Error != nil {
				eventData["error"] = event.Error.Error()
			}

			collected = append(collected, eventData)
		}
	}()

	report, err := svc.Run(ctx, req)
	<-done

	// Results already occupy stdout when they are not saved.
	out := io.Writer(os.Stdout)
	if !req.SaveToFile {
		out = os.Stderr
	}

	if err != nil {
		printJSON(out, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"events":  collected,
		})
		return err
	}

	printJSON(out, reportJSON(report, collected))
	return nil
}

func reportJSON(report *batch.Report, collected []map[string]interface{}) map[string]interface{} {
	outcome := report.Outcome

	failures := make([]map[string]interface{}, 0, len(outcome.Failures))
	for _, f := range outcome.Failures {
		failures = append(failures, map[string]interface{}{
			"index": f.Index,
			"path":  report.Tasks[f.Index].Source,
			"kind":  models.KindOf(f.Err).String(),
			"error": f.Err.Error(),
		})
	}

	return map[string]interface{}{
		"success":    !outcome.AllFailed(),
		"run_id":     report.RunID,
		"mode":       report.Mode,
		"strategy":   report.Strategy,
		"workers":    report.Workers,
		"total":      outcome.Total,
		"completed":  outcome.Completed,
		"failed":     outcome.Failed(),
		"bytes":      outcome.Bytes,
		"cancelled":  outcome.Cancelled,
		"elapsed_ms": report.Elapsed.Round(time.Microsecond).Seconds() * 1000,
		"failures":   failures,
		"events":     collected,
	}
}
