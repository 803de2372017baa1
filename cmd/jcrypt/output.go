package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warningColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode json: %v", err)
	}
}

// ProgressDisplay renders a per-file progress bar on stderr.
type ProgressDisplay struct {
	bar *progressbar.ProgressBar
}

// NewProgressDisplay creates a bar for total files.
func NewProgressDisplay(total int) *ProgressDisplay {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	return &ProgressDisplay{bar: bar}
}

// SetCurrent shows the file being processed.
func (p *ProgressDisplay) SetCurrent(name string) {
	p.bar.Describe(name)
}

// Update moves the bar to processed files.
func (p *ProgressDisplay) Update(processed, total int) {
	if total > 0 && p.bar.GetMax() != total {
		p.bar.ChangeMax(total)
	}
	_ = p.bar.Set(processed)
}

func (p *ProgressDisplay) Finish() {
	_ = p.bar.Finish()
}

func (p *ProgressDisplay) Close() {
	_ = p.bar.Exit()
	fmt.Fprintln(os.Stderr)
}
