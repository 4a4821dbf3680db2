package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/the-books-must-balance/internal/engine"
)

// BatchProgress draws a progress bar for a batch categorization run.
type BatchProgress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewBatchProgress creates a progress bar sized for total transactions.
func NewBatchProgress(writer io.Writer, total int) *BatchProgress {
	p := &BatchProgress{writer: writer}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Categorizing transactions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Func adapts the bar to the engine's progress callback.
func (p *BatchProgress) Func() engine.ProgressFunc {
	return func(done, _ int) {
		if err := p.bar.Set(done); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

// Finish completes the bar even when the run stopped early.
func (p *BatchProgress) Finish() {
	if p.bar.IsFinished() {
		return
	}
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
