package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// lineReader reads lines without blocking past context cancellation.
type lineReader struct {
	reader *bufio.Reader
	mu     sync.Mutex
}

func (r *lineReader) readLine(ctx context.Context) (string, error) {
	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		value, err := r.reader.ReadString('\n')
		resultCh <- result{value: value, err: err}
	}()

	// The read goroutine outlives a canceled context until input arrives.
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.value != "") {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}

// Prompter asks the user to confirm or correct categorizations.
type Prompter struct {
	writer io.Writer
	reader *lineReader
}

// NewPrompter creates a prompter with the given reader and writer.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		writer: writer,
		reader: &lineReader{reader: bufio.NewReader(reader)},
	}
}

// Review shows result and turns the user's answer into feedback. An
// empty answer or "y" accepts, "s" skips, anything else is taken as the
// corrected category. ok is false when the user skipped.
func (p *Prompter) Review(ctx context.Context, txn model.TransactionInput, result model.CategorizationResult) (model.FeedbackInput, bool, error) {
	if _, err := fmt.Fprintln(p.writer, RenderResult(txn, result)); err != nil {
		return model.FeedbackInput{}, false, fmt.Errorf("failed to write result: %w", err)
	}

	input := model.FeedbackInput{
		TransactionRef:   txn.Reference,
		Description:      txn.Description,
		Merchant:         txn.Merchant,
		Amount:           txn.Amount,
		OriginalCategory: result.Category,
		Confidence:       result.Confidence,
	}

	if _, err := fmt.Fprint(p.writer, FormatPrompt("Accept [enter], correct [category], skip [s]")); err != nil {
		return model.FeedbackInput{}, false, fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := p.reader.readLine(ctx)
	if err != nil {
		return model.FeedbackInput{}, false, err
	}

	switch strings.ToLower(answer) {
	case "s", "skip":
		return model.FeedbackInput{}, false, nil
	case "", "y", "yes":
		input.Accepted = true
		input.CorrectedCategory = result.Category
		return input, true, nil
	}

	input.CorrectedCategory = answer
	if strings.EqualFold(answer, result.Category) {
		input.Accepted = true
		input.CorrectedCategory = result.Category
		return input, true, nil
	}

	if _, err := fmt.Fprint(p.writer, FormatPrompt("Why? (optional)")); err != nil {
		return model.FeedbackInput{}, false, fmt.Errorf("failed to write prompt: %w", err)
	}
	reason, err := p.reader.readLine(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return model.FeedbackInput{}, false, err
	}
	input.Reasoning = reason
	return input, true, nil
}
