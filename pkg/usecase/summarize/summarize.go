package summarize

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of summaries combined by a single generation call
const DefaultChunkSize = 8

var (
	ErrInvalidChunkSize = goerr.New("chunk size must be at least 2")
	ErrEmptyResponse    = goerr.New("empty response from text generator")
)

//go:embed prompt/reduce.md
var reducePromptRaw string

var reducePromptTmpl = template.Must(template.New("reduce").Parse(reducePromptRaw))

// Summarizer reduces any number of group summaries into one narrative document
type Summarizer struct {
	llm         interfaces.TextGenerator
	chunkSize   int
	concurrency int
}

// Option configures Summarizer
type Option func(*Summarizer)

// WithChunkSize sets how many summaries are combined by one generation call
func WithChunkSize(n int) Option {
	return func(s *Summarizer) {
		s.chunkSize = n
	}
}

// WithConcurrency bounds the number of chunks summarized at the same time. 0 means no limit.
func WithConcurrency(n int) Option {
	return func(s *Summarizer) {
		s.concurrency = n
	}
}

// New creates a Summarizer backed by llm
func New(llm interfaces.TextGenerator, opts ...Option) (*Summarizer, error) {
	s := &Summarizer{
		llm:       llm,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize < 2 {
		return nil, goerr.Wrap(ErrInvalidChunkSize, "invalid summarizer option", goerr.V("chunk_size", s.chunkSize))
	}
	if s.concurrency < 0 {
		s.concurrency = 0
	}
	return s, nil
}

// NoContentNarrative is the narrative of a day without any summary
func NoContentNarrative(dateLabel string) string {
	return fmt.Sprintf("# Daily Report - %s\n\nNo content to summarize for %s.\n", dateLabel, dateLabel)
}

// Reduce combines summaries into one narrative. Summaries that do not fit in one chunk are
// summarized chunk by chunk in parallel and the chunk results are reduced again until a single
// call covers everything. A failed chunk aborts the whole reduction.
func (s *Summarizer) Reduce(ctx context.Context, summaries []*model.GroupSummary, dateLabel string) (string, error) {
	if len(summaries) == 0 {
		return NoContentNarrative(dateLabel), nil
	}
	return s.reduce(ctx, summaries, dateLabel, 0)
}

func (s *Summarizer) reduce(ctx context.Context, summaries []*model.GroupSummary, dateLabel string, level int) (string, error) {
	if len(summaries) <= s.chunkSize {
		return s.combine(ctx, summaries, dateLabel)
	}

	chunks := split(summaries, s.chunkSize)
	logging.From(ctx).Debug("reducing summaries in chunks",
		"level", level,
		"summaries", len(summaries),
		"chunks", len(chunks),
	)

	results := make([]*model.GroupSummary, len(chunks))
	eg, egCtx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		eg.SetLimit(s.concurrency)
	}

	for i, chunk := range chunks {
		part := i + 1
		eg.Go(func() error {
			label := fmt.Sprintf("%s - Part %d", dateLabel, part)
			text, err := s.combine(egCtx, chunk, label)
			if err != nil {
				return goerr.Wrap(err, "failed to summarize chunk",
					goerr.V("level", level),
					goerr.V("part", part),
				)
			}
			results[i] = model.NewChunkSummary(part, text)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return "", err
	}

	return s.reduce(ctx, results, dateLabel, level+1)
}

func (s *Summarizer) combine(ctx context.Context, summaries []*model.GroupSummary, label string) (string, error) {
	prompt, err := buildReducePrompt(summaries, label)
	if err != nil {
		return "", err
	}

	text, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate combined summary", goerr.V("label", label))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", goerr.Wrap(ErrEmptyResponse, "failed to generate combined summary", goerr.V("label", label))
	}
	return text, nil
}

func buildReducePrompt(summaries []*model.GroupSummary, label string) (string, error) {
	raw, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal summaries")
	}

	var buf strings.Builder
	if err := reducePromptTmpl.Execute(&buf, map[string]any{
		"Label":     label,
		"Summaries": string(raw),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute reduce prompt template")
	}
	return buf.String(), nil
}

// split cuts summaries into contiguous chunks of at most size elements
func split(summaries []*model.GroupSummary, size int) [][]*model.GroupSummary {
	var chunks [][]*model.GroupSummary
	for start := 0; start < len(summaries); start += size {
		end := min(start+size, len(summaries))
		chunks = append(chunks, summaries[start:end])
	}
	return chunks
}
