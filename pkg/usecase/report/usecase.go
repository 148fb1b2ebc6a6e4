package report

import (
	"context"
	"time"

	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/policy"
	"github.com/m3-org/ainews/pkg/usecase/classify"
)

const (
	DefaultMaxGroups          = 10
	DefaultJSONDir            = "json"
	DefaultMarkdownDir        = "md"
	DefaultMaxImagesPerSource = 5
	DefaultMaxVideosPerSource = 3
)

// Reducer combines group summaries into the final narrative
type Reducer interface {
	Reduce(ctx context.Context, summaries []*model.GroupSummary, dateLabel string) (string, error)
}

// UseCase generates, stores and reconciles daily reports
type UseCase struct {
	reports    interfaces.ReportRepository
	source     interfaces.ContentSource
	llm        interfaces.TextGenerator
	summarizer Reducer
	artifacts  interfaces.ArtifactStore
	media      interfaces.MediaLookup
	policy     *policy.Policy

	classifyOpts classify.Options
	maxGroups    int
	sourceFilter string
	jsonDir      string
	markdownDir  string
	maxImages    int
	maxVideos    int
	now          func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithContentSource reads items from src instead of the repository
func WithContentSource(src interfaces.ContentSource) Option {
	return func(uc *UseCase) {
		uc.source = src
	}
}

// WithMediaLookup enables media references in group prompts
func WithMediaLookup(media interfaces.MediaLookup) Option {
	return func(uc *UseCase) {
		uc.media = media
	}
}

// WithPolicy filters fetched items before classification
func WithPolicy(p *policy.Policy) Option {
	return func(uc *UseCase) {
		uc.policy = p
	}
}

// WithClassifyOptions replaces the default classification options
func WithClassifyOptions(opts classify.Options) Option {
	return func(uc *UseCase) {
		uc.classifyOpts = opts
	}
}

// WithMaxGroups bounds the number of groups sent to the text generator per run. 0 or less means no bound.
func WithMaxGroups(n int) Option {
	return func(uc *UseCase) {
		uc.maxGroups = n
	}
}

// WithSourceFilter restricts fetched items to one source
func WithSourceFilter(source string) Option {
	return func(uc *UseCase) {
		uc.sourceFilter = source
	}
}

// WithJSONDir sets the directory of the structured report files
func WithJSONDir(dir string) Option {
	return func(uc *UseCase) {
		uc.jsonDir = dir
	}
}

// WithMarkdownDir sets the directory of the narrative report files
func WithMarkdownDir(dir string) Option {
	return func(uc *UseCase) {
		uc.markdownDir = dir
	}
}

// WithMediaLimits bounds media per source in a group prompt. A negative value means no bound.
func WithMediaLimits(maxImages, maxVideos int) Option {
	return func(uc *UseCase) {
		uc.maxImages = maxImages
		uc.maxVideos = maxVideos
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new report UseCase instance
func New(
	repo interfaces.Repository,
	llm interfaces.TextGenerator,
	summarizer Reducer,
	artifacts interfaces.ArtifactStore,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		reports:      repo,
		source:       repo,
		llm:          llm,
		summarizer:   summarizer,
		artifacts:    artifacts,
		classifyOpts: classify.DefaultOptions(),
		maxGroups:    DefaultMaxGroups,
		jsonDir:      DefaultJSONDir,
		markdownDir:  DefaultMarkdownDir,
		maxImages:    DefaultMaxImagesPerSource,
		maxVideos:    DefaultMaxVideosPerSource,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
