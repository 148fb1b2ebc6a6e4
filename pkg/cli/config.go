package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/adapter"
	"github.com/m3-org/ainews/pkg/artifact"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/policy"
	"github.com/m3-org/ainews/pkg/repository"
	"github.com/m3-org/ainews/pkg/service/media"
	"github.com/m3-org/ainews/pkg/usecase/classify"
	"github.com/m3-org/ainews/pkg/usecase/report"
	"github.com/m3-org/ainews/pkg/usecase/summarize"
	"github.com/m3-org/ainews/pkg/utils/logging"
	"github.com/m3-org/ainews/pkg/utils/retry"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	backendSQLite    = "sqlite"
	backendFirestore = "firestore"

	llmGemini = "gemini"
	llmClaude = "claude"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	backend       string
	sqlitePath    string
	project       string
	database      string
	bigqueryTable string
	scanLimit     int64

	// Adapters
	llm             string
	anthropicAPIKey string
	claudeModel     string
	geminiProject   string
	geminiLocation  string
	geminiModel     string

	// Report
	configPath        string
	outputDir         string
	outputBucket      string
	jsonDir           string
	markdownDir       string
	source            string
	maxGroups         int64
	chunkSize         int64
	concurrency       int64
	blockedTopics     []string
	groupBySourceType bool
	mediaManifests    []string
	mediaBucket       string
	maxImages         int64
	maxVideos         int64
	policyDir         string
}

// fileConfig is the optional YAML report settings file. Flags set on the command line win.
type fileConfig struct {
	Source      *string `yaml:"source"`
	MaxGroups   *int64  `yaml:"max_groups"`
	ChunkSize   *int64  `yaml:"chunk_size"`
	Concurrency *int64  `yaml:"concurrency"`
	JSONDir     *string `yaml:"json_dir"`
	MarkdownDir *string `yaml:"md_dir"`
	PolicyDir   *string `yaml:"policy_dir"`

	Classify struct {
		BlockedTopics     []string `yaml:"blocked_topics"`
		GroupBySourceType *bool    `yaml:"group_by_source_type"`
	} `yaml:"classify"`

	Media struct {
		Manifests          []string `yaml:"manifests"`
		MaxImagesPerSource *int64   `yaml:"max_images_per_source"`
		MaxVideosPerSource *int64   `yaml:"max_videos_per_source"`
	} `yaml:"media"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("AINEWS_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("AINEWS_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Repository backend (sqlite, firestore)",
			Value:       backendSQLite,
			Sources:     cli.EnvVars("AINEWS_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "Path of the SQLite database file",
			Value:       "data/ainews.sqlite",
			Sources:     cli.EnvVars("AINEWS_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("AINEWS_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("AINEWS_FIRESTORE_DATABASE_ID", "FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// sourceFlags returns flags selecting where content items are read from
func sourceFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "Read content items from this BigQuery table (project.dataset.table) instead of the repository",
			Sources:     cli.EnvVars("AINEWS_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
		&cli.IntFlag{
			Name:        "scan-limit",
			Usage:       "Maximum bytes a BigQuery content query may scan (0 means no limit)",
			Value:       10 * 1024 * 1024 * 1024,
			Sources:     cli.EnvVars("AINEWS_SCAN_LIMIT"),
			Destination: &cfg.scanLimit,
		},
		&cli.StringFlag{
			Name:        "source",
			Usage:       "Only use content items of this source",
			Sources:     cli.EnvVars("AINEWS_SOURCE"),
			Destination: &cfg.source,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "Text generation backend (gemini, claude)",
			Value:       llmGemini,
			Sources:     cli.EnvVars("AINEWS_LLM"),
			Destination: &cfg.llm,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("AINEWS_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Value:       adapter.DefaultClaudeModel,
			Sources:     cli.EnvVars("AINEWS_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("AINEWS_GEMINI_PROJECT_ID", "GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("AINEWS_GEMINI_LOCATION", "GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       adapter.DefaultGeminiModel,
			Sources:     cli.EnvVars("AINEWS_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// outputFlags returns flags for the report files
func outputFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "output-dir",
			Aliases:     []string{"o"},
			Usage:       "Directory the report files are written to",
			Value:       "output",
			Sources:     cli.EnvVars("AINEWS_OUTPUT_DIR"),
			Destination: &cfg.outputDir,
		},
		&cli.StringFlag{
			Name:        "output-bucket",
			Usage:       "Write the report files to this Cloud Storage bucket instead of --output-dir",
			Sources:     cli.EnvVars("AINEWS_OUTPUT_BUCKET"),
			Destination: &cfg.outputBucket,
		},
		&cli.StringFlag{
			Name:        "json-dir",
			Usage:       "Subdirectory of the structured report files",
			Value:       report.DefaultJSONDir,
			Sources:     cli.EnvVars("AINEWS_JSON_DIR"),
			Destination: &cfg.jsonDir,
		},
		&cli.StringFlag{
			Name:        "md-dir",
			Usage:       "Subdirectory of the narrative report files",
			Value:       report.DefaultMarkdownDir,
			Sources:     cli.EnvVars("AINEWS_MD_DIR"),
			Destination: &cfg.markdownDir,
		},
	}
}

// reportFlags returns flags tuning report generation
func reportFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "YAML file with report settings",
			Sources:     cli.EnvVars("AINEWS_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.IntFlag{
			Name:        "max-groups",
			Usage:       "Maximum number of groups summarized per report (0 means no limit)",
			Value:       report.DefaultMaxGroups,
			Sources:     cli.EnvVars("AINEWS_MAX_GROUPS"),
			Destination: &cfg.maxGroups,
		},
		&cli.IntFlag{
			Name:        "chunk-size",
			Usage:       "Number of summaries combined by one generation call",
			Value:       summarize.DefaultChunkSize,
			Sources:     cli.EnvVars("AINEWS_CHUNK_SIZE"),
			Destination: &cfg.chunkSize,
		},
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Maximum number of chunks summarized at the same time (0 means no limit)",
			Sources:     cli.EnvVars("AINEWS_CONCURRENCY"),
			Destination: &cfg.concurrency,
		},
		&cli.StringSliceFlag{
			Name:        "blocked-topic",
			Usage:       "Topic that never becomes a group (repeatable)",
			Value:       classify.DefaultOptions().BlockedTopics,
			Sources:     cli.EnvVars("AINEWS_BLOCKED_TOPICS"),
			Destination: &cfg.blockedTopics,
		},
		&cli.BoolFlag{
			Name:        "group-by-source-type",
			Usage:       "Group items by their type instead of their topics",
			Sources:     cli.EnvVars("AINEWS_GROUP_BY_SOURCE_TYPE"),
			Destination: &cfg.groupBySourceType,
		},
		&cli.StringSliceFlag{
			Name:        "media-manifest",
			Usage:       "Media manifest as source=path (repeatable)",
			Sources:     cli.EnvVars("AINEWS_MEDIA_MANIFESTS"),
			Destination: &cfg.mediaManifests,
		},
		&cli.StringFlag{
			Name:        "media-bucket",
			Usage:       "Read media manifests from this Cloud Storage bucket instead of local files",
			Sources:     cli.EnvVars("AINEWS_MEDIA_BUCKET"),
			Destination: &cfg.mediaBucket,
		},
		&cli.IntFlag{
			Name:        "max-images",
			Usage:       "Maximum images per source in a group prompt (negative means no limit)",
			Value:       report.DefaultMaxImagesPerSource,
			Sources:     cli.EnvVars("AINEWS_MAX_IMAGES"),
			Destination: &cfg.maxImages,
		},
		&cli.IntFlag{
			Name:        "max-videos",
			Usage:       "Maximum videos per source in a group prompt (negative means no limit)",
			Value:       report.DefaultMaxVideosPerSource,
			Sources:     cli.EnvVars("AINEWS_MAX_VIDEOS"),
			Destination: &cfg.maxVideos,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies filtering content items",
			Sources:     cli.EnvVars("AINEWS_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// setupLogger installs the configured logger as default and attaches it to ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) context.Context {
	logger := logging.NewWithFormat(logging.Format(strings.ToLower(cfg.logFormat)), cfg.logLevel, w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// applyFile loads the YAML settings file into cfg. Settings whose flag was set explicitly
// are kept.
func (cfg *config) applyFile(c *cli.Command) error {
	if cfg.configPath == "" {
		return nil
	}

	raw, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
	}

	set := func(flag string, apply func()) {
		if !c.IsSet(flag) {
			apply()
		}
	}
	if fc.Source != nil {
		set("source", func() { cfg.source = *fc.Source })
	}
	if fc.MaxGroups != nil {
		set("max-groups", func() { cfg.maxGroups = *fc.MaxGroups })
	}
	if fc.ChunkSize != nil {
		set("chunk-size", func() { cfg.chunkSize = *fc.ChunkSize })
	}
	if fc.Concurrency != nil {
		set("concurrency", func() { cfg.concurrency = *fc.Concurrency })
	}
	if fc.JSONDir != nil {
		set("json-dir", func() { cfg.jsonDir = *fc.JSONDir })
	}
	if fc.MarkdownDir != nil {
		set("md-dir", func() { cfg.markdownDir = *fc.MarkdownDir })
	}
	if fc.PolicyDir != nil {
		set("policy-dir", func() { cfg.policyDir = *fc.PolicyDir })
	}
	if fc.Classify.BlockedTopics != nil {
		set("blocked-topic", func() { cfg.blockedTopics = fc.Classify.BlockedTopics })
	}
	if fc.Classify.GroupBySourceType != nil {
		set("group-by-source-type", func() { cfg.groupBySourceType = *fc.Classify.GroupBySourceType })
	}
	if fc.Media.Manifests != nil {
		set("media-manifest", func() { cfg.mediaManifests = fc.Media.Manifests })
	}
	if fc.Media.MaxImagesPerSource != nil {
		set("max-images", func() { cfg.maxImages = *fc.Media.MaxImagesPerSource })
	}
	if fc.Media.MaxVideosPerSource != nil {
		set("max-videos", func() { cfg.maxVideos = *fc.Media.MaxVideosPerSource })
	}
	return nil
}

type closer func()

// newRepository creates the repository of the configured backend
func (cfg *config) newRepository(ctx context.Context) (interfaces.Repository, closer, error) {
	switch cfg.backend {
	case backendSQLite:
		if cfg.sqlitePath == "" {
			return nil, nil, goerr.New("sqlite-path is required")
		}
		if dir := parentDir(cfg.sqlitePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, goerr.Wrap(err, "failed to create database directory", goerr.V("dir", dir))
			}
		}
		repo, err := repository.NewSQLite(ctx, cfg.sqlitePath)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() { repo.Close() }, nil

	case backendFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() { repo.Close() }, nil

	default:
		return nil, nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

func parentDir(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i > 0 {
		return p[:i]
	}
	return ""
}

// newContentSource returns the BigQuery content source when a table is configured, nil
// otherwise. The closer releases the BigQuery client.
func (cfg *config) newContentSource(ctx context.Context) (interfaces.ContentSource, closer, error) {
	if cfg.bigqueryTable == "" {
		return nil, func() {}, nil
	}
	if cfg.project == "" {
		return nil, nil, goerr.New("project is required for bigquery-table")
	}

	bq, err := adapter.NewBigQuery(ctx, cfg.project)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create BigQuery client")
	}
	src, err := repository.NewBigQuerySource(bq, cfg.bigqueryTable, repository.WithScanLimit(cfg.scanLimit))
	if err != nil {
		bq.Close()
		return nil, nil, goerr.Wrap(err, "failed to create BigQuery content source")
	}
	return src, func() { bq.Close() }, nil
}

// newClaude creates a new Claude adapter instance
func (cfg *config) newClaude() (adapter.Claude, error) {
	if cfg.anthropicAPIKey == "" {
		return nil, goerr.New("anthropic-api-key is required")
	}
	return adapter.NewClaude(cfg.anthropicAPIKey, adapter.WithClaudeModel(cfg.claudeModel)), nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, adapter.WithGenerativeModel(cfg.geminiModel))
}

// newGenerators returns the text generator for group summaries and the one for narratives,
// both retried on transient failures. Gemini is constrained to the group summary schema.
func (cfg *config) newGenerators(ctx context.Context) (group, narrative interfaces.TextGenerator, err error) {
	retryCfg := retry.DefaultConfig()

	switch cfg.llm {
	case llmClaude:
		claude, err := cfg.newClaude()
		if err != nil {
			return nil, nil, err
		}
		gen := retry.NewGenerator(claude, retryCfg)
		return gen, gen, nil

	case llmGemini:
		gemini, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, nil, err
		}
		structured, err := adapter.NewGeminiGenerator(gemini, adapter.WithResponseSchema(report.GroupSummarySchema()))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create Gemini generator")
		}
		plain, err := adapter.NewGeminiGenerator(gemini)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create Gemini generator")
		}
		return retry.NewGenerator(structured, retryCfg), retry.NewGenerator(plain, retryCfg), nil

	default:
		return nil, nil, goerr.New("unknown llm", goerr.V("llm", cfg.llm))
	}
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newArtifacts returns the store of the report files
func (cfg *config) newArtifacts(ctx context.Context) (interfaces.ArtifactStore, error) {
	if cfg.outputBucket != "" {
		storage, err := cfg.newStorage(ctx, cfg.outputBucket)
		if err != nil {
			return nil, err
		}
		return artifact.NewBucket(storage), nil
	}
	if cfg.outputDir == "" {
		return nil, goerr.New("output-dir or output-bucket is required")
	}
	return artifact.NewLocal(cfg.outputDir), nil
}

// newMedia returns the media lookup of the configured manifests, nil if there are none
func (cfg *config) newMedia(ctx context.Context) (*media.Service, error) {
	if len(cfg.mediaManifests) == 0 {
		return nil, nil
	}

	var manifests []media.Manifest
	for _, v := range cfg.mediaManifests {
		source, path, ok := strings.Cut(v, "=")
		if !ok || source == "" || path == "" {
			return nil, goerr.New("media manifest must be source=path", goerr.V("value", v))
		}
		manifests = append(manifests, media.Manifest{Source: source, Path: path})
	}

	var store interfaces.ArtifactStore = artifact.NewLocal(".")
	if cfg.mediaBucket != "" {
		storage, err := cfg.newStorage(ctx, cfg.mediaBucket)
		if err != nil {
			return nil, err
		}
		store = artifact.NewBucket(storage)
	}
	return media.New(store, manifests...), nil
}

// newReport builds the report usecase and returns a function releasing its resources
func (cfg *config) newReport(ctx context.Context) (*report.UseCase, closer, error) {
	repo, closeRepo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	src, closeSource, err := cfg.newContentSource(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	release := func() {
		closeSource()
		closeRepo()
	}

	uc, err := cfg.buildReport(ctx, repo, src)
	if err != nil {
		release()
		return nil, nil, err
	}
	return uc, release, nil
}

func (cfg *config) buildReport(ctx context.Context, repo interfaces.Repository, src interfaces.ContentSource) (*report.UseCase, error) {
	groupLLM, narrativeLLM, err := cfg.newGenerators(ctx)
	if err != nil {
		return nil, err
	}

	summarizer, err := summarize.New(narrativeLLM,
		summarize.WithChunkSize(int(cfg.chunkSize)),
		summarize.WithConcurrency(int(cfg.concurrency)),
	)
	if err != nil {
		return nil, err
	}

	artifacts, err := cfg.newArtifacts(ctx)
	if err != nil {
		return nil, err
	}

	opts := []report.Option{
		report.WithClassifyOptions(classify.Options{
			GroupBySourceType: cfg.groupBySourceType,
			BlockedTopics:     cfg.blockedTopics,
		}),
		report.WithMaxGroups(int(cfg.maxGroups)),
		report.WithSourceFilter(cfg.source),
		report.WithJSONDir(cfg.jsonDir),
		report.WithMarkdownDir(cfg.markdownDir),
		report.WithMediaLimits(int(cfg.maxImages), int(cfg.maxVideos)),
	}
	if src != nil {
		opts = append(opts, report.WithContentSource(src))
	}

	mediaSvc, err := cfg.newMedia(ctx)
	if err != nil {
		return nil, err
	}
	if mediaSvc != nil {
		opts = append(opts, report.WithMediaLookup(mediaSvc))
	}

	if cfg.policyDir != "" {
		p, err := policy.Load(ctx, cfg.policyDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, report.WithPolicy(p))
	}

	return report.New(repo, groupLLM, summarizer, artifacts, opts...), nil
}
