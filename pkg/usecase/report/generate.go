package report

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/service/media"
	"github.com/m3-org/ainews/pkg/usecase/classify"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

//go:embed prompt/group.md
var groupPromptRaw string

var groupPromptTmpl = template.Must(template.New("group").Parse(groupPromptRaw))

var ErrAllGroupsFailed = goerr.New("no group summary could be generated")

type mediaRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Kind     string `json:"kind"`
	Source   string `json:"source,omitempty"`
}

// Generate builds, stores and returns the report of the day containing date. Failures are
// logged and returned in the outcome; a failed group is skipped without failing the run.
func (uc *UseCase) Generate(ctx context.Context, date time.Time) (outcome *Outcome) {
	day := model.StartOfDay(date)
	label := model.DateLabel(day)
	logger := logging.From(ctx).With("date", label)
	ctx = logging.With(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			err := goerr.New("panic during report generation", goerr.V("panic", fmt.Sprint(r)))
			logger.Error("report generation aborted", "error", err)
			outcome = failed(day, err)
		}
	}()

	outcome, err := uc.generate(ctx, day)
	if err != nil {
		logger.Error("report generation failed", "error", err)
		if outcome == nil {
			outcome = failed(day, err)
		} else {
			outcome.Status = StatusFailed
			outcome.Err = err
		}
		return outcome
	}

	logger.Info("report generation finished",
		"status", outcome.Status,
		"groups", outcome.Groups,
		"failed_topics", outcome.FailedTopics,
	)
	return outcome
}

func (uc *UseCase) generate(ctx context.Context, day time.Time) (*Outcome, error) {
	logger := logging.From(ctx)
	label := model.DateLabel(day)
	start, end := model.DayWindow(day)

	items, err := uc.source.GetContentItemsBetweenEpoch(ctx, start, end, uc.sourceFilter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch content items", goerr.V("start", start), goerr.V("end", end))
	}

	items, err = uc.policy.Filter(ctx, items)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		logger.Info("no content items for the day")
		return &Outcome{Status: StatusNoContent, Date: day}, nil
	}

	mediaJSON := uc.mediaPayload(ctx, label)

	groups := classify.Classify(items, uc.classifyOpts)
	logger.Info("content classified", "items", len(items), "groups", len(groups))

	outcome := &Outcome{Date: day}
	var summaries []*model.GroupSummary
	for _, group := range groups {
		if len(group.Items) == 0 {
			continue
		}
		if uc.maxGroups > 0 && outcome.Groups >= uc.maxGroups {
			logger.Warn("group limit reached, skipping remaining groups", "max_groups", uc.maxGroups, "next_topic", group.Topic)
			break
		}
		outcome.Groups++

		summary, err := uc.summarizeGroup(ctx, group, label, mediaJSON)
		if err != nil {
			logger.Warn("failed to summarize group", "topic", group.Topic, "items", len(group.Items), "error", err)
			outcome.FailedTopics = append(outcome.FailedTopics, group.Topic)
			continue
		}
		summaries = append(summaries, summary)
	}

	if outcome.Groups > 0 && len(summaries) == 0 {
		return outcome, goerr.Wrap(ErrAllGroupsFailed, "failed to summarize groups", goerr.V("groups", outcome.Groups))
	}

	narrative, err := uc.summarizer.Reduce(ctx, summaries, label)
	if err != nil {
		return outcome, goerr.Wrap(err, "failed to reduce group summaries", goerr.V("summaries", len(summaries)))
	}

	report, err := model.NewDailyReport(day, summaries, narrative)
	if err != nil {
		return outcome, err
	}
	outcome.Report = report

	if err := uc.Save(ctx, report); err != nil {
		return outcome, err
	}

	outcome.Status = StatusGenerated
	return outcome, nil
}

func (uc *UseCase) summarizeGroup(ctx context.Context, group *model.TopicGroup, label, mediaJSON string) (*model.GroupSummary, error) {
	prompt, err := buildGroupPrompt(group, label, mediaJSON)
	if err != nil {
		return nil, err
	}

	response, err := uc.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate group summary", goerr.V("topic", group.Topic))
	}

	return parseGroupSummary(response, group.Topic)
}

func buildGroupPrompt(group *model.TopicGroup, label, mediaJSON string) (string, error) {
	itemsJSON, err := json.MarshalIndent(group.Items, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal group items", goerr.V("topic", group.Topic))
	}

	var buf strings.Builder
	if err := groupPromptTmpl.Execute(&buf, map[string]any{
		"Date":         label,
		"Topic":        group.Topic,
		"MergedTopics": strings.Join(group.MergedTopics, ", "),
		"Items":        string(itemsJSON),
		"Media":        mediaJSON,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute group prompt template")
	}
	return buf.String(), nil
}

// mediaPayload returns the media list for the prompts of the day as JSON, or "" when there
// is none. Media lookup failures only disable media.
func (uc *UseCase) mediaPayload(ctx context.Context, label string) string {
	if uc.media == nil {
		return ""
	}
	logger := logging.From(ctx)

	stats, err := uc.media.Stats(ctx)
	if err != nil {
		logger.Warn("media lookup unavailable", "error", err)
		return ""
	}
	if stats.TotalImages == 0 && stats.TotalVideos == 0 {
		return ""
	}

	items, err := uc.media.MediaForDate(ctx, label)
	if err != nil {
		logger.Warn("failed to get media for the day", "error", err)
		return ""
	}

	items = media.Limit(items, uc.maxImages, uc.maxVideos)
	if len(items) == 0 {
		return ""
	}

	refs := make([]mediaRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, mediaRef{
			URL:      item.URL,
			Filename: item.Filename,
			Kind:     string(item.Kind()),
			Source:   item.Source,
		})
	}

	raw, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal media", "error", err)
		return ""
	}
	logger.Debug("media attached to prompts", "images", stats.TotalImages, "videos", stats.TotalVideos, "selected", len(refs))
	return string(raw)
}
