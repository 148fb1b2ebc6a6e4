package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m3-org/ainews/pkg/artifact"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/repository"
	"github.com/m3-org/ainews/pkg/usecase/report"
)

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

var topicRegex = regexp.MustCompile(`grouped under the topic "([^"]+)"`)

type mockGenerator struct {
	mu           sync.Mutex
	topics       []string
	generateFunc func(ctx context.Context, topic string) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	topic := ""
	if matches := topicRegex.FindStringSubmatch(prompt); len(matches) == 2 {
		topic = matches[1]
	}

	m.mu.Lock()
	m.topics = append(m.topics, topic)
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(ctx, topic)
	}
	return summaryResponse(topic), nil
}

func summaryResponse(topic string) string {
	return fmt.Sprintf("```json\n{\"title\":\"About %s\",\"content\":[{\"text\":\"news on %s\"}]}\n```", topic, topic)
}

type mockReducer struct {
	calls      int
	summaries  []*model.GroupSummary
	reduceFunc func(ctx context.Context, summaries []*model.GroupSummary, dateLabel string) (string, error)
}

func (m *mockReducer) Reduce(ctx context.Context, summaries []*model.GroupSummary, dateLabel string) (string, error) {
	m.calls++
	m.summaries = summaries
	if m.reduceFunc != nil {
		return m.reduceFunc(ctx, summaries, dateLabel)
	}
	return "# Daily Report - " + dateLabel + "\n", nil
}

type mockSource struct {
	getFunc func(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error)
}

func (m *mockSource) GetContentItemsBetweenEpoch(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error) {
	return m.getFunc(ctx, start, end, source)
}

// countingStore records writes made through an ArtifactStore
type countingStore struct {
	interfaces.ArtifactStore
	mu     sync.Mutex
	writes []string
}

func (s *countingStore) Write(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	s.writes = append(s.writes, path)
	s.mu.Unlock()
	return s.ArtifactStore.Write(ctx, path, data)
}

type fixture struct {
	repo    *repository.SQLite
	dir     string
	store   *countingStore
	llm     *mockGenerator
	reducer *mockReducer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := repository.NewSQLite(context.Background(), ":memory:")
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	dir := t.TempDir()
	return &fixture{
		repo:    repo,
		dir:     dir,
		store:   &countingStore{ArtifactStore: artifact.NewLocal(dir)},
		llm:     &mockGenerator{},
		reducer: &mockReducer{},
	}
}

func (f *fixture) useCase(opts ...report.Option) *report.UseCase {
	return report.New(f.repo, f.llm, f.reducer, f.store, opts...)
}

func (f *fixture) readFile(t *testing.T, rel string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(f.dir, rel))
	gt.NoError(t, err)
	return raw
}

func (f *fixture) putDayItems(t *testing.T) {
	t.Helper()
	start, _ := model.DayWindow(testDay)

	var items []*model.ContentItem
	add := func(cid string, topics ...string) {
		items = append(items, &model.ContentItem{
			CID:    cid,
			Type:   "discordRawData",
			Source: "discord",
			Text:   "text of " + cid,
			Topics: topics,
			Date:   start + int64(len(items)+1)*60,
		})
	}
	add("p1", "protocol")
	add("p2", "protocol")
	add("p3", "protocol")
	add("g1", "governance")
	add("g2", "governance")
	add("l1", "lonely")

	// outside of the day window
	items = append(items, &model.ContentItem{CID: "old", Type: "tweet", Source: "twitter", Topics: []string{"protocol"}, Date: start - 1})

	gt.NoError(t, f.repo.PutContentItems(context.Background(), items))
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)
	ctx := context.Background()

	outcome := f.useCase().Generate(ctx, testDay.Add(15*time.Hour))
	gt.NoError(t, outcome.Err)
	gt.Equal(t, outcome.Status, report.StatusGenerated)
	gt.Equal(t, outcome.Date, testDay)
	gt.Equal(t, outcome.Groups, 3)
	gt.A(t, outcome.FailedTopics).Length(0)
	gt.Equal(t, f.llm.topics, []string{"protocol", "governance", model.MiscellaneousTopic})

	gt.A(t, f.reducer.summaries).Length(3)
	gt.Equal(t, f.reducer.summaries[0].Topic, "protocol")
	gt.Equal(t, f.reducer.summaries[0].Title, "About protocol")

	start, end := model.DayWindow(testDay)
	stored, err := f.repo.GetReportsBetweenEpoch(ctx, start, end)
	gt.NoError(t, err)
	gt.A(t, stored).Length(1)
	gt.Equal(t, stored[0].Title, "Daily Report - 2024-03-01")
	gt.Equal(t, stored[0].Narrative, "# Daily Report - 2024-03-01\n")

	var projection model.ReportProjection
	gt.NoError(t, json.Unmarshal(f.readFile(t, "json/2024-03-01.json"), &projection))
	gt.Equal(t, projection.Type, model.ReportTypeDaily)
	gt.Equal(t, projection.Date, testDay.Unix())
	gt.A(t, projection.Categories).Length(3)
	gt.Equal(t, projection.Categories[2].Topic, model.MiscellaneousTopic)

	gt.Equal(t, string(f.readFile(t, "md/2024-03-01.md")), "# Daily Report - 2024-03-01\n")
}

func TestGenerateIsolatesGroupFailures(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)
	f.llm.generateFunc = func(ctx context.Context, topic string) (string, error) {
		switch topic {
		case "governance":
			return "Sorry, I can't produce JSON today", nil
		case model.MiscellaneousTopic:
			return "", errors.New("backend unavailable")
		}
		return summaryResponse(topic), nil
	}

	outcome := f.useCase().Generate(context.Background(), testDay)
	gt.NoError(t, outcome.Err)
	gt.Equal(t, outcome.Status, report.StatusGenerated)
	gt.Equal(t, outcome.Groups, 3)
	gt.Equal(t, outcome.FailedTopics, []string{"governance", model.MiscellaneousTopic})

	gt.A(t, f.reducer.summaries).Length(1)
	gt.Equal(t, f.reducer.summaries[0].Topic, "protocol")

	var projection model.ReportProjection
	gt.NoError(t, json.Unmarshal(f.readFile(t, "json/2024-03-01.json"), &projection))
	gt.A(t, projection.Categories).Length(1)
}

func TestGenerateAllGroupsFailed(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)
	f.llm.generateFunc = func(ctx context.Context, topic string) (string, error) {
		return "not json", nil
	}

	outcome := f.useCase().Generate(context.Background(), testDay)
	gt.True(t, outcome.Failed())
	gt.True(t, errors.Is(outcome.Err, report.ErrAllGroupsFailed))
	gt.A(t, outcome.FailedTopics).Length(3)
	gt.Equal(t, f.reducer.calls, 0)
	gt.A(t, f.store.writes).Length(0)

	start, end := model.DayWindow(testDay)
	stored, err := f.repo.GetReportsBetweenEpoch(context.Background(), start, end)
	gt.NoError(t, err)
	gt.A(t, stored).Length(0)
}

func TestGenerateMaxGroups(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)

	outcome := f.useCase(report.WithMaxGroups(2)).Generate(context.Background(), testDay)
	gt.NoError(t, outcome.Err)
	gt.Equal(t, outcome.Groups, 2)
	gt.Equal(t, f.llm.topics, []string{"protocol", "governance"})
}

func TestGenerateNoContent(t *testing.T) {
	f := newFixture(t)

	outcome := f.useCase().Generate(context.Background(), testDay)
	gt.NoError(t, outcome.Err)
	gt.Equal(t, outcome.Status, report.StatusNoContent)
	gt.A(t, f.llm.topics).Length(0)
	gt.Equal(t, f.reducer.calls, 0)
	gt.A(t, f.store.writes).Length(0)
}

func TestGenerateFetchFailure(t *testing.T) {
	f := newFixture(t)
	src := &mockSource{
		getFunc: func(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error) {
			return nil, errors.New("connection refused")
		},
	}

	outcome := f.useCase(report.WithContentSource(src)).Generate(context.Background(), testDay)
	gt.True(t, outcome.Failed())
	gt.S(t, outcome.Err.Error()).Contains("failed to fetch content items")
	gt.A(t, f.store.writes).Length(0)
}

func TestGenerateSourceFilter(t *testing.T) {
	f := newFixture(t)
	var gotSource string
	var gotStart, gotEnd int64
	src := &mockSource{
		getFunc: func(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error) {
			gotStart, gotEnd, gotSource = start, end, source
			return nil, nil
		},
	}

	outcome := f.useCase(report.WithContentSource(src), report.WithSourceFilter("discord")).Generate(context.Background(), testDay.Add(23*time.Hour))
	gt.Equal(t, outcome.Status, report.StatusNoContent)
	gt.Equal(t, gotSource, "discord")
	gt.Equal(t, gotStart, testDay.Unix())
	gt.Equal(t, gotEnd, testDay.Add(24*time.Hour).Unix())
}

func TestGenerateRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)
	f.reducer.reduceFunc = func(ctx context.Context, summaries []*model.GroupSummary, dateLabel string) (string, error) {
		panic("boom")
	}

	outcome := f.useCase().Generate(context.Background(), testDay)
	gt.True(t, outcome.Failed())
	gt.S(t, outcome.Err.Error()).Contains("panic")
}

type mockMedia struct {
	stats *model.MediaStats
	items []*model.MediaItem
	err   error
}

func (m *mockMedia) Stats(ctx context.Context) (*model.MediaStats, error) {
	return m.stats, m.err
}

func (m *mockMedia) MediaForDate(ctx context.Context, date string) ([]*model.MediaItem, error) {
	return m.items, m.err
}

func TestGenerateWithMedia(t *testing.T) {
	var prompts []string
	f := newFixture(t)
	f.putDayItems(t)
	f.llm.generateFunc = func(ctx context.Context, topic string) (string, error) {
		return summaryResponse(topic), nil
	}
	llm := &recordingGenerator{next: f.llm, prompts: &prompts}

	media := &mockMedia{
		stats: &model.MediaStats{TotalImages: 3},
		items: []*model.MediaItem{
			{URL: "https://cdn.example.com/a.png", Filename: "a.png", Source: "discord", Date: "2024-03-01"},
			{URL: "https://cdn.example.com/b.png", Filename: "b.png", Source: "discord", Date: "2024-03-01"},
			{URL: "https://cdn.example.com/c.png", Filename: "c.png", Source: "discord", Date: "2024-03-01"},
		},
	}

	uc := report.New(f.repo, llm, f.reducer, f.store, report.WithMediaLookup(media), report.WithMediaLimits(2, 0))
	outcome := uc.Generate(context.Background(), testDay)
	gt.NoError(t, outcome.Err)
	gt.A(t, prompts).Length(3)
	gt.S(t, prompts[0]).Contains("https://cdn.example.com/a.png")
	gt.S(t, prompts[0]).Contains("https://cdn.example.com/b.png")
	gt.S(t, prompts[0]).NotContains("https://cdn.example.com/c.png")

	t.Run("media failures do not fail the run", func(t *testing.T) {
		prompts = nil
		f := newFixture(t)
		f.putDayItems(t)
		llm := &recordingGenerator{next: f.llm, prompts: &prompts}

		uc := report.New(f.repo, llm, f.reducer, f.store, report.WithMediaLookup(&mockMedia{err: errors.New("bucket gone")}))
		outcome := uc.Generate(context.Background(), testDay)
		gt.NoError(t, outcome.Err)
		gt.Equal(t, outcome.Status, report.StatusGenerated)
		gt.S(t, prompts[0]).NotContains("Media available")
	})
}

type recordingGenerator struct {
	next    interfaces.TextGenerator
	prompts *[]string
}

func (r *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	*r.prompts = append(*r.prompts, prompt)
	return r.next.Generate(ctx, prompt)
}

func storedReport(t *testing.T, f *fixture) *model.DailyReport {
	t.Helper()
	start, end := model.DayWindow(testDay)
	stored, err := f.repo.GetReportsBetweenEpoch(context.Background(), start, end)
	gt.NoError(t, err)
	gt.A(t, stored).Length(1)
	return stored[0]
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)
	ctx := context.Background()
	uc := f.useCase()

	gt.NoError(t, uc.Generate(ctx, testDay).Err)
	record := storedReport(t, f)

	t.Run("identical files are not rewritten", func(t *testing.T) {
		f.store.writes = nil
		result := uc.Reconcile(ctx, testDay, record)
		gt.False(t, result.StructuredRewritten)
		gt.False(t, result.NarrativeRewritten)
		gt.A(t, result.Errors).Length(0)
		gt.A(t, f.store.writes).Length(0)
	})

	t.Run("reformatted structured file is equivalent", func(t *testing.T) {
		raw := f.readFile(t, "json/2024-03-01.json")
		var v any
		gt.NoError(t, json.Unmarshal(raw, &v))
		compact, err := json.Marshal(v)
		gt.NoError(t, err)
		gt.NoError(t, os.WriteFile(filepath.Join(f.dir, "json/2024-03-01.json"), compact, 0644))

		f.store.writes = nil
		result := uc.Reconcile(ctx, testDay, record)
		gt.False(t, result.StructuredRewritten)
		gt.A(t, f.store.writes).Length(0)
	})

	t.Run("divergent structured file is rewritten once", func(t *testing.T) {
		gt.NoError(t, os.WriteFile(filepath.Join(f.dir, "json/2024-03-01.json"), []byte(`{"type":"dailySummary","title":"edited"}`), 0644))

		f.store.writes = nil
		result := uc.Reconcile(ctx, testDay, record)
		gt.True(t, result.StructuredRewritten)
		gt.False(t, result.NarrativeRewritten)
		gt.Equal(t, f.store.writes, []string{"json/2024-03-01.json"})

		var projection model.ReportProjection
		gt.NoError(t, json.Unmarshal(f.readFile(t, "json/2024-03-01.json"), &projection))
		gt.Equal(t, projection.Title, record.Title)

		f.store.writes = nil
		result = uc.Reconcile(ctx, testDay, record)
		gt.False(t, result.StructuredRewritten)
		gt.A(t, f.store.writes).Length(0)
	})

	t.Run("missing files are restored", func(t *testing.T) {
		gt.NoError(t, os.RemoveAll(filepath.Join(f.dir, "json")))
		gt.NoError(t, os.Remove(filepath.Join(f.dir, "md/2024-03-01.md")))

		f.store.writes = nil
		result := uc.Reconcile(ctx, testDay, record)
		gt.True(t, result.StructuredRewritten)
		gt.True(t, result.NarrativeRewritten)
		gt.A(t, f.store.writes).Length(2)
		gt.Equal(t, string(f.readFile(t, "md/2024-03-01.md")), record.Narrative)
	})
}

type failingWriteStore struct {
	interfaces.ArtifactStore
}

func (s *failingWriteStore) Write(ctx context.Context, path string, data []byte) error {
	return errors.New("read-only file system")
}

func TestReconcileWriteFailure(t *testing.T) {
	f := newFixture(t)
	record, err := model.NewDailyReport(testDay, nil, "narrative")
	gt.NoError(t, err)

	store := &failingWriteStore{ArtifactStore: artifact.NewLocal(f.dir)}
	uc := report.New(f.repo, f.llm, f.reducer, store)

	result := uc.Reconcile(context.Background(), testDay, record)
	gt.False(t, result.StructuredRewritten)
	gt.False(t, result.NarrativeRewritten)
	gt.A(t, result.Errors).Length(2)
}

func TestReconcileDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uc := f.useCase()

	_, err := uc.ReconcileDate(ctx, testDay)
	gt.True(t, errors.Is(err, report.ErrReportNotFound))

	record, err := model.NewDailyReport(testDay, nil, "narrative")
	gt.NoError(t, err)
	gt.NoError(t, f.repo.SaveReport(ctx, record))

	result, err := uc.ReconcileDate(ctx, testDay.Add(time.Hour))
	gt.NoError(t, err)
	gt.True(t, result.StructuredRewritten)
	gt.True(t, result.NarrativeRewritten)
	gt.Equal(t, string(f.readFile(t, "md/2024-03-01.md")), "narrative")
}

func TestRun(t *testing.T) {
	clock := report.WithClock(func() time.Time {
		return testDay.Add(24*time.Hour + 90*time.Minute)
	})

	t.Run("generates yesterday's report", func(t *testing.T) {
		f := newFixture(t)
		f.putDayItems(t)

		outcome := f.useCase(clock).Run(context.Background())
		gt.NoError(t, outcome.Err)
		gt.Equal(t, outcome.Status, report.StatusGenerated)
		gt.Equal(t, outcome.Date, testDay)
		gt.A(t, f.llm.topics).Length(3)
	})

	t.Run("reconciles an existing report without generating", func(t *testing.T) {
		f := newFixture(t)
		f.putDayItems(t)
		uc := f.useCase(clock)

		gt.NoError(t, uc.Run(context.Background()).Err)
		f.llm.topics = nil
		f.reducer.calls = 0
		gt.NoError(t, os.Remove(filepath.Join(f.dir, "md/2024-03-01.md")))

		outcome := uc.Run(context.Background())
		gt.NoError(t, outcome.Err)
		gt.Equal(t, outcome.Status, report.StatusReconciled)
		gt.V(t, outcome.Reconcile).NotNil()
		gt.True(t, outcome.Reconcile.NarrativeRewritten)
		gt.False(t, outcome.Reconcile.StructuredRewritten)
		gt.A(t, f.llm.topics).Length(0)
		gt.Equal(t, f.reducer.calls, 0)
	})

	t.Run("no content", func(t *testing.T) {
		f := newFixture(t)
		outcome := f.useCase(clock).Run(context.Background())
		gt.Equal(t, outcome.Status, report.StatusNoContent)
		gt.Equal(t, outcome.Date, testDay)
	})
}

func TestYesterday(t *testing.T) {
	gt.Equal(t, report.Yesterday(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	gt.Equal(t, report.Yesterday(time.Date(2024, 3, 1, 23, 59, 0, 0, time.FixedZone("JST", 9*3600))), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
}

func TestGenerateWrapsPromptItems(t *testing.T) {
	f := newFixture(t)
	f.putDayItems(t)
	var prompts []string
	llm := &recordingGenerator{next: f.llm, prompts: &prompts}

	outcome := report.New(f.repo, llm, f.reducer, f.store).Generate(context.Background(), testDay)
	gt.NoError(t, outcome.Err)
	gt.S(t, prompts[0]).Contains("text of p1")
	gt.S(t, prompts[0]).Contains("2024-03-01")
	gt.False(t, strings.Contains(prompts[0], "text of g1"))
}
