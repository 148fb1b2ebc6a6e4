package media_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/service/media"
)

type mockStore struct {
	files map[string]string
	reads int
	err   error
}

func (m *mockStore) Read(ctx context.Context, path string) ([]byte, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrArtifactNotFound, "not found")
	}
	return []byte(data), nil
}

func (m *mockStore) Write(ctx context.Context, path string, data []byte) error {
	return errors.New("read only")
}

const elizaManifest = `{
  "files": [
    {"url": "https://cdn.discordapp.com/attachments/1/2/a.png?ex=65&is=66&hm=abc", "unique_name": "2_a.png", "filename": "a.png", "size": 100, "media_type": "attachment", "date": "2024-01-01T10:00:00Z"},
    {"url": "https://cdn.discordapp.com/attachments/1/2/a.png?ex=99&is=98&hm=def", "unique_name": "2_a.png", "filename": "a.png", "size": 100, "media_type": "attachment", "date": "2024-01-01T10:00:00Z"},
    {"url": "https://cdn.discordapp.com/attachments/1/3/clip", "unique_name": "3_clip", "filename": "clip", "content_type": "video/mp4", "media_type": "attachment", "date": "2024-01-01T11:00:00Z"},
    {"url": "https://example.com/b.jpg", "filename": "b.jpg", "media_type": "embed", "date": "2024-01-02T00:00:00Z"},
    {"url": "https://example.com/readme.txt", "filename": "readme.txt", "date": "2024-01-01T00:00:00Z"},
    {"url": "", "filename": "broken.png"}
  ]
}`

const hyperfyManifest = `{"files": [{"url": "https://example.com/h.webp", "filename": "h.webp", "source": "hyperfy-discord", "date": "2024-01-01"}]}`

func newService(store *mockStore) *media.Service {
	return media.New(store,
		media.Manifest{Source: "elizaos", Path: "elizaos/media-manifest.json"},
		media.Manifest{Source: "hyperfy", Path: "hyperfy/media-manifest.json"},
		media.Manifest{Source: "missing", Path: "missing/media-manifest.json"},
	)
}

func TestServiceStats(t *testing.T) {
	store := &mockStore{files: map[string]string{
		"elizaos/media-manifest.json": elizaManifest,
		"hyperfy/media-manifest.json": hyperfyManifest,
	}}
	svc := newService(store)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, stats.TotalImages, 3)
	gt.Equal(t, stats.TotalVideos, 1)

	// manifests are read once
	_, err = svc.Stats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, store.reads, 3)
}

func TestServiceMediaForDate(t *testing.T) {
	store := &mockStore{files: map[string]string{
		"elizaos/media-manifest.json": elizaManifest,
		"hyperfy/media-manifest.json": hyperfyManifest,
	}}
	svc := newService(store)

	items, err := svc.MediaForDate(context.Background(), "2024-01-01")
	gt.NoError(t, err)
	gt.A(t, items).Length(4)

	gt.Equal(t, items[0].URL, "https://cdn.discordapp.com/attachments/1/2/a.png")
	gt.Equal(t, items[0].Source, "elizaos")
	gt.Equal(t, items[1].Kind(), model.MediaKindVideo)
	gt.Equal(t, items[2].Kind(), model.MediaKindUnknown)
	gt.Equal(t, items[3].Source, "hyperfy-discord")

	none, err := svc.MediaForDate(context.Background(), "2023-12-31")
	gt.NoError(t, err)
	gt.A(t, none).Length(0)
}

func TestServiceLoadFailureIsRetried(t *testing.T) {
	store := &mockStore{err: errors.New("bucket unavailable")}
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.Stats(ctx)
	gt.Error(t, err)

	store.err = nil
	store.files = map[string]string{"hyperfy/media-manifest.json": hyperfyManifest}
	stats, err := svc.Stats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, stats.TotalImages, 1)
}

func TestServiceInvalidManifest(t *testing.T) {
	store := &mockStore{files: map[string]string{"elizaos/media-manifest.json": "{not json"}}
	svc := newService(store)

	_, err := svc.MediaForDate(context.Background(), "2024-01-01")
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("failed to parse media manifest")
}

func TestLimit(t *testing.T) {
	items := []*model.MediaItem{
		{URL: "1", Filename: "1.png", Source: "a"},
		{URL: "2", Filename: "2.png", Source: "a"},
		{URL: "3", Filename: "3.png", Source: "a"},
		{URL: "4", Filename: "4.mp4", Source: "a"},
		{URL: "5", Filename: "5.mp4", Source: "a"},
		{URL: "6", Filename: "6.png", Source: "b"},
		{URL: "7", Filename: "7.txt", Source: "b"},
	}

	kept := media.Limit(items, 2, 1)
	var urls []string
	for _, item := range kept {
		urls = append(urls, item.URL)
	}
	gt.Equal(t, urls, []string{"1", "2", "4", "6"})

	gt.A(t, media.Limit(items, -1, -1)).Length(6)
	gt.A(t, media.Limit(items, 0, 0)).Length(0)
}

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"https://cdn.discordapp.com/a/b.png?ex=1&is=2&hm=3", "https://cdn.discordapp.com/a/b.png"},
		{"https://media.discordapp.net/a/b.png?width=100&hm=3", "https://media.discordapp.net/a/b.png?width=100"},
		{"https://example.com/a.png?ex=1", "https://example.com/a.png?ex=1"},
		{"://bad", "://bad"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			gt.Equal(t, media.NormalizeURL(tc.in), tc.want)
		})
	}
}
