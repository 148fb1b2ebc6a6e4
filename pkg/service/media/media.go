package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

// Manifest locates the media manifest of one source
type Manifest struct {
	Source string
	Path   string
}

type manifestFile struct {
	Files []*model.MediaItem `json:"files"`
}

// Service answers media questions from media manifests. Manifests are read on first use and
// kept in memory; a failed load is retried by the next call.
type Service struct {
	store     interfaces.ArtifactStore
	manifests []Manifest

	mu     sync.Mutex
	loaded bool
	items  []*model.MediaItem
}

var _ interfaces.MediaLookup = (*Service)(nil)

func New(store interfaces.ArtifactStore, manifests ...Manifest) *Service {
	return &Service{
		store:     store,
		manifests: manifests,
	}
}

func (x *Service) load(ctx context.Context) ([]*model.MediaItem, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.loaded {
		return x.items, nil
	}

	var items []*model.MediaItem
	seen := make(map[string]struct{})
	for _, m := range x.manifests {
		raw, err := x.store.Read(ctx, m.Path)
		if err != nil {
			if errors.Is(err, interfaces.ErrArtifactNotFound) {
				logging.From(ctx).Warn("media manifest not found", "source", m.Source, "path", m.Path)
				continue
			}
			return nil, goerr.Wrap(err, "failed to read media manifest", goerr.V("source", m.Source))
		}

		var file manifestFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, goerr.Wrap(err, "failed to parse media manifest",
				goerr.V("source", m.Source),
				goerr.V("path", m.Path),
			)
		}

		for _, item := range file.Files {
			if item == nil || item.URL == "" {
				continue
			}
			cp := *item
			cp.URL = NormalizeURL(item.URL)
			if cp.Source == "" {
				cp.Source = m.Source
			}
			if _, dup := seen[cp.URL]; dup {
				continue
			}
			seen[cp.URL] = struct{}{}
			items = append(items, &cp)
		}
		logging.From(ctx).Debug("media manifest loaded", "source", m.Source, "files", len(file.Files))
	}

	x.items = items
	x.loaded = true
	return items, nil
}

// Stats counts images and videos over all manifests
func (x *Service) Stats(ctx context.Context) (*model.MediaStats, error) {
	items, err := x.load(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.MediaStats{}
	for _, item := range items {
		switch item.Kind() {
		case model.MediaKindImage:
			stats.TotalImages++
		case model.MediaKindVideo:
			stats.TotalVideos++
		}
	}
	return stats, nil
}

// MediaForDate returns the media whose date falls on the given YYYY-MM-DD day
func (x *Service) MediaForDate(ctx context.Context, date string) ([]*model.MediaItem, error) {
	items, err := x.load(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*model.MediaItem
	for _, item := range items {
		if item.Date != "" && strings.HasPrefix(item.Date, date) {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

// Limit keeps at most maxImages images and maxVideos videos per source, in input order.
// Media of unknown kind is dropped. A negative limit means no limit.
func Limit(items []*model.MediaItem, maxImages, maxVideos int) []*model.MediaItem {
	type counter struct{ images, videos int }
	counts := make(map[string]*counter)

	var kept []*model.MediaItem
	for _, item := range items {
		c, ok := counts[item.Source]
		if !ok {
			c = &counter{}
			counts[item.Source] = c
		}

		switch item.Kind() {
		case model.MediaKindImage:
			if maxImages >= 0 && c.images >= maxImages {
				continue
			}
			c.images++
		case model.MediaKindVideo:
			if maxVideos >= 0 && c.videos >= maxVideos {
				continue
			}
			c.videos++
		default:
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

var discordCDNHosts = []string{"cdn.discordapp.com", "media.discordapp.net"}

// NormalizeURL strips the expiring signature parameters of Discord CDN links so that the
// same file always has the same URL
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if !slices.Contains(discordCDNHosts, u.Host) {
		return raw
	}

	q := u.Query()
	q.Del("ex")
	q.Del("is")
	q.Del("hm")
	u.RawQuery = q.Encode()
	return u.String()
}
