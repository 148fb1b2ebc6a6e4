package classify

import (
	"slices"
	"strings"

	"github.com/m3-org/ainews/pkg/model"
)

// Canonical topics for repository activity. Groups with these names are always reported on
// their own, even when they hold a single item.
const (
	TopicPullRequest    = "pull_request"
	TopicIssue          = "issue"
	TopicCommit         = "commit"
	TopicGithubSummary  = "github_summary"
	TopicCompletedItems = "completed_items"
	TopicGithubOther    = "github_other"

	// TopicCryptoMarket collects market data items
	TopicCryptoMarket = "crypto market"

	topicUncategorized = "uncategorized"
)

const (
	githubSourceHint     = "github"
	analyticsContentHint = "analytics"

	// typeTopContributors items duplicate information of other GitHub items and are dropped
	typeTopContributors = "githubTopContributors"
)

var githubTypeTopics = map[string]string{
	"githubPullRequest":            TopicPullRequest,
	"githubPullRequestContributor": TopicPullRequest,
	"githubIssue":                  TopicIssue,
	"githubIssueContributor":       TopicIssue,
	"githubCommit":                 TopicCommit,
	"githubCommitContributor":      TopicCommit,
	"githubStatsSummary":           TopicGithubSummary,
	"githubSummary":                TopicGithubSummary,
	"githubCompletedItem":          TopicCompletedItems,
}

var githubTopics = []string{
	TopicPullRequest,
	TopicIssue,
	TopicCommit,
	TopicGithubSummary,
	TopicCompletedItems,
	TopicGithubOther,
}

// IsGithubTopic reports whether topic is one of the canonical repository activity topics
func IsGithubTopic(topic string) bool {
	return slices.Contains(githubTopics, topic)
}

// Options configures classification
type Options struct {
	// GroupBySourceType files every item under its item type instead of its topics
	GroupBySourceType bool
	// BlockedTopics never become groups. Matching is case-insensitive.
	BlockedTopics []string
}

// DefaultOptions returns options with the default block list
func DefaultOptions() Options {
	return Options{
		BlockedTopics: []string{"open source"},
	}
}

func (o Options) blockSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.BlockedTopics))
	for _, t := range o.BlockedTopics {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}

// topicMap keeps topics in insertion order
type topicMap struct {
	order []string
	items map[string][]*model.ContentItem
}

func newTopicMap() *topicMap {
	return &topicMap{items: make(map[string][]*model.ContentItem)}
}

func (m *topicMap) add(topic string, item *model.ContentItem) {
	if _, ok := m.items[topic]; !ok {
		m.order = append(m.order, topic)
	}
	m.items[topic] = append(m.items[topic], item)
}

// Classify partitions the items of one day into topic groups. It is deterministic for a
// given input order and never modifies the input items; items that gain a topic are copied.
// The returned slice always ends with the miscellaneous group, which may be empty.
func Classify(items []*model.ContentItem, opts Options) []*model.TopicGroup {
	blocked := opts.blockSet()
	topics := newTopicMap()

	for _, item := range items {
		if item == nil {
			continue
		}
		assign(topics, item, opts.GroupBySourceType, blocked)
	}

	return merge(topics)
}

func assign(topics *topicMap, item *model.ContentItem, bySourceType bool, blocked map[string]struct{}) {
	if strings.Contains(item.Source, githubSourceHint) {
		if item.Type == typeTopContributors {
			return
		}
		topic, ok := githubTypeTopics[item.Type]
		if !ok {
			topic = TopicGithubOther
		}
		topics.add(topic, item.WithTopic(topic))
		return
	}

	if strings.Contains(item.CID, analyticsContentHint) {
		topics.add(TopicCryptoMarket, item)
		return
	}

	if !bySourceType {
		if usable := usableTopics(item.Topics, blocked); len(usable) > 0 {
			for _, topic := range usable {
				topics.add(topic, item)
			}
			return
		}
	}

	topic := strings.ToLower(strings.TrimSpace(item.Type))
	if topic == "" {
		topic = topicUncategorized
	}
	if _, ng := blocked[topic]; ng {
		return
	}
	topics.add(topic, item)
}

// usableTopics lower-cases topics and drops blocked, empty and repeated ones
func usableTopics(raw []string, blocked map[string]struct{}) []string {
	var usable []string
	for _, t := range raw {
		topic := strings.ToLower(strings.TrimSpace(t))
		if topic == "" {
			continue
		}
		if _, ng := blocked[topic]; ng {
			continue
		}
		if slices.Contains(usable, topic) {
			continue
		}
		usable = append(usable, topic)
	}
	return usable
}

// merge emits groups from the largest topic down. A topic is dropped when one of the labels
// carried by its items was already claimed by an emitted group, so that the same subject is
// not reported twice under different names.
func merge(topics *topicMap) []*model.TopicGroup {
	sorted := slices.Clone(topics.order)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return len(topics.items[b]) - len(topics.items[a])
	})

	claimed := make(map[string]struct{})
	misc := &model.TopicGroup{Topic: model.MiscellaneousTopic}
	miscKeys := make(map[string]struct{})

	var groups []*model.TopicGroup
	for _, topic := range sorted {
		members := topics.items[topic]
		merged := mergedLabels(members)

		rejected := false
		for _, label := range merged {
			if _, ok := claimed[label]; ok {
				rejected = true
				break
			}
		}
		if rejected {
			continue
		}

		switch {
		case IsGithubTopic(topic):
			groups = append(groups, &model.TopicGroup{Topic: topic, Items: members, MergedTopics: merged})

		case len(members) <= 1:
			for _, item := range members {
				if _, dup := miscKeys[item.Key()]; dup {
					continue
				}
				miscKeys[item.Key()] = struct{}{}
				misc.Items = append(misc.Items, item)
			}
			misc.MergedTopics = append(misc.MergedTopics, topic)

		default:
			for _, label := range merged {
				claimed[label] = struct{}{}
			}
			groups = append(groups, &model.TopicGroup{Topic: topic, Items: members, MergedTopics: merged})
		}
	}

	return append(groups, misc)
}

// mergedLabels returns the distinct lower-cased topic labels of the items in first-seen order
func mergedLabels(items []*model.ContentItem) []string {
	var labels []string
	seen := make(map[string]struct{})
	for _, item := range items {
		for _, t := range item.Topics {
			label := strings.ToLower(strings.TrimSpace(t))
			if label == "" {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			labels = append(labels, label)
		}
	}
	return labels
}
