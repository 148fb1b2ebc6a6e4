package model

import (
	"slices"
	"strconv"
	"strings"
)

// ContentItem is one unit of source content collected upstream for a day
type ContentItem struct {
	ID       int64          `json:"id,omitempty" firestore:"id"`
	CID      string         `json:"cid" firestore:"cid"`
	Type     string         `json:"type" firestore:"type"`
	Source   string         `json:"source" firestore:"source"`
	Title    string         `json:"title,omitempty" firestore:"title"`
	Text     string         `json:"text,omitempty" firestore:"text"`
	Link     string         `json:"link,omitempty" firestore:"link"`
	Topics   []string       `json:"topics,omitempty" firestore:"topics"`
	Date     int64          `json:"date" firestore:"date"`
	Metadata map[string]any `json:"metadata,omitempty" firestore:"metadata"`
}

// Key returns the identity used to deduplicate items across groups
func (x *ContentItem) Key() string {
	if x.ID != 0 {
		return "id:" + strconv.FormatInt(x.ID, 10)
	}
	return "cid:" + x.CID
}

// HasTopic reports whether the item already carries topic (case-insensitive)
func (x *ContentItem) HasTopic(topic string) bool {
	for _, t := range x.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

// WithTopic returns a shallow copy of the item with topic appended to its topics.
// The receiver is left untouched. If the topic is already present the copy has the same topics.
func (x *ContentItem) WithTopic(topic string) *ContentItem {
	cp := *x
	cp.Topics = slices.Clone(x.Topics)
	if !x.HasTopic(topic) {
		cp.Topics = append(cp.Topics, topic)
	}
	return &cp
}
