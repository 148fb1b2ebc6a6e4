package model

import "strconv"

// MiscellaneousTopic is the name of the trailing group that collects single-item topics
const MiscellaneousTopic = "miscellaneous"

// TopicGroup is a named bucket of content items sharing a classification outcome
type TopicGroup struct {
	Topic        string
	Items        []*ContentItem
	MergedTopics []string
}

// GroupSummary is the structured text-generation output for one topic group
type GroupSummary struct {
	Title   string         `json:"title"`
	Topic   string         `json:"topic"`
	Content []SummaryEntry `json:"content"`
}

// SummaryEntry is one paragraph of a group summary with its supporting references
type SummaryEntry struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources,omitempty"`
	Images  []string `json:"images,omitempty"`
	Videos  []string `json:"videos,omitempty"`
}

// NewChunkSummary wraps the raw result of one reduction chunk so that it can be fed to the
// next reduction level like any other group summary.
func NewChunkSummary(part int, text string) *GroupSummary {
	name := "Summary Part " + strconv.Itoa(part)
	return &GroupSummary{
		Title: name,
		Topic: name,
		Content: []SummaryEntry{
			{Text: text},
		},
	}
}
