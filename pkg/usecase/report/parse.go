package report

import (
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
)

var ErrInvalidSummary = goerr.New("invalid group summary")

// parseGroupSummary extracts the JSON object from a text-generation response, validates it
// and tags it with the group topic
func parseGroupSummary(response, topic string) (*model.GroupSummary, error) {
	cleaned := cleanJSONResponse(response)

	var instance any
	if err := json.Unmarshal([]byte(cleaned), &instance); err != nil {
		return nil, goerr.Wrap(ErrInvalidSummary, "response is not JSON",
			goerr.V("topic", topic),
			goerr.V("error", err.Error()),
			goerr.V("response", response),
		)
	}

	resolved, err := resolvedGroupSummarySchema()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve group summary schema")
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, goerr.Wrap(ErrInvalidSummary, "response does not match schema",
			goerr.V("topic", topic),
			goerr.V("error", err.Error()),
		)
	}

	var summary model.GroupSummary
	if err := json.Unmarshal([]byte(cleaned), &summary); err != nil {
		return nil, goerr.Wrap(ErrInvalidSummary, "failed to decode summary",
			goerr.V("topic", topic),
			goerr.V("error", err.Error()),
		)
	}
	if len(summary.Content) == 0 {
		return nil, goerr.Wrap(ErrInvalidSummary, "summary has no content", goerr.V("topic", topic))
	}

	summary.Topic = topic
	if strings.TrimSpace(summary.Title) == "" {
		summary.Title = topic
	}
	return &summary, nil
}

// cleanJSONResponse removes markdown code blocks and extracts pure JSON
func cleanJSONResponse(response string) string {
	response = removeMarkdownCodeBlocks(response)

	if jsonStart := strings.IndexAny(response, "{["); jsonStart >= 0 {
		response = response[jsonStart:]
		if jsonEnd := findJSONEnd(response); jsonEnd >= 0 {
			response = response[:jsonEnd+1]
		}
	}

	return strings.TrimSpace(response)
}

// removeMarkdownCodeBlocks replaces ```lang ... ``` fences with their content
func removeMarkdownCodeBlocks(s string) string {
	start := 0
	for {
		idx := strings.Index(s[start:], "```")
		if idx < 0 {
			break
		}
		idx += start

		endIdx := strings.Index(s[idx+3:], "```")
		if endIdx < 0 {
			break
		}
		endIdx += idx + 3

		content := s[idx+3 : endIdx]
		// drop the language identifier
		if newlineIdx := strings.Index(content, "\n"); newlineIdx >= 0 {
			content = content[newlineIdx+1:]
		}

		s = s[:idx] + content + s[endIdx+3:]
		start = idx + len(content)
	}
	return s
}

// findJSONEnd returns the index of the bracket closing the value that starts s, or -1
func findJSONEnd(s string) int {
	depth := 0
	inString := false
	escape := false

	for i, c := range s {
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
