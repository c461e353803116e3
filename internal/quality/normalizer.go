// Package quality turns raw model output into the report draft returned to
// clients.
package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/policy"
)

var ErrInvalidOutput = errors.New("model output is not valid JSON")

// anonymizedTextKeys are accepted in priority order.
var anonymizedTextKeys = []string{"anonymizedText", "anonymized_text", "anonymizedContent"}

// NormalizeReport decodes model output leniently. Missing fields become
// empty values, a string improvements value becomes a one-element list, and
// suggestedReplacements always comes from local detection over source.
func NormalizeReport(output string, source string) (domain.GeneratedReport, error) {
	rawJSON, err := ExtractJSON(output)
	if err != nil {
		return domain.GeneratedReport{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawJSON, &fields); err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	report := domain.GeneratedReport{
		Title:                 stringField(fields["title"]),
		Category:              stringField(fields["category"]),
		Summary:               stringField(fields["summary"]),
		Improvements:          listField(fields["improvements"]),
		SuggestedReplacements: policy.DetectProhibitedInfo(source),
	}
	for _, key := range anonymizedTextKeys {
		if value := stringField(fields[key]); value != "" {
			report.AnonymizedText = value
			break
		}
	}
	return report, nil
}

// ExtractJSON finds the JSON object in a model reply, tolerating code fences
// and surrounding prose.
func ExtractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return []byte(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			return []byte(candidate), nil
		}
	}

	return nil, ErrInvalidOutput
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64, bool:
		return fmt.Sprint(typed)
	default:
		return ""
	}
}

func listField(raw json.RawMessage) []string {
	items := make([]string, 0)
	if len(raw) == 0 {
		return items
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return items
	}
	switch typed := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(typed); trimmed != "" {
			items = append(items, trimmed)
		}
	case []any:
		for _, entry := range typed {
			text, ok := entry.(string)
			if !ok {
				continue
			}
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
