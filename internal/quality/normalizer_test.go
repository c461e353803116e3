package quality

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/policy"
)

func TestNormalizeReport(t *testing.T) {
	cases := []struct {
		name   string
		output string
		source string
		want   domain.GeneratedReport
	}{
		{
			name:   "full payload",
			output: `{"title":"誤送信","category":"WHY_COMM_001","summary":"要約","improvements":["確認","共有"],"anonymizedText":"匿名"}`,
			want: domain.GeneratedReport{
				Title:                 "誤送信",
				Category:              "WHY_COMM_001",
				Summary:               "要約",
				Improvements:          []string{"確認", "共有"},
				AnonymizedText:        "匿名",
				SuggestedReplacements: []policy.Replacement{},
			},
		},
		{
			name:   "string improvements and snake case alias",
			output: "```json\n{\"title\":\"t\",\"improvements\":\"二重確認する\",\"anonymized_text\":\"a\"}\n```",
			want: domain.GeneratedReport{
				Title:                 "t",
				Improvements:          []string{"二重確認する"},
				AnonymizedText:        "a",
				SuggestedReplacements: []policy.Replacement{},
			},
		},
		{
			name:   "anonymizedContent alias inside prose",
			output: `回答です: {"anonymizedContent":"b"} 以上`,
			want: domain.GeneratedReport{
				Improvements:          []string{},
				AnonymizedText:        "b",
				SuggestedReplacements: []policy.Replacement{},
			},
		},
		{
			name:   "model replacements are replaced by local detection",
			output: `{"suggestedReplacements":[{"original":"x","suggested":"y","type":"z"}]}`,
			source: "連絡先 a@example.com",
			want: domain.GeneratedReport{
				Improvements: []string{},
				SuggestedReplacements: []policy.Replacement{
					{Original: "a@example.com", Suggested: "[メールアドレス]", Type: policy.TypeEmail},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeReport(tc.output, tc.source)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("normalized report mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeReportRejectsNonJSON(t *testing.T) {
	_, err := NormalizeReport("I cannot help with that.", "")
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}
