package domain

import "github.com/hiyari/incident-reports-back/internal/policy"

// GeneratedReport is the normalized AI draft returned to the client.
type GeneratedReport struct {
	Title                 string               `json:"title"`
	Category              string               `json:"category"`
	Summary               string               `json:"summary"`
	Improvements          []string             `json:"improvements"`
	AnonymizedText        string               `json:"anonymizedText"`
	SuggestedReplacements []policy.Replacement `json:"suggestedReplacements"`
}
