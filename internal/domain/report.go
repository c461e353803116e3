package domain

import (
	"time"
)

// Report is a submitted near-miss (hiyari-hatto) incident report.
type Report struct {
	ReportID     string    `json:"reportId"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title,omitempty"`
	Body         string    `json:"body"`
	Summary      string    `json:"summary,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"createdAt"`
	Improvements string    `json:"improvements,omitempty"`
}

// ReportCursor is the keyset position after the last returned report.
type ReportCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ReportID  string    `json:"reportId"`
}

type ReportFilter struct {
	Category string
	UserID   string
	Query    string
	From     *time.Time
	To       *time.Time
	After    *ReportCursor
	Limit    int
}

type ReportPage struct {
	Items []Report
	Next  *ReportCursor
}

// Clone returns a copy that shares no slices with r.
func (r Report) Clone() Report {
	clone := r
	if r.Tags != nil {
		clone.Tags = append([]string(nil), r.Tags...)
	}
	return clone
}
