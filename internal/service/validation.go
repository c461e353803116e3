package service

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hiyari/incident-reports-back/internal/policy"
	"github.com/hiyari/incident-reports-back/internal/schema"
)

const (
	msgSensitiveInfo     = "個人情報や機密情報が含まれている可能性があります"
	msgTitleTooShort     = "タイトルは5文字以上で入力してください"
	msgContentTooShort   = "内容は20文字以上で入力してください"
	msgImprovementsShort = "改善案は10文字以上で入力してください"
	msgDateFormat        = "発生日時の形式が正しくありません（YYYY-MM-DD）"
	msgDateInFuture      = "発生日時は未来の日付にできません"

	minTitleLength        = 5
	minContentLength      = 20
	minImprovementsLength = 10
)

var occurredAtPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type ValidateReportInput struct {
	Title        string `json:"title"`
	Category     string `json:"category"`
	OccurredAt   string `json:"occurredAt"`
	Content      string `json:"content"`
	Improvements string `json:"improvements"`
}

type ValidationResult struct {
	Valid                 bool                 `json:"valid"`
	Errors                []string             `json:"errors"`
	Warnings              []string             `json:"warnings"`
	SuggestedReplacements []policy.Replacement `json:"suggestedReplacements"`
}

// ValidationService runs the pre-submit checks shown to the reporter.
type ValidationService struct {
	schemas  *schema.Validator
	location *time.Location
	clock    func() time.Time
}

func NewValidationService(schemas *schema.Validator, location *time.Location) *ValidationService {
	if location == nil {
		location = time.UTC
	}
	return &ValidationService{schemas: schemas, location: location, clock: time.Now}
}

// Validate never fails on user input: schema violations come back as an
// invalid result. Only internal faults return an error.
func (s *ValidationService) Validate(raw []byte) (ValidationResult, error) {
	if err := s.schemas.Validate(schema.ValidateReport, raw); err != nil {
		var schemaErr *schema.Error
		if !errors.As(err, &schemaErr) {
			return ValidationResult{}, err
		}
		return ValidationResult{
			Valid:                 false,
			Errors:                schemaErr.Issues,
			Warnings:              []string{},
			SuggestedReplacements: []policy.Replacement{},
		}, nil
	}

	var input ValidateReportInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return ValidationResult{}, err
	}
	return s.check(input), nil
}

func (s *ValidationService) check(input ValidateReportInput) ValidationResult {
	result := ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	result.SuggestedReplacements = policy.DetectProhibitedInfo(input.Title + " " + input.Content + " " + input.Improvements)
	if len(result.SuggestedReplacements) > 0 {
		result.Warnings = append(result.Warnings, msgSensitiveInfo)
	}

	if trimmedLen(input.Title) < minTitleLength {
		result.Errors = append(result.Errors, msgTitleTooShort)
	}
	if trimmedLen(input.Content) < minContentLength {
		result.Errors = append(result.Errors, msgContentTooShort)
	}
	if trimmedLen(input.Improvements) < minImprovementsLength {
		result.Errors = append(result.Errors, msgImprovementsShort)
	}

	if !occurredAtPattern.MatchString(input.OccurredAt) {
		result.Errors = append(result.Errors, msgDateFormat)
	} else if occurred, err := time.ParseInLocation(time.DateOnly, input.OccurredAt, s.location); err == nil {
		now := s.clock().In(s.location)
		endOfToday := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, int(time.Second-time.Millisecond), s.location)
		if occurred.After(endOfToday) {
			result.Errors = append(result.Errors, msgDateInFuture)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func trimmedLen(value string) int {
	return utf8.RuneCountInString(strings.TrimSpace(value))
}
