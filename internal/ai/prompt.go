package ai

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFiles embed.FS

const reportPromptFile = "prompts/report_v1.tmpl"

var (
	reportPromptOnce sync.Once
	reportPrompt     *template.Template
	reportPromptErr  error
)

// RenderReportPrompt builds the analysis prompt for one incident text.
func RenderReportPrompt(content, categoryList string) (string, error) {
	reportPromptOnce.Do(func() {
		reportPrompt, reportPromptErr = template.ParseFS(promptFiles, reportPromptFile)
	})
	if reportPromptErr != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", reportPromptFile, reportPromptErr)
	}

	buffer := bytes.NewBuffer(nil)
	if err := reportPrompt.Execute(buffer, map[string]string{
		"Content":    content,
		"Categories": categoryList,
	}); err != nil {
		return "", fmt.Errorf("execute template %s: %w", reportPromptFile, err)
	}
	return buffer.String(), nil
}
