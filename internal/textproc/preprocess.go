// Package textproc condenses oversized incident text before it is sent to a
// language model. Reduction is extractive and rule based so the output is
// reproducible for a given input.
package textproc

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDirectLength = 3000
	DefaultChunkSize       = 1500
	DefaultChunkOverlap    = 200
	DefaultSummaryLength   = 800

	// breakRatio is how far into a chunk a sentence end must sit before the
	// chunk is cut there.
	breakRatio = 0.7

	importantMinLength   = 20
	importantKeepRatio   = 0.4
	importantKeepMinimum = 3
	fallbackKeepRatio    = 0.3
	fallbackKeepMinimum  = 2
	finalKeepMinimum     = 2

	chunkSeparator    = "\n\n"
	sentenceTerminal  = "。"
	sentenceEndsChars = "。！？.!?"
)

// Sentence scoring weights used by SummarizeFinal.
const (
	KeywordWeight      = 2.0
	MediumLengthWeight = 1.0
	LongLengthWeight   = 0.5
	DigitWeight        = 1.0
	ColonWeight        = 1.0

	MediumLengthMin = 20
	MediumLengthMax = 100
	LongLengthMax   = 200
)

// ImportanceKeywords mark sentences worth keeping in per-chunk reduction.
var ImportanceKeywords = []string{
	"問題", "エラー", "障害", "原因", "対策", "改善", "発生", "影響",
	"problem", "error", "failure", "cause", "countermeasure", "improve", "occur", "impact",
}

// ScoringKeywords add KeywordWeight each to a sentence score.
var ScoringKeywords = append(append([]string(nil), ImportanceKeywords...),
	"システム", "サーバ", "データ", "ユーザ", "処理", "機能",
	"system", "server", "data", "user", "process", "feature",
)

var sentenceSplitPattern = regexp.MustCompile(`[。！？.!?]+`)

type Config struct {
	MaxDirectLength int
	ChunkSize       int
	ChunkOverlap    int
	SummaryLength   int
}

func (c Config) withDefaults() Config {
	if c.MaxDirectLength <= 0 {
		c.MaxDirectLength = DefaultMaxDirectLength
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 2
	}
	if c.SummaryLength <= 0 {
		c.SummaryLength = DefaultSummaryLength
	}
	return c
}

// Result lengths count characters, not bytes.
type Result struct {
	Content         string   `json:"content"`
	IsProcessed     bool     `json:"isProcessed"`
	OriginalLength  int      `json:"originalLength"`
	ProcessedLength int      `json:"processedLength"`
	Chunks          []string `json:"chunks,omitempty"`
}

type Preprocessor struct {
	cfg Config
}

func New(cfg Config) *Preprocessor {
	return &Preprocessor{cfg: cfg.withDefaults()}
}

func (p *Preprocessor) Config() Config {
	return p.cfg
}

// Preprocess returns short text unchanged. Longer text is chunked, each chunk
// is reduced to its important sentences, and the joined result is ranked
// again when it is still above MaxDirectLength.
func (p *Preprocessor) Preprocess(ctx context.Context, text string) (Result, error) {
	originalLength := runeLen(text)
	if originalLength <= p.cfg.MaxDirectLength {
		return Result{
			Content:         text,
			OriginalLength:  originalLength,
			ProcessedLength: originalLength,
		}, nil
	}

	chunks := SplitIntoChunks(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	summaries := make([]string, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	for index, chunk := range chunks {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			summaries[index] = SummarizeChunk(chunk)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	content := strings.Join(summaries, chunkSeparator)
	if runeLen(content) > p.cfg.MaxDirectLength {
		content = SummarizeFinal(content, p.cfg.SummaryLength)
	}
	content = fitLength(content, min(p.cfg.MaxDirectLength, originalLength))

	return Result{
		Content:         content,
		IsProcessed:     true,
		OriginalLength:  originalLength,
		ProcessedLength: runeLen(content),
		Chunks:          chunks,
	}, nil
}

func NeedsPreprocessing(text string, maxLength int) bool {
	if maxLength <= 0 {
		maxLength = DefaultMaxDirectLength
	}
	return runeLen(text) > maxLength
}

func Stats(result Result) string {
	if !result.IsProcessed {
		return fmt.Sprintf("Direct processing (%d chars)", result.OriginalLength)
	}
	reduction := 0
	if result.OriginalLength > 0 {
		reduction = int(math.Round(float64(result.OriginalLength-result.ProcessedLength) / float64(result.OriginalLength) * 100))
	}
	return fmt.Sprintf("Preprocessed: %d -> %d chars (-%d%%)", result.OriginalLength, result.ProcessedLength, reduction)
}

// SplitIntoChunks cuts text into windows of chunkSize characters overlapping
// by overlap. A window that does not reach the end is shortened to its last
// sentence end when that end lies beyond 70% of chunkSize. The window that
// reaches the end of text is the last one.
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	total := len(runes)
	chunks := make([]string, 0, total/max(chunkSize-overlap, 1)+1)

	start := 0
	for start < total {
		end := min(start+chunkSize, total)
		chunk := runes[start:end]

		if end < total {
			lastEnd := lastSentenceEnd(chunk)
			if float64(lastEnd) > float64(chunkSize)*breakRatio {
				chunk = chunk[:lastEnd+1]
			}
		}

		if trimmed := strings.TrimSpace(string(chunk)); trimmed != "" {
			chunks = append(chunks, trimmed)
		}

		if end == total {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSentenceEnd(chunk []rune) int {
	for index := len(chunk) - 1; index >= 0; index-- {
		if strings.ContainsRune(sentenceEndsChars, chunk[index]) {
			return index
		}
	}
	return -1
}

// SplitIntoSentences splits on runs of sentence terminators and terminates
// every non-blank piece with "。".
func SplitIntoSentences(text string) []string {
	pieces := sentenceSplitPattern.Split(text, -1)
	sentences := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}
		sentences = append(sentences, trimmed+sentenceTerminal)
	}
	return sentences
}

// SummarizeChunk keeps the important sentences of a chunk, or its opening
// sentences when none qualify.
func SummarizeChunk(chunk string) string {
	sentences := SplitIntoSentences(chunk)

	important := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if isImportant(sentence) {
			important = append(important, sentence)
		}
	}

	var selected []string
	if len(important) > 0 {
		keep := max(importantKeepMinimum, int(math.Floor(float64(len(sentences))*importantKeepRatio)))
		selected = important[:min(keep, len(important))]
	} else {
		keep := max(fallbackKeepMinimum, int(math.Floor(float64(len(sentences))*fallbackKeepRatio)))
		selected = sentences[:min(keep, len(sentences))]
	}
	return strings.Join(selected, "")
}

func isImportant(sentence string) bool {
	if runeLen(sentence) <= importantMinLength {
		return false
	}
	lower := strings.ToLower(sentence)
	for _, keyword := range ImportanceKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return containsDigit(sentence) || strings.Contains(sentence, "：") || strings.Contains(sentence, "、")
}

// SummarizeFinal keeps the highest scoring sentences, roughly targetLength
// characters worth. Equal scores keep their original order.
func SummarizeFinal(text string, targetLength int) string {
	sentences := SplitIntoSentences(text)
	textLength := runeLen(text)
	if textLength == 0 {
		return ""
	}
	target := max(finalKeepMinimum, int(math.Floor(float64(len(sentences))*float64(targetLength)/float64(textLength))))

	type scored struct {
		sentence string
		score    float64
	}
	ranked := make([]scored, 0, len(sentences))
	for _, sentence := range sentences {
		ranked = append(ranked, scored{sentence: sentence, score: ScoreSentence(sentence)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	selected := make([]string, 0, target)
	for _, item := range ranked[:min(target, len(ranked))] {
		selected = append(selected, item.sentence)
	}
	return strings.Join(selected, "")
}

// fitLength keeps the leading sentences of content that fit within limit
// characters. SummarizeFinal output is in rank order, so the lowest ranked
// sentences go first. A single sentence longer than limit is cut.
func fitLength(content string, limit int) string {
	if runeLen(content) <= limit {
		return content
	}
	sentences := SplitIntoSentences(content)
	if len(sentences) == 0 {
		return truncateRunes(strings.TrimSpace(content), limit)
	}

	var builder strings.Builder
	total := 0
	for _, sentence := range sentences {
		length := runeLen(sentence)
		if total+length > limit {
			break
		}
		builder.WriteString(sentence)
		total += length
	}
	if total == 0 {
		return truncateRunes(sentences[0], limit)
	}
	return builder.String()
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func ScoreSentence(sentence string) float64 {
	score := 0.0
	lower := strings.ToLower(sentence)
	for _, keyword := range ScoringKeywords {
		if strings.Contains(lower, keyword) {
			score += KeywordWeight
		}
	}

	length := runeLen(sentence)
	switch {
	case length >= MediumLengthMin && length <= MediumLengthMax:
		score += MediumLengthWeight
	case length > MediumLengthMax && length <= LongLengthMax:
		score += LongLengthWeight
	}

	if containsDigit(sentence) {
		score += DigitWeight
	}
	if strings.Contains(sentence, "：") || strings.Contains(sentence, ":") {
		score += ColonWeight
	}
	return score
}

func containsDigit(value string) bool {
	for _, char := range value {
		if char >= '0' && char <= '9' {
			return true
		}
	}
	return false
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}
