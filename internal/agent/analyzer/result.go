// Package analyzer holds the pieces shared by the content analysis providers.
package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/pdf-rasterizer/internal/models"
)

// Prompt asks a vision model for the abstract and key takeaways of a page.
const Prompt = `You are given the first page of a document as an image.
Return a JSON object with exactly these keys:
  "title": the document title, or a short descriptive title if none is printed,
  "summary": an abstract of the document in at most three sentences,
  "keyPoints": an array of three to five short key takeaways.
Return only the JSON object.`

const (
	maxSummaryRunes = 600
	maxKeyPoints    = 5
)

var ErrEmptyResponse = errors.New("analysis returned no content")

type payload struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
}

// ParseResult decodes a model response. Code fences around the JSON are tolerated.
func ParseResult(text, provider string) (*models.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	if p.Summary == "" && len(p.KeyPoints) == 0 {
		return nil, ErrEmptyResponse
	}

	points := make([]string, 0, len(p.KeyPoints))
	for _, kp := range p.KeyPoints {
		if kp = strings.TrimSpace(kp); kp != "" {
			points = append(points, kp)
		}
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	return &models.AnalysisResult{
		Title:     strings.TrimSpace(p.Title),
		Summary:   truncate(strings.TrimSpace(p.Summary), maxSummaryRunes),
		KeyPoints: points,
		Provider:  provider,
	}, nil
}

// FromLines builds a result from recognized text lines, for OCR providers
// that return text rather than a summary. The first line is the title, the
// following lines form the summary and the longest remaining lines become
// key points in reading order.
func FromLines(lines []string, provider string) (*models.AnalysisResult, error) {
	var clean []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if utf8.RuneCountInString(line) >= 2 {
			clean = append(clean, line)
		}
	}
	if len(clean) == 0 {
		return nil, ErrEmptyResponse
	}

	result := &models.AnalysisResult{
		Title:     clean[0],
		KeyPoints: []string{},
		Provider:  provider,
	}
	rest := clean[1:]

	var summary strings.Builder
	used := 0
	for _, line := range rest {
		if summary.Len() > 0 && utf8.RuneCountInString(summary.String())+1+utf8.RuneCountInString(line) > maxSummaryRunes {
			break
		}
		if summary.Len() > 0 {
			summary.WriteByte(' ')
		}
		summary.WriteString(line)
		used++
	}
	result.Summary = truncate(summary.String(), maxSummaryRunes)
	if result.Summary == "" {
		result.Summary = result.Title
	}

	for _, line := range rest[used:] {
		if len(result.KeyPoints) == maxKeyPoints {
			break
		}
		if utf8.RuneCountInString(line) >= 20 {
			result.KeyPoints = append(result.KeyPoints, line)
		}
	}
	return result, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
