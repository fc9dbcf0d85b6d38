// Package report generates structured legal case summaries and renders
// them as PDF documents.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/engine"
)

// Section headings the summary prompt asks for, in render order.
var sectionHeadings = []string{
	"SUMMARY OF ISSUE",
	"RELEVANT LAWS",
	"LEGAL ANALYSIS",
	"POSSIBLE OUTCOMES",
	"RECOMMENDED NEXT STEPS",
}

// Summary is a parsed case summary. Sections preserves heading order.
type Summary struct {
	ClientName string
	CaseText   string
	Sections   map[string]string
}

const summaryPrompt = `You are a legal expert assistant. Analyze the following legal case or query and produce a structured summary with EXACTLY these five sections, each starting with its heading on its own line:

SUMMARY OF ISSUE
RELEVANT LAWS
LEGAL ANALYSIS
POSSIBLE OUTCOMES
RECOMMENDED NEXT STEPS

Base the analysis on Indian law. Be factual and concise. Do not add any other sections.

CASE DETAILS:
%s`

// Generator produces the summary text.
type Generator interface {
	Chat(ctx context.Context, messages []engine.Message) (string, error)
}

// Summarize asks the model for a five-section case summary and parses it.
func Summarize(ctx context.Context, gen Generator, clientName, caseText string) (*Summary, error) {
	if strings.TrimSpace(caseText) == "" {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "case text is required")
	}

	raw, err := gen.Chat(ctx, []engine.Message{
		{Role: "user", Content: fmt.Sprintf(summaryPrompt, caseText)},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, err)
	}

	return &Summary{
		ClientName: clientName,
		CaseText:   caseText,
		Sections:   parseSections(raw),
	}, nil
}

// parseSections splits model output on the known headings. Text before the
// first heading, or the whole output when no heading matched, lands in
// SUMMARY OF ISSUE so nothing the model wrote is dropped.
func parseSections(raw string) map[string]string {
	sections := make(map[string]string)
	current := sectionHeadings[0]
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text == "" {
			return
		}
		if prev, ok := sections[current]; ok {
			text = prev + "\n\n" + text
		}
		sections[current] = text
	}

	for _, line := range strings.Split(raw, "\n") {
		heading := matchHeading(line)
		if heading != "" {
			flush()
			current = heading
			buf = buf[:0]
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return sections
}

// matchHeading reports which known heading a line is, tolerating markdown
// decoration and trailing colons the model tends to add.
func matchHeading(line string) string {
	cleaned := strings.TrimSpace(line)
	cleaned = strings.Trim(cleaned, "#*")
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), ":")
	cleaned = strings.ToUpper(strings.TrimSpace(cleaned))
	for _, h := range sectionHeadings {
		if cleaned == h {
			return h
		}
	}
	return ""
}
