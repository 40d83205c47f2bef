package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/models"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

// maxInputChars bounds the prompt so enrichment cost stays flat regardless
// of document size.
const maxInputChars = 10000

const systemPrompt = "You are a document analyst. Respond with a single JSON object and nothing else."

const promptTemplate = `Analyze the following document and respond in exactly this JSON schema:
{
  "document_type": "<one short category, e.g. manual, report, spreadsheet, policy>",
  "key_topics": ["<3 to 5 key topics>"],
  "summary": "<one or two sentence summary>"
}

Title: %s

Document text:
%s`

// Enricher classifies a document and extracts topics and a summary via one
// LLM call. Enrichment is best-effort: it degrades to a placeholder result
// and never fails the ingestion pipeline.
type Enricher struct {
	llm core.LLMProvider
	log *logger.Logger
}

func NewEnricher(llm core.LLMProvider, log *logger.Logger) *Enricher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Enricher{llm: llm, log: log}
}

type enrichResult struct {
	DocumentType string   `json:"document_type"`
	KeyTopics    []string `json:"key_topics"`
	Summary      string   `json:"summary"`
}

// Enrich returns document metadata for the extracted text. On any model or
// parse failure the raw model output is preserved under "raw_response" for
// diagnostics and the document type degrades to "unknown".
func (e *Enricher) Enrich(ctx context.Context, title, text string) models.Metadata {
	text = truncateUTF8(text, maxInputChars)

	raw, err := e.llm.Generate(ctx, systemPrompt, fmt.Sprintf(promptTemplate, title, text))
	if err != nil {
		e.log.Warn("metadata enrichment call failed", "title", title, "error", err)
		return degraded("")
	}

	cleaned := stripCodeFences(raw)
	var res enrichResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		e.log.Warn("metadata enrichment returned unparseable JSON", "title", title, "error", err)
		return degraded(raw)
	}
	if res.DocumentType == "" {
		res.DocumentType = "unknown"
	}
	if res.KeyTopics == nil {
		res.KeyTopics = []string{}
	}

	return models.Metadata{
		"document_type": res.DocumentType,
		"key_topics":    res.KeyTopics,
		"summary":       res.Summary,
	}
}

// truncateUTF8 cuts s to at most max bytes without splitting a multi-byte
// rune, so the prompt is always valid UTF-8.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func degraded(raw string) models.Metadata {
	md := models.Metadata{
		"document_type": "unknown",
		"key_topics":    []string{},
		"summary":       "",
	}
	if raw != "" {
		md["raw_response"] = raw
	}
	return md
}

// stripCodeFences removes a markdown ```json ... ``` wrapper if the model
// added one despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
