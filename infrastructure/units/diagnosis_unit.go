package units

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ ports.Unit = (*DiagnosisUnit)(nil)

// Diagnosis modes.
const (
	// ModeRAG formats the retrieval answer and documents without an LLM.
	ModeRAG = "rag"
	// ModeLLM generates the diagnosis with an LLM over the retrieved context.
	ModeLLM = "llm"
)

// Generation defaults for ModeLLM.
const (
	DefaultDiagnosisMaxTokens    = 2500
	DefaultDiagnosisTemperature  = 0.0
	DefaultDiagnosisContextDocs  = 5
	DefaultDiagnosisContextChars = 1500
)

// Source descriptions reported with the diagnosis.
const (
	SourceRAG         = "RAG-Only Mode"
	SourceRAGFallback = "RAG-Only Mode (LLM fallback)"
	SourceLLMPrefix   = "LLM Diagnosis"
)

// DiagnosisConfig configures the DiagnosisUnit.
type DiagnosisConfig struct {
	// Mode selects how the diagnosis text is produced: "rag" or "llm".
	Mode string `yaml:"mode" json:"mode" validate:"required,oneof=rag llm"`

	// SystemPrompt is sent as the system message in llm mode. It may use
	// the same template data as PromptTemplate.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt" validate:"required,min=20"`

	// PromptTemplate is the Go template of the user message in llm mode.
	// It receives DiagnosisPromptData.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required,min=20"`

	// Temperature controls randomness of the generation.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	// MaxTokens limits the length of the generated diagnosis.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=100,max=8000"`

	// ContextDocs bounds the documents placed in the prompt.
	ContextDocs int `yaml:"context_docs" json:"context_docs" validate:"min=1,max=20"`

	// ContextChars bounds the runes of each document placed in the prompt.
	ContextChars int `yaml:"context_chars" json:"context_chars" validate:"min=100,max=10000"`

	// FallbackToRAG formats the retrieval answer when generation fails
	// instead of failing the pipeline.
	FallbackToRAG bool `yaml:"fallback_to_rag" json:"fallback_to_rag"`
}

// DiagnosisPromptData is the data passed to the diagnosis templates.
type DiagnosisPromptData struct {
	Query         string
	EnhancedQuery string
	SerialNumber  string
	TaskLabel     string
	Instructions  string
	Configuration string
	ManualFilter  string
	Answer        string
	References    []string
	Documents     []domain.RetrievedDocument
	ContextChars  int
}

const defaultDiagnosisSystemPrompt = `You are a senior AW139 maintenance engineer preparing a technical diagnosis for a licensed mechanic.
Use only the manual excerpts provided. Cite exact DMC codes, AMP tasks and AWDP wiring diagrams.
Never invent part numbers, torque values or connector pins.

{{.Instructions}}

Structure the answer with numbered procedure steps. List likely causes with a probability
percentage, e.g. "Relay contact wear (60%)". Add CAUTION and WARNING notes where the manual has them.`

const defaultDiagnosisPrompt = `Aircraft serial number: {{.SerialNumber}}
{{- if .Configuration}}
Aircraft configuration: {{.Configuration}}
{{- end}}
Task type: {{.TaskLabel}}
{{- if .ManualFilter}}
Manual filter: {{.ManualFilter}}
{{- end}}

Technical documentation:
{{range $i, $d := .Documents}}
=== DOCUMENT {{add $i 1}}: {{docID $d.DocPath}} (relevance {{percent $d.SimilarityScore}}) ===
{{truncate $d.Content $.ContextChars}}
{{end}}
{{- if .Answer}}
Retrieval summary:
{{.Answer}}
{{end}}
{{- if .References}}
Available references: {{join .References "; "}}
{{end}}
Maintenance query: {{.Query}}`

func defaultDiagnosisConfig() DiagnosisConfig {
	return DiagnosisConfig{
		Mode:           ModeRAG,
		SystemPrompt:   defaultDiagnosisSystemPrompt,
		PromptTemplate: defaultDiagnosisPrompt,
		Temperature:    DefaultDiagnosisTemperature,
		MaxTokens:      DefaultDiagnosisMaxTokens,
		ContextDocs:    DefaultDiagnosisContextDocs,
		ContextChars:   DefaultDiagnosisContextChars,
		FallbackToRAG:  true,
	}
}

// DiagnosisUnit turns the retrieval result into the diagnosis body. In rag
// mode it formats the retrieval answer; in llm mode it renders a task
// aware prompt and asks the LLM. Either way the text is cleaned of
// markdown, unverifiable part numbers are flagged and the ATA chapter is
// resolved.
// The unit is stateless and thread-safe.
type DiagnosisUnit struct {
	name      string
	config    DiagnosisConfig
	llmClient ports.LLMClient
	system    *template.Template
	prompt    *template.Template
	tracer    trace.Tracer
}

// NewDiagnosisUnit creates a DiagnosisUnit. llmClient may be nil in rag
// mode.
func NewDiagnosisUnit(name string, llmClient ports.LLMClient, config DiagnosisConfig) (*DiagnosisUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	system, prompt, err := compileDiagnosisConfig(config, llmClient)
	if err != nil {
		return nil, err
	}
	return &DiagnosisUnit{
		name:      name,
		config:    config,
		llmClient: llmClient,
		system:    system,
		prompt:    prompt,
		tracer:    otel.Tracer("diagnosis-unit"),
	}, nil
}

func compileDiagnosisConfig(config DiagnosisConfig, llmClient ports.LLMClient) (*template.Template, *template.Template, error) {
	if err := validateConfig(config); err != nil {
		return nil, nil, err
	}
	if config.Mode == ModeLLM && llmClient == nil {
		return nil, nil, ErrNilLLMClient
	}
	system, err := template.New("system").Funcs(GetTemplateFuncMap()).Parse(config.SystemPrompt)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid system prompt: %w", err)
	}
	prompt, err := template.New("prompt").Funcs(GetTemplateFuncMap()).Parse(config.PromptTemplate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return system, prompt, nil
}

// Name returns the unit's identifier.
func (du *DiagnosisUnit) Name() string { return du.name }

// Execute produces the diagnosis body and the resolved ATA chapter.
func (du *DiagnosisUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := du.tracer.Start(ctx, "DiagnosisUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "diagnosis"),
			attribute.String("unit.id", du.name),
			attribute.String("config.mode", du.config.Mode),
		),
	)
	defer span.End()

	req, err := domain.MustGet(state, domain.KeyRequest)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", du.name, err)
		span.RecordError(err)
		return state, err
	}
	retrieval, err := domain.MustGet(state, domain.KeyRetrieval)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", du.name, err)
		span.RecordError(err)
		return state, err
	}

	log := logger.FromContext(ctx).With("unit", du.name)
	start := time.Now()

	raw, source := "", SourceRAG
	if du.config.Mode == ModeLLM {
		text, tokensIn, tokensOut, err := du.generate(ctx, req, retrieval)
		switch {
		case err == nil:
			raw = text
			source = fmt.Sprintf("%s (%s)", SourceLLMPrefix, du.llmClient.GetModel())
			state = state.AddUsage(int64(tokensIn+tokensOut), 1)
			span.SetAttributes(
				attribute.Int("llm.tokens_in", tokensIn),
				attribute.Int("llm.tokens_out", tokensOut),
			)
		case du.config.FallbackToRAG && ctx.Err() == nil:
			span.RecordError(err)
			log.Warn("diagnosis generation failed, using retrieval answer", "error", err)
			source = SourceRAGFallback
		default:
			err = fmt.Errorf("unit %s: LLM call failed: %w", du.name, err)
			span.RecordError(err)
			return state, err
		}
	}
	if raw == "" {
		raw = evidence.FormatDiagnosis(retrieval.Answer, retrieval.Documents, req.Query)
	}

	body := evidence.ValidatePartNumbers(evidence.CleanMarkdown(raw))
	ata := evidence.ExtractATAChapter(body)
	if ata == "" {
		ata = retrieval.ATA
	}
	if ata == "" {
		ata = req.ATACode
	}

	span.SetAttributes(
		attribute.String("diagnosis.source", source),
		attribute.String("diagnosis.ata_chapter", ata),
		attribute.Int("diagnosis.length", len(body)),
		attribute.Int64("eval.latency_ms", time.Since(start).Milliseconds()),
	)
	log.Debug("diagnosis produced", "source", source, "ata", ata, "length", len(body))

	return state.WithMultiple(map[string]any{
		domain.KeyDiagnosis.Name():       body,
		domain.KeyDiagnosisSource.Name(): source,
		domain.KeyATAChapter.Name():      ata,
	}), nil
}

// generate renders the prompts and calls the LLM.
func (du *DiagnosisUnit) generate(ctx context.Context, req domain.DiagnosisRequest, retrieval domain.RetrievalResult) (string, int, int, error) {
	data := du.promptData(req, retrieval)

	var system, user bytes.Buffer
	if err := du.system.Execute(&system, data); err != nil {
		return "", 0, 0, fmt.Errorf("render system prompt: %w", err)
	}
	if err := du.prompt.Execute(&user, data); err != nil {
		return "", 0, 0, fmt.Errorf("render prompt: %w", err)
	}

	return du.llmClient.CompleteWithUsage(ctx, user.String(), map[string]any{
		"system":      system.String(),
		"temperature": du.config.Temperature,
		"max_tokens":  du.config.MaxTokens,
	})
}

func (du *DiagnosisUnit) promptData(req domain.DiagnosisRequest, retrieval domain.RetrievalResult) DiagnosisPromptData {
	docs := retrieval.Documents[:min(len(retrieval.Documents), du.config.ContextDocs)]
	data := DiagnosisPromptData{
		Query:         req.Query,
		EnhancedQuery: req.EnhancedQuery(),
		SerialNumber:  req.SerialNumber,
		TaskLabel:     req.Task().Label(),
		Instructions:  req.Task().Instructions(),
		ManualFilter:  req.ATACode,
		Answer:        retrieval.Answer,
		References:    retrieval.References,
		Documents:     docs,
		ContextChars:  du.config.ContextChars,
	}
	if req.AircraftConfiguration != "" {
		data.Configuration = req.AircraftConfiguration + " - " + req.ConfigurationName
	}
	return data
}

// Validate checks that the unit is properly configured.
func (du *DiagnosisUnit) Validate() error {
	_, _, err := compileDiagnosisConfig(du.config, du.llmClient)
	return err
}

// CreateDiagnosisUnit builds a DiagnosisUnit from a parameter map. The LLM
// client is taken from params[DepLLMClient] and is only required in llm
// mode.
func CreateDiagnosisUnit(id string, params map[string]any) (ports.Unit, error) {
	llmClient, _ := params[DepLLMClient].(ports.LLMClient)
	cfg, err := decodeConfig(withoutDependencies(params), defaultDiagnosisConfig())
	if err != nil {
		return nil, err
	}
	return NewDiagnosisUnit(id, llmClient, cfg)
}
