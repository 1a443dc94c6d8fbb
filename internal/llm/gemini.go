package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider implements the classifier, the arbitration oracle and
// the embedder on Google AI Studio via the GenAI SDK.
type GeminiProvider struct {
	apiKey     string
	model      string
	embedModel string

	mu     sync.Mutex
	client *genai.Client
}

var ErrNoAPIKey = fmt.Errorf("gemini: api key not configured")

func NewGeminiProvider(apiKey, model, embedModel string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}
	return &GeminiProvider{apiKey: strings.TrimSpace(apiKey), model: model, embedModel: embedModel}
}

func (p *GeminiProvider) ensureClient(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  p.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.client = client
	return client, nil
}

const classifySystem = `You classify the payee named on an invoice before vendor matching.
BANK, PAYMENT_PROCESSOR, GOVERNMENT_ENTITY and INDIVIDUAL_PERSON are not vendors.
Everything that sells goods or services as an organization is BUSINESS.
If the evidence is too thin to tell, answer UNKNOWN with a LOW band.`

var classifySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"entity_type": {
			Type: genai.TypeString,
			Enum: []string{"BUSINESS", "BANK", "PAYMENT_PROCESSOR", "GOVERNMENT_ENTITY", "INDIVIDUAL_PERSON", "UNKNOWN"},
		},
		"confidence_band": {
			Type: genai.TypeString,
			Enum: []string{"HIGH", "MEDIUM", "LOW"},
		},
		"reasoning": {Type: genai.TypeString},
	},
	Required: []string{"entity_type", "confidence_band", "reasoning"},
}

func (p *GeminiProvider) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx, 10*time.Second)
	defer cancel()

	text, err := p.generateJSON(ctx, classifySystem, req, classifySchema)
	if err != nil {
		return ClassifyResponse{}, err
	}
	var out ClassifyResponse
	if err := decodeJSON(text, &out); err != nil {
		return ClassifyResponse{}, fmt.Errorf("gemini: parse classify: %w", err)
	}
	return out, nil
}

const arbitrateSystem = `You arbitrate whether an invoice vendor mention refers to one of the candidate master records.
Apply these laws in strict priority order:
1. Exact identifier equality (tax id, bank account tail) means MATCH regardless of name spelling.
2. A corporate email domain match combined with name similarity means MATCH. A generic consumer
   domain (gmail, yahoo, hotmail and the like) must NEVER be used as matching evidence.
3. Names that are equivalent up to case, diacritics, transliteration, legal suffix or a known
   franchise/subsidiary relationship mean MATCH; set is_subsidiary when the candidate is a parent,
   franchise or renamed form of the mention.
4. Superficially identical names across unrelated industries or addresses with no corroborating
   evidence are false friends: answer AMBIGUOUS or NEW_VENDOR, never a blind MATCH.
5. If no candidate plausibly refers to the same real-world vendor, answer NEW_VENDOR.
6. If several candidates are equally plausible and nothing discriminates them, answer AMBIGUOUS.
A MATCH must name the vendor_id of exactly one supplied candidate. Confidence 1.0 is reserved for
identifier equality. When the verdict is MATCH you may propose additive mutations: a newly observed
alias spelling, address or corporate domain for that vendor. Explain your reasoning briefly and
grade risk (NONE, LOW, MEDIUM, HIGH) by how much a wrong automated decision would cost.`

var arbitrateSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"verdict": {
			Type: genai.TypeString,
			Enum: []string{"MATCH", "NEW_VENDOR", "AMBIGUOUS", "INVALID_VENDOR"},
		},
		"vendor_id":  {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
		"reasoning":  {Type: genai.TypeString},
		"risk": {
			Type: genai.TypeString,
			Enum: []string{"NONE", "LOW", "MEDIUM", "HIGH"},
		},
		"mutations": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"alias":   {Type: genai.TypeString},
				"address": {Type: genai.TypeString},
				"domain":  {Type: genai.TypeString},
			},
		},
		"is_subsidiary": {Type: genai.TypeBoolean},
	},
	Required: []string{"verdict", "vendor_id", "confidence", "reasoning", "risk", "is_subsidiary"},
}

// Arbitrate asks the model for a verdict under a strict response schema.
// One retry on transient failure; after that the caller degrades to the
// non-destructive branch.
func (p *GeminiProvider) Arbitrate(ctx context.Context, req ArbitrationRequest) (ArbitrationResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx, 25*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ArbitrationResponse{}, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
		text, err := p.generateJSON(ctx, arbitrateSystem, req, arbitrateSchema)
		if err != nil {
			lastErr = err
			continue
		}
		var out ArbitrationResponse
		if err := decodeJSON(text, &out); err != nil {
			lastErr = fmt.Errorf("gemini: parse arbitration: %w", err)
			continue
		}
		out.Confidence = clamp01(out.Confidence)
		return out, nil
	}
	return ArbitrationResponse{}, lastErr
}

// Embed returns one vector per input text, in input order.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDefaultTimeout(ctx, 15*time.Second)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}
	resp, err := client.Models.EmbedContent(ctx, p.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: embed: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// withDefaultTimeout applies d only when the caller brought no deadline
// of its own, so configured stage timeouts always win over these
// provider defaults.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (p *GeminiProvider) generateJSON(ctx context.Context, system string, payload any, schema *genai.Schema) (string, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	}
	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text("Input JSON:\n"+string(body)), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
