package adapter

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the generative model used when none is configured
const DefaultGeminiModel = "gemini-2.5-flash"

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: DefaultGeminiModel,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

// GeminiGenerator turns a prompt into text with a single GenerateContent call
type GeminiGenerator struct {
	gemini Gemini
	config *genai.GenerateContentConfig
}

type GeminiGeneratorOption func(*GeminiGenerator) error

// WithSystemPrompt sets the system instruction sent with every prompt
func WithSystemPrompt(prompt string) GeminiGeneratorOption {
	return func(g *GeminiGenerator) error {
		g.config.SystemInstruction = genai.NewContentFromText(prompt, "")
		return nil
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temperature float32) GeminiGeneratorOption {
	return func(g *GeminiGenerator) error {
		g.config.Temperature = &temperature
		return nil
	}
}

// WithResponseSchema switches the generator to JSON output constrained by schema
func WithResponseSchema(schema *jsonschema.Schema) GeminiGeneratorOption {
	return func(g *GeminiGenerator) error {
		converted, err := ConvertJSONSchemaToGenai(schema)
		if err != nil {
			return goerr.Wrap(err, "failed to convert response schema")
		}
		g.config.ResponseMIMEType = "application/json"
		g.config.ResponseSchema = converted
		return nil
	}
}

// NewGeminiGenerator creates a generator on top of gemini
func NewGeminiGenerator(gemini Gemini, opts ...GeminiGeneratorOption) (*GeminiGenerator, error) {
	thinkingBudget := int32(0)
	g := &GeminiGenerator{
		gemini: gemini,
		config: &genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: false,
				ThinkingBudget:  &thinkingBudget,
			},
		},
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.gemini.GenerateContent(ctx, contents, g.config)
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", goerr.New("invalid response structure from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		text.WriteString(part.Text)
	}
	return text.String(), nil
}
