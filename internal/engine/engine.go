package engine

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	DefaultChatModel     = "gemini-2.5-flash"
	DefaultImageModel    = "imagen-3.0-generate-002"
	DefaultImageEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// Options configures an Engine.
type Options struct {
	APIKey        string
	ChatModel     string
	ImageModel    string
	ImageEndpoint string
	Logger        zerolog.Logger
}

// Engine talks to Gemini for chat and to Imagen for scene pictures.
// Clients are created lazily so a missing key surfaces when a chat starts,
// where the caller can report it and retry.
type Engine struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	client     *genai.Client
	httpClient *http.Client
}

func NewEngine(opts Options) *Engine {
	if opts.ChatModel == "" {
		opts.ChatModel = DefaultChatModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = DefaultImageModel
	}
	if opts.ImageEndpoint == "" {
		opts.ImageEndpoint = DefaultImageEndpoint
	}
	return &Engine{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) genaiClient(ctx context.Context) (*genai.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if e.client != nil {
		return e.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(e.opts.APIKey))
	if err != nil {
		return nil, classifyError(err)
	}
	e.client = client
	return client, nil
}

// StartChat opens a fresh conversation primed with systemPrompt. Every call
// returns an independent chat; history is not shared between them.
func (e *Engine) StartChat(ctx context.Context, systemPrompt string) (Chat, error) {
	client, err := e.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(e.opts.ChatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	e.logger.Debug().Str("model", e.opts.ChatModel).Msg("chat started")
	return &geminiChat{
		cs:     model.StartChat(),
		logger: e.logger,
	}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
