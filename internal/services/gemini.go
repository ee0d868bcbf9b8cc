// Gemini implementation of [Recognizer]
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/shared"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 4 * time.Second
	maxVibeSongs          = 20
	identifyPrompt        = "Listen to this audio. Identify the song name and artist. Ignore remixes, speed changes, or voiceovers. Return ONLY JSON: {\"track\": \"Name\", \"artist\": \"Name\"}"
	genrePromptFormat     = "What is the primary music genre of the song '%s' by '%s'? Return only ONE word (e.g., Techno, House, Pop, Rock, Ambient). Do not write sentences."
	vibePromptFormat      = "Here is a user's recently liked music:\n%s\n\nIn one short, fun sentence (max 10 words), describe their current 'music vibe' or mood. Be creative like Spotify Wrapped."
	UnknownGenre          = "Unknown"
	EmptyVibe             = "No music yet! Start stashing to find your vibe."
	FallbackVibe          = "Eclectic and mysterious."
)

// contentGenerator is the part of [genai.Models] the recognizer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOption customizes a [GeminiRecognizer].
type GeminiOption func(*GeminiRecognizer)

// WithGeminiModel overrides the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiRecognizer) {
		if model != "" {
			g.model = model
		}
	}
}

// WithRetryMaxAttempts overrides the number of attempts per call (defaults to 3).
func WithRetryMaxAttempts(attempts int) GeminiOption {
	return func(g *GeminiRecognizer) {
		if attempts > 0 {
			g.retryMaxAttempts = attempts
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
// The sleeper must return early with ctx's error when ctx ends.
func WithSleeper(sleeper func(context.Context, time.Duration) error) GeminiOption {
	return func(g *GeminiRecognizer) {
		g.sleeper = sleeper
	}
}

func withGenerator(gen contentGenerator) GeminiOption {
	return func(g *GeminiRecognizer) {
		g.generator = gen
	}
}

// GeminiRecognizer identifies songs by sending audio to a Gemini model.
type GeminiRecognizer struct {
	generator        contentGenerator
	model            string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(context.Context, time.Duration) error
}

// NewGeminiRecognizer creates a recognizer backed by the Gemini API.
func NewGeminiRecognizer(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiRecognizer, error) {
	g := newGeminiRecognizer(opts...)
	if g.generator != nil {
		return g, nil
	}

	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key", shared.ErrMissingCredentials)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.generator = client.Models
	return g, nil
}

func newGeminiRecognizer(opts ...GeminiOption) *GeminiRecognizer {
	g := &GeminiRecognizer{
		model:            defaultGeminiModel,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		sleeper:          sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IdentifyAudio sends the audio inline and parses the model's JSON answer.
func (g *GeminiRecognizer) IdentifyAudio(ctx context.Context, audio []byte, mimeType string) (*Identification, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", shared.ErrInvalidInput)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(identifyPrompt),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}

	text, err := g.generate(ctx, contents, &genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRecognitionFailed, err)
	}

	id, err := ParseIdentification(text)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// sleepContext waits for d or until ctx ends, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseIdentification decodes a {"track","artist"} answer, tolerating code fences.
func ParseIdentification(text string) (*Identification, error) {
	body := []byte(shared.StripCodeFence(text))
	if err := shared.ValidateJSON(body); err != nil {
		return nil, fmt.Errorf("%w: unreadable model answer: %v", shared.ErrRecognitionFailed, err)
	}

	var id Identification
	if err := json.Unmarshal(body, &id); err != nil {
		return nil, fmt.Errorf("%w: unreadable model answer: %v", shared.ErrRecognitionFailed, err)
	}

	id.Track = strings.TrimSpace(id.Track)
	id.Artist = strings.TrimSpace(id.Artist)
	if id.Track == "" {
		return nil, fmt.Errorf("%w: model returned no track", shared.ErrRecognitionFailed)
	}
	return &id, nil
}

// DetectGenre asks for a single-word genre. Any failure yields [UnknownGenre].
func (g *GeminiRecognizer) DetectGenre(ctx context.Context, track, artist string) string {
	prompt := fmt.Sprintf(genrePromptFormat, track, artist)

	text, err := g.generate(ctx, genai.Text(prompt), nil)
	if err != nil {
		return UnknownGenre
	}
	return CleanGenre(text)
}

// CleanGenre reduces a model answer to one capitalized word.
func CleanGenre(text string) string {
	text = strings.ReplaceAll(text, ".", "")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return UnknownGenre
	}
	word := strings.Trim(fields[0], `"'*`)
	if word == "" {
		return UnknownGenre
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

// AnalyzeVibe summarizes up to the first 20 songs in a short sentence.
func (g *GeminiRecognizer) AnalyzeVibe(ctx context.Context, songs []string) string {
	if len(songs) == 0 {
		return EmptyVibe
	}
	if len(songs) > maxVibeSongs {
		songs = songs[:maxVibeSongs]
	}

	prompt := fmt.Sprintf(vibePromptFormat, strings.Join(songs, "\n"))

	text, err := g.generate(ctx, genai.Text(prompt), nil)
	if err != nil {
		return FallbackVibe
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return FallbackVibe
	}
	return text
}

// generate calls the model with retries and returns the response text.
func (g *GeminiRecognizer) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	delay := g.retryBaseDelay

	for attempt := 1; attempt <= g.retryMaxAttempts; attempt++ {
		resp, err := g.generator.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			text := strings.TrimSpace(resp.Text())
			if text != "" {
				return text, nil
			}
			err = errors.New("empty response")
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < g.retryMaxAttempts && g.sleeper != nil {
			if err := g.sleeper(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
			if delay > g.retryMaxDelay {
				delay = g.retryMaxDelay
			}
		}
	}

	return "", fmt.Errorf("gemini request failed after %d attempts: %w", g.retryMaxAttempts, lastErr)
}
