// Package mock provides deterministic test doubles for the ai interfaces.
// Every double counts its calls so tests can assert that no external call
// happened.
package mock

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sync"

	"github.com/starford/learnmate/internal/ai"
)

// DefaultDim is the vector dimension produced by Embedder when Dim is unset.
const DefaultDim = 16

// Embedder is a deterministic ai.Embedder.
type Embedder struct {
	// Dim is the dimension of generated vectors.
	Dim int
	// EmbedTextsFunc replaces the default behaviour of EmbedTexts when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu        sync.Mutex
	callCount int
	texts     int
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder returns an Embedder producing DefaultDim vectors.
func NewEmbedder() *Embedder {
	return &Embedder{Dim: DefaultDim}
}

// EmbedTexts returns one deterministic vector per text.
func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.texts += len(texts)
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, m.dim())
	}
	return out, nil
}

// EmbedText returns the deterministic vector of text.
func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *Embedder) dim() int {
	if m.Dim <= 0 {
		return DefaultDim
	}
	return m.Dim
}

// CallCount returns the number of embedding requests made.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TextCount returns the total number of texts embedded.
func (m *Embedder) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
}

// Vector derives a unit vector of dimension dim from an FNV hash of text, so
// equal texts always map to equal vectors.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	var sum float64
	for i := range v {
		seed = seed*1664525 + 1013904223 // LCG constants
		v[i] = float32(seed%1000)/1000.0 + 0.001
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

// ChatModel is a scripted ai.ChatModel.
type ChatModel struct {
	// CompleteFunc replaces the default behaviour when set.
	CompleteFunc func(ctx context.Context, system, user string, opts ai.CallOptions) (string, error)
	// Responses are returned in order, one per call, when CompleteFunc is nil.
	Responses []string
	// Err is returned from every call when set.
	Err error

	mu        sync.Mutex
	callCount int
	lastUser  string
	lastOpts  ai.CallOptions
}

var _ ai.ChatModel = (*ChatModel)(nil)

// Complete returns the next scripted response.
func (m *ChatModel) Complete(ctx context.Context, system, user string, opts ...ai.CallOption) (string, error) {
	o := ai.ApplyCallOptions(opts...)

	m.mu.Lock()
	m.callCount++
	m.lastUser = user
	m.lastOpts = o
	fn := m.CompleteFunc
	if fn == nil && m.Err == nil && len(m.Responses) == 0 {
		m.mu.Unlock()
		return "", errors.New("mock: no scripted response")
	}
	var resp string
	if fn == nil && m.Err == nil {
		resp = m.Responses[0]
		if len(m.Responses) > 1 {
			m.Responses = m.Responses[1:]
		}
	}
	err := m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, system, user, o)
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// CallCount returns the number of Complete calls.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastUserPrompt returns the user prompt of the most recent call.
func (m *ChatModel) LastUserPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUser
}

// LastOptions returns the call options of the most recent call.
func (m *ChatModel) LastOptions() ai.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// Provider bundles an Embedder and a ChatModel.
type Provider struct {
	Embed *Embedder
	Chat  *ChatModel
}

var _ ai.Provider = (*Provider)(nil)

// NewProvider returns a Provider with a default Embedder and an empty ChatModel.
func NewProvider() *Provider {
	return &Provider{Embed: NewEmbedder(), Chat: &ChatModel{}}
}

func (p *Provider) Embedder() ai.Embedder   { return p.Embed }
func (p *Provider) ChatModel() ai.ChatModel { return p.Chat }
func (p *Provider) Close() error            { return nil }
