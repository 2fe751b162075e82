package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderLocal  = "local"
)

const (
	openAIEndpoint = "https://api.openai.com/v1/embeddings"
	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"

	defaultOpenAIModel = "text-embedding-3-small"
	defaultJinaModel   = "jina-embeddings-v3"

	openAIDimension = 1536
	jinaDimension   = 1024

	// LocalDimension is the vector size of the deterministic local provider.
	LocalDimension = 384
)

// Provider is the black-box embedding model contract. Implementations must
// return one vector per input text, in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// httpProvider calls an OpenAI-compatible embeddings endpoint. Both the
// OpenAI and Jina APIs share this request/response shape.
type httpProvider struct {
	name      string
	endpoint  string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

// NewOpenAIProvider creates a provider backed by the OpenAI embeddings API.
func NewOpenAIProvider(apiKey, model string) (Provider, error) {
	return newHTTPProvider(ProviderOpenAI, openAIEndpoint, apiKey, model, defaultOpenAIModel, openAIDimension)
}

// NewJinaProvider creates a provider backed by the Jina AI embeddings API.
func NewJinaProvider(apiKey, model string) (Provider, error) {
	return newHTTPProvider(ProviderJina, jinaEndpoint, apiKey, model, defaultJinaModel, jinaDimension)
}

func newHTTPProvider(name, endpoint, apiKey, model, defaultModel string, dimension int) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s provider: API key not configured", name)
	}
	if model == "" {
		model = defaultModel
	}
	return &httpProvider{
		name:      name,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *httpProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"input": texts,
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s call: %v", types.ErrEmbedding, p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s status %d: %s", types.ErrEmbedding, p.name, resp.StatusCode, string(raw))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", types.ErrEmbedding, p.name, err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			types.ErrEmbedding, p.name, len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: %s returned out-of-range index %d", types.ErrEmbedding, p.name, d.Index)
		}
		if len(d.Embedding) != p.dimension {
			// A model mismatch (wrong dimension count) must fail here, not
			// after half the batch has been indexed downstream.
			return nil, fmt.Errorf("%w: %s returned %d-dimension vector at index %d, want %d",
				types.ErrEmbedding, p.name, len(d.Embedding), d.Index, p.dimension)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (p *httpProvider) Dimension() int { return p.dimension }
func (p *httpProvider) Model() string  { return p.model }

func (p *httpProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic vectors without a network call: a
// bag-of-words where each token is hashed into a dimension, L2-normalized.
// Related texts share tokens and therefore correlate under cosine distance,
// which is enough for offline operation and for tests.
type LocalProvider struct {
	model string
}

// NewLocalProvider creates the in-process deterministic provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{model: "local-hash-embeddings"}
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.embedOne(text)
	}
	return vectors, nil
}

func (l *LocalProvider) embedOne(text string) []float32 {
	vec := make([]float32, LocalDimension)
	for _, token := range tokenizeLocal(text) {
		h := sha256.Sum256([]byte(token))
		dim := binary.LittleEndian.Uint32(h[:4]) % LocalDimension
		vec[dim]++
	}
	return normalizeL2(vec)
}

func tokenizeLocal(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 0x80
	})
}

func normalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (l *LocalProvider) Dimension() int { return LocalDimension }
func (l *LocalProvider) Model() string  { return l.model }
func (l *LocalProvider) Close() error   { return nil }
