package embedder

import (
	"fmt"
	"strings"
)

// NewProvider creates an embedding provider by name. An empty name selects
// the local deterministic provider so the engine works without credentials.
func NewProvider(name, apiKey, model string) (Provider, error) {
	switch strings.ToLower(name) {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model)
	case ProviderJina:
		return NewJinaProvider(apiKey, model)
	case ProviderLocal, "":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}
