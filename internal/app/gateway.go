package app

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/voxchat/internal/config"
	"github.com/dgnsrekt/voxchat/internal/gateway"
)

type gatewayKey struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	rpm     int
}

// Gateway is a gateway.Client that follows the live settings: the client
// is rebuilt when the credential or endpoint changes.
type Gateway struct {
	live *config.Live

	mu     sync.Mutex
	key    gatewayKey
	client *gateway.Client
}

// NewGateway returns a Gateway reading its configuration from live.
func NewGateway(live *config.Live) *Gateway {
	return &Gateway{live: live}
}

// Client returns the client for the current settings.
func (g *Gateway) Client() *gateway.Client {
	s := g.live.Load()
	k := gatewayKey{s.APIKey, s.Gateway.BaseURL, s.Gateway.Timeout, s.Gateway.RequestsPerMinute}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil || k != g.key {
		g.client = gateway.New(gateway.Config{
			APIKey:            k.apiKey,
			BaseURL:           k.baseURL,
			Timeout:           k.timeout,
			RequestsPerMinute: k.rpm,
		})
		g.key = k
	}
	return g.client
}

func (g *Gateway) Validate() error { return g.Client().Validate() }

func (g *Gateway) Chat(ctx context.Context, prompt, model string) (gateway.ChatResult, error) {
	return g.Client().Chat(ctx, prompt, model)
}

func (g *Gateway) Speak(ctx context.Context, text, outputPath, model, voice string, speed float64) error {
	return g.Client().Speak(ctx, text, outputPath, model, voice, speed)
}

func (g *Gateway) ListChatModels(ctx context.Context) []string {
	return g.Client().ListChatModels(ctx)
}
