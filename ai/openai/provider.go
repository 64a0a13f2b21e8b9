// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/querysafe/ai"
)

// Provider bundles the embedding, generation and caption clients that share
// one ai.Config.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	captioner *Captioner
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewProvider validates config and builds every client from it. Hosts are
// normalized by config.Validate, so callers may omit the /v1 suffix.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		logger: slog.Default().With("component", "openai-provider"),
	}
	var err error
	if p.embedder, err = newEmbedder(config); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if p.generator, err = newGenerator(config); err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if p.captioner, err = newCaptioner(config); err != nil {
		return nil, fmt.Errorf("captioner: %w", err)
	}

	p.logger.Info("AI provider ready",
		"embedding_host", config.EmbeddingHost,
		"embedding_model", config.EmbeddingModel,
		"generation_model", config.GenerationModel,
		"caption_model", config.CaptionModel)
	return p, nil
}

func (p *Provider) Embedder() ai.Embedder { return p.embedder }

func (p *Provider) Generator() ai.Generator { return p.generator }

func (p *Provider) Captioner() ai.Captioner { return p.captioner }

// Close is safe to call more than once. The HTTP clients hold no resources
// beyond pooled connections.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Debug("AI provider closed")
	})
	return nil
}
