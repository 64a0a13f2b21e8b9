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


package mock

import (
	"sync/atomic"

	"github.com/poiesic/querysafe/ai"
)

// MockProvider bundles mock services behind ai.AIProvider and records
// whether it was closed.
type MockProvider struct {
	embedder  *MockEmbedder
	generator *MockGenerator
	captioner *MockCaptioner
	closed    atomic.Bool
}

// NewMockProvider returns a provider backed by default mocks.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(NewMockEmbedder(), NewMockGenerator(), NewMockCaptioner())
}

// NewMockProviderWithServices wires the given mocks. A nil captioner makes
// Captioner return nil, which disables image captioning during extraction.
func NewMockProviderWithServices(embedder *MockEmbedder, generator *MockGenerator, captioner *MockCaptioner) ai.AIProvider {
	return &MockProvider{
		embedder:  embedder,
		generator: generator,
		captioner: captioner,
	}
}

func (p *MockProvider) Embedder() ai.Embedder { return p.embedder }

func (p *MockProvider) Generator() ai.Generator { return p.generator }

func (p *MockProvider) Captioner() ai.Captioner {
	if p.captioner == nil {
		return nil
	}
	return p.captioner
}

func (p *MockProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (p *MockProvider) Closed() bool {
	return p.closed.Load()
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder { return p.embedder }

func (p *MockProvider) GetMockGenerator() *MockGenerator { return p.generator }

func (p *MockProvider) GetMockCaptioner() *MockCaptioner { return p.captioner }
