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


// Package openai talks to OpenAI-compatible HTTP APIs through langchaingo.
//
// One Provider serves a whole deployment: the embedder produces chunk and
// query vectors, the generator composes chatbot answers, and the captioner
// describes uploaded images and scanned PDF pages by attaching them to a
// vision model request. Any server speaking the OpenAI wire format works,
// including Ollama, LocalAI and vLLM. Hosts without a /v1 suffix get one.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("all-minilm"),
//	    ai.WithGenerationModel("qwen2.5:3b"),
//	))
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
// The embedding model name is recorded on every published index, so
// changing it makes existing chatbots unqueryable until they are rebuilt.
package openai
