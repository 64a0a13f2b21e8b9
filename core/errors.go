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


package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTenant indicates a TenantID failed validation.
	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrEmptyContent indicates a text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidRole indicates an invalid Role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrUnsupportedFormat indicates no extractor handles a document type.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNoContent indicates a document produced no usable text.
	ErrNoContent = errors.New("document yielded no content")

	// ErrNoChunks indicates an ingestion run produced no chunks at all.
	ErrNoChunks = errors.New("no extractable chunks")

	// ErrInputTooLong indicates embedding input above the configured limit.
	ErrInputTooLong = errors.New("input exceeds maximum length")

	// ErrDimensionMismatch indicates vectors of inconsistent dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrModelMismatch indicates an index built by another embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// ExtractionError reports a document that could not be converted to text.
// It is local to one document and never fails an ingestion run.
type ExtractionError struct {
	DocumentId ID
	Name       string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q (document %d): %v", e.Name, e.DocumentId, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// EmbeddingError reports a failure to embed text. Fatal to an ingestion run.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return "embedding failed: " + e.Err.Error()
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// IndexBuildError reports a failure to build or publish a vector index.
// Fatal to an ingestion run.
type IndexBuildError struct {
	Err error
}

func (e *IndexBuildError) Error() string {
	return "index build failed: " + e.Err.Error()
}

func (e *IndexBuildError) Unwrap() error {
	return e.Err
}

// NotIndexedError is returned at query time when a tenant has no usable index.
type NotIndexedError struct {
	Tenant TenantID
	Reason string
}

func (e *NotIndexedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tenant %s is not indexed", e.Tenant)
	}
	return fmt.Sprintf("tenant %s is not indexed: %s", e.Tenant, e.Reason)
}

// GenerationError wraps a failure of the text generation capability.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsNotIndexed reports whether err is or wraps a NotIndexedError.
func IsNotIndexed(err error) bool {
	var target *NotIndexedError
	return errors.As(err, &target)
}
