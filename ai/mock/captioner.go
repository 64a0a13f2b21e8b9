package mock

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MockCaptioner is a test double for ai.Captioner.
type MockCaptioner struct {
	// CaptionFunc is called by Caption if set.
	// If nil, describes the image by type and size.
	CaptionFunc func(ctx context.Context, image []byte, mimeType string) (string, error)

	callCount atomic.Int64
}

// NewMockCaptioner creates a mock captioner with default behavior.
func NewMockCaptioner() *MockCaptioner {
	return &MockCaptioner{}
}

// Caption returns a deterministic description of the image.
func (m *MockCaptioner) Caption(ctx context.Context, image []byte, mimeType string) (string, error) {
	m.callCount.Add(1)

	if m.CaptionFunc != nil {
		return m.CaptionFunc(ctx, image, mimeType)
	}
	return fmt.Sprintf("An image of type %s, %d bytes.", mimeType, len(image)), nil
}

// CallCount returns the number of Caption calls.
func (m *MockCaptioner) CallCount() int {
	return int(m.callCount.Load())
}
