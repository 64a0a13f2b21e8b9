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
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxFilenameLength bounds stored document names, in runes.
const MaxFilenameLength = 200

// MaxTenantIDLength bounds tenant identifiers; they appear in artifact file names.
const MaxTenantIDLength = 64

// ValidateTenantID checks that a tenant identifier is non-empty, bounded and
// limited to ASCII letters, digits, '-' and '_'.
func ValidateTenantID(id TenantID) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTenant)
	}
	if len(id) > MaxTenantIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTenant, MaxTenantIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: character %q not allowed", ErrInvalidTenant, r)
		}
	}
	return nil
}

// ValidateDocument checks the fields required to store a document.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if err := ValidateTenantID(doc.Tenant); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDocument)
	}
	if doc.BlobKey == "" {
		return fmt.Errorf("%w: blob key is empty", ErrInvalidDocument)
	}
	return nil
}

// ValidateMessage checks a conversation message before it is stored.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.Conversation == "" {
		return fmt.Errorf("%w: conversation is empty", ErrInvalidMessage)
	}
	if msg.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}
	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if !IsValidTimestamp(msg.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateRole checks that a Role is one of the defined values.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleBot {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

// IsValidTimestamp checks that a timestamp is not in the future.
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}

// ValidateEmbeddingInput rejects blank text and text longer than maxChars
// runes. maxChars <= 0 disables the length check.
func ValidateEmbeddingInput(text string, maxChars int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyContent
	}
	if maxChars > 0 {
		if n := utf8.RuneCountInString(text); n > maxChars {
			return fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLong, n, maxChars)
		}
	}
	return nil
}

// SanitizeFilename reduces an uploaded file name to its base name with
// spaces turned into underscores and everything except letters, digits,
// '-', '_' and '.' removed. Names longer than MaxFilenameLength runes are
// truncated, keeping the extension. An empty result becomes "document".
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		return "document"
	}

	runes := []rune(clean)
	if len(runes) <= MaxFilenameLength {
		return clean
	}
	ext := []rune(filepath.Ext(clean))
	if len(ext) >= MaxFilenameLength {
		ext = nil
	}
	return string(runes[:MaxFilenameLength-len(ext)]) + string(ext)
}
