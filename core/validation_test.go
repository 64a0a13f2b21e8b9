package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name    string
		id      TenantID
		wantErr bool
	}{
		{name: "simple", id: "T1", wantErr: false},
		{name: "dashes and underscores", id: "bot_42-a", wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "path separator", id: "../etc", wantErr: true},
		{name: "space", id: "my bot", wantErr: true},
		{name: "too long", id: TenantID(strings.Repeat("a", MaxTenantIDLength+1)), wantErr: true},
		{name: "max length", id: TenantID(strings.Repeat("a", MaxTenantIDLength)), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTenant) {
					t.Errorf("ValidateTenantID() error = %v, want ErrInvalidTenant", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateTenantID() unexpected error = %v", err)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     &Document{Tenant: "T1", Name: "doc_a.pdf", BlobKey: "T1/1"},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "bad tenant",
			doc:     &Document{Tenant: "", Name: "doc_a.pdf", BlobKey: "x"},
			wantErr: ErrInvalidTenant,
		},
		{
			name:    "missing name",
			doc:     &Document{Tenant: "T1", BlobKey: "x"},
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "missing blob key",
			doc:     &Document{Tenant: "T1", Name: "a.txt"},
			wantErr: ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	validTime := time.Now().Add(-1 * time.Minute)
	futureTime := time.Now().Add(1 * time.Hour)

	tests := []struct {
		name    string
		msg     *Message
		wantErr error
	}{
		{
			name:    "valid user message",
			msg:     &Message{Conversation: "c1", Role: RoleUser, Text: "hello", Timestamp: validTime},
			wantErr: nil,
		},
		{
			name:    "nil message",
			msg:     nil,
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "empty text",
			msg:     &Message{Conversation: "c1", Role: RoleUser, Timestamp: validTime},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "bad role",
			msg:     &Message{Conversation: "c1", Role: Role(9), Text: "x", Timestamp: validTime},
			wantErr: ErrInvalidRole,
		},
		{
			name:    "future timestamp",
			msg:     &Message{Conversation: "c1", Role: RoleBot, Text: "x", Timestamp: futureTime},
			wantErr: ErrInvalidTimestamp,
		},
		{
			name:    "missing conversation",
			msg:     &Message{Role: RoleBot, Text: "x", Timestamp: validTime},
			wantErr: ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.msg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMessage() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "handbook.pdf", want: "handbook.pdf"},
		{name: "spaces", in: "  Price List 2025.docx ", want: "Price_List_2025.docx"},
		{name: "path stripped", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\me\notes.txt`, want: "notes.txt"},
		{name: "punctuation removed", in: "report(final)!.pdf", want: "reportfinal.pdf"},
		{name: "unicode letters kept", in: "café.md", want: "café.md"},
		{name: "empty", in: "???", want: "document"},
		{name: "dots only", in: "..", want: "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFilename(long)
	if len([]rune(got)) != MaxFilenameLength || !strings.HasSuffix(got, ".pdf") {
		t.Errorf("SanitizeFilename(long) = %d runes %q, want %d ending in .pdf", len([]rune(got)), got[len(got)-8:], MaxFilenameLength)
	}
}

func TestValidateEmbeddingInput(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     error
	}{
		{"ok", "hello", 10, nil},
		{"blank", "  \n", 10, ErrEmptyContent},
		{"at limit counts runes", "ééééé", 5, nil},
		{"over limit", "abcdef", 5, ErrInputTooLong},
		{"no limit", strings.Repeat("x", 100000), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmbeddingInput(tt.text, tt.maxChars)
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateEmbeddingInput() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateEmbeddingInput() error = %v, want %v", err, tt.want)
			}
		})
	}
}
