package core

import (
	"errors"
	"testing"
)

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "valid body",
			body:    "How do I reset my password?",
			wantErr: nil,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: ErrEmptyContent,
		},
		{
			name:    "whitespace only",
			body:    " \r\n\t \n",
			wantErr: ErrEmptyContent,
		},
		{
			name:    "invalid utf-8",
			body:    "abc\xff\xfe",
			wantErr: ErrInvalidEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBody(tt.body)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateBody() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBody() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidateBody() error = %v, want wrapped %v", err, ErrInvalidInput)
			}
		})
	}
}

func TestValidateSourceType(t *testing.T) {
	tests := []struct {
		name    string
		st      SourceType
		wantErr bool
	}{
		{name: "scraper", st: SourceTypeScraper},
		{name: "api", st: SourceTypeAPI},
		{name: "manual upload", st: SourceTypeManualUpload},
		{name: "empty", st: "", wantErr: true},
		{name: "unknown", st: "ftp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceType(tt.st)
			if tt.wantErr && err == nil {
				t.Error("ValidateSourceType() error = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateSourceType() error = %v, want nil", err)
			}
			if err != nil && !errors.Is(err, ErrInvalidSourceType) {
				t.Errorf("ValidateSourceType() error = %v, want %v", err, ErrInvalidSourceType)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	valid := func() *Document {
		return &Document{
			ContentHash: "abc",
			SourceType:  SourceTypeAPI,
			Status:      StatusIndexed,
		}
	}

	tests := []struct {
		name    string
		doc     func() *Document
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     valid,
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     func() *Document { return nil },
			wantErr: ErrInvalidInput,
		},
		{
			name: "missing hash",
			doc: func() *Document {
				d := valid()
				d.ContentHash = ""
				return d
			},
			wantErr: ErrInvalidInput,
		},
		{
			name: "bad source type",
			doc: func() *Document {
				d := valid()
				d.SourceType = "rss"
				return d
			},
			wantErr: ErrInvalidSourceType,
		},
		{
			name: "bad status",
			doc: func() *Document {
				d := valid()
				d.Status = "archived"
				return d
			},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc())
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
