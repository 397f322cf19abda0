// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package documents

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the backend's processing state for a document.
type Status string

const (
	StatusProcessed  Status = "Processed"
	StatusProcessing Status = "Processing"
	StatusFailed     Status = "Failed"
)

// OrDefault returns s, or StatusProcessed when the backend sent none.
func (s Status) OrDefault() Status {
	if s == "" {
		return StatusProcessed
	}
	return s
}

// =============================================================================
// DOCUMENT TYPE
// =============================================================================

// DocType classifies a document.
type DocType string

const (
	DocTypeContract   DocType = "contract"
	DocTypeLegalBrief DocType = "legal_brief"
	DocTypeCaseStudy  DocType = "case_study"
	DocTypeCompliance DocType = "compliance"
	DocTypeResearch   DocType = "research"
	DocTypeOther      DocType = "other"
	DocTypePDF        DocType = "pdf"
	DocTypeCSV        DocType = "csv"
)

// DocTypeAll matches every type in Filter.
const DocTypeAll DocType = "all"

// DocTypes lists the known document types in display order.
var DocTypes = []DocType{
	DocTypeContract, DocTypeLegalBrief, DocTypeCaseStudy, DocTypeCompliance,
	DocTypeResearch, DocTypeOther, DocTypePDF, DocTypeCSV,
}

// Valid reports whether t is a known type.
func (t DocType) Valid() bool {
	for _, known := range DocTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns the display label, e.g. "LEGAL BRIEF".
func (t DocType) Label() string {
	return strings.ToUpper(strings.Replace(string(t), "_", " ", 1))
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is one entry of the user's library.
type Document struct {
	ID          int64     `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	DocType     DocType   `json:"doc_type" yaml:"doc_type"`
	FileName    string    `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	FileSize    int64     `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	UploadDate  Timestamp `json:"upload_date" yaml:"upload_date"`
	Status      Status    `json:"status,omitempty" yaml:"status,omitempty"`
}

// Timestamp accepts the date layouts the backend emits, with or without a
// zone. Naive times are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses s using the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{t}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Timestamp{}, firstErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(time.RFC3339))), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*t = Timestamp{}
		return nil
	}
	unq, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("upload_date: %w", err)
	}
	parsed, err := ParseTimestamp(unq)
	if err != nil {
		return fmt.Errorf("upload_date: %w", err)
	}
	*t = parsed
	return nil
}

// MarshalYAML renders the timestamp as RFC 3339, or empty when unset.
func (t Timestamp) MarshalYAML() (any, error) {
	if t.IsZero() {
		return "", nil
	}
	return t.Format(time.RFC3339), nil
}

// Date formats the timestamp for tables, or "-" when unset.
func (t Timestamp) Date() string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

// Page is one page of List results.
type Page struct {
	Documents []Document `json:"documents" yaml:"documents"`
	Total     int        `json:"total" yaml:"total"`
	Page      int        `json:"page" yaml:"page"`
	PageSize  int        `json:"page_size" yaml:"page_size"`
	Pages     int        `json:"pages" yaml:"pages"`
}

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool {
	return p.Page < p.Pages
}

// Range returns the 1-based positions of the first and last document of
// the page within the whole library, as shown in "Showing 11 to 20 of 42".
func (p *Page) Range() (from, to int) {
	if p.Total == 0 || len(p.Documents) == 0 {
		return 0, 0
	}
	from = (p.Page-1)*p.PageSize + 1
	to = min(p.Page*p.PageSize, p.Total)
	return from, to
}

// UploadRequest is the upload form.
type UploadRequest struct {
	// Path is the local file to send.
	Path        string
	Title       string
	Description string
	DocType     DocType
}
