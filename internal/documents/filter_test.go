// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package documents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []Document {
	return []Document{
		{ID: 1, Title: "Office Lease", Description: "Commercial lease for HQ", DocType: DocTypeContract, Status: StatusProcessed},
		{ID: 2, Title: "Appeal Brief", Description: "Ninth circuit appeal", DocType: DocTypeLegalBrief, Status: StatusProcessing},
		{ID: 3, Title: "GDPR Audit", Description: "Annual compliance review", DocType: DocTypeCompliance, Status: StatusFailed},
		{ID: 4, Title: "Vendor NDA", Description: "Mutual non-disclosure LEASE addendum", DocType: DocTypeContract},
	}
}

func ids(docs []Document) []int64 {
	out := []int64{}
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		search  string
		docType DocType
		want    []int64
	}{
		{"everything", "", "", []int64{1, 2, 3, 4}},
		{"all keyword", "", DocTypeAll, []int64{1, 2, 3, 4}},
		{"all keyword any case", "", "All", []int64{1, 2, 3, 4}},
		{"title match", "brief", "", []int64{2}},
		{"description match case-insensitive", "lease", "", []int64{1, 4}},
		{"type only", "", DocTypeContract, []int64{1, 4}},
		{"search and type", "appeal", DocTypeContract, []int64{}},
		{"no match", "zzz", "", []int64{}},
		{"padded search", "  audit ", "", []int64{3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(Filter(sampleDocs(), tc.search, tc.docType)))
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleDocs())
	assert.Equal(t, Summary{Total: 4, Processed: 2, Processing: 1, Failed: 1}, s)
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{-5, "0 Bytes"},
		{1, "1 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1234567, "1.18 MB"},
		{5 << 20, "5 MB"},
		{3 << 30, "3 GB"},
		{2 << 40, "2048 GB"},
	}
	for _, tc := range tests {
		if got := FormatFileSize(tc.in); got != tc.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDocType(t *testing.T) {
	assert.Equal(t, "LEGAL BRIEF", DocTypeLegalBrief.Label())
	assert.Equal(t, "PDF", DocTypePDF.Label())
	assert.True(t, DocTypeCaseStudy.Valid())
	assert.False(t, DocType("memo").Valid())
	assert.False(t, DocTypeAll.Valid())
}

func TestStatusOrDefault(t *testing.T) {
	assert.Equal(t, StatusProcessed, Status("").OrDefault())
	assert.Equal(t, StatusFailed, StatusFailed.OrDefault())
}

func TestPageRange(t *testing.T) {
	p := &Page{Documents: make([]Document, 10), Total: 42, Page: 2, PageSize: 10, Pages: 5}
	from, to := p.Range()
	assert.Equal(t, 11, from)
	assert.Equal(t, 20, to)
	assert.True(t, p.HasNext())

	last := &Page{Documents: make([]Document, 2), Total: 42, Page: 5, PageSize: 10, Pages: 5}
	from, to = last.Range()
	assert.Equal(t, 41, from)
	assert.Equal(t, 42, to)
	assert.False(t, last.HasNext())

	from, to = (&Page{}).Range()
	assert.Zero(t, from)
	assert.Zero(t, to)
}

func TestTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2025-03-01T12:30:00Z"`, time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)},
		{`"2025-03-01T12:30:00.123456"`, time.Date(2025, 3, 1, 12, 30, 0, 123456000, time.UTC)},
		{`"2025-03-01 12:30:00"`, time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)},
		{`"2025-03-01"`, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tc.in), &ts), tc.in)
		assert.True(t, tc.want.Equal(ts.Time), "%s parsed as %v", tc.in, ts.Time)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
	assert.Equal(t, "-", ts.Date())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestDocument_MissingStatusDecodes(t *testing.T) {
	var d Document
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"title":"T","description":"D","doc_type":"pdf","upload_date":"2025-01-02T03:04:05"}`), &d))
	assert.Equal(t, int64(7), d.ID)
	assert.Equal(t, StatusProcessed, d.Status.OrDefault())
	assert.Equal(t, 2025, d.UploadDate.Year())
}
