// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package documents

import (
	"math"
	"strconv"
	"strings"
)

// Filter returns the documents whose title or description contains search,
// case-insensitively, and whose type equals docType. An empty search matches
// everything; an empty docType or DocTypeAll matches any type.
func Filter(docs []Document, search string, docType DocType) []Document {
	needle := strings.ToLower(strings.TrimSpace(search))
	anyType := docType == "" || strings.EqualFold(string(docType), string(DocTypeAll))

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if needle != "" &&
			!strings.Contains(strings.ToLower(d.Title), needle) &&
			!strings.Contains(strings.ToLower(d.Description), needle) {
			continue
		}
		if !anyType && d.DocType != docType {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Summary counts documents by status.
type Summary struct {
	Total      int `json:"total" yaml:"total"`
	Processed  int `json:"processed" yaml:"processed"`
	Processing int `json:"processing" yaml:"processing"`
	Failed     int `json:"failed" yaml:"failed"`
}

// Summarize counts docs by status. A missing status counts as processed.
func Summarize(docs []Document) Summary {
	s := Summary{Total: len(docs)}
	for _, d := range docs {
		switch d.Status.OrDefault() {
		case StatusProcessed:
			s.Processed++
		case StatusProcessing:
			s.Processing++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders bytes with 1024-based units and at most two
// decimals, trailing zeros dropped: 0 Bytes, 512 Bytes, 1.5 KB, 2 MB.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	i = min(i, len(sizeUnits)-1)
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
