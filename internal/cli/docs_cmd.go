// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trygodson/llamatest/internal/documents"
	"github.com/trygodson/llamatest/internal/util"
)

// =============================================================================
// OUTPUT FORMATS
// =============================================================================

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTOML  = "toml"
)

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return NewValidationErrorWithExample("output", format,
		"must be one of "+strings.Join(allowed, ", "), "-o "+allowed[len(allowed)-1])
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

// =============================================================================
// DOCS COMMAND
// =============================================================================

func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "Manage your document library",
		Long:    "List, upload and delete documents. Requires lexai login.",
	}
	cmd.AddCommand(
		newDocsListCmd(a),
		newDocsUploadCmd(a),
		newDocsDeleteCmd(a),
		newDocsStatsCmd(a),
	)
	return cmd
}

func newDocsListCmd(a *app) *cobra.Command {
	var (
		page     int
		pageSize int
		search   string
		docType  string
		all      bool
		format   string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List documents",
		Long: "List one page of documents. --search and --type filter the page shown;\n" +
			"add --all to filter the whole library.",
		Example: `  lexai docs list
  lexai docs list --page 2 --type contract
  lexai docs list --all --search lease -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
				return err
			}
			dt := documents.DocType(strings.ToLower(docType))
			if dt != "" && dt != documents.DocTypeAll && !dt.Valid() {
				return NewValidationErrorWithExample("type", docType, "unknown document type", "--type legal_brief")
			}
			if page < 1 {
				return NewValidationErrorWithExample("page", strconv.Itoa(page), "must be at least 1", "--page 2")
			}
			if pageSize < 1 {
				pageSize = a.cfg.Documents.PageSize
			}

			client, err := a.documentsClient()
			if err != nil {
				return err
			}

			var p *documents.Page
			if all {
				docs, err := client.ListAll(cmd.Context(), pageSize)
				if err != nil {
					return err
				}
				p = &documents.Page{Documents: docs, Total: len(docs), Page: 1, PageSize: max(len(docs), 1), Pages: 1}
			} else if p, err = client.List(cmd.Context(), page, pageSize); err != nil {
				return err
			}

			shown := documents.Filter(p.Documents, search, dt)
			out := cmd.OutOrStdout()
			if format != formatTable {
				return writeStructured(out, format, shown)
			}

			if len(shown) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No documents found"))
			} else {
				writeDocsTable(out, shown)
			}
			writeDocsFooter(out, p, len(shown))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&page, "page", 1, "page number")
	f.IntVar(&pageSize, "page-size", 0, "documents per page (default documents.page_size)")
	f.StringVarP(&search, "search", "s", "", "match title or description")
	f.StringVarP(&docType, "type", "t", "", "document type, or all")
	f.BoolVar(&all, "all", false, "fetch every page before filtering")
	f.StringVarP(&format, "output", "o", formatTable, "output format: table, json, yaml")
	return cmd
}

const (
	colID    = 6
	colTitle = 32
	colType  = 12
	colSize  = 10
	colDate  = 10
)

func writeDocsTable(w io.Writer, docs []documents.Document) {
	header := util.PadRight("ID", colID) + "  " +
		util.PadRight("TITLE", colTitle) + "  " +
		util.PadRight("TYPE", colType) + "  " +
		util.PadRight("SIZE", colSize) + "  " +
		util.PadRight("UPLOADED", colDate) + "  STATUS"
	fmt.Fprintln(w, TitleStyle.Render(header))

	for _, d := range docs {
		size := "-"
		if d.FileSize > 0 {
			size = documents.FormatFileSize(d.FileSize)
		}
		fmt.Fprintln(w,
			util.PadRight(strconv.FormatInt(d.ID, 10), colID)+"  "+
				util.PadRight(util.TruncateWidth(d.Title, colTitle), colTitle)+"  "+
				util.PadRight(util.TruncateWidth(d.DocType.Label(), colType), colType)+"  "+
				util.PadRight(size, colSize)+"  "+
				util.PadRight(d.UploadDate.Date(), colDate)+"  "+
				statusStyle(string(d.Status.OrDefault())))
	}
}

func writeDocsFooter(w io.Writer, p *documents.Page, shown int) {
	from, to := p.Range()
	line := fmt.Sprintf("Showing %d to %d of %d %s", from, to, p.Total, util.Plural(p.Total, "document"))
	if shown != len(p.Documents) {
		line += fmt.Sprintf(" (%d matching)", shown)
	}
	if p.Pages > 1 {
		line += fmt.Sprintf(", page %d of %d", p.Page, p.Pages)
	}
	fmt.Fprintln(w, DimStyle.Render(line))
}

func newDocsUploadCmd(a *app) *cobra.Command {
	var req documents.UploadRequest
	var docType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a PDF or CSV document",
		Example: `  lexai docs upload lease.pdf --title "Office lease" \
    --description "2024 renewal" --type contract`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Path = args[0]
			req.DocType = documents.DocType(strings.ToLower(docType))
			if _, err := os.Stat(req.Path); err != nil {
				return NewValidationErrorWithExample("file", req.Path, "file not found", "lexai docs upload ./brief.pdf ...")
			}

			client, err := a.documentsClient()
			if err != nil {
				return err
			}
			if err := client.Upload(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Uploaded %q\n", SuccessStyle.Render("[OK]"), req.Title)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Title, "title", "", "document title (required)")
	f.StringVar(&req.Description, "description", "", "document description (required)")
	f.StringVarP(&docType, "type", "t", "", "document type (required): "+docTypeList())
	return cmd
}

func docTypeList() string {
	names := make([]string, len(documents.DocTypes))
	for i, t := range documents.DocTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func newDocsDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 1 {
				return NewValidationErrorWithExample("id", args[0], "must be a positive number", "lexai docs delete 12")
			}

			if !yes {
				if !isTerminalReader(cmd.InOrStdin()) {
					return NewValidationErrorWithExample("yes", "", "confirmation required when not on a terminal",
						"lexai docs delete "+args[0]+" --yes")
				}
				ok, err := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()).
					Confirm(fmt.Sprintf("Are you sure you want to delete document %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Cancelled"))
					return nil
				}
			}

			client, err := a.documentsClient()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted document %d\n", SuccessStyle.Render("[OK]"), id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newDocsStatsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count documents by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
				return err
			}
			client, err := a.documentsClient()
			if err != nil {
				return err
			}
			docs, err := client.ListAll(cmd.Context(), a.cfg.Documents.PageSize)
			if err != nil {
				return err
			}

			s := documents.Summarize(docs)
			out := cmd.OutOrStdout()
			if format != formatTable {
				return writeStructured(out, format, s)
			}
			fmt.Fprintf(out, "%s %d\n", LabelStyle.Render("Total:"), s.Total)
			fmt.Fprintf(out, "%s %d\n", LabelStyle.Render(string(documents.StatusProcessed)+":"), s.Processed)
			fmt.Fprintf(out, "%s %d\n", LabelStyle.Render(string(documents.StatusProcessing)+":"), s.Processing)
			fmt.Fprintf(out, "%s %d\n", LabelStyle.Render(string(documents.StatusFailed)+":"), s.Failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json, yaml")
	return cmd
}
