// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/global"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
	"github.com/innovationmech/msgpipe/pkg/repository/file"
)

type flags struct {
	path         string
	kinds        []string
	statuses     []string
	contentTypes []string
	since        time.Duration
	limit        int
	json         bool
}

// NewAuditCmd creates the 'audit' command.
func NewAuditCmd(g *global.Options) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print messages stored by the flat-file repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.path == "" {
				settings, err := g.Settings()
				if err != nil {
					return err
				}
				f.path = settings.Repository.File.Path
			}
			filter, err := f.filter()
			if err != nil {
				return err
			}
			records, err := file.ReadFile(f.path)
			if err != nil {
				return err
			}
			records = filter.Apply(records)
			if f.json {
				return printJSON(cmd.OutOrStdout(), records)
			}
			return printTable(cmd.OutOrStdout(), records)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.path, "path", "", "audit file (default: repository.file.path from the configuration)")
	fs.StringSliceVar(&f.kinds, "kind", nil, "only these kinds (command, event, query)")
	fs.StringSliceVar(&f.statuses, "status", nil, "only these statuses (Completed, Failed, Rejected)")
	fs.StringSliceVar(&f.contentTypes, "content-type", nil, "only these content types, full or short names")
	fs.DurationVar(&f.since, "since", 0, "only messages created within this duration")
	fs.IntVar(&f.limit, "limit", 0, "print at most this many messages")
	fs.BoolVar(&f.json, "json", false, "print one JSON record per line")
	return cmd
}

func (f *flags) filter() (repository.Filter, error) {
	out := repository.Filter{ContentTypes: f.contentTypes, Limit: f.limit}
	for _, k := range f.kinds {
		kind, err := pipeline.ParseKind(k)
		if err != nil {
			return out, err
		}
		out.Kinds = append(out.Kinds, kind)
	}
	for _, s := range f.statuses {
		status, err := pipeline.ParseStatus(s)
		if err != nil {
			return out, err
		}
		out.Statuses = append(out.Statuses, status)
	}
	if f.since > 0 {
		out.From = time.Now().Add(-f.since)
	}
	return out, nil
}

func printJSON(w io.Writer, records []*repository.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func printTable(w io.Writer, records []*repository.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tKIND\tCONTENT TYPE\tSTATUS\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Kind, pipeline.ShortName(r.ContentType),
			r.Status, r.Duration(), r.ErrorMessage)
	}
	return tw.Flush()
}
