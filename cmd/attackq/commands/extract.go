package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vulntor/attackq/cmd/attackq/internal/format"
	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
)

// maxLineSize bounds a single line of tool output read by extract.
const maxLineSize = 1 << 20

func newExtractCommand() *cobra.Command {
	var host, service string

	cmd := &cobra.Command{
		Use:     "extract [file]",
		Short:   "Extract credentials from saved tool output",
		GroupID: "jobs",
		Args:    cobra.MaximumNArgs(1),
		Long: `Read hydra-style output from a file (or stdin when no file or "-" is
given) and print every distinct credential it contains.

Lines without a host or service, such as the short "login: x password: y"
form, take them from --host and --service.`,
		Example: `  attackq extract hydra.log
  hydra -L users.txt -p Winter2025 ssh://192.0.2.5 | attackq extract --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "extract credentials"

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fail(cmd, op, &job.ValidationError{Field: "file", Reason: err.Error()})
				}
				defer file.Close()
				in = file
			}

			recs, err := extractCredentials(in, func(r *extract.Record) {
				if r.Host == "" {
					r.Host = host
				}
				if r.Service == "" {
					r.Service = service
				}
			})
			if err != nil {
				return fail(cmd, op, err)
			}

			f := format.FromCommand(cmd)
			if f.Mode() == format.ModeJSON {
				if recs == nil {
					recs = []extract.Record{}
				}
				return f.PrintJSON(recs)
			}
			if len(recs) == 0 {
				return f.PrintSummary("No credentials found")
			}
			if err := f.PrintTable(format.CredentialHeaders[:5], credentialRowsNoJob(recs)); err != nil {
				return err
			}
			return f.PrintSummary(fmt.Sprintf("%d %s", len(recs), plural(len(recs), "credential", "credentials")))
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host for lines that do not carry one")
	cmd.Flags().StringVar(&service, "service", "", "Service for lines that do not carry one")
	return cmd
}

// extractCredentials streams r line by line and keeps the first occurrence
// of every credential.
func extractCredentials(r io.Reader, fill func(*extract.Record)) ([]extract.Record, error) {
	d := extract.NewDeduper()
	var out []extract.Record

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		rec := extract.Extract(sc.Text())
		if rec == nil {
			continue
		}
		fill(rec)
		if d.Add(*rec) {
			out = append(out, *rec)
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read input: %w", err)
	}
	return out, nil
}

func credentialRowsNoJob(recs []extract.Record) [][]string {
	rows := format.CredentialRows(recs)
	for i := range rows {
		rows[i] = rows[i][:5]
	}
	return rows
}
