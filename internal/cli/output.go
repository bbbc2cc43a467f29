package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/edvin/proxyctl/internal/core"
)

// errOperationFailed makes the process exit non-zero after a failed
// orchestration result has been printed.
var errOperationFailed = errors.New("operation failed")

// print writes v in the selected format. text renders the human form.
func (a *app) print(v any, text func(w io.Writer)) error {
	w := a.opts.Out
	switch a.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so YAML keys follow the json tags.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		text(w)
		return nil
	}
}

// printResult prints an orchestration outcome and its transcript.
func (a *app) printResult(res *core.OperationResult) error {
	err := a.print(res, func(w io.Writer) {
		for _, line := range res.Logs {
			fmt.Fprintln(w, line)
		}
		if res.Success {
			fmt.Fprintln(w, res.Message)
		} else {
			fmt.Fprintf(w, "FAILED (%s): %s\n", res.Kind, res.Error)
		}
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", errOperationFailed, res.Error)
	}
	return nil
}

// table writes rows as tab-aligned columns.
func table(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}
