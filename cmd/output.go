package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/flow"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func printTableHeader(w *tabwriter.Writer, cols ...string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

// printError renders a flow or API failure as a short message on stderr.
func printError(err error) {
	var malformed *apiclient.MalformedResponseError
	if errors.As(err, &malformed) {
		fmt.Fprintf(os.Stderr, "Error: the service sent an unexpected response (%s)\n", malformed.Operation)
		return
	}
	if status, ok := apiclient.AsStatusError(err); ok {
		fmt.Fprintf(os.Stderr, "Error: %s failed with status %d: %s\n", status.Operation, status.StatusCode, strings.TrimSpace(status.Message))
		return
	}
	if flow.KindOf(err) == flow.BootstrapFailure {
		fmt.Fprintln(os.Stderr, "Error: could not reach the analysis service, try again")
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
