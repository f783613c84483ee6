package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/rtmon/pkg/client"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func printTasks(w io.Writer, tasks []client.TaskInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PID\tC(ms)\tT(ms)\tSTATE\tPERIOD\tOVERRUNS\tNEXT")
	for _, ti := range tasks {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%d\t%s\n",
			ti.PID, ti.C, ti.T, ti.State, ti.Period, ti.Overruns, formatDeadline(ti.NextDeadline))
	}
	_ = tw.Flush()
}

func formatDeadline(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05.000")
}

// readPIDFile returns the pid on the first line of a pidfile.
func readPIDFile(path string) (int32, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.ParseInt(strings.TrimSpace(first), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return int32(pid), nil
}
