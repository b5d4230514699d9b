package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/oba-ldap/corekv/internal/txn"
)

// WriteTo renders the benchmark summary as a text table, in the style of
// the teacher's benchmarks.Report.GenerateTextReport.
func (r *report) WriteTo(w io.Writer) {
	fmt.Fprintf(w, "=== corekv transaction benchmark ===\n\n")
	fmt.Fprintf(w, "Protocol: %s\n", r.protocol)
	fmt.Fprintf(w, "Workers: %d\n", r.workers)
	fmt.Fprintf(w, "Duration: %s\n", r.duration)
	fmt.Fprintln(w)

	total := r.commits
	for _, n := range r.abortsByReason {
		total += n
	}

	fmt.Fprintf(w, "%-40s %12d\n", "Committed", r.commits)
	if total > 0 {
		fmt.Fprintf(w, "%-40s %11.1f%%\n", "Commit rate", 100*float64(r.commits)/float64(total))
	}
	if r.duration > 0 {
		fmt.Fprintf(w, "%-40s %12.0f\n", "Commits/sec", float64(r.commits)/r.duration.Seconds())
	}
	fmt.Fprintln(w)

	if len(r.abortsByReason) == 0 {
		fmt.Fprintln(w, "No aborts.")
		return
	}

	fmt.Fprintln(w, "--- Aborts by reason ---")
	fmt.Fprintf(w, "%-40s %12s\n", "Reason", "Count")
	fmt.Fprintln(w, strings.Repeat("-", 53))

	reasons := make([]txn.AbortReason, 0, len(r.abortsByReason))
	for reason := range r.abortsByReason {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	for _, reason := range reasons {
		fmt.Fprintf(w, "%-40s %12d\n", reason.String(), r.abortsByReason[reason])
	}
}
