// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errtrack

import (
	"fmt"
	"io"
)

// Render writes a human-readable dashboard of the tracker state.
func (tr *Tracker) Render(w io.Writer) error {
	st := tr.stats
	_, err := fmt.Fprintf(w, `=== error tracker ===
tracking:    %v
correlation: %v
recovery:    %v

total errors:      %d
recovered:         %d
recovery failures: %d
patterns detected: %d
`,
		tr.tracking, tr.correlation, tr.recovery,
		st.TotalErrors, st.ErrorsRecovered, st.RecoveryFailures,
		st.PatternsDetected,
	)
	if err != nil {
		return fmt.Errorf("errtrack: could not render statistics: %w", err)
	}

	if len(tr.pats) > 0 {
		fmt.Fprintf(w, "\npatterns:\n")
		for i, p := range tr.pats {
			fmt.Fprintf(w, " #%02d %v nic=%d freq=%d score=%d attempted=%v succeeded=%v\n",
				i, p.Type, p.NIC, p.Freq, p.Score, p.Attempted, p.Succeeded,
			)
		}
	}

	if n := len(tr.hist); n > 0 {
		fmt.Fprintf(w, "\nlast faults:\n")
		beg := 0
		if n > 10 {
			beg = n - 10
		}
		for _, e := range tr.hist[beg:] {
			fmt.Fprintf(w, " %s %v nic=%d code=0x%08x sev=%v recovered=%v %q\n",
				e.Time.Format("2006-01-02 15:04:05.000"),
				e.Type, e.NIC, uint32(e.Code), e.Severity, e.Recovered,
				e.Desc,
			)
		}
	}
	return nil
}

// Export writes the full tracker state in a line-oriented machine format:
// "[section]" headers followed by key=value pairs, and one CSV row per
// history entry with unix-millisecond timestamps.
func (tr *Tracker) Export(w io.Writer) error {
	st := tr.stats
	_, err := fmt.Fprintf(w, `[stats]
total=%d
recovered=%d
failures=%d
patterns=%d
`,
		st.TotalErrors, st.ErrorsRecovered, st.RecoveryFailures,
		st.PatternsDetected,
	)
	if err != nil {
		return fmt.Errorf("errtrack: could not export statistics: %w", err)
	}

	fmt.Fprintf(w, "[patterns]\n")
	for _, p := range tr.pats {
		fmt.Fprintf(w, "%d,%d,%d,%d,%d,%d,%v,%v\n",
			p.Type, p.NIC, p.Freq,
			p.First.UnixMilli(), p.Last.UnixMilli(),
			p.Score, p.Attempted, p.Succeeded,
		)
	}

	fmt.Fprintf(w, "[history]\n")
	for _, e := range tr.hist {
		_, err = fmt.Fprintf(w, "%d,%d,%d,0x%08x,%d,%d,%v,%q,%q\n",
			e.Time.UnixMilli(), e.Type, e.NIC, uint32(e.Code),
			e.Severity, e.Attempts, e.Recovered, e.Desc, e.Context,
		)
		if err != nil {
			return fmt.Errorf("errtrack: could not export history: %w", err)
		}
	}
	return nil
}
