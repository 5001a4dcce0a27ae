package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// Summary holds aggregate counts for a run report.
type Summary struct {
	Total        int `json:"total"`
	Created      int `json:"created"`
	Repaired     int `json:"repaired"`
	AlreadyReady int `json:"already_ready"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
}

// Summarize computes aggregate counts over the report's results.
func (r *RunReport) Summarize() Summary {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case PhaseStatusCreated:
			s.Created++
		case PhaseStatusRepaired:
			s.Repaired++
		case PhaseStatusAlreadyReady:
			s.AlreadyReady++
		case PhaseStatusFailed:
			s.Failed++
		case PhaseStatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// SortedResults returns the phase results ordered by stage, then by
// component id, for stable machine and human output.
func (r *RunReport) SortedResults() []*PhaseResult {
	order := make(map[string]int, len(r.Results))
	for _, stage := range r.Stages {
		for _, id := range stage.Components {
			order[id] = stage.Index
		}
	}

	out := make([]*PhaseResult, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if order[out[i].ComponentID] != order[out[j].ComponentID] {
			return order[out[i].ComponentID] < order[out[j].ComponentID]
		}
		return out[i].ComponentID < out[j].ComponentID
	})
	return out
}

// WriteJSON renders the report as indented JSON.
func (r *RunReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable renders a human-readable summary table.
func (r *RunReport) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tSTATUS\tATTEMPTS\tDURATION\tERROR")
	for _, res := range r.SortedResults() {
		errMsg := ""
		if res.Error != nil {
			errMsg = res.Error.Code
			if errMsg == "" {
				errMsg = res.Error.Message
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dms\t%s\n",
			res.ComponentID, res.Status, res.Attempts, res.DurationMs, errMsg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nrun %s: %s in %dms\n", r.RunID, r.Status, r.DurationMs)
	return err
}
