// Package diff summarizes the difference between two workflow snapshots for
// version change descriptions.
package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

// Summary describes an original -> modified workflow change at node level,
// with line counts from a structural diff of the two snapshots.
type Summary struct {
	AddedNodes   []string `json:"added_nodes,omitempty"`
	RemovedNodes []string `json:"removed_nodes,omitempty"`
	ChangedLines int      `json:"changed_lines"`
}

// Workflows computes the summary. A nil original means the whole modified
// snapshot counts as new.
func Workflows(original, modified *domain.Workflow) Summary {
	var summary Summary

	before := map[string]bool{}
	if original != nil {
		for _, node := range original.Nodes {
			before[node.Name] = true
		}
	}
	after := map[string]bool{}
	if modified != nil {
		for _, node := range modified.Nodes {
			after[node.Name] = true
			if !before[node.Name] {
				summary.AddedNodes = append(summary.AddedNodes, node.Name)
			}
		}
	}
	for name := range before {
		if !after[name] {
			summary.RemovedNodes = append(summary.RemovedNodes, name)
		}
	}

	summary.ChangedLines = changedLines(render(original), render(modified))
	return summary
}

// String renders the summary as a one-line human-readable description.
func (s Summary) String() string {
	var parts []string
	if len(s.AddedNodes) > 0 {
		parts = append(parts, fmt.Sprintf("added %s", strings.Join(s.AddedNodes, ", ")))
	}
	if len(s.RemovedNodes) > 0 {
		parts = append(parts, fmt.Sprintf("removed %s", strings.Join(s.RemovedNodes, ", ")))
	}
	if len(parts) == 0 {
		if s.ChangedLines == 0 {
			return "no changes"
		}
		return fmt.Sprintf("modified %d lines", s.ChangedLines)
	}
	return strings.Join(parts, "; ")
}

func render(wf *domain.Workflow) string {
	if wf == nil {
		return ""
	}
	encoded, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return ""
	}
	return string(encoded)
}

func changedLines(before, after string) int {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var changed int
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		changed += strings.Count(strings.TrimSuffix(d.Text, "\n"), "\n") + 1
	}
	return changed
}
