package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// ParseEvent decodes one stream-events line into its concrete Event type.
// Kinds outside Kinds come back as *Unknown with a nil error; rejecting
// them is the dispatcher's call.
func ParseEvent(data []byte) (Event, error) {
	// First, extract just the type
	var peek struct {
		Type   string `json:"type"`
		Change Change `json:"change"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if peek.Type == "" {
		return nil, fmt.Errorf("%w: missing type field", ErrMalformedEvent)
	}

	var ev Event
	switch Kind(peek.Type) {
	case KindPatchSetCreated:
		ev = &PatchSetCreated{}
	case KindCommentAdded:
		ev = &CommentAdded{}
	case KindChangeMerged:
		ev = &ChangeMerged{}
	case KindChangeAbandoned:
		ev = &ChangeAbandoned{}
	case KindChangeRestored:
		ev = &ChangeRestored{}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &Unknown{Type: peek.Type, Change: peek.Change, Raw: raw}, nil
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, peek.Type, err)
	}
	if ev.ChangeInfo().URL == "" {
		return nil, fmt.Errorf("%w: %s without change url", ErrMalformedEvent, peek.Type)
	}
	return ev, nil
}

// ChangeRow is one result of `gerrit query --format=JSON --current-patch-set`.
type ChangeRow struct {
	Change
	Number          FlexString `json:"number,omitempty"`
	CreatedOn       Epoch      `json:"createdOn,omitempty"`
	LastUpdated     Epoch      `json:"lastUpdated,omitempty"`
	CurrentPatchSet *PatchSet  `json:"currentPatchSet,omitempty"`
}

// Created returns the best creation time the row carries: the current
// patch set's, falling back to the change's own.
func (r *ChangeRow) Created() Epoch {
	if r.CurrentPatchSet != nil && !r.CurrentPatchSet.CreatedOn.IsZero() {
		return r.CurrentPatchSet.CreatedOn
	}
	return r.CreatedOn
}

// ToPatchSetCreated shapes a query row like a live creation event so the
// board handles both sources the same way.
func (r *ChangeRow) ToPatchSetCreated() *PatchSetCreated {
	ev := &PatchSetCreated{Change: r.Change}
	if r.CurrentPatchSet != nil {
		ev.PatchSet = *r.CurrentPatchSet
	}
	ev.PatchSet.CreatedOn = r.Created()
	if ev.PatchSet.LastUpdated.IsZero() {
		ev.PatchSet.LastUpdated = r.LastUpdated
	}
	ev.Uploader = ev.PatchSet.Uploader
	if ev.Uploader == (Account{}) {
		ev.Uploader = r.Owner
	}
	return ev
}

// ParseQueryRows decodes newline-delimited query output, skipping the
// trailing stats record.
func ParseQueryRows(data []byte) ([]ChangeRow, error) {
	var rows []ChangeRow
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var peek struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &peek); err != nil {
			return nil, fmt.Errorf("%w: query row: %v", ErrMalformedEvent, err)
		}
		if peek.Type == "stats" || peek.Type == "error" {
			continue
		}
		var row ChangeRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("%w: query row: %v", ErrMalformedEvent, err)
		}
		if row.URL == "" {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// MaxLineSize bounds a single stream or query line.
const MaxLineSize = 4 * 1024 * 1024

// SynthesizeCreated turns query rows into creation events ordered oldest
// first, keeping only the newest limit of them. A row without a timestamp
// sorts before any row that has one.
func SynthesizeCreated(rows []ChangeRow, limit int) []*PatchSetCreated {
	events := make([]*PatchSetCreated, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].ToPatchSetCreated())
	}
	slices.SortStableFunc(events, func(a, b *PatchSetCreated) int {
		return compareEpoch(a.PatchSet.CreatedOn, b.PatchSet.CreatedOn)
	})
	if limit >= 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

func compareEpoch(a, b Epoch) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return -1
	case b.IsZero():
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// StatusFromApprovals maps label votes to a status label. Later approvals
// override earlier ones; "" means the votes say nothing worth showing.
func StatusFromApprovals(approvals []Approval) string {
	status := ""
	for _, a := range approvals {
		switch a.Type {
		case "VRIF", "Verified":
			switch a.Value {
			case "-2", "-1":
				status = StatusFailed
			case "2", "1", "+1", "+2":
				status = StatusSucceeded
			}
		case "CRVW", "Code-Review":
			switch a.Value {
			case "-2":
				status = StatusRejected
			case "2", "+2":
				status = StatusApproved
			}
		}
	}
	return status
}
