package protocol

import (
	"encoding/json"
	"errors"
)

// Kind is the "type" field of a Gerrit stream event.
type Kind string

// Event kinds the dashboard understands
const (
	KindPatchSetCreated Kind = "patchset-created"
	KindCommentAdded    Kind = "comment-added"
	KindChangeMerged    Kind = "change-merged"
	KindChangeAbandoned Kind = "change-abandoned"
	KindChangeRestored  Kind = "change-restored"
)

// Kinds lists the handled kinds in display order.
var Kinds = []Kind{
	KindPatchSetCreated,
	KindCommentAdded,
	KindChangeMerged,
	KindChangeAbandoned,
	KindChangeRestored,
}

// Status labels shown in the Status column
const (
	StatusMerged    = "Merged"
	StatusAbandoned = "Abandoned"
	StatusRestored  = "Restored"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusSucceeded = "Succeeded"
	StatusFailed    = "Failed"
)

var (
	// ErrUnknownEventKind means the server sent a kind outside Kinds.
	ErrUnknownEventKind = errors.New("unknown event kind")
	// ErrMalformedEvent means the record could not be decoded or lacks its change identity.
	ErrMalformedEvent = errors.New("malformed event")
)

// Account is a Gerrit user reference
type Account struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// Change identifies a review request. URL is the stable identity.
type Change struct {
	Project string  `json:"project"`
	Branch  string  `json:"branch,omitempty"`
	Topic   string  `json:"topic,omitempty"`
	ID      string  `json:"id,omitempty"`
	Subject string  `json:"subject,omitempty"`
	Owner   Account `json:"owner"`
	URL     string  `json:"url"`
	Status  string  `json:"status,omitempty"`
}

// PatchSet is the patchSet attribute of an event
type PatchSet struct {
	Number      FlexString `json:"number,omitempty"`
	Revision    string     `json:"revision,omitempty"`
	Ref         string     `json:"ref,omitempty"`
	Uploader    Account    `json:"uploader"`
	CreatedOn   Epoch      `json:"createdOn,omitempty"`
	LastUpdated Epoch      `json:"lastUpdated,omitempty"`
}

// Approval is one label vote attached to a comment
type Approval struct {
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Value       FlexString `json:"value"`
}

// Event is one decoded record from the stream or synthesized from a
// reconciliation query. Each kind has its own concrete type.
type Event interface {
	Kind() Kind
	ChangeInfo() Change
}

// PatchSetCreated announces a new patch set; it creates board rows.
type PatchSetCreated struct {
	Change   Change   `json:"change"`
	PatchSet PatchSet `json:"patchSet"`
	Uploader Account  `json:"uploader"`
}

func (e *PatchSetCreated) Kind() Kind         { return KindPatchSetCreated }
func (e *PatchSetCreated) ChangeInfo() Change { return e.Change }

// CommentAdded carries review text and label votes
type CommentAdded struct {
	Change    Change     `json:"change"`
	PatchSet  PatchSet   `json:"patchSet"`
	Author    Account    `json:"author"`
	Approvals []Approval `json:"approvals,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

func (e *CommentAdded) Kind() Kind         { return KindCommentAdded }
func (e *CommentAdded) ChangeInfo() Change { return e.Change }

// ChangeMerged is sent once a change lands
type ChangeMerged struct {
	Change    Change   `json:"change"`
	PatchSet  PatchSet `json:"patchSet"`
	Submitter Account  `json:"submitter"`
}

func (e *ChangeMerged) Kind() Kind         { return KindChangeMerged }
func (e *ChangeMerged) ChangeInfo() Change { return e.Change }

// ChangeAbandoned is sent when the owner gives up on a change
type ChangeAbandoned struct {
	Change    Change   `json:"change"`
	PatchSet  PatchSet `json:"patchSet"`
	Abandoner Account  `json:"abandoner"`
	Reason    string   `json:"reason,omitempty"`
}

func (e *ChangeAbandoned) Kind() Kind         { return KindChangeAbandoned }
func (e *ChangeAbandoned) ChangeInfo() Change { return e.Change }

// ChangeRestored reverses an abandon
type ChangeRestored struct {
	Change   Change   `json:"change"`
	PatchSet PatchSet `json:"patchSet"`
	Restorer Account  `json:"restorer"`
	Reason   string   `json:"reason,omitempty"`
}

func (e *ChangeRestored) Kind() Kind         { return KindChangeRestored }
func (e *ChangeRestored) ChangeInfo() Change { return e.Change }

// Unknown holds a well-formed record whose kind is not handled. It is
// passed through so the dispatcher can report it as a protocol violation.
type Unknown struct {
	Type   string
	Change Change
	Raw    json.RawMessage
}

func (e *Unknown) Kind() Kind         { return Kind(e.Type) }
func (e *Unknown) ChangeInfo() Change { return e.Change }

// IsKnown reports whether k is one of Kinds.
func IsKnown(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
