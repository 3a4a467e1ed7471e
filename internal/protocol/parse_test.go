package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patchsetCreatedJSON = `{"type":"patchset-created",
 "change":{"project":"openstack/nova","branch":"master","topic":"bug/123","id":"I1","number":"4242",
  "subject":"Fix the thing","owner":{"name":"Jane","username":"jane"},"url":"https://review.openstack.org/4242"},
 "patchSet":{"number":"2","revision":"abc","uploader":{"name":"Joe","username":"joe"},"createdOn":1380000000},
 "uploader":{"name":"Joe","username":"joe"}}`

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantErr  error
	}{
		{name: "patchset created", input: patchsetCreatedJSON, wantKind: KindPatchSetCreated},
		{
			name:     "comment added",
			input:    `{"type":"comment-added","change":{"project":"p","url":"u1"},"comment":"Looks good","approvals":[{"type":"CRVW","value":"2"}]}`,
			wantKind: KindCommentAdded,
		},
		{
			name:     "change merged",
			input:    `{"type":"change-merged","change":{"project":"p","url":"u1"}}`,
			wantKind: KindChangeMerged,
		},
		{
			name:     "change abandoned",
			input:    `{"type":"change-abandoned","change":{"project":"p","url":"u1"},"reason":"dup"}`,
			wantKind: KindChangeAbandoned,
		},
		{
			name:     "change restored",
			input:    `{"type":"change-restored","change":{"project":"p","url":"u1"},"reason":"oops"}`,
			wantKind: KindChangeRestored,
		},
		{
			name:     "unknown kind passes through",
			input:    `{"type":"bogus-event","change":{"project":"p","url":"u1"}}`,
			wantKind: Kind("bogus-event"),
		},
		{name: "invalid json", input: `not json`, wantErr: ErrMalformedEvent},
		{name: "missing type", input: `{"change":{"url":"u1"}}`, wantErr: ErrMalformedEvent},
		{name: "missing url", input: `{"type":"change-merged","change":{"project":"p"}}`, wantErr: ErrMalformedEvent},
		{name: "wrong field shape", input: `{"type":"comment-added","change":{"url":"u1"},"comment":42}`, wantErr: ErrMalformedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ev.Kind())
		})
	}
}

func TestParseEvent_PatchSetCreatedFields(t *testing.T) {
	ev, err := ParseEvent([]byte(patchsetCreatedJSON))
	require.NoError(t, err)

	created, ok := ev.(*PatchSetCreated)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "https://review.openstack.org/4242", created.Change.URL)
	assert.Equal(t, "openstack/nova", created.Change.Project)
	assert.Equal(t, "bug/123", created.Change.Topic)
	assert.Equal(t, "joe", created.Uploader.Username)
	assert.Equal(t, Epoch(1380000000), created.PatchSet.CreatedOn)
	assert.Equal(t, FlexString("2"), created.PatchSet.Number)
}

func TestParseEvent_UnknownKeepsRaw(t *testing.T) {
	input := `{"type":"ref-updated","refUpdate":{"project":"p"}}`
	ev, err := ParseEvent([]byte(input))
	require.NoError(t, err)

	unknown, ok := ev.(*Unknown)
	require.True(t, ok)
	assert.False(t, IsKnown(unknown.Kind()))
	assert.JSONEq(t, input, string(unknown.Raw))
}

func TestParseQueryRows(t *testing.T) {
	output := `{"project":"openstack/nova","topic":"t","subject":"Old","url":"u-old","owner":{"username":"owner1"},"createdOn":100,"currentPatchSet":{"number":"3","uploader":{"username":"up1"},"createdOn":300}}
{"project":"openstack/nova","subject":"No patch set","url":"u-none","owner":{"username":"owner2"},"createdOn":200}

{"type":"stats","rowCount":2,"runTimeMilliseconds":5}
`
	rows, err := ParseQueryRows([]byte(output))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0].ToPatchSetCreated()
	assert.Equal(t, "u-old", first.Change.URL)
	assert.Equal(t, "up1", first.Uploader.Username)
	assert.Equal(t, Epoch(300), first.PatchSet.CreatedOn)

	second := rows[1].ToPatchSetCreated()
	assert.Equal(t, "owner2", second.Uploader.Username, "falls back to the owner")
	assert.Equal(t, Epoch(200), second.PatchSet.CreatedOn)
}

func TestParseQueryRows_Malformed(t *testing.T) {
	_, err := ParseQueryRows([]byte("{\"url\":\"a\"}\n{broken\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestSynthesizeCreated_OrdersOldestFirstAndKeepsNewest(t *testing.T) {
	rows := []ChangeRow{
		{Change: Change{URL: "c"}, CreatedOn: 30},
		{Change: Change{URL: "none"}},
		{Change: Change{URL: "a"}, CreatedOn: 10},
		{Change: Change{URL: "b"}, CreatedOn: 20},
	}

	all := SynthesizeCreated(rows, 10)
	urls := make([]string, len(all))
	for i, ev := range all {
		urls[i] = ev.Change.URL
	}
	assert.Equal(t, []string{"none", "a", "b", "c"}, urls)

	newest := SynthesizeCreated(rows, 2)
	require.Len(t, newest, 2)
	assert.Equal(t, "b", newest[0].Change.URL)
	assert.Equal(t, "c", newest[1].Change.URL)

	assert.Empty(t, SynthesizeCreated(rows, 0))
}

func TestStatusFromApprovals(t *testing.T) {
	tests := []struct {
		name      string
		approvals []Approval
		want      string
	}{
		{name: "none", want: ""},
		{name: "verify failed", approvals: []Approval{{Type: "VRIF", Value: "-2"}}, want: StatusFailed},
		{name: "verify ok", approvals: []Approval{{Type: "Verified", Value: "1"}}, want: StatusSucceeded},
		{name: "rejected", approvals: []Approval{{Type: "CRVW", Value: "-2"}}, want: StatusRejected},
		{name: "approved", approvals: []Approval{{Type: "Code-Review", Value: "2"}}, want: StatusApproved},
		{name: "minor review vote ignored", approvals: []Approval{{Type: "CRVW", Value: "1"}}, want: ""},
		{
			name:      "later wins",
			approvals: []Approval{{Type: "VRIF", Value: "2"}, {Type: "CRVW", Value: "-2"}},
			want:      StatusRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromApprovals(tt.approvals))
		})
	}
}
