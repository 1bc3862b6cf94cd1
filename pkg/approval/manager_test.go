package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/specforge/specforge/pkg/channels"
	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHub records sent events and answers IsConnected from a fixed set.
type fakeHub struct {
	mu        sync.Mutex
	connected map[string]bool // userID+"/"+clientType
	sent      []sentEvent
}

type sentEvent struct {
	UserID     string
	ClientType string
	Event      string
	Data       any
}

func newFakeHub(connections ...string) *fakeHub {
	connected := make(map[string]bool, len(connections))
	for _, c := range connections {
		connected[c] = true
	}
	return &fakeHub{connected: connected}
}

func (h *fakeHub) IsConnected(userID, clientType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected[userID+"/"+clientType]
}

func (h *fakeHub) SendToUser(userID, clientType, event string, data any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{UserID: userID, ClientType: clientType, Event: event, Data: data})
	return nil
}

func (h *fakeHub) eventsNamed(event string) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentEvent
	for _, e := range h.sent {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// resolution captures the resolver invocation.
type resolution struct {
	req  *models.ApprovalRequest
	resp *models.ApprovalResponse
}

func newTestRequest() *models.ApprovalRequest {
	return &models.ApprovalRequest{
		ProposalID: "prop-1",
		UserID:     "u1",
		SpecID:     "spec-1",
		Confidence: 0.7,
		Priority:   models.PriorityNormal,
	}
}

func managerWithResolver(hub Sender, timeout time.Duration) (*Manager, chan resolution) {
	m := NewManager(hub, nil, timeout, nil)
	resolved := make(chan resolution, 4)
	m.SetResolver(func(_ context.Context, req *models.ApprovalRequest, resp *models.ApprovalResponse) {
		resolved <- resolution{req: req, resp: resp}
	})
	return m, resolved
}

func TestIssueSelectsEditorChannelFirst(t *testing.T) {
	hub := newFakeHub("u1/"+channels.ClientTypeEditor, "u1/"+channels.ClientTypeWeb)
	m, _ := managerWithResolver(hub, time.Minute)

	issued, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)

	assert.Equal(t, models.ChannelLiveEditor, issued.PreferredChannel)
	assert.NotEmpty(t, issued.RequestID)
	assert.False(t, issued.ExpiresAt.IsZero())

	requests := hub.eventsNamed(EventApprovalRequest)
	require.NotEmpty(t, requests)
	assert.Equal(t, channels.ClientTypeEditor, requests[0].ClientType)

	// The web session gets the softer notification.
	notifications := hub.eventsNamed(EventNotification)
	require.NotEmpty(t, notifications)
	assert.Equal(t, channels.ClientTypeWeb, notifications[0].ClientType)
}

func TestIssueFallsBackToWebThenAuto(t *testing.T) {
	webOnly := newFakeHub("u1/" + channels.ClientTypeWeb)
	m, _ := managerWithResolver(webOnly, time.Minute)
	issued, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ChannelLiveWeb, issued.PreferredChannel)

	offline := newFakeHub()
	m2, _ := managerWithResolver(offline, time.Minute)
	issued2, err := m2.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ChannelAuto, issued2.PreferredChannel)
	assert.Empty(t, offline.eventsNamed(EventApprovalRequest))
}

func TestDuplicateIssueReturnsExistingRequest(t *testing.T) {
	m, _ := managerWithResolver(newFakeHub(), time.Minute)

	first, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)
	second, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)

	assert.Equal(t, first.RequestID, second.RequestID)
	assert.Equal(t, 1, m.PendingCount())
}

func TestRespondApprovedReachesResolver(t *testing.T) {
	m, resolved := managerWithResolver(newFakeHub(), time.Minute)
	issued, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)

	require.NoError(t, m.Respond(context.Background(), &models.ApprovalResponse{
		RequestID: issued.RequestID,
		Decision:  models.DecisionApproved,
	}))

	select {
	case r := <-resolved:
		assert.Equal(t, models.DecisionApproved, r.resp.Decision)
		assert.Equal(t, "prop-1", r.resp.ProposalID)
		assert.Equal(t, models.ApprovalStatusResponded, r.req.Status)
	case <-time.After(time.Second):
		t.Fatal("resolver never invoked")
	}
	assert.Equal(t, 0, m.PendingCount())
}

func TestRespondModifiedCarriesContent(t *testing.T) {
	m, resolved := managerWithResolver(newFakeHub(), time.Minute)
	issued, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)

	modified := &models.ProposedChange{
		Node: &models.Node{ID: "n1", Kind: models.NodeKindModule, Name: "Edited"},
	}
	require.NoError(t, m.Respond(context.Background(), &models.ApprovalResponse{
		RequestID:       issued.RequestID,
		Decision:        models.DecisionModified,
		ModifiedContent: modified,
	}))

	r := <-resolved
	require.NotNil(t, r.resp.ModifiedContent)
	assert.Equal(t, "Edited", r.resp.ModifiedContent.Node.Name)
}

func TestRespondUnknownRequestIsApprovalError(t *testing.T) {
	m, _ := managerWithResolver(newFakeHub(), time.Minute)
	err := m.Respond(context.Background(), &models.ApprovalResponse{
		RequestID: "ghost",
		Decision:  models.DecisionApproved,
	})
	assert.True(t, IsApprovalError(err))
}

func TestRespondInvalidDecisionRejected(t *testing.T) {
	m, _ := managerWithResolver(newFakeHub(), time.Minute)
	err := m.Respond(context.Background(), &models.ApprovalResponse{
		RequestID: "r1",
		Decision:  "maybe",
	})
	assert.True(t, IsApprovalError(err))
}

func TestTimeoutSynthesizesRejection(t *testing.T) {
	m, resolved := managerWithResolver(newFakeHub(), 30*time.Millisecond)
	issued, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)

	select {
	case r := <-resolved:
		assert.Equal(t, models.DecisionRejected, r.resp.Decision)
		assert.Equal(t, TimeoutReason, r.resp.Reason)
		assert.Equal(t, models.ApprovalStatusExpired, r.req.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	// The expired request is gone; a late response is an ApprovalError.
	err = m.Respond(context.Background(), &models.ApprovalResponse{
		RequestID: issued.RequestID,
		Decision:  models.DecisionApproved,
	})
	assert.True(t, IsApprovalError(err))
	assert.Equal(t, 0, m.PendingCount())
}

func TestRespondCancelsTimeout(t *testing.T) {
	m, resolved := managerWithResolver(newFakeHub(), 50*time.Millisecond)
	issued, err := m.Issue(context.Background(), newTestRequest())
	require.NoError(t, err)

	require.NoError(t, m.Respond(context.Background(), &models.ApprovalResponse{
		RequestID: issued.RequestID,
		Decision:  models.DecisionRejected,
		Reason:    "not wanted",
	}))
	<-resolved

	// The deadline must not fire a second resolution.
	select {
	case r := <-resolved:
		t.Fatalf("unexpected second resolution: %+v", r.resp)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNotifyResultFansOutToAllSessions(t *testing.T) {
	hub := newFakeHub()
	m, _ := managerWithResolver(hub, time.Minute)

	m.NotifyResult("u1", &models.MutationResult{
		MutationID: "prop-1",
		Status:     models.MutationResultSuccess,
	})

	results := hub.eventsNamed(EventMutationResult)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].UserID)
	assert.Empty(t, results[0].ClientType)
}
