package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

func dialEvents(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/v1/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, f *fixture, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.server.hub.count() == n },
		2*time.Second, 10*time.Millisecond, "want %d stream clients", n)
}

func TestEvents_LiveLifecycle(t *testing.T) {
	f := newFixture(t)
	conn := dialEvents(t, f, "")
	waitForClients(t, f, 1)

	high, _ := f.seedAlerts(t)

	first := readMessage(t, conn)
	second := readMessage(t, conn)
	for _, msg := range []Message{first, second} {
		assert.Equal(t, MessageTypeAlertEvent, msg.Type)
		require.NotNil(t, msg.Data)
		assert.Equal(t, string(alerts.EventCreated), msg.Data.Event.Kind)
		require.NotNil(t, msg.Data.Alert)
	}
	assert.Equal(t, high.ID, first.Data.Alert.ID)
	assert.Contains(t, first.Data.Event.Formatted, "HIGH Duplicate Responses")

	_, err := f.manager.MarkInvestigating(context.Background(), high.ID, "")
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, string(alerts.EventInvestigating), msg.Data.Event.Kind)
	assert.Equal(t, alerts.StatusInvestigating, msg.Data.Alert.Status)
}

func TestEvents_Replay(t *testing.T) {
	f := newFixture(t)
	high, low := f.seedAlerts(t)
	_, err := f.manager.Escalate(context.Background(), high.ID, alerts.EscalationHighSeverity, "")
	require.NoError(t, err)

	conn := dialEvents(t, f, "?replay=2")

	// The two newest events, oldest first, without alert snapshots.
	msg := readMessage(t, conn)
	assert.Equal(t, low.ID, msg.Data.Event.AlertID)
	assert.Equal(t, string(alerts.EventCreated), msg.Data.Event.Kind)
	assert.Nil(t, msg.Data.Alert)

	msg = readMessage(t, conn)
	assert.Equal(t, high.ID, msg.Data.Event.AlertID)
	assert.Equal(t, string(alerts.EventEscalated), msg.Data.Event.Kind)
}

func TestEvents_Ping(t *testing.T) {
	f := newFixture(t)
	conn := dialEvents(t, f, "")
	waitForClients(t, f, 1)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
	assert.Nil(t, msg.Data)
}

func TestEvents_InvalidReplay(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/events?replay=-3", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/v1/events"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEvents_DisconnectAndStop(t *testing.T) {
	f := newFixture(t)
	conn := dialEvents(t, f, "")
	other := dialEvents(t, f, "")
	waitForClients(t, f, 2)

	require.NoError(t, conn.Close())
	waitForClients(t, f, 1)

	f.server.hub.close()
	waitForClients(t, f, 0)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := other.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// A closed hub refuses new clients.
	late := dialEvents(t, f, "")
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, f.server.hub.count())
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := newHub(10)
	c := &client{id: 1, hub: h, send: make(chan Message, 1)}
	require.True(t, h.register(c, 0))

	a := alerts.NewCandidate(alerts.TypeDeviceAnomaly, alerts.SeverityMedium, "fp", []string{"r1"}, "m", nil)
	h.publish(alerts.Event{Kind: alerts.EventCreated, At: testNow, Alert: a})
	h.publish(alerts.Event{Kind: alerts.EventCreated, At: testNow, Alert: a})

	assert.Equal(t, 0, h.count())
	<-c.send
	_, open := <-c.send
	assert.False(t, open, "dropped client's queue should be closed")
	assert.Equal(t, 2, h.history.Len())
}
