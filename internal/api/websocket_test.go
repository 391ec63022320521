package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Corphon/SceneForge/internal/services"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) WriteMessage(int, []byte) error            { return nil }
func (c *fakeConn) ReadMessage() (int, []byte, error)         { return 0, nil, nil }
func (c *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func receive(t *testing.T, client *WebSocketClient) services.Event {
	t.Helper()
	select {
	case msg := <-client.send:
		var event services.Event
		require.NoError(t, json.Unmarshal(msg, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return services.Event{}
}

func TestHubRoutesEventsByProject(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	defer hub.Close()

	a := newWebSocketClient(&fakeConn{}, "p1")
	b := newWebSocketClient(&fakeConn{}, "p2")
	require.True(t, hub.Register(a))
	require.True(t, hub.Register(b))
	assert.Equal(t, 2, hub.ClientCount(""))
	assert.Equal(t, 1, hub.ClientCount("p1"))

	hub.Publish(services.Event{Type: services.EventSceneGenerated, ProjectID: "p1", SceneID: "s1"})
	hub.Publish(services.Event{Type: services.EventUsageLimitReached})

	got := receive(t, a)
	assert.Equal(t, services.EventSceneGenerated, got.Type)
	assert.Equal(t, "s1", got.SceneID)
	assert.Equal(t, services.EventUsageLimitReached, receive(t, a).Type)

	// p2 只收到全局事件
	assert.Equal(t, services.EventUsageLimitReached, receive(t, b).Type)
	select {
	case msg := <-b.send:
		t.Fatalf("unexpected message for p2: %s", msg)
	default:
	}
}

func TestHubUnregisterAndClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	connA, connB := &fakeConn{}, &fakeConn{}
	a := newWebSocketClient(connA, "p1")
	b := newWebSocketClient(connB, "p1")
	require.True(t, hub.Register(a))
	require.True(t, hub.Register(b))

	hub.Unregister(a)
	assert.True(t, a.IsClosed())
	assert.True(t, connA.isClosed())
	assert.Equal(t, 1, hub.ClientCount("p1"))

	hub.Close()
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, hub.ClientCount(""))
	assert.False(t, hub.Register(newWebSocketClient(&fakeConn{}, "p1")))

	// 关闭后发布不会阻塞
	hub.Publish(services.Event{Type: services.EventSceneFailed, ProjectID: "p1"})
	hub.Close()
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	slow := newWebSocketClient(&fakeConn{}, "p1")
	require.True(t, hub.Register(slow))

	for i := 0; i < clientQueueLen+1; i++ {
		hub.Publish(services.Event{Type: services.EventSceneGenerating, ProjectID: "p1"})
	}

	require.Eventually(t, slow.IsClosed, 2*time.Second, 10*time.Millisecond)
	status := hub.GetStatus()
	assert.GreaterOrEqual(t, status["dropped_messages"].(int64), int64(1))
}

func TestHubCleansExpiredClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client := newWebSocketClient(&fakeConn{}, "p1")
	require.True(t, hub.Register(client))

	hub.mutex.Lock()
	hub.pingTimeout = time.Nanosecond
	hub.mutex.Unlock()
	time.Sleep(time.Millisecond)

	hub.cleanupExpiredConnections()
	assert.True(t, client.IsClosed())
	assert.Equal(t, 0, hub.ClientCount("p1"))
}

func TestProjectWebSocketStreamsEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wc := s.createProject(t, "latte art at dawn")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/projects/" + wc.ProjectID

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	welcome := read()
	assert.Equal(t, "connected", welcome["type"])
	assert.Equal(t, wc.ProjectID, welcome["project_id"])

	code, _ := s.do(t, http.MethodPost, "/api/projects/"+wc.ProjectID+"/template", nil)
	require.Equal(t, http.StatusOK, code)

	event := read()
	assert.Equal(t, services.EventTemplateReady, event["type"])
	assert.Equal(t, wc.ProjectID, event["project_id"])
	data, ok := event["data"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, data["saved_characters"])
}

func TestProjectWebSocketUnknownProject(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/projects/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
