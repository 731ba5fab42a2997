package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFrame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/v1/realtime/ws?token=" + e.token(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	send(t, conn, "join", map[string]string{"userId": userID})
	joined := readFrame(t, conn)
	require.Equal(t, "joined", joined.Event)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f testFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_RejectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/realtime/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_JoinMustNameCaller(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "alice")

	send(t, conn, "join", map[string]string{"userId": "bob"})
	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Event)
	assert.Equal(t, "FORBIDDEN", f.Data["error"])

	send(t, conn, "ping", map[string]string{})
	assert.Equal(t, "pong", readFrame(t, conn).Event)

	send(t, conn, "teleport", map[string]string{})
	f = readFrame(t, conn)
	assert.Equal(t, "error", f.Event)
	assert.Equal(t, "teleport", f.Data["event"])
}

func TestWebSocket_LoanEventsReachBothParties(t *testing.T) {
	env := newTestEnv(t)
	lender := env.dial(t, "alice")
	borrower := env.dial(t, "bob")

	resp, _ := env.do(t, http.MethodPut, "/v1/ledger/books/book-1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, created := env.do(t, http.MethodPost, "/v1/loans", "bob", map[string]interface{}{"bookId": "book-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	loanID := created["loanId"].(string)

	f := readFrame(t, lender)
	assert.Equal(t, "loanRequested", f.Event)
	assert.Equal(t, loanID, f.Data["loanId"])

	resp, _ = env.do(t, http.MethodPut, "/v1/loans/"+loanID+"/status", "alice", map[string]interface{}{"status": "Approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, conn := range []*websocket.Conn{lender, borrower} {
		f := readFrame(t, conn)
		assert.Equal(t, "loanStatusChanged", f.Event)
		assert.Equal(t, "Requested", f.Data["previousStatus"])
		assert.Equal(t, "Approved", f.Data["newStatus"])
	}
}

func TestWebSocket_SendMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, alice, "sendMessage", map[string]string{"recipientId": "bob", "content": "hello"})

	received := readFrame(t, bob)
	assert.Equal(t, "newMessage", received.Event)
	assert.Equal(t, "hello", received.Data["content"])

	ack := readFrame(t, alice)
	assert.Equal(t, "messageSent", ack.Event)
	assert.Equal(t, received.Data["messageId"], ack.Data["messageId"])

	send(t, alice, "sendMessage", map[string]string{"recipientId": "alice", "content": "me"})
	f := readFrame(t, alice)
	assert.Equal(t, "error", f.Event)
	assert.Equal(t, "INVALID_PARAM", f.Data["error"])
}

func TestWebSocket_LoanUpdateRelay(t *testing.T) {
	env := newTestEnv(t)
	loanID := env.approvedLoan(t)

	lender := env.dial(t, "alice")
	borrower := env.dial(t, "bob")
	stranger := env.dial(t, "mallory")

	send(t, lender, "loanUpdate", map[string]string{"loanId": loanID, "status": "Lent", "userId": "bob"})
	f := readFrame(t, borrower)
	assert.Equal(t, "loanStatusChanged", f.Event)
	assert.Equal(t, true, f.Data["relayed"])
	assert.Equal(t, "Lent", f.Data["status"])

	resp, body := env.do(t, http.MethodGet, "/v1/loans/"+loanID, "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Approved", body["status"], "a relay changes nothing")

	send(t, stranger, "loanUpdate", map[string]string{"loanId": loanID, "status": "Lent", "userId": "bob"})
	f = readFrame(t, stranger)
	assert.Equal(t, "error", f.Event)
	assert.Equal(t, "FORBIDDEN", f.Data["error"])

	send(t, lender, "loanUpdate", map[string]string{"loanId": loanID, "status": "Lent", "userId": "mallory"})
	f = readFrame(t, lender)
	assert.Equal(t, "error", f.Event)
	assert.Equal(t, "FORBIDDEN", f.Data["error"])
}

func TestSSE_StreamsEvents(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPut, "/v1/ledger/books/book-1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/v1/realtime/sse?token="+env.token(t, "alice"), nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	reader := bufio.NewReader(stream.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	resp, _ = env.do(t, http.MethodPost, "/v1/loans", "bob", map[string]interface{}{"bookId": "book-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var eventName string
	var data map[string]interface{}
	for data == nil {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
		}
	}
	assert.Equal(t, "loanRequested", eventName)
	assert.Equal(t, "loanRequested", data["event"])
}
