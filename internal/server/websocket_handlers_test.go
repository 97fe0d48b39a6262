package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrvision/internal/testutil"
)

// mockWebSocketConn records written messages.
type mockWebSocketConn struct {
	sentMessages []sentMessage
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.sentMessages = append(m.sentMessages, sentMessage{messageType: messageType, data: data})
	return nil
}

func (m *mockWebSocketConn) last(t *testing.T) WebSocketResponse {
	t.Helper()
	require.NotEmpty(t, m.sentMessages)
	msg := m.sentMessages[len(m.sentMessages)-1]
	assert.Equal(t, websocket.TextMessage, msg.messageType)
	var resp WebSocketResponse
	require.NoError(t, json.Unmarshal(msg.data, &resp))
	return resp
}

func TestServer_HandleWebSocketMessage(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	svc, err := s.resources.Vision("qr")
	require.NoError(t, err)

	frame, _ := testutil.QRFrame(t, testutil.DefaultQRConfig(testPayload))
	qrPNG := testutil.EncodePNG(t, frame)
	imageReq, err := json.Marshal(WebSocketRequest{Type: "detect", Image: qrPNG, RequestID: "img-1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		message    string
		wantType   string
		wantStatus string
		wantID     string
		wantLabels []string
		wantErrTyp string
	}{
		{name: "ping", message: `{"type":"ping","request_id":"p1"}`, wantType: "pong", wantStatus: "completed", wantID: "p1"},
		{
			name: "detect from camera", message: `{"type":"detect","camera":"cam","request_id":"r1"}`,
			wantType: "detections", wantStatus: "completed", wantID: "r1", wantLabels: []string{testPayload},
		},
		{
			name: "detect from image", message: string(imageReq),
			wantType: "detections", wantStatus: "completed", wantID: "img-1", wantLabels: []string{testPayload},
		},
		{
			name: "unknown camera", message: `{"type":"detect","camera":"nope","request_id":"r2"}`,
			wantType: "error", wantStatus: "error", wantID: "r2", wantErrTyp: "detection_failed",
		},
		{
			name: "bad image", message: `{"type":"detect","image":"aGVsbG8=","request_id":"r3"}`,
			wantType: "error", wantStatus: "error", wantID: "r3", wantErrTyp: "invalid_image",
		},
		{name: "invalid json", message: `{`, wantType: "error", wantStatus: "error", wantErrTyp: "invalid_request"},
		{name: "unknown type", message: `{"type":"dance"}`, wantType: "error", wantStatus: "error", wantErrTyp: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockWebSocketConn{}
			s.handleWebSocketMessage(context.Background(), svc, conn, []byte(tt.message))

			resp := conn.last(t)
			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantErrTyp, resp.ErrorType)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, resp.RequestID)
			}
			var labels []string
			for _, d := range resp.Detections {
				labels = append(labels, d.Label)
			}
			assert.Equal(t, tt.wantLabels, labels)
		})
	}
}

func TestServer_StreamHandler(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/vision/qr/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	require.NoError(t, conn.WriteJSON(WebSocketRequest{Type: "detect", Camera: "cam", RequestID: "s1"}))

	var got WebSocketResponse
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "detections", got.Type)
	assert.Equal(t, "s1", got.RequestID)
	require.Len(t, got.Detections, 1)
	assert.Equal(t, testPayload, got.Detections[0].Label)
}

func TestServer_StreamHandler_UnknownService(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/vision/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}
