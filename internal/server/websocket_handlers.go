package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/qrvision/internal/camera"
	"github.com/MeKo-Tech/qrvision/internal/detection"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the API key, not by the browser
		return true
	},
}

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketRequest is a client message on the stream endpoint.
// Type is "detect" or "ping". A detect request carrying Image decodes the
// bytes; otherwise a frame is taken from Camera.
type WebSocketRequest struct {
	Type      string `json:"type"`
	Camera    string `json:"camera,omitempty"`
	Image     []byte `json:"image,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WebSocketResponse is a server message on the stream endpoint.
type WebSocketResponse struct {
	Type       string                `json:"type"`
	Status     string                `json:"status"` // "completed", "error"
	Detections []detection.Detection `json:"detections,omitempty"`
	Error      string                `json:"error,omitempty"`
	ErrorType  string                `json:"error_type,omitempty"`
	RequestID  string                `json:"request_id,omitempty"`
}

// streamHandler serves detections over a WebSocket connection.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.visionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), svc, conn)
}

// handleWebSocketConnection processes messages until the peer goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, svc vision.Service, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	// Send ping messages to keep connection alive
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, svc, conn, data)
		}
	}
}

// handleWebSocketMessage answers a single client message.
func (s *Server) handleWebSocketMessage(ctx context.Context, svc vision.Service, conn WebSocketConnWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	switch req.Type {
	case "ping":
		s.sendWebSocketResponse(conn, WebSocketResponse{Type: "pong", Status: "completed", RequestID: requestID})
	case "detect":
		s.processWebSocketDetect(ctx, svc, conn, req, requestID)
	default:
		s.sendWebSocketError(conn, requestID, "invalid_request", "Unsupported request type: "+req.Type)
	}
}

func (s *Server) processWebSocketDetect(
	ctx context.Context,
	svc vision.Service,
	conn WebSocketConnWriter,
	req WebSocketRequest,
	requestID string,
) {
	ctx, cancel := s.boundContext(ctx)
	defer cancel()

	var (
		dets []detection.Detection
		err  error
	)
	if len(req.Image) > 0 {
		img, derr := camera.DecodeImage(camera.Image{Data: req.Image, MimeType: req.MimeType})
		if derr != nil {
			s.sendWebSocketError(conn, requestID, "invalid_image", derr.Error())
			return
		}
		dets, err = svc.Detections(ctx, img, nil)
	} else {
		dets, err = svc.DetectionsFromCamera(ctx, req.Camera, nil)
	}
	if err != nil {
		s.sendWebSocketError(conn, requestID, "detection_failed", err.Error())
		return
	}
	detectionRequestsTotal.WithLabelValues("websocket").Inc()

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:       "detections",
		Status:     "completed",
		Detections: nonNil(dets),
		RequestID:  requestID,
	})
}

// boundContext applies the request timeout to a long-lived connection context.
func (s *Server) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(ctx, s.requestTimeout)
	}
	return context.WithCancel(ctx)
}

// sendWebSocketResponse sends a response over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error response over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
