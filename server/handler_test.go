package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/store"
)

func setupTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	st := store.NewMemoryStore()
	hub := NewHub(st, WithCanvasSize(8, 8))
	go hub.Run()
	handler := NewHandler(hub, t.TempDir())
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	return server, hub
}

func wsConnect(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	return conn
}

func readWsMsg(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func doRequest(t *testing.T, method, url, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createProject(t *testing.T, server *httptest.Server, body string) store.ProjectInfo {
	t.Helper()
	resp := doRequest(t, http.MethodPost, server.URL+"/api/projects", "application/json", []byte(body))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d", resp.StatusCode)
	}
	var info store.ProjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	return info
}

func TestHandler_WebSocketConnect(t *testing.T) {
	server, _ := setupTestServer(t)

	conn := wsConnect(t, server)
	defer conn.Close()

	// Send join message
	msg := ClientMessage{Type: MsgJoin, ProjectID: "test-project"}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatal(err)
	}

	resp := readWsMsg(t, conn)
	if resp.Type != MsgProject {
		t.Errorf("expected project, got %q", resp.Type)
	}
	if resp.ClientID == "" {
		t.Error("missing clientId")
	}

	// A second join on the same connection is rejected.
	conn.WriteJSON(msg)
	if resp := readWsMsg(t, conn); resp.Type != MsgError {
		t.Errorf("expected error, got %q", resp.Type)
	}
}

func TestHandler_MessageBeforeJoin(t *testing.T) {
	server, _ := setupTestServer(t)

	conn := wsConnect(t, server)
	defer conn.Close()

	conn.WriteJSON(ClientMessage{Type: MsgUndo})
	resp := readWsMsg(t, conn)
	if resp.Type != MsgError || resp.Message != "not joined to a project" {
		t.Errorf("unexpected response: %+v", resp)
	}

	conn.WriteJSON(ClientMessage{Type: MsgJoin})
	resp = readWsMsg(t, conn)
	if resp.Type != MsgError || resp.Message != "missing projectId" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_TwoClientsDraw(t *testing.T) {
	server, _ := setupTestServer(t)

	conn1 := wsConnect(t, server)
	defer conn1.Close()
	conn2 := wsConnect(t, server)
	defer conn2.Close()

	// c1 joins
	conn1.WriteJSON(ClientMessage{Type: MsgJoin, ProjectID: "shared"})
	if msg := readWsMsg(t, conn1); msg.Type != MsgProject {
		t.Fatalf("c1 expected project, got %q", msg.Type)
	}

	// c2 joins
	conn2.WriteJSON(ClientMessage{Type: MsgJoin, ProjectID: "shared"})
	if msg := readWsMsg(t, conn2); msg.Type != MsgProject {
		t.Fatalf("c2 expected project, got %q", msg.Type)
	}

	// c1 gets join notification for c2
	if msg := readWsMsg(t, conn1); msg.Type != MsgJoin {
		t.Fatalf("c1 expected join notification, got %q", msg.Type)
	}

	// c1 draws a stroke
	conn1.WriteJSON(ClientMessage{Type: MsgStart})
	conn1.WriteJSON(ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 2, Y: 3, Color: "#ff0000"})
	conn1.WriteJSON(ClientMessage{Type: MsgStop})

	if msg := readWsMsg(t, conn1); msg.Type != MsgLayer {
		t.Fatalf("c1 expected layer, got %q", msg.Type)
	}
	if msg := readWsMsg(t, conn1); msg.Type != MsgAck {
		t.Fatalf("c1 expected ack, got %q", msg.Type)
	}

	// c2 gets the committed layer
	msg := readWsMsg(t, conn2)
	if msg.Type != MsgLayer {
		t.Fatalf("c2 expected layer, got %q", msg.Type)
	}
	strokes := *msg.Strokes
	if len(strokes) != 1 || len(strokes[0]) != 1 || strokes[0][0].X != 2 || strokes[0][0].Y != 3 {
		t.Errorf("unexpected strokes: %+v", strokes)
	}
}

func TestHandler_ProjectCRUD(t *testing.T) {
	server, _ := setupTestServer(t)

	info := createProject(t, server, `{"name":"sprite","width":16,"height":8}`)
	if info.ID == "" || info.Name != "sprite" || info.Width != 16 || info.Height != 8 {
		t.Fatalf("unexpected project: %+v", info)
	}
	if len(info.Layers) != 1 {
		t.Errorf("got %d layers, want 1", len(info.Layers))
	}

	resp := doRequest(t, http.MethodGet, server.URL+"/api/projects", "", nil)
	var list []store.ProjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != info.ID {
		t.Errorf("unexpected list: %+v", list)
	}

	resp = doRequest(t, http.MethodPut, server.URL+"/api/projects/"+info.ID, "application/json",
		[]byte(`{"name":"renamed","width":4,"height":4}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status: %d", resp.StatusCode)
	}
	var updated store.ProjectInfo
	json.NewDecoder(resp.Body).Decode(&updated)
	if updated.Name != "renamed" || updated.Width != 4 {
		t.Errorf("unexpected update: %+v", updated)
	}

	resp = doRequest(t, http.MethodDelete, server.URL+"/api/projects/"+info.ID, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodGet, server.URL+"/api/projects/"+info.ID, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status: %d", resp.StatusCode)
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"negative width", `{"width":-1}`, http.StatusBadRequest},
		{"too large", `{"width":2048,"height":2}`, http.StatusBadRequest},
		{"defaults", `{}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, server.URL+"/api/projects", "application/json", []byte(tt.body))
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHandler_DeleteClosesSession(t *testing.T) {
	server, hub := setupTestServer(t)
	info := createProject(t, server, `{}`)

	conn := wsConnect(t, server)
	defer conn.Close()
	conn.WriteJSON(ClientMessage{Type: MsgJoin, ProjectID: info.ID})
	readWsMsg(t, conn)

	doRequest(t, http.MethodDelete, server.URL+"/api/projects/"+info.ID, "", nil)

	msg := readWsMsg(t, conn)
	if msg.Type != MsgError || msg.Message != "project deleted" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if hub.GetSession(info.ID) != nil {
		t.Error("session still running")
	}
}

func TestHandler_ImageAndExport(t *testing.T) {
	server, _ := setupTestServer(t)
	info := createProject(t, server, `{"width":3,"height":2}`)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/projects/"+info.ID+"/image.png?scale=4", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("image status: %d", resp.StatusCode)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 8 {
		t.Errorf("image bounds = %v, want 12x8", img.Bounds())
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/projects/"+info.ID+"/image.png?scale=0", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad scale status: %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/projects/"+info.ID+"/export.pdf", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf status: %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("response is not a PDF")
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/projects/missing/image.png", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing project status: %d", resp.StatusCode)
	}
}

func TestHandler_ImportImage(t *testing.T) {
	server, hub := setupTestServer(t)
	info := createProject(t, server, `{"width":2,"height":2}`)
	layerID := info.Layers[0].ID

	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 0, G: 0, B: 255, A: 255})
		}
	}
	var body bytes.Buffer
	if err := png.Encode(&body, src); err != nil {
		t.Fatal(err)
	}

	url := server.URL + "/api/projects/" + info.ID + "/layers/" + layerID + "/import"
	resp := doRequest(t, http.MethodPost, url, "image/png", body.Bytes())
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("import status: %d", resp.StatusCode)
	}

	if hub.GetSession(info.ID) != nil {
		t.Error("import without editors started a session")
	}

	stored, _ := hub.store.Get(ctx(), info.ID)
	if len(stored.Layers[0].History) != 1 || len(stored.Layers[0].History[0]) != 4 {
		t.Errorf("import not persisted: %+v", stored.Layers[0].History)
	}

	resp = doRequest(t, http.MethodPost, url, "image/png", []byte("not an image"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad image status: %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodPost, server.URL+"/api/projects/"+info.ID+"/layers/nope/import", "image/png", body.Bytes())
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing layer status: %d", resp.StatusCode)
	}
}
