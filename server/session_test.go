package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
	"github.com/alimasry/go-pixel-editor/store"
)

func ctx() context.Context { return context.Background() }

// mockClient creates a client without a real WebSocket connection, for testing.
func mockClient(id string) *Client {
	return &Client{
		ID:    id,
		Name:  "Test " + id,
		Color: "#000000",
		send:  make(chan []byte, 256),
	}
}

// recvMsg reads one message from a mock client's send channel with timeout.
func recvMsg(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return ServerMessage{}
	}
}

// expectMsg reads one message and checks its type.
func expectMsg(t *testing.T, c *Client, typ string) ServerMessage {
	t.Helper()
	msg := recvMsg(t, c)
	if msg.Type != typ {
		t.Fatalf("expected %s, got %q (%s)", typ, msg.Type, msg.Message)
	}
	return msg
}

// newTestSession creates a project in a memory store and runs a session on it.
func newTestSession(t *testing.T, width, height int) (*Session, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	info := store.ProjectInfo{
		ID:     "p1",
		Width:  width,
		Height: height,
		Layers: canvas.New(width, height).State().Layers,
	}
	if err := st.Create(ctx(), info); err != nil {
		t.Fatal(err)
	}
	s := newSession(&info, st, pixel.DefaultMaxSteps, slog.Default())
	go s.Run()
	t.Cleanup(func() { s.Close("test done") })
	return s, st
}

func send(s *Session, c *Client, msg ClientMessage) {
	s.incoming <- opMessage{client: c, msg: msg}
}

// drain waits until every message c has sent so far is applied. A symmetry
// update round-trips through the incoming queue without touching strokes.
func drain(t *testing.T, s *Session, c *Client) {
	t.Helper()
	send(s, c, ClientMessage{Type: MsgSymmetry})
	for {
		msg := recvMsg(t, c)
		if msg.Type == MsgAck && msg.Message == MsgSymmetry {
			return
		}
	}
}

// joinTwo joins two clients and drains the join traffic.
func joinTwo(t *testing.T, s *Session) (*Client, *Client) {
	t.Helper()
	c1 := mockClient("c1")
	c2 := mockClient("c2")
	s.join <- c1
	s.join <- c2
	expectMsg(t, c1, MsgProject)
	expectMsg(t, c2, MsgProject)
	expectMsg(t, c1, MsgJoin)
	return c1, c2
}

func TestSession_JoinAndReceiveProject(t *testing.T) {
	s, _ := newTestSession(t, 8, 4)

	c := mockClient("c1")
	s.join <- c
	msg := expectMsg(t, c, MsgProject)

	if msg.ProjectID != "p1" {
		t.Errorf("projectId = %q, want p1", msg.ProjectID)
	}
	if msg.Project == nil || msg.Project.Width != 8 || msg.Project.Height != 4 {
		t.Fatalf("unexpected project: %+v", msg.Project)
	}
	if len(msg.Project.Layers) != 1 || msg.ActiveLayer != msg.Project.Layers[0].ID {
		t.Errorf("unexpected layers: %+v active %q", msg.Project.Layers, msg.ActiveLayer)
	}
}

func TestSession_StrokeBroadcastAndPersist(t *testing.T) {
	s, st := newTestSession(t, 8, 8)
	c1, c2 := joinTwo(t, s)

	send(s, c1, ClientMessage{Type: MsgStart})
	send(s, c1, ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 1, Y: 1, Color: "#ff0000"})
	send(s, c1, ClientMessage{Type: MsgBatch, Points: []pixel.Point{{X: 2, Y: 2, Color: "#00ff00"}}})
	send(s, c1, ClientMessage{Type: MsgStop})

	// Both clients get the committed layer, then c1 gets its ack.
	layer := expectMsg(t, c1, MsgLayer)
	if layer.Strokes == nil || len(*layer.Strokes) != 1 || len((*layer.Strokes)[0]) != 2 {
		t.Fatalf("unexpected strokes: %+v", layer.Strokes)
	}
	ack := expectMsg(t, c1, MsgAck)
	if ack.Message != MsgStop {
		t.Errorf("ack for %q, want stop", ack.Message)
	}
	expectMsg(t, c2, MsgLayer)

	info, err := st.Get(ctx(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Layers) != 1 || len(info.Layers[0].History) != 1 {
		t.Errorf("layers not persisted: %+v", info.Layers)
	}
}

func TestSession_OnlyOwnerFeedsStroke(t *testing.T) {
	s, _ := newTestSession(t, 8, 8)
	c1, c2 := joinTwo(t, s)

	send(s, c1, ClientMessage{Type: MsgStart})
	send(s, c2, ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 1, Y: 1, Color: "#fff"})
	expectMsg(t, c2, MsgError)
	send(s, c2, ClientMessage{Type: MsgStop})
	expectMsg(t, c2, MsgError)
	send(s, c2, ClientMessage{Type: MsgStart})
	expectMsg(t, c2, MsgError)
	send(s, c2, ClientMessage{Type: MsgFill, X: 0, Y: 0, Color: "#fff"})
	expectMsg(t, c2, MsgError)

	send(s, c1, ClientMessage{Type: MsgCancel})
	expectMsg(t, c1, MsgAck)

	send(s, c2, ClientMessage{Type: MsgStart})
	send(s, c2, ClientMessage{Type: MsgStop})
	ack := expectMsg(t, c2, MsgAck)
	if ack.Message != MsgStop {
		t.Errorf("ack for %q, want stop", ack.Message)
	}
}

func TestSession_LeaveCommitsOpenStroke(t *testing.T) {
	s, st := newTestSession(t, 8, 8)
	c1, c2 := joinTwo(t, s)

	send(s, c2, ClientMessage{Type: MsgStart})
	send(s, c2, ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 3, Y: 3, Color: "#fff"})
	drain(t, s, c2)
	s.leave <- c2

	expectMsg(t, c1, MsgSymmetry)
	expectMsg(t, c1, MsgLayer)
	msg := expectMsg(t, c1, MsgLeave)
	if msg.ClientID != "c2" {
		t.Errorf("leave clientId = %q, want c2", msg.ClientID)
	}

	info, _ := st.Get(ctx(), "p1")
	if len(info.Layers[0].History) != 1 {
		t.Errorf("open stroke not committed: %+v", info.Layers[0].History)
	}
}

func TestSession_ShapeFillUndoRedo(t *testing.T) {
	s, _ := newTestSession(t, 4, 4)
	c1, _ := joinTwo(t, s)

	tests := []struct {
		name    string
		msg     ClientMessage
		strokes int
	}{
		{"shape", ClientMessage{Type: MsgShape, Tool: canvas.Line, X: 0, Y: 0, ToX: 3, ToY: 0, Color: "#000"}, 1},
		{"fill", ClientMessage{Type: MsgFill, X: 0, Y: 3, Color: "#fff"}, 2},
		{"undo", ClientMessage{Type: MsgUndo}, 1},
		{"redo", ClientMessage{Type: MsgRedo}, 2},
		{"clear", ClientMessage{Type: MsgClear}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(s, c1, tt.msg)
			layer := expectMsg(t, c1, MsgLayer)
			if layer.Strokes == nil || len(*layer.Strokes) != tt.strokes {
				t.Errorf("got strokes %+v, want %d", layer.Strokes, tt.strokes)
			}
			expectMsg(t, c1, MsgAck)
		})
	}
}

func TestSession_LayerOperations(t *testing.T) {
	s, st := newTestSession(t, 4, 4)
	c1, c2 := joinTwo(t, s)

	name := "ink"
	send(s, c1, ClientMessage{Type: MsgAddLayer, Name: &name})
	layers := expectMsg(t, c1, MsgLayers)
	expectMsg(t, c1, MsgAck)
	expectMsg(t, c2, MsgLayers)
	if len(layers.Layers) != 2 || layers.Layers[0].Name != "ink" || layers.ActiveLayer != layers.Layers[0].ID {
		t.Fatalf("unexpected layers: %+v", layers)
	}
	top, bottom := layers.Layers[0].ID, layers.Layers[1].ID

	opacity := 0.25
	send(s, c1, ClientMessage{Type: MsgUpdateLayer, LayerID: bottom, Opacity: &opacity, Active: true})
	layers = expectMsg(t, c1, MsgLayers)
	expectMsg(t, c1, MsgAck)
	if layers.Layers[1].Opacity != 0.25 || layers.ActiveLayer != bottom {
		t.Errorf("update not applied: %+v", layers)
	}

	send(s, c1, ClientMessage{Type: MsgReorderLayers, LayerIDs: []string{bottom, top}})
	layers = expectMsg(t, c1, MsgLayers)
	expectMsg(t, c1, MsgAck)
	if layers.Layers[0].ID != bottom {
		t.Errorf("reorder not applied: %+v", layers.Layers)
	}

	send(s, c1, ClientMessage{Type: MsgMergeLayers, LayerIDs: []string{bottom, top}})
	layers = expectMsg(t, c1, MsgLayers)
	if len(layers.Layers) != 1 || layers.Layers[0].Name != "Merged Layer" {
		t.Fatalf("merge not applied: %+v", layers.Layers)
	}
	expectMsg(t, c1, MsgLayer)
	expectMsg(t, c1, MsgAck)

	send(s, c1, ClientMessage{Type: MsgDeleteLayer})
	expectMsg(t, c1, MsgError)

	info, _ := st.Get(ctx(), "p1")
	if len(info.Layers) != 1 || info.Layers[0].Name != "Merged Layer" {
		t.Errorf("layers not persisted: %+v", info.Layers)
	}
}

func TestSession_Symmetry(t *testing.T) {
	s, _ := newTestSession(t, 4, 4)
	c1, c2 := joinTwo(t, s)

	send(s, c1, ClientMessage{Type: MsgSymmetry, MirrorX: true})
	msg := expectMsg(t, c2, MsgSymmetry)
	if !msg.MirrorX || msg.MirrorY {
		t.Errorf("unexpected symmetry: %+v", msg)
	}
	expectMsg(t, c1, MsgSymmetry)
	expectMsg(t, c1, MsgAck)

	send(s, c1, ClientMessage{Type: MsgShape, Tool: canvas.Line, X: 0, Y: 0, ToX: 0, ToY: 0, Color: "#fff"})
	layer := expectMsg(t, c1, MsgLayer)
	if got := len((*layer.Strokes)[0]); got != 2 {
		t.Errorf("mirrored stroke has %d points, want 2", got)
	}
}

func TestSession_UnknownMessage(t *testing.T) {
	s, _ := newTestSession(t, 4, 4)
	c1, _ := joinTwo(t, s)

	send(s, c1, ClientMessage{Type: "bogus"})
	msg := expectMsg(t, c1, MsgError)
	if msg.Message != "unknown message type: bogus" {
		t.Errorf("message = %q", msg.Message)
	}
}

func TestSession_DoAndClose(t *testing.T) {
	s, _ := newTestSession(t, 3, 2)
	c1, _ := joinTwo(t, s)

	img, err := s.Image()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("unexpected bounds: %v", img.Bounds())
	}

	s.Close("bye")
	msg := expectMsg(t, c1, MsgError)
	if msg.Message != "bye" {
		t.Errorf("message = %q, want bye", msg.Message)
	}
	if err := s.Do(func(*canvas.Canvas) error { return nil }); err != ErrSessionClosed {
		t.Errorf("got %v, want ErrSessionClosed", err)
	}
}

func TestSession_OpenStrokeNotPersisted(t *testing.T) {
	s, st := newTestSession(t, 8, 8)
	c1, c2 := joinTwo(t, s)

	send(s, c1, ClientMessage{Type: MsgStart})
	send(s, c1, ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 1, Y: 1, Color: "#ff0000"})
	name := "sketch"
	send(s, c2, ClientMessage{Type: MsgUpdateLayer, Name: &name})
	expectMsg(t, c2, MsgLayers)
	expectMsg(t, c2, MsgAck)

	info, _ := st.Get(ctx(), "p1")
	if info.Layers[0].Name != "sketch" {
		t.Fatalf("rename not persisted: %+v", info.Layers[0])
	}
	if len(info.Layers[0].History) != 0 {
		t.Errorf("open stroke persisted: %+v", info.Layers[0].History)
	}

	send(s, c1, ClientMessage{Type: MsgCancel})
	expectMsg(t, c1, MsgLayers)
	expectMsg(t, c1, MsgAck)

	info, _ = st.Get(ctx(), "p1")
	if len(info.Layers[0].History) != 0 {
		t.Errorf("cancelled stroke persisted: %+v", info.Layers[0].History)
	}
}

func TestSession_JoinDuringStrokeSeesCommittedState(t *testing.T) {
	s, _ := newTestSession(t, 8, 8)
	c1, _ := joinTwo(t, s)

	send(s, c1, ClientMessage{Type: MsgStart})
	send(s, c1, ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 1, Y: 1, Color: "#ff0000"})
	drain(t, s, c1)

	c3 := mockClient("c3")
	s.join <- c3
	msg := expectMsg(t, c3, MsgProject)
	if got := len(msg.Project.Layers[0].History); got != 0 {
		t.Errorf("joiner got %d strokes, want 0", got)
	}
}
