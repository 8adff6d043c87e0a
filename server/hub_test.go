package server

import (
	"errors"
	"image"
	"testing"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
	"github.com/alimasry/go-pixel-editor/store"
)

func TestHub_CreateProjectOnJoin(t *testing.T) {
	st := store.NewMemoryStore()
	hub := NewHub(st, WithCanvasSize(16, 12))
	go hub.Run()
	defer hub.Close()

	c := mockClient("c1")
	c.hub = hub
	hub.joinProject <- joinRequest{client: c, projectID: "new-project"}

	msg := expectMsg(t, c, MsgProject)
	if msg.ProjectID != "new-project" {
		t.Errorf("projectId = %q, want %q", msg.ProjectID, "new-project")
	}
	if msg.Project.Width != 16 || msg.Project.Height != 12 {
		t.Errorf("size = %dx%d, want 16x12", msg.Project.Width, msg.Project.Height)
	}

	if hub.GetSession("new-project") == nil {
		t.Error("session not created")
	}
	info, err := st.Get(ctx(), "new-project")
	if err != nil {
		t.Fatalf("project not stored: %v", err)
	}
	if len(info.Layers) != 1 {
		t.Errorf("got %d layers, want 1", len(info.Layers))
	}
}

func TestHub_JoinExistingProject(t *testing.T) {
	st := store.NewMemoryStore()
	layers := canvas.New(4, 4).State().Layers
	layers[0].Name = "background"
	st.Create(ctx(), store.ProjectInfo{ID: "existing", Name: "cat", Width: 4, Height: 4, Layers: layers})
	hub := NewHub(st)
	go hub.Run()
	defer hub.Close()

	c := mockClient("c1")
	c.hub = hub
	hub.joinProject <- joinRequest{client: c, projectID: "existing"}

	msg := expectMsg(t, c, MsgProject)
	if len(msg.Project.Layers) != 1 || msg.Project.Layers[0].Name != "background" {
		t.Errorf("unexpected layers: %+v", msg.Project.Layers)
	}
}

func TestHub_OpenSessionWithoutCreate(t *testing.T) {
	hub := NewHub(store.NewMemoryStore())
	defer hub.Close()

	if _, err := hub.openSession(ctx(), "missing", false); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if hub.GetSession("missing") != nil {
		t.Error("session created for missing project")
	}
}

func TestHub_CloseSession(t *testing.T) {
	hub := NewHub(store.NewMemoryStore())
	go hub.Run()
	defer hub.Close()

	c := mockClient("c1")
	c.hub = hub
	hub.joinProject <- joinRequest{client: c, projectID: "p"}
	expectMsg(t, c, MsgProject)

	hub.CloseSession("p", "gone")
	msg := expectMsg(t, c, MsgError)
	if msg.Message != "gone" {
		t.Errorf("message = %q, want gone", msg.Message)
	}
	if hub.GetSession("p") != nil {
		t.Error("session still registered")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		t.Error("client still attached")
	}
}

func TestHub_CloseCommitsOpenStrokes(t *testing.T) {
	st := store.NewMemoryStore()
	hub := NewHub(st, WithCanvasSize(4, 4))
	go hub.Run()

	c := mockClient("c1")
	c.hub = hub
	hub.joinProject <- joinRequest{client: c, projectID: "p"}
	expectMsg(t, c, MsgProject)

	s := hub.GetSession("p")
	send(s, c, ClientMessage{Type: MsgStart})
	send(s, c, ClientMessage{Type: MsgDraw, Tool: canvas.Brush, X: 1, Y: 2, Color: "#123456"})
	drain(t, s, c)

	hub.Close()
	hub.Close()

	info, err := st.Get(ctx(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Layers[0].History) != 1 {
		t.Errorf("open stroke not committed on close: %+v", info.Layers[0].History)
	}
}

func TestHub_JoinStoppedSessionReportsError(t *testing.T) {
	hub := NewHub(store.NewMemoryStore())
	defer hub.Close()

	s, err := hub.openSession(ctx(), "p", true)
	if err != nil {
		t.Fatal(err)
	}
	s.Close("stopped")

	c := mockClient("c1")
	c.hub = hub
	hub.handleJoinProject(joinRequest{client: c, projectID: "p"})
	msg := expectMsg(t, c, MsgError)
	if msg.Message != "project closed, join again" {
		t.Errorf("message = %q", msg.Message)
	}
}

func TestHub_EditWithoutSession(t *testing.T) {
	st := store.NewMemoryStore()
	st.Create(ctx(), store.ProjectInfo{ID: "p", Width: 4, Height: 4, Layers: canvas.New(4, 4).State().Layers})
	hub := NewHub(st)
	defer hub.Close()

	err := hub.Edit(ctx(), "p", func(c *canvas.Canvas) error {
		return c.Shape(c.Active().ID, canvas.FilledRectangle, image.Pt(0, 0), image.Pt(1, 1), "#ff0000")
	})
	if err != nil {
		t.Fatal(err)
	}
	if hub.GetSession("p") != nil {
		t.Error("edit started a session")
	}
	info, err := st.Get(ctx(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Layers[0].History) != 1 || len(info.Layers[0].History[0]) != 4 {
		t.Errorf("edit not saved: %+v", info.Layers[0].History)
	}

	if err := hub.Edit(ctx(), "missing", func(*canvas.Canvas) error { return nil }); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	err = hub.Edit(ctx(), "p", func(c *canvas.Canvas) error { return c.ReplaceHistory("nope", nil) })
	if !errors.Is(err, canvas.ErrLayerNotFound) {
		t.Errorf("got %v, want ErrLayerNotFound", err)
	}
}

func TestHub_EditRunningSession(t *testing.T) {
	st := store.NewMemoryStore()
	hub := NewHub(st, WithCanvasSize(4, 4))
	go hub.Run()
	defer hub.Close()

	c := mockClient("c1")
	c.hub = hub
	hub.joinProject <- joinRequest{client: c, projectID: "p"}
	expectMsg(t, c, MsgProject)

	var layerID string
	err := hub.Edit(ctx(), "p", func(cv *canvas.Canvas) error {
		layerID = cv.Active().ID
		return cv.ReplaceHistory(layerID, []pixel.Stroke{{{X: 1, Y: 1, Color: "#00ff00"}}})
	})
	if err != nil {
		t.Fatal(err)
	}
	msg := expectMsg(t, c, MsgLayer)
	if msg.LayerID != layerID || msg.Strokes == nil || len(*msg.Strokes) != 1 {
		t.Errorf("unexpected layer message: %+v", msg)
	}
	info, err := st.Get(ctx(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Layers[0].History) != 1 {
		t.Errorf("edit not persisted: %+v", info.Layers[0].History)
	}
}
