package server

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
	"github.com/alimasry/go-pixel-editor/render"
	"github.com/alimasry/go-pixel-editor/store"
)

// ErrSessionClosed is returned by Do once the session has stopped.
var ErrSessionClosed = errors.New("session closed")

type opMessage struct {
	client *Client
	msg    ClientMessage
}

type request struct {
	fn   func(c *canvas.Canvas) error
	done chan error
}

// Session manages collaboration for a single project.
// All edits are serialized through a single goroutine, which owns the canvas.
type Session struct {
	projectID string
	canvas    *canvas.Canvas
	store     store.ProjectStore
	logger    *slog.Logger
	clients   map[*Client]bool

	// owner is the client whose stroke is open, if any.
	owner *Client

	incoming chan opMessage
	requests chan request
	join     chan *Client
	leave    chan *Client
	stop     chan string
	done     chan struct{}
}

func newSession(info *store.ProjectInfo, st store.ProjectStore, maxSteps int, logger *slog.Logger) *Session {
	s := &Session{
		projectID: info.ID,
		store:     st,
		logger:    logger.With("project", info.ID),
		clients:   make(map[*Client]bool),
		incoming:  make(chan opMessage, 64),
		requests:  make(chan request),
		join:      make(chan *Client, 16),
		leave:     make(chan *Client, 16),
		stop:      make(chan string, 1),
		done:      make(chan struct{}),
	}
	s.canvas = canvas.Hydrate(info.State(),
		canvas.WithMaxSteps(maxSteps),
		canvas.WithOnChange(s.handleLayerChange),
	)
	return s
}

// Run is the session's main loop. It serializes all edits.
func (s *Session) Run() {
	defer close(s.done)
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case om := <-s.incoming:
			s.handleOp(om)
		case req := <-s.requests:
			req.done <- req.fn(s.canvas)
		case reason := <-s.stop:
			s.shutdown(reason)
			return
		}
	}
}

// Do runs fn on the session goroutine and returns its error.
func (s *Session) Do(fn func(c *canvas.Canvas) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
		return <-req.done
	case <-s.done:
		return ErrSessionClosed
	}
}

// Image composes the current canvas.
func (s *Session) Image() (*image.NRGBA, error) {
	var img *image.NRGBA
	err := s.Do(func(c *canvas.Canvas) error {
		img = render.Compose(c)
		return nil
	})
	return img, err
}

// Close stops the session, detaching every client with reason as an error
// message, and waits for the loop to exit.
func (s *Session) Close(reason string) {
	select {
	case s.stop <- reason:
	default:
	}
	<-s.done
}

func (s *Session) shutdown(reason string) {
	if s.owner != nil {
		s.canvas.StopStroke()
		s.owner = nil
	}
	for c := range s.clients {
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		c.sendError(reason)
	}
	s.clients = nil
}

func (s *Session) handleJoin(c *Client) {
	s.clients[c] = true
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	// Send current project state to the joining client.
	state := s.canvas.State()
	c.sendMsg(ServerMessage{
		Type:        MsgProject,
		ProjectID:   s.projectID,
		Project:     &state,
		ActiveLayer: s.canvas.Active().ID,
		MirrorX:     s.canvas.MirrorX,
		MirrorY:     s.canvas.MirrorY,
		ClientID:    c.ID,
		Clients:     s.clientInfos(),
	})

	// Notify other clients about the new user.
	s.broadcast(ServerMessage{
		Type:     MsgJoin,
		ClientID: c.ID,
		Name:     c.Name,
		Color:    c.Color,
	}, c)
}

func (s *Session) handleLeave(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	if s.owner == c {
		// A stroke left open by a departing client is committed.
		s.canvas.StopStroke()
		s.owner = nil
	}
	delete(s.clients, c)
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	close(c.send)

	// Notify others.
	s.broadcast(ServerMessage{
		Type:     MsgLeave,
		ClientID: c.ID,
	}, nil)
}

func (s *Session) handleOp(om opMessage) {
	if err := s.apply(om.client, om.msg); err != nil {
		s.logger.Debug("session: rejected message", "client", om.client.ID, "type", om.msg.Type, "err", err)
		om.client.sendError(err.Error())
		return
	}
	switch om.msg.Type {
	case MsgStart, MsgDraw, MsgBatch:
	default:
		om.client.sendMsg(ServerMessage{Type: MsgAck, Message: om.msg.Type})
	}
}

// layerID returns the layer a message targets, defaulting to the active one.
func (s *Session) layerID(msg ClientMessage) string {
	if msg.LayerID != "" {
		return msg.LayerID
	}
	return s.canvas.Active().ID
}

func (s *Session) checkOwner(c *Client) error {
	if s.owner != c {
		return canvas.ErrNotDrawing
	}
	return nil
}

func (s *Session) apply(c *Client, msg ClientMessage) error {
	cv := s.canvas
	switch msg.Type {
	case MsgStart:
		if err := cv.StartStroke(s.layerID(msg)); err != nil {
			return err
		}
		s.owner = c
	case MsgDraw:
		if err := s.checkOwner(c); err != nil {
			return err
		}
		return cv.Draw(msg.Tool, image.Pt(msg.X, msg.Y), msg.Color)
	case MsgBatch:
		if err := s.checkOwner(c); err != nil {
			return err
		}
		return cv.DrawBatch(msg.Points)
	case MsgStop:
		if err := s.checkOwner(c); err != nil {
			return err
		}
		s.owner = nil
		return cv.StopStroke()
	case MsgCancel:
		if err := s.checkOwner(c); err != nil {
			return err
		}
		s.owner = nil
		return cv.CancelStroke()
	case MsgShape:
		return cv.Shape(s.layerID(msg), msg.Tool, image.Pt(msg.X, msg.Y), image.Pt(msg.ToX, msg.ToY), msg.Color)
	case MsgFill:
		if s.owner != nil && s.owner != c {
			return canvas.ErrBusy
		}
		_, err := cv.Fill(s.layerID(msg), msg.X, msg.Y, msg.Color)
		return err
	case MsgUndo:
		_, err := cv.Undo(s.layerID(msg))
		return err
	case MsgRedo:
		_, err := cv.Redo(s.layerID(msg))
		return err
	case MsgClear:
		return cv.Clear(s.layerID(msg))
	case MsgSymmetry:
		cv.MirrorX, cv.MirrorY = msg.MirrorX, msg.MirrorY
		s.broadcast(ServerMessage{Type: MsgSymmetry, MirrorX: cv.MirrorX, MirrorY: cv.MirrorY}, nil)
	case MsgAddLayer:
		name := ""
		if msg.Name != nil {
			name = *msg.Name
		}
		cv.AddLayer(name)
		s.layersChanged()
	case MsgDeleteLayer:
		id := s.layerID(msg)
		if err := cv.DeleteLayer(id); err != nil {
			return err
		}
		if cv.DrawingLayer() == "" {
			// The deleted layer's open stroke was discarded with it.
			s.owner = nil
		}
		s.layersChanged()
	case MsgUpdateLayer:
		if err := s.updateLayer(msg); err != nil {
			return err
		}
		s.layersChanged()
	case MsgReorderLayers:
		if err := cv.Reorder(msg.LayerIDs); err != nil {
			return err
		}
		s.layersChanged()
	case MsgMergeLayers:
		merged, err := cv.Merge(msg.LayerIDs)
		if err != nil {
			return err
		}
		s.layersChanged()
		s.sendLayer(merged.ID, merged.History().Committed())
	default:
		return errors.New("unknown message type: " + msg.Type)
	}
	return nil
}

func (s *Session) updateLayer(msg ClientMessage) error {
	cv := s.canvas
	id := s.layerID(msg)
	if _, err := cv.Layer(id); err != nil {
		return err
	}
	if msg.Name != nil {
		cv.Rename(id, *msg.Name)
	}
	if msg.Hidden != nil {
		cv.SetHidden(id, *msg.Hidden)
	}
	if msg.Opacity != nil {
		cv.SetOpacity(id, *msg.Opacity)
	}
	if msg.Active {
		cv.SetActive(id)
	}
	return nil
}

// handleLayerChange is the canvas change hook. It runs on the session
// goroutine whenever a layer's committed history changes.
func (s *Session) handleLayerChange(layerID string, strokes []pixel.Stroke) {
	s.sendLayer(layerID, strokes)
	s.persist()
}

func (s *Session) sendLayer(layerID string, strokes []pixel.Stroke) {
	history := pixel.Strokes(strokes)
	s.broadcast(ServerMessage{Type: MsgLayer, LayerID: layerID, Strokes: &history}, nil)
}

func (s *Session) layersChanged() {
	s.broadcast(ServerMessage{
		Type:        MsgLayers,
		Layers:      layerInfos(s.canvas),
		ActiveLayer: s.canvas.Active().ID,
	}, nil)
	s.persist()
}

func (s *Session) persist() {
	if err := s.store.SaveLayers(context.Background(), s.projectID, s.canvas.State().Layers); err != nil {
		s.logger.Error("session: failed to save layers", "err", err)
	}
}

// broadcast sends msg to every client except skip.
func (s *Session) broadcast(msg ServerMessage, skip *Client) {
	for c := range s.clients {
		if c != skip {
			c.sendMsg(msg)
		}
	}
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(s.clients))
	for c := range s.clients {
		infos = append(infos, c.Info())
	}
	return infos
}
