package server

import (
	"encoding/json"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
)

// Message types exchanged over WebSocket.
const (
	// Client to server.
	MsgJoin          = "join"
	MsgStart         = "start"
	MsgDraw          = "draw"
	MsgBatch         = "batch"
	MsgStop          = "stop"
	MsgCancel        = "cancel"
	MsgShape         = "shape"
	MsgFill          = "fill"
	MsgUndo          = "undo"
	MsgRedo          = "redo"
	MsgClear         = "clear"
	MsgSymmetry      = "symmetry"
	MsgAddLayer      = "addLayer"
	MsgDeleteLayer   = "deleteLayer"
	MsgUpdateLayer   = "updateLayer"
	MsgReorderLayers = "reorderLayers"
	MsgMergeLayers   = "mergeLayers"

	// Server to client. MsgJoin and MsgSymmetry are also broadcast.
	MsgProject = "project"
	MsgLayer   = "layer"
	MsgLayers  = "layers"
	MsgAck     = "ack"
	MsgError   = "error"
	MsgLeave   = "leave"
)

// ClientMessage is a message from client to server. Which fields are read
// depends on Type.
type ClientMessage struct {
	Type      string        `json:"type"`
	ProjectID string        `json:"projectId,omitempty"`
	LayerID   string        `json:"layerId,omitempty"`
	Tool      canvas.Tool   `json:"tool,omitempty"`
	X         int           `json:"x"`
	Y         int           `json:"y"`
	ToX       int           `json:"toX"`
	ToY       int           `json:"toY"`
	Color     pixel.Color   `json:"color,omitempty"`
	Points    []pixel.Point `json:"points,omitempty"`
	LayerIDs  []string      `json:"layerIds,omitempty"`
	MirrorX   bool          `json:"mirrorX"`
	MirrorY   bool          `json:"mirrorY"`

	// Layer properties; nil leaves the property unchanged.
	Name    *string  `json:"name,omitempty"`
	Hidden  *bool    `json:"isHidden,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Active  bool     `json:"active,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type        string         `json:"type"`
	ProjectID   string         `json:"projectId,omitempty"`
	Project     *canvas.State  `json:"project,omitempty"`
	LayerID     string         `json:"layerId,omitempty"`
	Strokes     *pixel.Strokes `json:"strokes,omitempty"`
	Layers      []LayerInfo    `json:"layers,omitempty"`
	ActiveLayer string         `json:"activeLayer,omitempty"`
	MirrorX     bool           `json:"mirrorX,omitempty"`
	MirrorY     bool           `json:"mirrorY,omitempty"`
	ClientID    string         `json:"clientId,omitempty"`
	Name        string         `json:"name,omitempty"`
	Color       string         `json:"color,omitempty"`
	Message     string         `json:"message,omitempty"`
	Clients     []ClientInfo   `json:"clients,omitempty"`
}

// LayerInfo describes one layer of the stack without its history.
type LayerInfo struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Hidden  bool    `json:"isHidden"`
	Opacity float64 `json:"opacity"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

func layerInfos(c *canvas.Canvas) []LayerInfo {
	layers := c.Layers()
	infos := make([]LayerInfo, len(layers))
	for i, l := range layers {
		infos[i] = LayerInfo{ID: l.ID, Name: l.Name, Hidden: l.Hidden, Opacity: l.Opacity()}
	}
	return infos
}
