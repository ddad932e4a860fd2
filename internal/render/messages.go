package render

import (
	"github.com/signalsfoundry/impact-simulator/internal/sim/controller"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/model"
)

// Message types sent to the globe page.
const (
	TypeHello              = "hello"
	TypeOverlay            = "overlay"
	TypeResult             = "result"
	TypeParameters         = "parameters"
	TypeMode               = "mode"
	TypeCatalog            = "catalog"
	TypeCatalogUnavailable = "catalog_unavailable"
)

// Message is the envelope for everything pushed to a page.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hello describes the scene so the page can size its markers.
type Hello struct {
	GlobeRadius   float64 `json:"globe_radius"`
	PreviewRadius float64 `json:"preview_radius"`
}

// OverlayCommand is the wire form of an overlay.Command.
type OverlayCommand struct {
	Op     string `json:"op"`
	Kind   string `json:"kind"`
	Handle string `json:"handle"`

	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	Position    [3]float64 `json:"position"`
	Normal      [3]float64 `json:"normal"`
	Orientation [4]float64 `json:"orientation"`
	Size        float64    `json:"size,omitempty"`
	Radius      float64    `json:"radius,omitempty"`
}

// CatalogUnavailable tells the page to fall back to manual entry.
type CatalogUnavailable struct {
	Error string `json:"error"`
}

// Ack is what the page sends back after applying a command.
type Ack struct {
	Type   string `json:"type"`
	Handle string `json:"handle,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func overlayCommand(cmd overlay.Command, previewRadius float64) OverlayCommand {
	out := OverlayCommand{
		Op:     cmd.Op.String(),
		Kind:   cmd.Kind.String(),
		Handle: string(cmd.Handle),
	}
	if cmd.Op != overlay.OpCreate {
		return out
	}
	pos := cmd.Position
	out.Lat = cmd.Geo.Lat
	out.Lon = cmd.Geo.Lon
	out.Position = [3]float64{pos.Point.X, pos.Point.Y, pos.Point.Z}
	out.Normal = [3]float64{pos.Normal.X, pos.Normal.Y, pos.Normal.Z}
	out.Orientation = pos.OrientationXYZW()
	out.Size = cmd.Size
	if cmd.Kind == overlay.Preview {
		out.Radius = previewRadius
	}
	return out
}

func modeMessage(m controller.Mode) Message {
	return Message{Type: TypeMode, Payload: m.String()}
}

func catalogMessage(list []model.Impactor) Message {
	if list == nil {
		list = []model.Impactor{}
	}
	return Message{Type: TypeCatalog, Payload: list}
}
