// Package control maps control-surface messages onto parameter writes and
// scene activations.
package control

import (
	"math"

	"github.com/1risS/in.organico/params"
	"github.com/charmbracelet/log"
)

// SceneSelect is the controller reserved for scene selection.
const SceneSelect = 80

// Table maps controller numbers to the parameter they drive. The set is fixed.
var Table = map[int]params.ID{
	0:  params.NearClipping,
	1:  params.FarClipping,
	2:  params.PointSize,
	3:  params.ZOffset,
	4:  params.Hue,
	5:  params.Saturation,
	16: params.Random,
	17: params.Depth,
	18: params.ClipX,
	19: params.ClipY,
	20: params.TargetX,
	21: params.TargetY,
	22: params.ClipWidthX,
	23: params.ClipWidthY,
}

// sceneRange is what a scene-select value is rescaled into.
var sceneRange = params.Domain{Min: 0, Max: 127}

// Target receives dispatched control changes.
type Target interface {
	Set(id params.ID, raw float64, d params.Domain)
	ActivateScene(id int) error
	MarkDirty()
}

// Dispatcher routes control changes through Table.
type Dispatcher struct {
	target Target
}

// NewDispatcher returns a dispatcher writing into t.
func NewDispatcher(t Target) *Dispatcher {
	return &Dispatcher{target: t}
}

// SceneID returns the scene a scene-select value picks.
func SceneID(value int) int {
	return int(math.Floor(params.Rescale(float64(value), params.MIDI, sceneRange) + 1e-9))
}

// ControlChange applies one (controller, value) event. Unmapped controllers
// are ignored. A failed scene activation is returned and changes nothing.
func (d *Dispatcher) ControlChange(controller, value int) error {
	if controller == SceneSelect {
		if err := d.target.ActivateScene(SceneID(value)); err != nil {
			return err
		}
		d.target.MarkDirty()
		return nil
	}
	id, ok := Table[controller]
	if !ok {
		log.Debug("unmapped controller", "cc", controller, "value", value)
		return nil
	}
	d.target.Set(id, float64(value), params.MIDI)
	return nil
}
