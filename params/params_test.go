package params

import (
	"errors"
	"math"
	"testing"
)

type countingMarker struct{ n int }

func (m *countingMarker) MarkDirty() { m.n++ }

func TestSetRescalesIntoRange(t *testing.T) {
	tests := []struct {
		name   string
		id     ID
		raw    float64
		domain Domain
		want   float64
	}{
		{"midi zero is min", NearClipping, 0, MIDI, 1},
		{"midi full is max", NearClipping, 127, MIDI, 10000},
		{"midi half of z offset", ZOffset, 63.5, MIDI, 0},
		{"normalized half of target y", TargetY, 0.5, Normalized, 0},
		{"normalized quarter of depth", Depth, 0.25, Normalized, 0.5},
		{"midi point size", PointSize, 127.0 / 3, MIDI, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil)
			r.Set(tt.id, tt.raw, tt.domain)
			if got := r.Get(tt.id); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Get(%v) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestSetAlwaysWithinRange(t *testing.T) {
	r := New(nil)
	for _, s := range All() {
		for v := 0; v <= 127; v++ {
			r.Set(s.ID, float64(v), MIDI)
			got := r.Get(s.ID)
			want := float64(v)/127*(s.Max-s.Min) + s.Min
			if got < s.Min || got > s.Max {
				t.Fatalf("%s: value %v outside [%v,%v]", s.Name, got, s.Min, s.Max)
			}
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("%s: Set(%d) = %v, want %v", s.Name, v, got, want)
			}
		}
	}
}

func TestSetClampsOutOfDomainInput(t *testing.T) {
	r := New(nil)
	r.Set(Hue, 200, MIDI)
	if got := r.Get(Hue); got != 1 {
		t.Errorf("Hue = %v, want 1", got)
	}
	r.SetValue(PointSize, -3)
	if got := r.Get(PointSize); got != 1 {
		t.Errorf("PointSize = %v, want 1", got)
	}
	r.SetValue(Saturation, math.NaN())
	if got := r.Get(Saturation); got != 1 {
		t.Errorf("Saturation = %v, want default 1", got)
	}
}

func TestEveryWriteMarksDirty(t *testing.T) {
	m := &countingMarker{}
	r := New(m)
	r.Set(Hue, 10, MIDI)
	r.SetValue(Hue, r.Get(Hue))
	r.SetValue(ClipX, 0)
	if m.n != 3 {
		t.Errorf("MarkDirty called %d times, want 3", m.n)
	}
}

func TestDefaults(t *testing.T) {
	r := New(nil)
	for _, s := range All() {
		if got := r.Get(s.ID); got != s.Default {
			t.Errorf("%s = %v, want default %v", s.Name, got, s.Default)
		}
	}
}

func TestLookup(t *testing.T) {
	id, err := Lookup("hue")
	if err != nil || id != Hue {
		t.Errorf("Lookup(hue) = %v, %v", id, err)
	}
	if _, err := Lookup("brightness"); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("Lookup(brightness) error = %v, want ErrUnknownParam", err)
	}
}

func TestUnknownIDPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Get with an unknown id did not panic")
		}
	}()
	New(nil).Get(numParams)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New(nil)
	snap := r.Snapshot()
	r.SetValue(Hue, 0.7)
	if got := snap.Get(Hue); got != 0 {
		t.Errorf("snapshot Hue = %v, want 0", got)
	}
}
