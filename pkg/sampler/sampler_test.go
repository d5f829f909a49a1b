package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/distatus/battery"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name   string
		snap   *Snapshot
		want   float64
		wantOK bool
	}{
		{name: "nil snapshot", snap: nil, wantOK: false},
		{name: "zero scale", snap: &Snapshot{Level: 45, Scale: 0}, wantOK: false},
		{name: "negative scale", snap: &Snapshot{Level: 45, Scale: -1}, wantOK: false},
		{name: "45 of 100", snap: &Snapshot{Level: 45, Scale: 100}, want: 45, wantOK: true},
		{name: "empty", snap: &Snapshot{Level: 0, Scale: 100}, want: 0, wantOK: true},
		{name: "full", snap: &Snapshot{Level: 255, Scale: 255}, want: 100, wantOK: true},
		{name: "fractional", snap: &Snapshot{Level: 1, Scale: 3}, want: 100.0 / 3, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Percent(tt.snap)
			if ok != tt.wantOK {
				t.Fatalf("Percent() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Percent != tt.want {
				t.Errorf("Percent() = %v, want %v", got.Percent, tt.want)
			}
		})
	}
}

func TestPercentWithinRange(t *testing.T) {
	for _, scale := range []int{1, 7, 100, 255, 4096} {
		for level := 0; level <= scale; level++ {
			r, ok := Percent(&Snapshot{Level: level, Scale: scale})
			if !ok {
				t.Fatalf("Percent(%d/%d) produced no reading", level, scale)
			}
			if r.Percent < 0 || r.Percent > 100 {
				t.Fatalf("Percent(%d/%d) = %v, out of range", level, scale, r.Percent)
			}
			if want := float64(level) * 100 / float64(scale); r.Percent != want {
				t.Fatalf("Percent(%d/%d) = %v, want %v", level, scale, r.Percent, want)
			}
		}
	}
}

func TestSample(t *testing.T) {
	ctx := context.Background()

	if _, ok := Sample(ctx, nil); ok {
		t.Fatalf("Sample(nil) should produce no reading")
	}

	src := NewStaticSource(nil)
	if _, ok := Sample(ctx, src); ok {
		t.Fatalf("Sample() with unavailable source should produce no reading")
	}

	src.Set(&Snapshot{Level: 45, Scale: 100})
	r, ok := Sample(ctx, src)
	if !ok || r.Percent != 45 {
		t.Fatalf("Sample() = %v, %v, want 45, true", r.Percent, ok)
	}

	src.Set(&Snapshot{Level: 45, Scale: 0})
	if _, ok := Sample(ctx, src); ok {
		t.Fatalf("Sample() with zero scale should produce no reading")
	}
}

func TestSystemSource(t *testing.T) {
	tests := []struct {
		name      string
		batteries []*battery.Battery
		err       error
		want      *Snapshot
		wantErr   bool
	}{
		{
			name:    "no batteries",
			wantErr: true,
		},
		{
			name:    "read error",
			err:     errors.New("boom"),
			wantErr: true,
		},
		{
			name:      "single battery",
			batteries: []*battery.Battery{{Current: 22500, Full: 50000}},
			want:      &Snapshot{Level: 22500, Scale: 50000},
		},
		{
			name: "two batteries summed, partial ignored",
			batteries: []*battery.Battery{
				{Current: 10000, Full: 20000},
				nil,
				{Current: 5000.4, Full: 30000},
				{Current: 100, Full: 0},
			},
			err:  errors.New("partial"),
			want: &Snapshot{Level: 15000, Scale: 50000},
		},
		{
			name:      "no full capacity",
			batteries: []*battery.Battery{{Current: 100, Full: 0}},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SystemSource{getAll: func() ([]*battery.Battery, error) { return tt.batteries, tt.err }}
			got, err := s.Snapshot(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrSamplingUnavailable) {
					t.Fatalf("Snapshot() error = %v, want ErrSamplingUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if *got != *tt.want {
				t.Errorf("Snapshot() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}
