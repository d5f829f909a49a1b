// Package render turns persisted widget state into a view model and
// delivers it to whoever displays the widget.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/battmeter/battmeter/pkg/widget"
)

// SegmentCount is the number of segments in the battery bar.
const SegmentCount = 10

// View is what a widget shows for a given state.
type View struct {
	Loading  bool    `json:"loading"`
	Percent  float64 `json:"percent"`
	Label    string  `json:"label,omitempty"`
	Segments int     `json:"segments"`
	Updated  string  `json:"updated,omitempty"`
}

// Build derives the view for st. A state without a percentage is loading.
func Build(st widget.State) View {
	var v View
	if st.LastUpdatedMillis != nil {
		v.Updated = st.LastUpdated().Local().Format(time.DateTime)
	}
	if st.Percent == nil {
		v.Loading = true
		return v
	}

	p := *st.Percent
	v.Percent = p
	v.Label = fmt.Sprintf("%d%%", int(p))
	// Segment k (k = 0..9) starts at 10k+1 percent and is filled once the
	// charge reaches that value.
	for i := 1; i <= 100; i += 100 / SegmentCount {
		if float64(i) <= p {
			v.Segments++
		}
	}
	return v
}

var (
	filledColor = color.New(color.FgGreen)
	emptyColor  = color.New(color.FgHiBlack)
	labelColor  = color.New(color.Bold)
)

// Text renders v as a single terminal line.
func Text(v View) string {
	if v.Loading {
		return color.YellowString("[loading...]")
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(filledColor.Sprint(strings.Repeat("■", v.Segments)))
	b.WriteString(emptyColor.Sprint(strings.Repeat("□", SegmentCount-v.Segments)))
	b.WriteString("] ")
	b.WriteString(labelColor.Sprint(v.Label))
	return b.String()
}

// Age returns how long ago the state was updated, rounded to seconds.
func Age(st widget.State, now time.Time) time.Duration {
	if st.LastUpdatedMillis == nil {
		return 0
	}
	d := now.Sub(st.LastUpdated()).Round(time.Second)
	if d < 0 {
		return 0
	}
	return d
}
