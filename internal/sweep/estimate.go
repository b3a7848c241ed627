package sweep

import (
	"fmt"
	"time"
)

// TimeEstimate is the one-shot completion projection taken after the
// estimation window: the elapsed time for the first WindowSteps steps,
// linearly scaled to the full step count. It is computed once per sweep
// and held fixed even if later steps run faster or slower.
type TimeEstimate struct {
	WindowSteps    int           `json:"window_steps"`
	TotalSteps     int           `json:"total_steps"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	ProjectedTotal time.Duration `json:"projected_total_ns"`
}

// NewTimeEstimate projects the total sweep duration from the elapsed time
// of the first window steps. window and total must be positive and window
// must not exceed total; callers clamp before constructing.
func NewTimeEstimate(elapsed time.Duration, window, total int) TimeEstimate {
	est := TimeEstimate{
		WindowSteps: window,
		TotalSteps:  total,
		Elapsed:     elapsed,
	}
	if window > 0 && total > 0 {
		est.ProjectedTotal = time.Duration(float64(elapsed) * float64(total) / float64(window))
	}
	return est
}

func (e TimeEstimate) String() string {
	return fmt.Sprintf("first %d of %d steps took %s; projecting %s total",
		e.WindowSteps, e.TotalSteps, e.Elapsed.Round(time.Millisecond), e.ProjectedTotal.Round(time.Second))
}
