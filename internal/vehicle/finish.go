package vehicle

import (
	"encoding/json"
	"fmt"
)

// FinishStatus distinguishes a real finish time from a did-not-finish.
type FinishStatus int

const (
	Running FinishStatus = iota
	Finished
	DNF
)

func (s FinishStatus) String() string {
	switch s {
	case Finished:
		return "finished"
	case DNF:
		return "dnf"
	default:
		return "running"
	}
}

// FinishTime is a race time in milliseconds or the DNF sentinel.
type FinishTime struct {
	Status FinishStatus
	Ms     float64
}

func FinishedAt(ms float64) FinishTime { return FinishTime{Status: Finished, Ms: ms} }
func DidNotFinish() FinishTime         { return FinishTime{Status: DNF} }

func (f FinishTime) Set() bool  { return f.Status != Running }
func (f FinishTime) Real() bool { return f.Status == Finished }

// Before reports whether f ranks ahead of o. A real time beats DNF and an
// unset time.
func (f FinishTime) Before(o FinishTime) bool {
	if !f.Real() {
		return false
	}
	if !o.Real() {
		return true
	}
	return f.Ms < o.Ms
}

func (f FinishTime) String() string {
	switch f.Status {
	case Finished:
		return fmt.Sprintf("%.2fs", f.Ms/1000)
	case DNF:
		return "DNF"
	default:
		return "-"
	}
}

type finishJSON struct {
	Status string   `json:"status"`
	Ms     *float64 `json:"ms,omitempty"`
}

func (f FinishTime) MarshalJSON() ([]byte, error) {
	out := finishJSON{Status: f.Status.String()}
	if f.Real() {
		ms := f.Ms
		out.Ms = &ms
	}
	return json.Marshal(out)
}

func (f *FinishTime) UnmarshalJSON(data []byte) error {
	var in finishJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case "finished":
		if in.Ms == nil {
			return fmt.Errorf("finished time without ms")
		}
		*f = FinishedAt(*in.Ms)
	case "dnf":
		*f = DidNotFinish()
	case "running", "":
		*f = FinishTime{}
	default:
		return fmt.Errorf("unknown finish status %q", in.Status)
	}
	return nil
}
