package worker

import "fmt"

// State: Worker 生命周期状态。
//
//	NotStarted → Resuming → Streaming ⇄ Flushing
//	Streaming → Completed
//	任意非终态 → Failed
type State int

const (
	NotStarted State = iota
	Resuming
	Streaming
	Flushing
	Completed
	Failed
)

var stateNames = [...]string{"not_started", "resuming", "streaming", "flushing", "completed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText 使 Summary 以名称形式输出状态。
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText 按名称解析状态，未知名称报错。
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if string(b) == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown worker state %q", b)
}

// Terminal 报告是否为终态。
func (s State) Terminal() bool { return s == Completed || s == Failed }

func (s State) canTransition(to State) bool {
	if to == Failed {
		return !s.Terminal()
	}
	switch s {
	case NotStarted:
		return to == Resuming
	case Resuming:
		return to == Streaming
	case Streaming:
		return to == Flushing || to == Completed
	case Flushing:
		return to == Streaming
	}
	return false
}
