package querycache

import "time"

type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// State is an immutable view of one entry.
type State struct {
	Key       Key
	Value     any
	HasValue  bool
	Err       error
	Status    Status
	Fetching  bool
	Stale     bool
	Disabled  bool
	Version   uint64
	UpdatedAt time.Time
}

// Snapshot is the typed form of State handed to views.
type Snapshot[T any] struct {
	Key      Key
	Data     T
	HasData  bool
	Err      error
	Status   Status
	Fetching bool
	Stale    bool
	Disabled bool
	Version  uint64
}

func (s Snapshot[T]) IsPending() bool { return s.Status == StatusPending }
func (s Snapshot[T]) IsError() bool   { return s.Status == StatusError }
func (s Snapshot[T]) IsSuccess() bool { return s.Status == StatusSuccess }

// Loading reports a first load that has not produced data yet.
func (s Snapshot[T]) Loading() bool { return !s.HasData && s.Status == StatusPending && !s.Disabled }

func SnapshotOf[T any](st State) Snapshot[T] {
	out := Snapshot[T]{
		Key:      st.Key,
		Err:      st.Err,
		Status:   st.Status,
		Fetching: st.Fetching,
		Stale:    st.Stale,
		Disabled: st.Disabled,
		Version:  st.Version,
	}
	if st.HasValue {
		if v, ok := st.Value.(T); ok {
			out.Data = v
			out.HasData = true
		}
	}
	return out
}
