package scheduler

type State int32

const (
	StateIdle State = iota
	StateFetching
	StateAggregating
	StateForecasting
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateAggregating:
		return "aggregating"
	case StateForecasting:
		return "forecasting"
	case StatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}
