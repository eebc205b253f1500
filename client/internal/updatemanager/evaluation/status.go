package evaluation

// EvalStatus is the result of one policy invocation.
type EvalStatus int

const (
	// Failed ends the chain and the request with a negative decision.
	Failed EvalStatus = iota
	// Succeeded ends the chain and the request with the data as decided.
	Succeeded
	// AskAgainLater ends the current pass; the evaluator re-runs the chain
	// when a consulted async variable changes or a time trigger fires.
	AskAgainLater
	// Continue hands the decision to the next policy in the chain. It never
	// leaves the chain.
	Continue
)

func (s EvalStatus) String() string {
	switch s {
	case Failed:
		return "Failed"
	case Succeeded:
		return "Succeeded"
	case AskAgainLater:
		return "AskAgainLater"
	case Continue:
		return "Continue"
	default:
		return "Unknown"
	}
}

// IsFinal reports whether the status resolves a request.
func (s EvalStatus) IsFinal() bool {
	return s == Succeeded || s == Failed
}
