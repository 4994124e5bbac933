package identify

import "fmt"

// Outcome classifies an identification attempt
type Outcome int

const (
	// OutcomeFailed means the service could not be asked or answered malformed output
	OutcomeFailed Outcome = iota
	// OutcomeMatched means the service named an artwork present in the catalog
	OutcomeMatched
	// OutcomeNoMatch means the service reported the sentinel, or an id we do not know
	OutcomeNoMatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeNoMatch:
		return "no_match"
	default:
		return "failed"
	}
}

// Result is the outcome of one Identify call
type Result struct {
	Outcome   Outcome
	ArtworkID string
	Err       error
}

// Matched builds a result for a verified catalog id
func Matched(id string) Result {
	return Result{Outcome: OutcomeMatched, ArtworkID: id}
}

// NoMatch builds a result for an unidentified image
func NoMatch() Result {
	return Result{Outcome: OutcomeNoMatch}
}

// Failed builds a result for a transport, service or parse error
func Failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

func (r Result) String() string {
	switch r.Outcome {
	case OutcomeMatched:
		return fmt.Sprintf("matched(%s)", r.ArtworkID)
	case OutcomeNoMatch:
		return "no_match"
	default:
		return fmt.Sprintf("failed(%v)", r.Err)
	}
}
