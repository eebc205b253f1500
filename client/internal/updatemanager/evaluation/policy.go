package evaluation

import (
	log "github.com/sirupsen/logrus"
)

// Kind names a category of decision the engine answers.
type Kind string

// Data is the per-request input/output bundle shared by the policies of one
// chain. Implementations mark output fields with `hash:"ignore"` so that
// equivalent inputs fingerprint the same.
type Data interface {
	Kind() Kind
	// Clone returns a deep copy the evaluator can mutate without touching the
	// requester's value.
	Clone() Data
	// CopyResult copies the outputs of src, a Data of the same kind, into the
	// receiver. It is used to hand a coalesced result to every requester.
	CopyResult(src Data)
}

// Policy is one rule of a chain.
type Policy interface {
	Name() string
	Evaluate(ec *Context, data Data) EvalStatus
}

// Chain is an ordered list of policies terminated by a default policy that
// never returns Continue.
type Chain struct {
	kind     Kind
	policies []Policy
	fallback Policy
}

// NewChain creates a chain for kind. fallback is consulted when every policy
// deferred.
func NewChain(kind Kind, fallback Policy, policies ...Policy) Chain {
	return Chain{
		kind:     kind,
		policies: policies,
		fallback: fallback,
	}
}

// Kind returns the decision kind the chain answers.
func (c Chain) Kind() Kind {
	return c.kind
}

// Policies returns the chain members in evaluation order, fallback last.
func (c Chain) Policies() []Policy {
	all := make([]Policy, 0, len(c.policies)+1)
	all = append(all, c.policies...)
	if c.fallback != nil {
		all = append(all, c.fallback)
	}
	return all
}

// Evaluate runs the chain once against ec. The first policy returning
// anything other than Continue decides the pass.
func (c Chain) Evaluate(ec *Context, data Data) EvalStatus {
	for _, p := range c.Policies() {
		status := p.Evaluate(ec, data)
		if status == Continue {
			continue
		}
		log.Tracef("%s: policy %s returned %s", c.kind, p.Name(), status)
		return status
	}

	log.Errorf("%s: no policy in the chain reached a decision", c.kind)
	return Failed
}
