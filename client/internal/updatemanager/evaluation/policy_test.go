package evaluation

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

const testKind Kind = "test"

type testData struct {
	visited []string
}

func (d *testData) Kind() Kind { return testKind }

func (d *testData) Clone() Data {
	return &testData{visited: append([]string(nil), d.visited...)}
}

func (d *testData) CopyResult(src Data) {
	d.visited = append([]string(nil), src.(*testData).visited...)
}

type staticPolicy struct {
	name   string
	status EvalStatus
}

func (p staticPolicy) Name() string { return p.name }

func (p staticPolicy) Evaluate(_ *Context, data Data) EvalStatus {
	d := data.(*testData)
	d.visited = append(d.visited, p.name)
	return p.status
}

func TestChain_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		policies []Policy
		fallback Policy
		expected EvalStatus
		visited  []string
	}{
		{
			name:     "fallback decides when every policy defers",
			policies: []Policy{staticPolicy{"a", Continue}, staticPolicy{"b", Continue}},
			fallback: staticPolicy{"default", Succeeded},
			expected: Succeeded,
			visited:  []string{"a", "b", "default"},
		},
		{
			name:     "first non-continue ends the chain",
			policies: []Policy{staticPolicy{"a", Continue}, staticPolicy{"b", Failed}, staticPolicy{"c", Succeeded}},
			fallback: staticPolicy{"default", Succeeded},
			expected: Failed,
			visited:  []string{"a", "b"},
		},
		{
			name:     "ask again later propagates",
			policies: []Policy{staticPolicy{"a", AskAgainLater}},
			fallback: staticPolicy{"default", Succeeded},
			expected: AskAgainLater,
			visited:  []string{"a"},
		},
		{
			name:     "fallback may ask again later",
			policies: nil,
			fallback: staticPolicy{"default", AskAgainLater},
			expected: AskAgainLater,
			visited:  []string{"default"},
		},
		{
			name:     "misbehaving fallback fails the pass",
			policies: []Policy{staticPolicy{"a", Continue}},
			fallback: staticPolicy{"default", Continue},
			expected: Failed,
			visited:  []string{"a", "default"},
		},
	}

	clock := clockwork.NewFakeClock()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := NewChain(testKind, tc.fallback, tc.policies...)
			data := &testData{}

			status := chain.Evaluate(NewContext(clock, clock.Now().Add(time.Minute)), data)

			assert.Equal(t, tc.expected, status)
			assert.Equal(t, tc.visited, data.visited)
		})
	}
}

func TestEvalStatus_String(t *testing.T) {
	assert.Equal(t, "Succeeded", Succeeded.String())
	assert.Equal(t, "AskAgainLater", AskAgainLater.String())
	assert.True(t, Failed.IsFinal())
	assert.False(t, Continue.IsFinal())
}
