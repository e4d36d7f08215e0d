package transfer

import (
	"sync"

	"github.com/pkg/errors"
)

type State int

const (
	Idle State = iota
	Validating
	Building
	AwaitingSignature
	Submitting
	Completed
	Failed
)

var stateNames = map[State]string{
	Idle:              "idle",
	Validating:        "validating",
	Building:          "building",
	AwaitingSignature: "awaiting_signature",
	Submitting:        "submitting",
	Completed:         "completed",
	Failed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether an attempt in s is over.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

var transitions = map[State][]State{
	Idle:              {Validating},
	Validating:        {Building},
	Building:          {AwaitingSignature, Failed},
	AwaitingSignature: {Submitting, Failed},
	Submitting:        {Completed, Failed},
}

var ErrIllegalTransition = errors.New("illegal transfer state transition")

// Machine tracks one transfer attempt. A new attempt needs a new Machine.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []State
}

func NewMachine() *Machine {
	return &Machine{state: Idle, history: []State{Idle}}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History lists every state the attempt has been in, oldest first.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// Transition moves to next if the edge exists.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return errors.Wrapf(ErrIllegalTransition, "%s -> %s", m.state, next)
}
