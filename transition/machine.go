package transition

// Machine is a workflow's legal edge set. Workflows consult it before
// issuing a claim; the store never does.
type Machine struct {
	edges    map[Status][]Status
	terminal map[Status]bool
}

// NewMachine builds an empty machine.
func NewMachine() *Machine {
	return &Machine{
		edges:    make(map[Status][]Status),
		terminal: make(map[Status]bool),
	}
}

// Edge registers a legal transition from -> to and returns the machine for
// chaining.
func (m *Machine) Edge(from, to Status) *Machine {
	m.edges[from] = append(m.edges[from], to)
	return m
}

// Terminal marks statuses as terminal: no edges leave them.
func (m *Machine) Terminal(statuses ...Status) *Machine {
	for _, s := range statuses {
		m.terminal[s] = true
	}
	return m
}

// Can reports whether from -> to is a registered edge.
func (m *Machine) Can(from, to Status) bool {
	if m.terminal[from] {
		return false
	}
	for _, next := range m.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status is terminal.
func (m *Machine) IsTerminal(s Status) bool {
	return m.terminal[s]
}

// Sources returns every status with a registered edge into target. Useful
// for building a Claim's allowed-source set from the machine itself.
func (m *Machine) Sources(target Status) []Status {
	var sources []Status
	for from, tos := range m.edges {
		if m.terminal[from] {
			continue
		}
		for _, to := range tos {
			if to == target {
				sources = append(sources, from)
				break
			}
		}
	}
	return sources
}
