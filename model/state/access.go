package state

import "time"

// Op classifies an access-log entry.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Access is one entry of a Manager's ordered access log.
type Access struct {
	Agent string    `json:"agent"`
	Key   string    `json:"key"`
	Op    Op        `json:"op"`
	At    time.Time `json:"at"`
}

// KeyAccess aggregates per-key access counters.
type KeyAccess struct {
	Reads  int      `json:"reads"`
	Writes int      `json:"writes"`
	Agents []string `json:"agents,omitempty"`
}

func (k *KeyAccess) addAgent(agent string) {
	for _, existing := range k.Agents {
		if existing == agent {
			return
		}
	}
	k.Agents = append(k.Agents, agent)
}

// AccessReport summarises how the execution used its state: which initial
// keys were never read and how often each key was touched.
type AccessReport struct {
	UnusedKeys     []string              `json:"unusedKeys,omitempty"`
	AccessPatterns map[string]*KeyAccess `json:"accessPatterns,omitempty"`
}
