// Package backend tracks the execution providers a process can place graph
// nodes on.
//
// Providers register an availability probe (usually from their package init)
// and the placement hook assigns provider identifiers to nodes. The layout
// optimizer only ever sees the identifier strings; whether a provider is
// actually usable on this machine is the probe's concern.
package backend

import (
	"sort"
	"sync"

	"k8s.io/klog/v2"

	"github.com/born-ml/relayout/internal/graph"
)

// Execution provider identifiers.
const (
	CPUExecutionProvider             = "CPUExecutionProvider"
	WebGPUExecutionProvider          = "WebGPUExecutionProvider"
	InternalTestingExecutionProvider = "InternalTestingExecutionProvider"
)

// Probe reports whether a provider is usable on this machine.
type Probe func() bool

var (
	mu     sync.RWMutex
	probes = map[string]Probe{
		CPUExecutionProvider: func() bool { return true },
	}
)

// Register adds a provider probe. Safe to call from package init.
func Register(name string, probe Probe) {
	mu.Lock()
	defer mu.Unlock()
	probes[name] = probe
}

// Available returns the registered providers whose probe succeeds, sorted
// by name. CPU is always available.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	var out []string
	for name, probe := range probes {
		if probe() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Assign places every unassigned node in the graph on the given provider
// and returns the number of nodes assigned.
//
// Real placement engines partition the graph per provider capability; for
// the optimizer CLI a whole-graph assignment is enough to exercise the
// backend-conditional rewrite rules.
func Assign(g *graph.Graph, provider string) int {
	assigned := 0
	for _, n := range g.Nodes() {
		if n.Backend() == "" {
			n.SetBackend(provider)
			assigned++
		}
	}
	klog.V(1).Infof("assigned %d nodes to %s", assigned, provider)
	return assigned
}
