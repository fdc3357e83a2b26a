package engine

import (
	"sort"

	"github.com/moat-io/moat/internal/ir"
	"github.com/moat-io/moat/internal/schema"
)

// DAG is the dependency graph over resource addresses. Creation order is a
// topological sort; destruction order is its reverse.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string
	revOrder []string
}

type dagNode struct {
	addr     string
	index    int // declaration position, used as a deterministic tie-break
	edges    []string
	revEdges []string
}

// BuildDAG constructs a dependency graph from resources, resolving both
// explicit DependsOn entries and implicit ptr:// references. A cycle yields
// a *schema.CycleError naming every member.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode)}

	for i, res := range resources {
		addr := ir.Addr(res)
		dag.nodes[addr] = &dagNode{addr: addr, index: i}
	}

	for _, res := range resources {
		node := dag.nodes[ir.Addr(res)]

		for _, dep := range res.DependsOn {
			if _, ok := dag.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}

		for _, ref := range ir.ExtractRefs(res.Properties) {
			depAddr := ir.RefToAddr(ref)
			if depAddr == "" || depAddr == node.addr {
				continue
			}
			if _, ok := dag.nodes[depAddr]; ok {
				node.edges = append(node.edges, depAddr)
			}
		}
	}

	return dag.finish()
}

// BuildDAGFromState constructs a dependency graph from recorded state, used
// for destroys where no configuration is available. Dependencies of each
// resource were captured at apply time.
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode)}

	for i, res := range resources {
		addr := ir.StateAddr(res)
		dag.nodes[addr] = &dagNode{addr: addr, index: i}
	}
	for _, res := range resources {
		node := dag.nodes[ir.StateAddr(res)]
		for _, dep := range res.Dependencies {
			if _, ok := dag.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}
	}

	return dag.finish()
}

func (d *DAG) finish() (*DAG, error) {
	for addr, node := range d.nodes {
		for _, dep := range node.edges {
			d.nodes[dep].revEdges = append(d.nodes[dep].revEdges, addr)
		}
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.order = order

	d.revOrder = make([]string, len(order))
	for i, addr := range order {
		d.revOrder[len(order)-1-i] = addr
	}
	return d, nil
}

// CreationOrder returns addresses in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns addresses in reverse dependency order.
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of addr.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every address reachable from addr along
// dependency edges.
func (d *DAG) TransitiveDeps(addr string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(a string) {
		node, ok := d.nodes[a]
		if !ok {
			return
		}
		for _, dep := range node.edges {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(addr)
	return out
}

// Dependents returns the addresses that directly depend on addr.
func (d *DAG) Dependents(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.revEdges
	}
	return nil
}

// topoSort runs Kahn's algorithm. Ready nodes are drained in declaration
// order so plans are stable across runs.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
	}

	var queue []string
	for addr, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, addr)
		}
	}
	d.sortByIndex(queue)

	var sorted []string
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, addr)

		var ready []string
		for _, dependent := range d.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		d.sortByIndex(ready)
		queue = append(queue, ready...)
	}

	if len(sorted) != len(d.nodes) {
		residual := make(map[string]bool)
		for addr, deg := range inDegree {
			if deg > 0 {
				residual[addr] = true
			}
		}
		// Nodes merely downstream of a cycle are also left unprocessed.
		// Peel off anything nothing in the residual depends on until only
		// the cycle itself remains.
		for changed := true; changed; {
			changed = false
			for addr := range residual {
				hasDependent := false
				for _, dependent := range d.nodes[addr].revEdges {
					if residual[dependent] {
						hasDependent = true
						break
					}
				}
				if !hasDependent {
					delete(residual, addr)
					changed = true
				}
			}
		}
		members := make([]string, 0, len(residual))
		for addr := range residual {
			members = append(members, addr)
		}
		d.sortByIndex(members)
		return nil, &schema.CycleError{Members: members}
	}

	return sorted, nil
}

func (d *DAG) sortByIndex(addrs []string) {
	sort.Slice(addrs, func(i, j int) bool {
		return d.nodes[addrs[i]].index < d.nodes[addrs[j]].index
	})
}
