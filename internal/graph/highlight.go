package graph

// Neighbours returns the IDs within depth hops of start, start included.
// Edges are followed in both directions.
func (g *Graph) Neighbours(start string, depth int) map[string]int {
	dist := make(map[string]int)
	if !g.HasNode(start) {
		return dist
	}
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	dist[start] = 0
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if dist[cur] >= depth {
			continue
		}
		for _, next := range adj[cur] {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// Highlight marks start and every node within depth hops. It returns the
// number of highlighted nodes.
func (g *Graph) Highlight(start string, depth int) int {
	reached := g.Neighbours(start, depth)
	for i := range g.Nodes {
		_, g.Nodes[i].Highlighted = reached[g.Nodes[i].ID]
	}
	return len(reached)
}
