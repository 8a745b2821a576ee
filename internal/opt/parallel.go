package opt

import "golang.org/x/sync/errgroup"

// subtreesPerWorker is how many frontier subtrees each worker should get
// before the parallel search starts; more subtrees balance uneven trees.
const subtreesPerWorker = 4

// solveParallel expands the top of the tree breadth-first into a frontier of
// independent subtrees and searches them on a bounded worker pool. All
// workers share the incumbent and the node budget.
func solveParallel(inst *Instance, ctl *control, best *incumbent, eps float64, root *SearchNode, workers int) {
	frontier := expandFrontier(ctl, best, eps, root, workers*subtreesPerWorker)
	if len(frontier) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, node := range frontier {
		node := node
		g.Go(func() error {
			if ctl.stopped() {
				return nil
			}
			// Another worker may have raised the incumbent since expansion.
			if node.Bound() <= best.load()+eps {
				ctl.pruned.Add(1)
				return nil
			}
			newSearcher(inst, ctl, best, eps, node).run()
			return nil
		})
	}
	_ = g.Wait()
}

// expandFrontier replaces nodes by their children, level by level, until
// there are at least target open subtrees or the tree stops growing. Nodes
// expanded here are counted against the budget; frontier nodes are counted
// when a worker enters them.
func expandFrontier(ctl *control, best *incumbent, eps float64, root *SearchNode, target int) []*SearchNode {
	frontier := []*SearchNode{root}
	for len(frontier) < target {
		grew := false
		next := make([]*SearchNode, 0, len(frontier)*2)
		for _, nd := range frontier {
			if nd.Complete() {
				next = append(next, nd)
				continue
			}
			if !ctl.enter() {
				return nil
			}
			for _, ch := range nd.Children() {
				if ch.Bound() <= best.load()+eps {
					ctl.pruned.Add(1)
					continue
				}
				next = append(next, ch)
				grew = true
			}
		}
		frontier = next
		if !grew {
			break
		}
	}
	return frontier
}
