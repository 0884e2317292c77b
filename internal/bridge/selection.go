package bridge

import "sort"

// gasOptimize reorders a withdrawal batch per spec §4.3 "Gas optimization":
// (1) sort by amount/estimatedGas descending, (2) group by (token,
// recipient), (3) within each group move zero-amount entries first, (4)
// concatenate groups in their first-seen order. estimatedGas is advisory
// and never populated by the ingest path (spec §9 Open Question); a zero
// value falls back to ordering by amount alone rather than dividing by
// zero.
func gasOptimize(ops []*Operation) []*Operation {
	if len(ops) == 0 {
		return ops
	}

	ranked := append([]*Operation(nil), ops...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return gasRatio(ranked[i]) > gasRatio(ranked[j])
	})

	type group struct {
		key   string
		items []*Operation
	}
	order := make([]string, 0, len(ranked))
	groups := make(map[string]*group)
	for _, op := range ranked {
		key := op.Token + "\x00" + op.Recipient
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.items = append(g.items, op)
	}

	out := make([]*Operation, 0, len(ranked))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.items, func(i, j int) bool {
			return (g.items[i].Amount == 0) && (g.items[j].Amount != 0)
		})
		out = append(out, g.items...)
	}
	return out
}

func gasRatio(op *Operation) float64 {
	if op.EstimatedGas == 0 {
		return float64(op.Amount)
	}
	return float64(op.Amount) / float64(op.EstimatedGas)
}
