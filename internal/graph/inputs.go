package graph

import (
	"sort"
	"strconv"
	"strings"
)

// GetNodeInputs resolves the input bundle for nodeID from the outputs already
// produced upstream. Each incoming edge binds its source's output under the
// edge's target handle (DefaultHandle when empty). Edges whose source has no
// output yet are omitted; deciding whether a missing input is an error is the
// executor's job.
//
// When two edges target the same handle, the first binds the handle name and
// later ones bind handle_2, handle_3, ... in edge order.
func GetNodeInputs(nodeID string, edges []Edge, outputs Outputs) Inputs {
	inputs := Inputs{}
	for _, e := range edges {
		if e.Target != nodeID {
			continue
		}
		value, ok := outputs[e.Source]
		if !ok {
			continue
		}
		handle := e.TargetHandle
		if handle == "" {
			handle = DefaultHandle
		}
		key := handle
		for n := 2; ; n++ {
			if _, taken := inputs[key]; !taken {
				break
			}
			key = handle + "_" + strconv.Itoa(n)
		}
		inputs[key] = value
	}
	return inputs
}

// HandleFamily returns the keys of inputs that belong to the handle family
// prefix: the bare prefix plus every numbered variant (prefix_1, prefix_2,
// and duplicates such as prefix_1_2), in numeric order with the bare prefix first.
func HandleFamily(inputs Inputs, prefix string) []string {
	type member struct {
		key string
		seq []int
	}
	var members []member
	for key := range inputs {
		if key == prefix {
			members = append(members, member{key: key})
			continue
		}
		rest, ok := strings.CutPrefix(key, prefix+"_")
		if !ok {
			continue
		}
		seq, ok := parseSuffix(rest)
		if !ok {
			continue
		}
		members = append(members, member{key: key, seq: seq})
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i].seq, members[j].seq
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.key
	}
	return keys
}

func parseSuffix(s string) ([]int, bool) {
	parts := strings.Split(s, "_")
	seq := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		seq[i] = n
	}
	return seq, true
}
