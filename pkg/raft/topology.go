package raft

// activeVoters returns the case-insensitive union of current and
// changing topology voters, minus self (§4.2: "peer set for a fan-out").
func activeVoters(current Topology, changing Topology, hasChanging bool, self string) []string {
	self = normalizeID(self)

	seen := make(map[string]struct{}, len(current.Voters))
	ids := make([]string, 0, len(current.Voters))

	add := func(id string) {
		if id == self {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for id := range current.Voters {
		add(id)
	}
	if hasChanging {
		for id := range changing.Voters {
			add(id)
		}
	}

	return ids
}
