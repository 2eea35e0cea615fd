package core

// writePlan is the disk-cache write decision for one task.
type writePlan struct {
	// original: write fetched bytes under the base key right after the fetch.
	original bool
	// encoded: encode the processed image and write it under the encoded key.
	encoded bool
}

// planWrites resolves the effective policy once per task.  The plan depends
// only on the policy and on whether the resource has processors.
func planWrites(policy CachePolicy, hasProcessors bool) writePlan {
	switch policy {
	case PolicyStoreOriginal:
		return writePlan{original: true}
	case PolicyStoreEncoded:
		return writePlan{encoded: true}
	default: // automatic
		if hasProcessors {
			return writePlan{encoded: true}
		}
		return writePlan{original: true}
	}
}

// lookupKeys lists the disk keys consulted for a task, in order.  The encoded
// key always comes first for processed resources; the base key is consulted
// for them only when the plan itself stores originals, in which case a hit is
// decoded and re-processed.
func lookupKeys(key CacheKey, plan writePlan) []string {
	if !key.Processed() {
		return []string{key.Base}
	}
	if plan.original {
		return []string{key.Encoded, key.Base}
	}
	return []string{key.Encoded}
}
