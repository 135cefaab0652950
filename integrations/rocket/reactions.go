package rocket

import (
	"sort"

	"communityxp/core"
)

// ReactionKey identifies a reaction independently of storage: who reacted with what.
type ReactionKey struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// Flatten turns the platform reaction map into a sorted, duplicate-free list of keys.
func Flatten(reactions map[string]ReactionUsers) []ReactionKey {
	seen := map[ReactionKey]struct{}{}
	var out []ReactionKey
	for emoji, users := range reactions {
		for _, username := range users.Usernames {
			k := ReactionKey{Username: username, Content: emoji}
			if _, ok := seen[k]; ok || username == "" {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Content != out[j].Content {
			return out[i].Content < out[j].Content
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// Diff compares the desired reaction set with the stored records. Added holds keys with no
// stored record; Removed holds stored records no longer desired, plus duplicates of a key.
func Diff(desired []ReactionKey, stored []core.Reaction) (added []ReactionKey, removed []core.Reaction) {
	want := make(map[ReactionKey]bool, len(desired))
	for _, k := range desired {
		want[k] = true
	}
	have := make(map[ReactionKey]bool, len(stored))
	for _, r := range stored {
		k := ReactionKey{Username: r.Username, Content: r.Content}
		if !want[k] || have[k] {
			removed = append(removed, r)
			continue
		}
		have[k] = true
	}
	for _, k := range desired {
		if !have[k] {
			added = append(added, k)
		}
	}
	return added, removed
}
