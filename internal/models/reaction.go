package models

import (
	"sort"
	"time"
)

// Reaction is a single user's emoji reaction to a message.
type Reaction struct {
	MessageID int64     `json:"messageId"`
	UserID    int64     `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// ReactionGroup is the aggregated per-emoji view of a message's reactions:
// the emoji, how many users reacted with it, and who they are.
type ReactionGroup struct {
	Emoji string  `json:"emoji"`
	Count int     `json:"count"`
	Users []int64 `json:"users"`
}

// GroupReactions derives the grouped summary from a raw per-user reaction
// list. Groups are sorted by emoji and member lists by user id, so the
// result is deterministic for any input order.
func GroupReactions(reactions []Reaction) []ReactionGroup {
	byEmoji := make(map[string][]int64)
	for _, r := range reactions {
		byEmoji[r.Emoji] = append(byEmoji[r.Emoji], r.UserID)
	}

	groups := make([]ReactionGroup, 0, len(byEmoji))
	for emoji, users := range byEmoji {
		sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
		groups = append(groups, ReactionGroup{
			Emoji: emoji,
			Count: len(users),
			Users: users,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Emoji < groups[j].Emoji })
	return groups
}
