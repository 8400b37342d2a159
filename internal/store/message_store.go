// Package store holds the authoritative in-memory message state for all open
// conversations. Every mutation, from any ingestion path, goes through one of
// its published operations; each operation is a single atomic transition
// under the store mutex, so partial updates are never visible.
//
// Lookups fail soft by design: late, duplicate and out-of-order delivery is
// the expected steady state for this layer, not an error.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/pkg/util"
)

type MessageStore struct {
	mu     sync.Mutex
	byConv map[int64][]models.Message
	active int64
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byConv: make(map[int64][]models.Message),
	}
}

// SetActiveConversation records which conversation is currently rendered.
// Zero clears the selection.
func (s *MessageStore) SetActiveConversation(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conversationID
}

// ActiveConversation returns the currently rendered conversation id, or zero.
func (s *MessageStore) ActiveConversation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetConversationMessages replaces the full list for a conversation, used on
// initial load. The result is deduplicated by message identity and sorted.
func (s *MessageStore) SetConversationMessages(conversationID int64, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		msg.ConversationID = conversationID
		list = upsert(list, msg)
	}
	sortMessages(list)
	s.byConv[conversationID] = list
}

// AppendOrMerge inserts a message or, when an entry with the same server id
// or client id already exists, merges the incoming fields into it. This is
// the single dedup chokepoint: optimistic creation, socket acks, broadcasts,
// REST responses and history loads all funnel through it.
func (s *MessageStore) AppendOrMerge(msg models.Message) {
	if msg.ConversationID <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := upsert(s.byConv[msg.ConversationID], msg)
	sortMessages(list)
	s.byConv[msg.ConversationID] = list
}

// LoadOlderHistory merges a page of history into the existing list using the
// same merge-by-identity rule. Direction only decides which side the page is
// stitched onto before the authoritative re-sort.
func (s *MessageStore) LoadOlderHistory(conversationID int64, older []models.Message, direction models.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byConv[conversationID]
	if direction == models.DirectionOlder {
		merged := make([]models.Message, 0, len(older)+len(list))
		for _, msg := range older {
			msg.ConversationID = conversationID
			merged = upsert(merged, msg)
		}
		for _, msg := range list {
			merged = upsert(merged, msg)
		}
		list = merged
	} else {
		for _, msg := range older {
			msg.ConversationID = conversationID
			list = upsert(list, msg)
		}
	}
	sortMessages(list)
	s.byConv[conversationID] = list
}

// ReplaceOptimistic overwrites the optimistic entry identified by clientID
// with the server-confirmed message, preserving the client id and marking
// the entry sent. When no optimistic entry exists (the confirmation raced
// ahead of the local insert) the message falls back to a generic merge so it
// is never lost.
func (s *MessageStore) ReplaceOptimistic(clientID string, serverMsg models.Message) {
	if clientID == "" || serverMsg.ConversationID <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	serverMsg.ClientMessageID = clientID
	if serverMsg.LocalStatus == "" {
		serverMsg.LocalStatus = models.StatusSent
	}

	list := s.byConv[serverMsg.ConversationID]
	idx := -1
	for i := range list {
		if list[i].ClientMessageID == clientID {
			idx = i
			break
		}
	}
	if idx < 0 {
		list = upsert(list, serverMsg)
		sortMessages(list)
		s.byConv[serverMsg.ConversationID] = list
		return
	}

	// Drop any other entry already carrying the confirmed server id so the
	// replacement cannot introduce a duplicate.
	next := list[:0]
	for i := range list {
		if i != idx && serverMsg.Confirmed() && list[i].ID == serverMsg.ID {
			continue
		}
		next = append(next, list[i])
	}
	for i := range next {
		if next[i].ClientMessageID == clientID {
			next[i] = serverMsg
			break
		}
	}
	sortMessages(next)
	s.byConv[serverMsg.ConversationID] = next
}

// MarkStatus applies a targeted delivery/read/local-status patch to one
// message. Content fields are never touched. Returns false when nothing
// matched; that is a no-op, not an error.
func (s *MessageStore) MarkStatus(conversationID int64, ref models.MessageRef, patch models.StatusPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byConv[conversationID]
	for i := range list {
		if !ref.Matches(&list[i]) {
			continue
		}
		if patch.IsDelivered != nil {
			list[i].IsDelivered = *patch.IsDelivered
		}
		if patch.IsRead != nil {
			list[i].IsRead = *patch.IsRead
		}
		if patch.LocalStatus != nil {
			list[i].LocalStatus = *patch.LocalStatus
		}
		return true
	}
	return false
}

// UpdateMessage applies a generic partial update located by server id or
// client id, scanning for the owning conversation when it is not supplied.
func (s *MessageStore) UpdateMessage(patch models.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversationID := patch.ConversationID
	if conversationID == 0 {
		conversationID = s.findConversation(patch.Ref())
		if conversationID == 0 {
			return false
		}
	}

	list := s.byConv[conversationID]
	ref := patch.Ref()
	for i := range list {
		if !ref.Matches(&list[i]) {
			continue
		}
		if patch.Content != nil {
			list[i].Content = *patch.Content
		}
		if patch.EncryptedContent != nil {
			list[i].EncryptedContent = *patch.EncryptedContent
		}
		if patch.UpdatedAt != nil {
			list[i].UpdatedAt = *patch.UpdatedAt
		}
		return true
	}
	return false
}

// RemoveMessage deletes by server id from whichever conversation holds it.
func (s *MessageStore) RemoveMessage(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conversationID, list := range s.byConv {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			s.byConv[conversationID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveExpired drops every ephemeral message whose expiry has passed, in
// any conversation. Returns how many entries were removed.
func (s *MessageStore) RemoveExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for conversationID, list := range s.byConv {
		kept := make([]models.Message, 0, len(list))
		for i := range list {
			if list[i].Expired(now) {
				continue
			}
			kept = append(kept, list[i])
		}
		if len(kept) != len(list) {
			removed += len(list) - len(kept)
			s.byConv[conversationID] = kept
		}
	}
	return removed
}

// ToggleReaction updates the raw per-user reaction list and the derived
// grouped summary in one transition. With forced nil it toggles relative to
// current membership; otherwise it drives membership to the forced state.
func (s *MessageStore) ToggleReaction(conversationID, messageID int64, emoji string, userID int64, forced *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byConv[conversationID]
	for i := range list {
		if list[i].ID != messageID {
			continue
		}
		msg := &list[i]

		member := false
		for _, r := range msg.Reactions {
			if r.UserID == userID && r.Emoji == emoji {
				member = true
				break
			}
		}
		target := !member
		if forced != nil {
			target = *forced
		}
		if target == member {
			return true
		}

		if target {
			msg.Reactions = append(msg.Reactions, models.Reaction{
				MessageID: messageID,
				UserID:    userID,
				Emoji:     emoji,
			})
		} else {
			// Filter into a fresh slice; the old backing array may still be
			// referenced by a snapshot handed out earlier.
			kept := make([]models.Reaction, 0, len(msg.Reactions))
			for _, r := range msg.Reactions {
				if r.UserID == userID && r.Emoji == emoji {
					continue
				}
				kept = append(kept, r)
			}
			msg.Reactions = kept
		}
		msg.ReactionGroups = models.GroupReactions(msg.Reactions)
		return true
	}
	return false
}

// Conversation returns a snapshot copy of a conversation's ordered list.
// Nested slices are cloned too, so no later store mutation can reach into a
// snapshot already handed out.
func (s *MessageStore) Conversation(conversationID int64) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byConv[conversationID]
	out := make([]models.Message, len(list))
	for i := range list {
		out[i] = cloneMessage(list[i])
	}
	return out
}

// Find returns a copy of the addressed message, if present.
func (s *MessageStore) Find(conversationID int64, ref models.MessageRef) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.byConv[conversationID] {
		if ref.Matches(&s.byConv[conversationID][i]) {
			return cloneMessage(s.byConv[conversationID][i]), true
		}
	}
	return models.Message{}, false
}

// cloneMessage copies a message along with its nested slices and pointers.
func cloneMessage(m models.Message) models.Message {
	m.Attachments = append([]models.Attachment(nil), m.Attachments...)
	m.Reactions = append([]models.Reaction(nil), m.Reactions...)
	m.ReactionGroups = append([]models.ReactionGroup(nil), m.ReactionGroups...)
	for i := range m.ReactionGroups {
		m.ReactionGroups[i].Users = append([]int64(nil), m.ReactionGroups[i].Users...)
	}
	if m.RepliedTo != nil {
		reply := *m.RepliedTo
		m.RepliedTo = &reply
	}
	return m
}

// Clear drops all state for one conversation.
func (s *MessageStore) Clear(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConv, conversationID)
}

// findConversation locates the conversation holding the referenced message.
// Caller must hold the lock.
func (s *MessageStore) findConversation(ref models.MessageRef) int64 {
	for conversationID, list := range s.byConv {
		for i := range list {
			if ref.Matches(&list[i]) {
				return conversationID
			}
		}
	}
	return 0
}

// upsert merges msg into list by identity or appends it. The existing
// entry's fields win unless the incoming message explicitly supplies a
// replacement value.
func upsert(list []models.Message, msg models.Message) []models.Message {
	for i := range list {
		if list[i].SameIdentity(&msg) {
			mergeInto(&list[i], msg)
			return list
		}
	}
	return append(list, msg)
}

// mergeInto copies the explicitly-set fields of src over dst.
func mergeInto(dst *models.Message, src models.Message) {
	if src.Confirmed() {
		dst.ID = src.ID
	}
	if src.ClientMessageID != "" {
		dst.ClientMessageID = src.ClientMessageID
	}
	if src.SenderID > 0 {
		dst.SenderID = src.SenderID
	}
	if src.Content != "" {
		dst.Content = src.Content
	}
	if src.EncryptedContent != "" {
		dst.EncryptedContent = src.EncryptedContent
	}
	if len(src.Attachments) > 0 {
		dst.Attachments = src.Attachments
	}
	if src.RepliedToID > 0 {
		dst.RepliedToID = src.RepliedToID
	}
	if src.RepliedTo != nil {
		dst.RepliedTo = src.RepliedTo
	}
	if src.IsDelivered {
		dst.IsDelivered = true
	}
	if src.IsRead {
		dst.IsRead = true
	}
	if src.IsEphemeral {
		dst.IsEphemeral = true
	}
	if !src.ExpiresAt.IsZero() {
		dst.ExpiresAt = src.ExpiresAt
	}
	if src.LocalStatus != "" {
		dst.LocalStatus = src.LocalStatus
	}
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if !src.UpdatedAt.IsZero() {
		dst.UpdatedAt = src.UpdatedAt
	}
	if len(src.Reactions) > 0 {
		dst.Reactions = src.Reactions
		dst.ReactionGroups = models.GroupReactions(src.Reactions)
	}
}

// sortMessages applies the ordering authority for a conversation: creation
// timestamp ascending, then server id ascending with unconfirmed entries
// last within the tie, then client id lexicographic.
func sortMessages(list []models.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := &list[i], &list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Confirmed() != b.Confirmed() {
			return a.Confirmed()
		}
		if a.Confirmed() && a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.ClientMessageID < b.ClientMessageID
	})
}

// HasReaction reports whether userID currently reacts to the message with
// emoji, reading the raw list rather than the derived groups.
func (s *MessageStore) HasReaction(conversationID, messageID int64, emoji string, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range s.byConv[conversationID] {
		if msg.ID != messageID {
			continue
		}
		for _, group := range msg.ReactionGroups {
			if group.Emoji == emoji && util.SliceIncludes(group.Users, userID) {
				return true
			}
		}
		return false
	}
	return false
}
