// Package domain defines the core persistence models for the lost & found
// matcher. These types are used by GORM for database schema mapping and are
// shared across the repository and service layers.
package domain

import (
	"time"
)

// Item type values. An item is either a "lost" report (owner is searching)
// or a "found" report (someone handed the item in).
const (
	TypeLost  = "lost"
	TypeFound = "found"
)

// Item represents a single lost or found report posted by a traveller.
// Items are immutable once created as far as this worker is concerned;
// only the posting path (out of scope here) writes them.
//
// The *_norm columns are lower-cased/trimmed projections of the free-form
// fields, maintained so that candidate lookup can be an exact-match index
// scan. Fuzzy comparison happens later, in the similarity gate, on the
// description and photo fields only.
type Item struct {
	ID             string `gorm:"type:char(36);primaryKey"`
	Type           string `gorm:"type:varchar(8);not null;check:type IN ('lost','found');index:idx_items_candidates,priority:1"`
	Category       string `gorm:"type:varchar(128);not null"`
	Title          string `gorm:"type:varchar(255);not null"`
	StationOrTrain string `gorm:"type:varchar(255);not null"`
	Description    string `gorm:"type:text"`
	PhotoURL       string `gorm:"type:text"`
	PostedBy       string `gorm:"type:varchar(64)"`

	// Date is the day the item was lost/found, at day granularity.
	// Candidate lookup requires an exact date match.
	Date time.Time `gorm:"not null;index:idx_items_candidates,priority:5"`

	// Timestamp is the creation time of the report and the ordering key
	// the change detector's watermark advances over.
	Timestamp time.Time `gorm:"not null;index"`

	CategoryNorm       string `gorm:"type:varchar(128);index:idx_items_candidates,priority:2"`
	TitleNorm          string `gorm:"type:varchar(255);index:idx_items_candidates,priority:3"`
	StationOrTrainNorm string `gorm:"type:varchar(255);index:idx_items_candidates,priority:4"`
}

// TableName implements the GORM tabler interface.
func (Item) TableName() string { return "items" }

// MissingFields returns the names of required matching fields that are
// absent on the item. An item with missing fields is skipped by the
// matcher (logged, never retried).
func (i *Item) MissingFields() []string {
	var out []string
	if isBlank(i.Type) {
		out = append(out, "type")
	}
	if isBlank(i.Category) {
		out = append(out, "category")
	}
	if isBlank(i.Title) {
		out = append(out, "title")
	}
	if isBlank(i.StationOrTrain) {
		out = append(out, "stationOrTrain")
	}
	if i.Date.IsZero() {
		out = append(out, "date")
	}
	return out
}

// Watermark is the singleton cursor row marking the newest item timestamp
// already scanned by the change detector. It is merge-written (only the
// named columns are upserted) so unrelated columns survive updates.
//
// LastProcessedAt is monotonically non-decreasing across cycles and is the
// sole authority for "already scanned": new items are fetched with a strict
// greater-than filter on it.
type Watermark struct {
	ID              string    `gorm:"type:varchar(16);primaryKey"`
	LastProcessedAt time.Time `gorm:"not null"`
	LastProcessedID string    `gorm:"type:char(36)"`
	UpdatedAt       time.Time
}

// TableName implements the GORM tabler interface.
func (Watermark) TableName() string { return "system_meta" }

// WatermarkID is the primary key of the single watermark row.
const WatermarkID = "meta"

// Match records a confirmed lost/found pair. The pair is unordered; it is
// stored canonically (Item1ID < Item2ID) under a unique index so the same
// pair can never be recorded twice, regardless of discovery order.
// Matches are never mutated or deleted by this worker.
type Match struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Item1ID   string    `gorm:"type:char(36);not null;uniqueIndex:ux_match_pair,priority:1"`
	Item2ID   string    `gorm:"type:char(36);not null;uniqueIndex:ux_match_pair,priority:2"`
	MatchedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (Match) TableName() string { return "matches" }

// Conversation is a two-party chat thread about an item. It is owned by the
// chat application; this worker only reads it to resolve push recipients.
type Conversation struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	ParticipantA  string `gorm:"type:varchar(64);not null"`
	ParticipantB  string `gorm:"type:varchar(64);not null"`
	ItemID        string `gorm:"type:char(36)"`
	LastMessageAt time.Time
}

// TableName implements the GORM tabler interface.
func (Conversation) TableName() string { return "conversations" }

// Participants returns the two participant uids. Blank slots are kept so the
// caller can reject malformed conversations.
func (c *Conversation) Participants() [2]string {
	return [2]string{c.ParticipantA, c.ParticipantB}
}

// Recipient returns the participant that is not the sender, or "" when the
// sender is not a participant or the other slot is blank.
func (c *Conversation) Recipient(senderUID string) string {
	switch senderUID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	default:
		return ""
	}
}

// ChatMessage is one utterance inside a conversation. Messages are
// append-only and never mutated.
type ChatMessage struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	ConversationID string    `gorm:"type:char(36);not null;index:idx_msgs_conv,priority:1"`
	SenderUID      string    `gorm:"type:varchar(64);not null"`
	Text           string    `gorm:"type:text"`
	ImageURL       string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null;index:idx_msgs_conv,priority:2"`
}

// TableName implements the GORM tabler interface.
func (ChatMessage) TableName() string { return "chat_messages" }

// Delivery is the idempotency tombstone for chat pushes: its existence means
// "this recipient has already been notified for this message". Rows are
// created exactly once inside a transaction that first checks non-existence,
// and are never updated or deleted (unbounded growth is an accepted
// tradeoff).
type Delivery struct {
	ID             string    `gorm:"type:varchar(128);primaryKey"`
	ConversationID string    `gorm:"type:char(36);not null"`
	RecipientUID   string    `gorm:"type:varchar(64);not null"`
	MessageID      string    `gorm:"type:char(36);not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (Delivery) TableName() string { return "deliveries" }

// DeliveryID builds the marker primary key for a (message, recipient) pair.
func DeliveryID(messageID, recipientUID string) string {
	return messageID + "_" + recipientUID
}

// User holds the legacy single push token for a uid. Newer clients register
// per-device rows in DeviceToken instead; token lookup unions both.
type User struct {
	UID      string `gorm:"type:varchar(64);primaryKey"`
	FCMToken string `gorm:"type:text"`
}

// TableName implements the GORM tabler interface.
func (User) TableName() string { return "users" }

// DeviceToken is one registered push token for a uid (multi-device).
type DeviceToken struct {
	ID    string `gorm:"type:char(36);primaryKey"`
	UID   string `gorm:"type:varchar(64);not null;uniqueIndex:ux_device_uid_token,priority:1"`
	Token string `gorm:"type:text;not null;uniqueIndex:ux_device_uid_token,priority:2"`
}

// TableName implements the GORM tabler interface.
func (DeviceToken) TableName() string { return "device_tokens" }
