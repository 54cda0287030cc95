package models

import (
	"time"
)

// Vote is one recorded ballot. VoterName and VoterEmail hold ciphertext only;
// plaintext identity never reaches the database. VoterEmailHash is a
// deterministic keyed digest of the email so the anti-double-voting
// constraint can live on an index: the (matchup, voter, source) triple is
// unique at the storage level, which is the authoritative guard against
// concurrent duplicate submissions.
type Vote struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	CampaignID     string    `json:"campaign_id" gorm:"not null;index"`
	MatchupID      string    `json:"matchup_id" gorm:"not null;index;uniqueIndex:idx_vote_ballot"`
	CompetitorID   string    `json:"competitor_id" gorm:"not null;index"`
	VoterName      string    `json:"-" gorm:"not null"`
	VoterEmail     string    `json:"-" gorm:"not null"`
	VoterEmailHash string    `json:"-" gorm:"not null;uniqueIndex:idx_vote_ballot"`
	Source         string    `json:"source" gorm:"not null;default:'direct';uniqueIndex:idx_vote_ballot"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// VoteSource is a named, time-boxed, togglable ballot channel ("booth-day-1").
// CampaignID nil means the source is global. It gates submission only; it has
// no effect on tallying beyond being part of the vote uniqueness triple.
type VoteSource struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	CampaignID  *string    `json:"campaign_id,omitempty" gorm:"index;uniqueIndex:idx_source_code"`
	Code        string     `json:"code" gorm:"not null;uniqueIndex:idx_source_code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// DefaultSource is the sentinel channel for voters arriving without a source
// token. It is always allowed and never needs a VoteSource row.
const DefaultSource = "direct"
