package models

import (
	"time"
)

// Round is one stage of single-elimination play. At most one round per
// campaign is active at any time, and a round is never active and complete
// at once.
type Round struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	CampaignID  string     `json:"campaign_id" gorm:"not null;index;uniqueIndex:idx_campaign_round_number"`
	RoundNumber int        `json:"round_number" gorm:"not null;uniqueIndex:idx_campaign_round_number"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active" gorm:"default:false"`
	IsComplete  bool       `json:"is_complete" gorm:"default:false"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationship: one Round has many Matchups
	Matchups []Matchup `json:"matchups,omitempty" gorm:"foreignKey:RoundID;constraint:OnDelete:CASCADE"`
}

// Matchup is one head-to-head pairing. Competitor slots are nil until
// populated by seeding (round 1) or advancement (later rounds). The vote
// counters are a denormalized cache of the votes table and are only ever
// written in the same transaction as the vote rows they mirror.
type Matchup struct {
	ID               string  `json:"id" gorm:"primaryKey"`
	RoundID          string  `json:"round_id" gorm:"not null;index;uniqueIndex:idx_round_matchup_index"`
	CampaignID       string  `json:"campaign_id" gorm:"not null;index"`
	MatchupIndex     int     `json:"matchup_index" gorm:"not null;uniqueIndex:idx_round_matchup_index"`
	Competitor1ID    *string `json:"competitor1_id,omitempty"`
	Competitor2ID    *string `json:"competitor2_id,omitempty"`
	WinnerID         *string `json:"winner_id,omitempty"`
	Competitor1Votes int     `json:"competitor1_votes" gorm:"default:0"`
	Competitor2Votes int     `json:"competitor2_votes" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Competitor1 *Competitor `json:"competitor1,omitempty" gorm:"foreignKey:Competitor1ID"`
	Competitor2 *Competitor `json:"competitor2,omitempty" gorm:"foreignKey:Competitor2ID"`
	Winner      *Competitor `json:"winner,omitempty" gorm:"foreignKey:WinnerID"`
}
