package models

import (
	"time"
)

// Campaign represents one bracket-style voting tournament
type Campaign struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Slug         string    `json:"slug" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"not null"`
	Description  string    `json:"description"`
	MainPhotoURL string    `json:"main_photo_url"`
	IsActive     bool      `json:"is_active" gorm:"default:false"`
	IsDemo       bool      `json:"is_demo" gorm:"default:false"`
	CurrentRound int       `json:"current_round" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Competitors []Competitor `json:"competitors,omitempty" gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
	Rounds      []Round      `json:"rounds,omitempty" gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
	VoteSources []VoteSource `json:"vote_sources,omitempty" gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
}

// Competitor is one contender inside a campaign's bracket.
// Seed is nil for competitors that only exist as future-round placeholders.
// IsEliminated and EliminatedInRound are written exclusively by the bracket
// state machine, never from request input.
type Competitor struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	CampaignID        string    `json:"campaign_id" gorm:"not null;index"`
	Name              string    `json:"name" gorm:"not null"`
	Description       string    `json:"description"`
	PhotoURL          string    `json:"photo_url"`
	Seed              *int      `json:"seed,omitempty"`
	IsEliminated      bool      `json:"is_eliminated" gorm:"default:false"`
	EliminatedInRound *int      `json:"eliminated_in_round,omitempty"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
