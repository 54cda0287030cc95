package services

import (
	"fmt"
	"testing"

	"bracket-vote-system/models"
	"bracket-vote-system/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh in-memory database with the full schema. Each
// test gets its own so state never leaks between them.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.InitTestCrypto()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Campaign{},
		&models.Competitor{},
		&models.Round{},
		&models.Matchup{},
		&models.Vote{},
		&models.VoteSource{},
	))
	return db
}

// seedCampaign creates an active campaign with n competitors seeded 1..n and
// an initialized bracket (round 1 active).
func seedCampaign(t *testing.T, db *gorm.DB, n int) models.Campaign {
	t.Helper()

	campaign := models.Campaign{
		ID:       uuid.NewString(),
		Slug:     fmt.Sprintf("test-campaign-%s", uuid.NewString()[:8]),
		Name:     "Test Campaign",
		IsActive: true,
	}
	require.NoError(t, db.Create(&campaign).Error)

	for i := 1; i <= n; i++ {
		seed := i
		competitor := models.Competitor{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Name:       fmt.Sprintf("Competitor %d", i),
			Seed:       &seed,
		}
		require.NoError(t, db.Create(&competitor).Error)
	}

	require.NoError(t, NewBracketService(db).InitializeBracket(campaign.ID))
	return campaign
}

func roundByNumber(t *testing.T, db *gorm.DB, campaignID string, number int) models.Round {
	t.Helper()
	var round models.Round
	require.NoError(t, db.
		Preload("Matchups", func(tx *gorm.DB) *gorm.DB { return tx.Order("matchup_index ASC") }).
		Preload("Matchups.Competitor1").
		Preload("Matchups.Competitor2").
		First(&round, "campaign_id = ? AND round_number = ?", campaignID, number).Error)
	return round
}

func competitorBySeed(t *testing.T, db *gorm.DB, campaignID string, seed int) models.Competitor {
	t.Helper()
	var competitor models.Competitor
	require.NoError(t, db.First(&competitor, "campaign_id = ? AND seed = ?", campaignID, seed).Error)
	return competitor
}

func voterN(i int) VoterIdentity {
	return VoterIdentity{
		Name:  fmt.Sprintf("Voter %d", i),
		Email: fmt.Sprintf("voter%d@example.com", i),
	}
}
