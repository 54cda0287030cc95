package services

import (
	"testing"

	"bracket-vote-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeBracket(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)

	var rounds []models.Round
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).
		Order("round_number ASC").Find(&rounds).Error)
	require.Len(t, rounds, 3)

	assert.Equal(t, "Semifinals", rounds[0].Name)
	assert.Equal(t, "Finals", rounds[1].Name)
	assert.Equal(t, "Championship", rounds[2].Name)
	assert.True(t, rounds[0].IsActive)
	assert.False(t, rounds[1].IsActive)
	assert.False(t, rounds[2].IsActive)

	round1 := roundByNumber(t, db, campaign.ID, 1)
	require.Len(t, round1.Matchups, 4)
	wantPairs := [][2]int{{1, 8}, {4, 5}, {3, 6}, {2, 7}}
	for i, m := range round1.Matchups {
		require.NotNil(t, m.Competitor1)
		require.NotNil(t, m.Competitor2)
		assert.Equal(t, wantPairs[i][0], *m.Competitor1.Seed)
		assert.Equal(t, wantPairs[i][1], *m.Competitor2.Seed)
	}

	round2 := roundByNumber(t, db, campaign.ID, 2)
	require.Len(t, round2.Matchups, 2)
	for _, m := range round2.Matchups {
		assert.Nil(t, m.Competitor1ID)
		assert.Nil(t, m.Competitor2ID)
	}

	round3 := roundByNumber(t, db, campaign.ID, 3)
	require.Len(t, round3.Matchups, 1)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, "id = ?", campaign.ID).Error)
	assert.Equal(t, 1, fresh.CurrentRound)
}

func TestInitializeBracketRejectsBadFieldSizes(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBracketService(db)

	campaign := models.Campaign{ID: uuid.NewString(), Slug: "tiny", Name: "Tiny"}
	require.NoError(t, db.Create(&campaign).Error)
	seed := 1
	require.NoError(t, db.Create(&models.Competitor{
		ID: uuid.NewString(), CampaignID: campaign.ID, Name: "Lonely", Seed: &seed,
	}).Error)

	err := svc.InitializeBracket(campaign.ID)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrKind(err))

	assert.Equal(t, KindNotFound, ErrKind(svc.InitializeBracket("no-such-campaign")))
}

func TestActivateRoundExclusivity(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	svc := NewBracketService(db)

	round1 := roundByNumber(t, db, campaign.ID, 1)
	round2 := roundByNumber(t, db, campaign.ID, 2)

	require.NoError(t, svc.ActivateRound(round2.ID))

	round1 = roundByNumber(t, db, campaign.ID, 1)
	round2 = roundByNumber(t, db, campaign.ID, 2)
	assert.False(t, round1.IsActive)
	assert.True(t, round2.IsActive)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, "id = ?", campaign.ID).Error)
	assert.Equal(t, 2, fresh.CurrentRound)

	// Already active is a no-go, as is reactivating a completed round.
	err := svc.ActivateRound(round2.ID)
	assert.Equal(t, KindInvalidInput, ErrKind(err))

	require.NoError(t, db.Model(&models.Round{}).Where("id = ?", round1.ID).
		Updates(map[string]interface{}{"is_complete": true, "is_active": false}).Error)
	err = svc.ActivateRound(round1.ID)
	assert.Equal(t, KindInvalidInput, ErrKind(err))
}

func TestCompleteRoundAdvancesWinners(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	svc := NewBracketService(db)

	round1 := roundByNumber(t, db, campaign.ID, 1)

	// Vote counts drive seeds 1, 4, 3, 2 to win their matchups.
	winningSlots := []string{"competitor1_votes", "competitor1_votes", "competitor1_votes", "competitor1_votes"}
	for i, m := range round1.Matchups {
		require.NoError(t, db.Model(&models.Matchup{}).Where("id = ?", m.ID).
			Update(winningSlots[i], 5).Error)
	}

	require.NoError(t, svc.CompleteRound(round1.ID))

	round1 = roundByNumber(t, db, campaign.ID, 1)
	assert.True(t, round1.IsComplete)
	assert.False(t, round1.IsActive)

	// Winners of matchups 0 and 1 land in next-round matchup 0's slots, 2
	// and 3 in matchup 1.
	round2 := roundByNumber(t, db, campaign.ID, 2)
	assert.True(t, round2.IsActive)
	require.Len(t, round2.Matchups, 2)
	require.NotNil(t, round2.Matchups[0].Competitor1)
	require.NotNil(t, round2.Matchups[0].Competitor2)
	assert.Equal(t, 1, *round2.Matchups[0].Competitor1.Seed)
	assert.Equal(t, 4, *round2.Matchups[0].Competitor2.Seed)
	assert.Equal(t, 3, *round2.Matchups[1].Competitor1.Seed)
	assert.Equal(t, 2, *round2.Matchups[1].Competitor2.Seed)

	// Losers are eliminated and tagged with the round they lost in.
	for _, seed := range []int{8, 5, 6, 7} {
		loser := competitorBySeed(t, db, campaign.ID, seed)
		assert.True(t, loser.IsEliminated, "seed %d", seed)
		require.NotNil(t, loser.EliminatedInRound)
		assert.Equal(t, 1, *loser.EliminatedInRound)
	}
	winner := competitorBySeed(t, db, campaign.ID, 1)
	assert.False(t, winner.IsEliminated)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, "id = ?", campaign.ID).Error)
	assert.Equal(t, 2, fresh.CurrentRound)
}

func TestCompleteRoundTieBreaks(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	svc := NewBracketService(db)

	round1 := roundByNumber(t, db, campaign.ID, 1)

	// Matchup 2 pairs seeds 3 and 6; leave it tied at zero votes. The
	// better seed must win.
	require.NoError(t, svc.CompleteRound(round1.ID))

	round1 = roundByNumber(t, db, campaign.ID, 1)
	m := round1.Matchups[2]
	require.NotNil(t, m.WinnerID)
	assert.Equal(t, *m.Competitor1ID, *m.WinnerID) // seed 3 sits in slot 1
}

func TestCompleteRoundTieWithMissingSeed(t *testing.T) {
	db := setupTestDB(t)

	// Hand-built single matchup: a seedless competitor ties a seeded one.
	campaign := models.Campaign{ID: uuid.NewString(), Slug: "manual", Name: "Manual", IsActive: true}
	require.NoError(t, db.Create(&campaign).Error)

	seed5 := 5
	seeded := models.Competitor{ID: uuid.NewString(), CampaignID: campaign.ID, Name: "Seeded", Seed: &seed5}
	unseeded := models.Competitor{ID: uuid.NewString(), CampaignID: campaign.ID, Name: "Unseeded"}
	require.NoError(t, db.Create(&seeded).Error)
	require.NoError(t, db.Create(&unseeded).Error)

	round := models.Round{ID: uuid.NewString(), CampaignID: campaign.ID, RoundNumber: 1, Name: "Championship", IsActive: true}
	require.NoError(t, db.Create(&round).Error)
	matchup := models.Matchup{
		ID: uuid.NewString(), RoundID: round.ID, CampaignID: campaign.ID,
		MatchupIndex: 0, Competitor1ID: &unseeded.ID, Competitor2ID: &seeded.ID,
	}
	require.NoError(t, db.Create(&matchup).Error)

	require.NoError(t, NewBracketService(db).CompleteRound(round.ID))

	var fresh models.Matchup
	require.NoError(t, db.First(&fresh, "id = ?", matchup.ID).Error)
	require.NotNil(t, fresh.WinnerID)
	assert.Equal(t, seeded.ID, *fresh.WinnerID)
}

func TestCompleteRoundRejectsUnresolvedSlots(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	svc := NewBracketService(db)

	round2 := roundByNumber(t, db, campaign.ID, 2)
	require.NoError(t, svc.ActivateRound(round2.ID))

	err := svc.CompleteRound(round2.ID)
	require.Error(t, err)
	assert.Equal(t, KindIncompleteState, ErrKind(err))

	// The failed completion must not have committed anything.
	round2 = roundByNumber(t, db, campaign.ID, 2)
	assert.True(t, round2.IsActive)
	assert.False(t, round2.IsComplete)
	for _, m := range round2.Matchups {
		assert.Nil(t, m.WinnerID)
	}

	var eliminated int64
	require.NoError(t, db.Model(&models.Competitor{}).
		Where("campaign_id = ? AND is_eliminated = ?", campaign.ID, true).
		Count(&eliminated).Error)
	assert.Zero(t, eliminated)
}

func TestSetWinnerManually(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	svc := NewBracketService(db)

	round1 := roundByNumber(t, db, campaign.ID, 1)
	m0 := round1.Matchups[0] // seeds 1 vs 8

	// A winner outside the matchup is rejected.
	outsider := competitorBySeed(t, db, campaign.ID, 3)
	err := svc.SetWinnerManually(m0.ID, outsider.ID)
	require.Error(t, err)
	assert.Equal(t, KindIncompleteState, ErrKind(err))

	// Seed 8 upsets seed 1 by admin decree.
	require.NoError(t, svc.SetWinnerManually(m0.ID, *m0.Competitor2ID))

	loser := competitorBySeed(t, db, campaign.ID, 1)
	assert.True(t, loser.IsEliminated)
	require.NotNil(t, loser.EliminatedInRound)
	assert.Equal(t, 1, *loser.EliminatedInRound)

	// The winner advanced immediately into round 2 matchup 0, slot 1.
	round2 := roundByNumber(t, db, campaign.ID, 2)
	require.NotNil(t, round2.Matchups[0].Competitor1ID)
	assert.Equal(t, *m0.Competitor2ID, *round2.Matchups[0].Competitor1ID)
	assert.Nil(t, round2.Matchups[0].Competitor2ID)
}

func TestCompleteRoundKeepsManualWinnersAndSlots(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	svc := NewBracketService(db)

	round1 := roundByNumber(t, db, campaign.ID, 1)
	m0 := round1.Matchups[0]

	// Manual override advances seed 8 early; votes would have favored seed 1.
	require.NoError(t, svc.SetWinnerManually(m0.ID, *m0.Competitor2ID))
	require.NoError(t, db.Model(&models.Matchup{}).Where("id = ?", m0.ID).
		Update("competitor1_votes", 100).Error)

	require.NoError(t, svc.CompleteRound(round1.ID))

	// The manual winner stands and the already-populated next-round slot is
	// untouched.
	round1 = roundByNumber(t, db, campaign.ID, 1)
	require.NotNil(t, round1.Matchups[0].WinnerID)
	assert.Equal(t, *m0.Competitor2ID, *round1.Matchups[0].WinnerID)

	round2 := roundByNumber(t, db, campaign.ID, 2)
	require.NotNil(t, round2.Matchups[0].Competitor1ID)
	assert.Equal(t, *m0.Competitor2ID, *round2.Matchups[0].Competitor1ID)
}

func TestUndoRoundCompletion(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 4)
	bracket := NewBracketService(db)
	votes := NewVoteService(db)

	round1 := roundByNumber(t, db, campaign.ID, 1)
	require.NoError(t, bracket.CompleteRound(round1.ID))

	// A vote lands in round 2 before the admin notices the mis-click.
	round2 := roundByNumber(t, db, campaign.ID, 2)
	_, err := votes.SubmitVote(round2.Matchups[0].ID, *round2.Matchups[0].Competitor1ID, voterN(1), "")
	require.NoError(t, err)

	require.NoError(t, bracket.UndoRoundCompletion(round1.ID))

	round1 = roundByNumber(t, db, campaign.ID, 1)
	assert.True(t, round1.IsActive)
	assert.False(t, round1.IsComplete)
	for _, m := range round1.Matchups {
		assert.Nil(t, m.WinnerID)
	}

	round2 = roundByNumber(t, db, campaign.ID, 2)
	assert.False(t, round2.IsActive)
	for _, m := range round2.Matchups {
		assert.Nil(t, m.Competitor1ID)
		assert.Nil(t, m.Competitor2ID)
		assert.Zero(t, m.Competitor1Votes)
		assert.Zero(t, m.Competitor2Votes)
	}

	var strayVotes int64
	require.NoError(t, db.Model(&models.Vote{}).
		Where("matchup_id = ?", round2.Matchups[0].ID).
		Count(&strayVotes).Error)
	assert.Zero(t, strayVotes)

	var eliminated int64
	require.NoError(t, db.Model(&models.Competitor{}).
		Where("campaign_id = ? AND is_eliminated = ?", campaign.ID, true).
		Count(&eliminated).Error)
	assert.Zero(t, eliminated)

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, "id = ?", campaign.ID).Error)
	assert.Equal(t, 1, fresh.CurrentRound)
}

func TestEightCompetitorEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	campaign := seedCampaign(t, db, 8)
	bracket := NewBracketService(db)
	votes := NewVoteService(db)
	campaigns := NewCampaignService(db)

	// Round 1: one ballot per matchup drives seeds 1, 4, 3, 2 through.
	round1 := roundByNumber(t, db, campaign.ID, 1)
	targets := map[int]int{0: 1, 1: 4, 2: 3, 3: 2}
	for i, m := range round1.Matchups {
		target := competitorBySeed(t, db, campaign.ID, targets[i])
		_, err := votes.SubmitVote(m.ID, target.ID, voterN(i), "")
		require.NoError(t, err)
	}
	require.NoError(t, bracket.CompleteRound(round1.ID))

	// Rounds 2 and 3 resolve on the seed tie-break (no votes cast).
	round2 := roundByNumber(t, db, campaign.ID, 2)
	require.NoError(t, bracket.CompleteRound(round2.ID))
	round3 := roundByNumber(t, db, campaign.ID, 3)
	require.NoError(t, bracket.CompleteRound(round3.ID))

	view, err := campaigns.GetCampaignView(campaign.Slug)
	require.NoError(t, err)

	// Seed 1 beats 4 in the semis and 2 in the final on tie-breaks.
	require.NotNil(t, view.Champion)
	champion := competitorBySeed(t, db, campaign.ID, 1)
	assert.Equal(t, champion.ID, view.Champion.ID)

	assert.Len(t, view.EliminatedCompetitorIDs, 7)
	assert.NotContains(t, view.EliminatedCompetitorIDs, champion.ID)

	wantRounds := map[int]int{8: 1, 5: 1, 6: 1, 7: 1, 4: 2, 3: 2, 2: 3}
	for seed, round := range wantRounds {
		competitor := competitorBySeed(t, db, campaign.ID, seed)
		assert.True(t, competitor.IsEliminated, "seed %d", seed)
		require.NotNil(t, competitor.EliminatedInRound, "seed %d", seed)
		assert.Equal(t, round, *competitor.EliminatedInRound, "seed %d", seed)
	}
}
