package services

import (
	"errors"
	"log"
	"math"
	"time"

	"bracket-vote-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BracketService owns the round/matchup lifecycle: bracket initialization,
// round activation and completion, winner assignment, elimination, and
// advancement of winners into next-round slots.
type BracketService struct {
	DB *gorm.DB
}

func NewBracketService(db *gorm.DB) *BracketService {
	return &BracketService{DB: db}
}

// --- Fiber endpoints ---

func (s *BracketService) InitializeBracketEndpoint(c *fiber.Ctx) error {
	campaignID := c.Params("id")
	if err := s.InitializeBracket(campaignID); err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error initializing bracket for campaign %s: %v", campaignID, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "bracket initialized", "campaign_id": campaignID})
}

func (s *BracketService) ActivateRoundEndpoint(c *fiber.Ctx) error {
	roundID := c.Params("round_id")
	if err := s.ActivateRound(roundID); err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error activating round %s: %v", roundID, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "round activated", "round_id": roundID})
}

func (s *BracketService) CompleteRoundEndpoint(c *fiber.Ctx) error {
	roundID := c.Params("round_id")
	if err := s.CompleteRound(roundID); err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error completing round %s: %v", roundID, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "round completed", "round_id": roundID})
}

func (s *BracketService) UndoRoundCompletionEndpoint(c *fiber.Ctx) error {
	roundID := c.Params("round_id")
	if err := s.UndoRoundCompletion(roundID); err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error undoing round completion %s: %v", roundID, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "round completion undone", "round_id": roundID})
}

func (s *BracketService) SetMatchupWinnerEndpoint(c *fiber.Ctx) error {
	matchupID := c.Params("matchup_id")

	var req struct {
		WinnerID string `json:"winner_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.WinnerID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "winner_id is required"})
	}

	if err := s.SetWinnerManually(matchupID, req.WinnerID); err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error setting winner on matchup %s: %v", matchupID, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "winner set", "matchup_id": matchupID, "winner_id": req.WinnerID})
}

// --- Core transitions ---

// InitializeBracket wipes any existing rounds/matchups/votes for the campaign
// and lays out a fresh bracket: all rounds created (round 1 active), round 1
// matchups populated per the seed table, competitor elimination state reset.
func (s *BracketService) InitializeBracket(campaignID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", campaignID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("campaign %s not found", campaignID)
			}
			return err
		}

		var competitors []models.Competitor
		if err := tx.Where("campaign_id = ?", campaignID).
			Order("seed IS NULL, seed ASC, created_at ASC").
			Find(&competitors).Error; err != nil {
			return err
		}

		n := len(competitors)
		pairs, err := GenerateSeedPairs(n)
		if err != nil {
			return err
		}
		totalRounds, err := RoundCount(n)
		if err != nil {
			return err
		}

		// Re-initialization first clears everything the old bracket owned.
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.Matchup{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", campaignID).Delete(&models.Round{}).Error; err != nil {
			return err
		}

		// Normalize seeds to 1..n in the order they sorted, and reset
		// elimination state.
		bySeed := make(map[int]models.Competitor, n)
		for i := range competitors {
			seed := i + 1
			if err := tx.Model(&competitors[i]).Updates(map[string]interface{}{
				"seed":                seed,
				"is_eliminated":       false,
				"eliminated_in_round": nil,
			}).Error; err != nil {
				return err
			}
			bySeed[seed] = competitors[i]
		}

		now := time.Now()
		matchupCount := n / 2
		for r := 1; r <= totalRounds; r++ {
			round := models.Round{
				ID:          uuid.NewString(),
				CampaignID:  campaignID,
				RoundNumber: r,
				Name:        RoundName(r, totalRounds),
				IsActive:    r == 1,
			}
			if r == 1 {
				round.StartedAt = &now
			}
			if err := tx.Create(&round).Error; err != nil {
				return err
			}

			for i := 0; i < matchupCount; i++ {
				matchup := models.Matchup{
					ID:           uuid.NewString(),
					RoundID:      round.ID,
					CampaignID:   campaignID,
					MatchupIndex: i,
				}
				if r == 1 {
					high := bySeed[pairs[i].High]
					low := bySeed[pairs[i].Low]
					matchup.Competitor1ID = &high.ID
					matchup.Competitor2ID = &low.ID
				}
				if err := tx.Create(&matchup).Error; err != nil {
					return err
				}
			}

			matchupCount = (matchupCount + 1) / 2
		}

		return tx.Model(&campaign).Update("current_round", 1).Error
	})
}

// ActivateRound moves a pending round to active. Every other round in the
// campaign is forced inactive in the same transaction so the one-active-round
// invariant holds under concurrent activation requests.
func (s *BracketService) ActivateRound(roundID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var round models.Round
		if err := tx.First(&round, "id = ?", roundID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("round %s not found", roundID)
			}
			return err
		}
		if round.IsComplete {
			return invalidInput("round %d is already complete", round.RoundNumber)
		}
		if round.IsActive {
			return invalidInput("round %d is already active", round.RoundNumber)
		}

		if err := tx.Model(&models.Round{}).
			Where("campaign_id = ? AND id <> ?", round.CampaignID, round.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&round).Updates(map[string]interface{}{
			"is_active":  true,
			"started_at": &now,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Campaign{}).
			Where("id = ?", round.CampaignID).
			Update("current_round", round.RoundNumber).Error
	})
}

// CompleteRound locks in a winner for every matchup of an active round,
// eliminates the losers, and advances winners into the next round. Matchups
// with a manually set winner keep it; the rest are decided by vote count,
// with ties going to the better (numerically lower) seed.
func (s *BracketService) CompleteRound(roundID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		round, err := loadRoundWithMatchups(tx, roundID)
		if err != nil {
			return err
		}
		if round.IsComplete {
			return invalidInput("round %d is already complete", round.RoundNumber)
		}
		if !round.IsActive {
			return invalidInput("round %d is not active", round.RoundNumber)
		}

		// Every slot must be resolved before the round can close.
		for _, m := range round.Matchups {
			if m.Competitor1ID == nil || m.Competitor2ID == nil {
				return incompleteState("matchup %d still has an unresolved competitor slot", m.MatchupIndex)
			}
		}

		winners := make(map[int]string, len(round.Matchups))
		for _, m := range round.Matchups {
			winnerID, loserID, err := decideWinner(m)
			if err != nil {
				return err
			}
			winners[m.MatchupIndex] = winnerID

			if err := tx.Model(&models.Matchup{}).
				Where("id = ?", m.ID).
				Update("winner_id", winnerID).Error; err != nil {
				return err
			}
			if err := eliminateCompetitor(tx, loserID, round.RoundNumber); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := tx.Model(&models.Round{}).Where("id = ?", round.ID).Updates(map[string]interface{}{
			"is_complete":  true,
			"is_active":    false,
			"completed_at": &now,
		}).Error; err != nil {
			return err
		}

		var next models.Round
		err = tx.First(&next, "campaign_id = ? AND round_number = ?",
			round.CampaignID, round.RoundNumber+1).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Final round: the champion is derived from this round's winner
			// at read time, never stored.
			return nil
		}
		if err != nil {
			return err
		}

		for index, winnerID := range winners {
			if err := fillNextSlot(tx, next.ID, index, winnerID); err != nil {
				return err
			}
		}

		if err := tx.Model(&next).Updates(map[string]interface{}{
			"is_active":  true,
			"started_at": &now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", round.CampaignID).
			Update("current_round", next.RoundNumber).Error
	})
}

// SetWinnerManually resolves a single matchup outside of full-round
// completion: the admin picks a winner, the loser is eliminated, and the
// winner advances immediately. Other matchups in the round are untouched.
func (s *BracketService) SetWinnerManually(matchupID, winnerID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var matchup models.Matchup
		if err := tx.First(&matchup, "id = ?", matchupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("matchup %s not found", matchupID)
			}
			return err
		}

		var round models.Round
		if err := tx.First(&round, "id = ?", matchup.RoundID).Error; err != nil {
			return err
		}
		if round.IsComplete {
			return votingClosed("round %d is already complete", round.RoundNumber)
		}

		var loserID string
		switch {
		case matchup.Competitor1ID != nil && *matchup.Competitor1ID == winnerID:
			if matchup.Competitor2ID == nil {
				return incompleteState("matchup %d still has an unresolved competitor slot", matchup.MatchupIndex)
			}
			loserID = *matchup.Competitor2ID
		case matchup.Competitor2ID != nil && *matchup.Competitor2ID == winnerID:
			if matchup.Competitor1ID == nil {
				return incompleteState("matchup %d still has an unresolved competitor slot", matchup.MatchupIndex)
			}
			loserID = *matchup.Competitor1ID
		default:
			return incompleteState("winner %s is not a competitor in matchup %d", winnerID, matchup.MatchupIndex)
		}

		if err := tx.Model(&matchup).Update("winner_id", winnerID).Error; err != nil {
			return err
		}
		if err := eliminateCompetitor(tx, loserID, round.RoundNumber); err != nil {
			return err
		}

		var next models.Round
		err := tx.First(&next, "campaign_id = ? AND round_number = ?",
			round.CampaignID, round.RoundNumber+1).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return fillNextSlot(tx, next.ID, matchup.MatchupIndex, winnerID)
	})
}

// UndoRoundCompletion is the administrative escape hatch: it reopens a
// completed round, clears its winners, un-eliminates the competitors that
// lost in it, and rolls back advancement into the next round (including any
// votes already cast there).
func (s *BracketService) UndoRoundCompletion(roundID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		round, err := loadRoundWithMatchups(tx, roundID)
		if err != nil {
			return err
		}
		if !round.IsComplete {
			return invalidInput("round %d is not complete", round.RoundNumber)
		}

		var next models.Round
		err = tx.First(&next, "campaign_id = ? AND round_number = ?",
			round.CampaignID, round.RoundNumber+1).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			var nextMatchupIDs []string
			if err := tx.Model(&models.Matchup{}).
				Where("round_id = ?", next.ID).
				Pluck("id", &nextMatchupIDs).Error; err != nil {
				return err
			}
			if len(nextMatchupIDs) > 0 {
				// Votes cast in the now-invalid next round go with the slots
				// they were cast against.
				if err := tx.Where("matchup_id IN ?", nextMatchupIDs).
					Delete(&models.Vote{}).Error; err != nil {
					return err
				}
				if err := tx.Model(&models.Matchup{}).
					Where("round_id = ?", next.ID).
					Updates(map[string]interface{}{
						"competitor1_id":    nil,
						"competitor2_id":    nil,
						"winner_id":         nil,
						"competitor1_votes": 0,
						"competitor2_votes": 0,
					}).Error; err != nil {
					return err
				}
			}
			if err := tx.Model(&next).Updates(map[string]interface{}{
				"is_active":  false,
				"started_at": nil,
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Matchup{}).
			Where("round_id = ?", round.ID).
			Update("winner_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Competitor{}).
			Where("campaign_id = ? AND eliminated_in_round = ?", round.CampaignID, round.RoundNumber).
			Updates(map[string]interface{}{
				"is_eliminated":       false,
				"eliminated_in_round": nil,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Round{}).Where("id = ?", round.ID).Updates(map[string]interface{}{
			"is_complete":  false,
			"is_active":    true,
			"completed_at": nil,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", round.CampaignID).
			Update("current_round", round.RoundNumber).Error
	})
}

// --- Helpers ---

func loadRoundWithMatchups(tx *gorm.DB, roundID string) (*models.Round, error) {
	var round models.Round
	err := tx.
		Preload("Matchups", func(db *gorm.DB) *gorm.DB {
			return db.Order("matchup_index ASC")
		}).
		Preload("Matchups.Competitor1").
		Preload("Matchups.Competitor2").
		First(&round, "id = ?", roundID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("round %s not found", roundID)
		}
		return nil, err
	}
	return &round, nil
}

// decideWinner applies the completion rule to one matchup: a manually set
// winner stands; otherwise strictly more votes wins, and an exact tie goes to
// the better seed. A missing seed counts as worst-possible, so it loses any
// tie against a seeded competitor. Both seeds missing falls back to slot 1.
func decideWinner(m models.Matchup) (winnerID, loserID string, err error) {
	if m.Competitor1ID == nil || m.Competitor2ID == nil {
		return "", "", incompleteState("matchup %d still has an unresolved competitor slot", m.MatchupIndex)
	}

	if m.WinnerID != nil {
		if *m.WinnerID == *m.Competitor1ID {
			return *m.Competitor1ID, *m.Competitor2ID, nil
		}
		if *m.WinnerID == *m.Competitor2ID {
			return *m.Competitor2ID, *m.Competitor1ID, nil
		}
		return "", "", incompleteState("matchup %d has a winner that is not one of its competitors", m.MatchupIndex)
	}

	switch {
	case m.Competitor1Votes > m.Competitor2Votes:
		return *m.Competitor1ID, *m.Competitor2ID, nil
	case m.Competitor2Votes > m.Competitor1Votes:
		return *m.Competitor2ID, *m.Competitor1ID, nil
	}

	if seedOrWorst(m.Competitor2) < seedOrWorst(m.Competitor1) {
		return *m.Competitor2ID, *m.Competitor1ID, nil
	}
	return *m.Competitor1ID, *m.Competitor2ID, nil
}

func seedOrWorst(c *models.Competitor) int {
	if c == nil || c.Seed == nil {
		return math.MaxInt
	}
	return *c.Seed
}

func eliminateCompetitor(tx *gorm.DB, competitorID string, roundNumber int) error {
	return tx.Model(&models.Competitor{}).
		Where("id = ?", competitorID).
		Updates(map[string]interface{}{
			"is_eliminated":       true,
			"eliminated_in_round": roundNumber,
		}).Error
}

// fillNextSlot advances a winner into the next round: matchup index i feeds
// next-round matchup i/2, even indices landing in the competitor1 slot and
// odd indices in competitor2. A slot that is already populated is immutable;
// a conflicting occupant is left untouched so an earlier manual advancement
// can never be silently overwritten.
func fillNextSlot(tx *gorm.DB, nextRoundID string, matchupIndex int, winnerID string) error {
	var target models.Matchup
	err := tx.First(&target, "round_id = ? AND matchup_index = ?",
		nextRoundID, matchupIndex/2).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("next-round matchup %d not found", matchupIndex/2)
		}
		return err
	}

	column := "competitor1_id"
	occupant := target.Competitor1ID
	if matchupIndex%2 == 1 {
		column = "competitor2_id"
		occupant = target.Competitor2ID
	}
	if occupant != nil {
		if *occupant != winnerID {
			log.Printf("⚠️  next-round slot %s of matchup %d already holds %s, leaving it in place",
				column, target.MatchupIndex, *occupant)
		}
		return nil
	}
	return tx.Model(&target).Update(column, winnerID).Error
}
