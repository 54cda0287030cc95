package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"bracket-vote-system/models"
	"bracket-vote-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoteService is the ledger: it records ballots, keeps the denormalized
// matchup counters in lockstep with the vote rows, and enforces the
// one-ballot-per-(matchup, voter, source) guarantee.
type VoteService struct {
	DB *gorm.DB
}

func NewVoteService(db *gorm.DB) *VoteService {
	return &VoteService{DB: db}
}

// VoterIdentity is the plaintext identity a ballot arrives with. It crosses
// the storage boundary only through the PII envelope.
type VoterIdentity struct {
	Name  string
	Email string
}

func (v VoterIdentity) validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return invalidInput("voter name is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(v.Email)); err != nil {
		return invalidInput("voter email %q is not a valid address", v.Email)
	}
	return nil
}

// SubmitVote records a single ballot. Preconditions, checked in order: the
// campaign is active, the matchup's round is open for voting, the chosen
// competitor belongs to the matchup, the source token passes the gate, and
// the voter has not already voted on this matchup through this source. The
// vote row and the counter increment commit in one transaction.
func (s *VoteService) SubmitVote(matchupID, competitorID string, voter VoterIdentity, source string) (*models.Vote, error) {
	if err := voter.validate(); err != nil {
		return nil, err
	}
	if source == "" {
		source = models.DefaultSource
	}

	var vote *models.Vote
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		matchup, round, campaign, err := loadVotingContext(tx, matchupID)
		if err != nil {
			return err
		}
		if err := checkVotingOpen(campaign, round); err != nil {
			return err
		}
		if !matchupHasCompetitor(matchup, competitorID) {
			return invalidInput("competitor %s is not part of this matchup", competitorID)
		}
		if err := checkSourceAllowed(tx, campaign.ID, source, time.Now()); err != nil {
			return err
		}

		vote, err = recordVote(tx, matchup, competitorID, voter, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}

// SubmitBallot is the batch form used by the public voting flow: one
// selection per matchup of the campaign's currently active round. The whole
// batch is rejected if any selection is invalid or if the voter already cast
// any ballot in the set; nothing is written unless everything passes.
func (s *VoteService) SubmitBallot(campaignSlug string, selections map[string]string, voter VoterIdentity, source string) (int, error) {
	if err := voter.validate(); err != nil {
		return 0, err
	}
	if len(selections) == 0 {
		return 0, invalidInput("ballot contains no selections")
	}
	if source == "" {
		source = models.DefaultSource
	}

	recorded := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "slug = ?", campaignSlug).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("campaign %q not found", campaignSlug)
			}
			return err
		}
		if !campaign.IsActive {
			return votingClosed("campaign %q is not active", campaignSlug)
		}

		var round models.Round
		err := tx.Preload("Matchups").
			First(&round, "campaign_id = ? AND is_active = ? AND is_complete = ?",
				campaign.ID, true, false).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return votingClosed("campaign %q has no round open for voting", campaignSlug)
		}
		if err != nil {
			return err
		}

		if err := checkSourceAllowed(tx, campaign.ID, source, time.Now()); err != nil {
			return err
		}

		matchupsByID := make(map[string]models.Matchup, len(round.Matchups))
		for _, m := range round.Matchups {
			matchupsByID[m.ID] = m
		}

		// Validate every selection before writing any of them.
		matchupIDs := make([]string, 0, len(selections))
		for matchupID, competitorID := range selections {
			m, ok := matchupsByID[matchupID]
			if !ok {
				return invalidInput("matchup %s is not part of the active round", matchupID)
			}
			if !matchupHasCompetitor(&m, competitorID) {
				return invalidInput("competitor %s is not part of matchup %d", competitorID, m.MatchupIndex)
			}
			matchupIDs = append(matchupIDs, matchupID)
		}

		emailHash := utils.HashEmail(voter.Email)
		var existing int64
		if err := tx.Model(&models.Vote{}).
			Where("matchup_id IN ? AND voter_email_hash = ? AND source = ?", matchupIDs, emailHash, source).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return alreadyVoted("a ballot from this voter and source already exists for this round")
		}

		sort.Strings(matchupIDs)
		for _, matchupID := range matchupIDs {
			m := matchupsByID[matchupID]
			if _, err := recordVote(tx, &m, selections[matchupID], voter, source); err != nil {
				return err
			}
			recorded++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return recorded, nil
}

// DeleteVote is the administrative reversal: the vote row and the decrement
// of exactly the counter it once incremented commit together.
func (s *VoteService) DeleteVote(voteID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var vote models.Vote
		if err := tx.First(&vote, "id = ?", voteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("vote %s not found", voteID)
			}
			return err
		}

		var matchup models.Matchup
		if err := tx.First(&matchup, "id = ?", vote.MatchupID).Error; err != nil {
			return err
		}

		column := "competitor2_votes"
		if matchup.Competitor1ID != nil && *matchup.Competitor1ID == vote.CompetitorID {
			column = "competitor1_votes"
		}
		if err := tx.Model(&models.Matchup{}).
			Where("id = ?", matchup.ID).
			UpdateColumn(column, gorm.Expr(column+" - ?", 1)).Error; err != nil {
			return err
		}
		return tx.Delete(&vote).Error
	})
}

// CheckVoted returns, for each of the given matchups, the competitor this
// voter+source pair already picked. Used to show a returning voter their
// ballot and to compute whether it is fully cast.
func (s *VoteService) CheckVoted(matchupIDs []string, email, source string) (map[string]string, error) {
	if source == "" {
		source = models.DefaultSource
	}
	emailHash := utils.HashEmail(email)

	var votes []models.Vote
	if err := s.DB.
		Where("matchup_id IN ? AND voter_email_hash = ? AND source = ?", matchupIDs, emailHash, source).
		Find(&votes).Error; err != nil {
		return nil, err
	}

	picked := make(map[string]string, len(votes))
	for _, v := range votes {
		picked[v.MatchupID] = v.CompetitorID
	}
	return picked, nil
}

// --- Internals ---

func loadVotingContext(tx *gorm.DB, matchupID string) (*models.Matchup, *models.Round, *models.Campaign, error) {
	var matchup models.Matchup
	if err := tx.First(&matchup, "id = ?", matchupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, notFound("matchup %s not found", matchupID)
		}
		return nil, nil, nil, err
	}
	var round models.Round
	if err := tx.First(&round, "id = ?", matchup.RoundID).Error; err != nil {
		return nil, nil, nil, err
	}
	var campaign models.Campaign
	if err := tx.First(&campaign, "id = ?", matchup.CampaignID).Error; err != nil {
		return nil, nil, nil, err
	}
	return &matchup, &round, &campaign, nil
}

func checkVotingOpen(campaign *models.Campaign, round *models.Round) error {
	if !campaign.IsActive {
		return votingClosed("campaign %q is not active", campaign.Slug)
	}
	if round.IsComplete {
		return votingClosed("voting for %s has already closed", round.Name)
	}
	if !round.IsActive {
		return votingClosed("voting for %s has not opened yet", round.Name)
	}
	return nil
}

func matchupHasCompetitor(m *models.Matchup, competitorID string) bool {
	if m.Competitor1ID != nil && *m.Competitor1ID == competitorID {
		return true
	}
	return m.Competitor2ID != nil && *m.Competitor2ID == competitorID
}

// recordVote inserts the vote row and bumps the matching counter as one unit.
// The increment is a relative SQL expression, never a read-modify-write, so
// concurrent ballots on the same matchup cannot lose updates. A duplicate-key
// failure on the ballot index is the authoritative "already voted" signal;
// the earlier existence check is only a fast path.
func recordVote(tx *gorm.DB, matchup *models.Matchup, competitorID string, voter VoterIdentity, source string) (*models.Vote, error) {
	encName, err := utils.EncryptPII(strings.TrimSpace(voter.Name))
	if err != nil {
		return nil, err
	}
	encEmail, err := utils.EncryptPII(strings.TrimSpace(voter.Email))
	if err != nil {
		return nil, err
	}

	vote := models.Vote{
		ID:             uuid.NewString(),
		CampaignID:     matchup.CampaignID,
		MatchupID:      matchup.ID,
		CompetitorID:   competitorID,
		VoterName:      encName,
		VoterEmail:     encEmail,
		VoterEmailHash: utils.HashEmail(voter.Email),
		Source:         source,
	}
	if err := tx.Create(&vote).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, alreadyVoted("this voter already voted on matchup %d through source %q", matchup.MatchupIndex, source)
		}
		return nil, err
	}

	column := "competitor2_votes"
	if matchup.Competitor1ID != nil && *matchup.Competitor1ID == competitorID {
		column = "competitor1_votes"
	}
	if err := tx.Model(&models.Matchup{}).
		Where("id = ?", matchup.ID).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
		return nil, err
	}
	return &vote, nil
}

// --- Fiber endpoints ---

type ballotRequest struct {
	VoterName  string            `json:"voter_name"`
	VoterEmail string            `json:"voter_email"`
	Source     string            `json:"source"`
	Selections map[string]string `json:"selections"` // matchup_id -> competitor_id
}

func (s *VoteService) SubmitBallotEndpoint(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var req ballotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Source == "" {
		if src, ok := c.Locals("vote_source").(string); ok {
			req.Source = src
		}
	}

	voter := VoterIdentity{Name: req.VoterName, Email: req.VoterEmail}
	recorded, err := s.SubmitBallot(slug, req.Selections, voter, req.Source)
	if err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error submitting ballot for campaign %s: %v", slug, err)
		}
		return respondError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "ballot recorded", "recorded": recorded})
}

func (s *VoteService) BallotStatusEndpoint(c *fiber.Ctx) error {
	slug := c.Params("slug")
	email := c.Query("email")
	source := c.Query("source")
	if source == "" {
		if src, ok := c.Locals("vote_source").(string); ok {
			source = src
		}
	}
	if email == "" {
		return c.Status(400).JSON(fiber.Map{"error": "email query parameter is required"})
	}

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "campaign not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var round models.Round
	err := s.DB.Preload("Matchups").
		First(&round, "campaign_id = ? AND is_active = ?", campaign.ID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"picked": fiber.Map{}, "fully_cast": false})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	matchupIDs := make([]string, 0, len(round.Matchups))
	for _, m := range round.Matchups {
		matchupIDs = append(matchupIDs, m.ID)
	}

	picked, err := s.CheckVoted(matchupIDs, email, source)
	if err != nil {
		log.Printf("DB Error checking ballot status for campaign %s: %v", slug, err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{
		"picked":     picked,
		"fully_cast": len(matchupIDs) > 0 && len(picked) == len(matchupIDs),
	})
}

func (s *VoteService) DeleteVoteEndpoint(c *fiber.Ctx) error {
	voteID := c.Params("id")
	if err := s.DeleteVote(voteID); err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error deleting vote %s: %v", voteID, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "vote deleted", "id": voteID})
}

// VoteReportEndpoint is the explicit decrypt-for-reporting path. It is the
// only place plaintext voter identity leaves the service, and it sits behind
// admin auth.
func (s *VoteService) VoteReportEndpoint(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	votes, err := s.loadVotesForReport(campaignID)
	if err != nil {
		log.Printf("DB Error loading vote report for campaign %s: %v", campaignID, err)
		return respondError(c, err)
	}

	rows := make([]fiber.Map, 0, len(votes))
	for _, v := range votes {
		name, email, err := decryptVoter(v)
		if err != nil {
			log.Printf("Failed to decrypt vote %s: %v", v.ID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to decrypt voter identity"})
		}
		rows = append(rows, fiber.Map{
			"vote_id":       v.ID,
			"matchup_id":    v.MatchupID,
			"competitor_id": v.CompetitorID,
			"voter_name":    name,
			"voter_email":   email,
			"source":        v.Source,
			"created_at":    v.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"votes": rows, "count": len(rows)})
}

func (s *VoteService) ExportVotesCSVEndpoint(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	votes, err := s.loadVotesForReport(campaignID)
	if err != nil {
		log.Printf("DB Error exporting votes for campaign %s: %v", campaignID, err)
		return respondError(c, err)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"vote_id", "matchup_id", "competitor_id", "voter_name", "voter_email", "source", "created_at"})
	for _, v := range votes {
		name, email, err := decryptVoter(v)
		if err != nil {
			log.Printf("Failed to decrypt vote %s: %v", v.ID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to decrypt voter identity"})
		}
		_ = w.Write([]string{v.ID, v.MatchupID, v.CompetitorID, name, email, v.Source, v.CreatedAt.Format(time.RFC3339)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to build CSV"})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=votes-%s.csv", campaignID))
	c.Set("Content-Length", strconv.Itoa(sb.Len()))
	return c.SendString(sb.String())
}

func (s *VoteService) loadVotesForReport(campaignID string) ([]models.Vote, error) {
	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("campaign %s not found", campaignID)
		}
		return nil, err
	}

	var votes []models.Vote
	if err := s.DB.Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}

func decryptVoter(v models.Vote) (name, email string, err error) {
	name, err = utils.DecryptPII(v.VoterName)
	if err != nil {
		return "", "", err
	}
	email, err = utils.DecryptPII(v.VoterEmail)
	if err != nil {
		return "", "", err
	}
	return name, email, nil
}
