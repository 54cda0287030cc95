package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"bracket-vote-system/models"
	"bracket-vote-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// CampaignService is the orchestrator: it owns campaign lifecycle and
// assembles the read view (campaign -> rounds -> matchups -> competitors plus
// the derived eliminated set and champion).
type CampaignService struct {
	DB *gorm.DB
}

func NewCampaignService(db *gorm.DB) *CampaignService {
	return &CampaignService{DB: db}
}

// CampaignView is the nested read model served to the public bracket page.
// EliminatedCompetitorIDs and Champion are recomputed on every read from
// round/matchup state; neither is ever persisted, so they cannot desync.
type CampaignView struct {
	models.Campaign
	TotalRounds             int                `json:"total_rounds"`
	EliminatedCompetitorIDs []string           `json:"eliminated_competitor_ids"`
	Champion                *models.Competitor `json:"champion,omitempty"`
}

// GetCampaignView assembles the full bracket for one campaign.
func (s *CampaignService) GetCampaignView(campaignSlug string) (*CampaignView, error) {
	var campaign models.Campaign
	err := s.DB.
		Preload("Competitors", func(db *gorm.DB) *gorm.DB {
			return db.Order("seed IS NULL, seed ASC")
		}).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_number ASC")
		}).
		Preload("Rounds.Matchups", func(db *gorm.DB) *gorm.DB {
			return db.Order("matchup_index ASC")
		}).
		Preload("Rounds.Matchups.Competitor1").
		Preload("Rounds.Matchups.Competitor2").
		Preload("Rounds.Matchups.Winner").
		First(&campaign, "slug = ?", campaignSlug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("campaign %q not found", campaignSlug)
		}
		return nil, err
	}

	view := &CampaignView{
		Campaign:                campaign,
		TotalRounds:             len(campaign.Rounds),
		EliminatedCompetitorIDs: []string{},
	}

	seen := make(map[string]bool)
	for _, round := range campaign.Rounds {
		if !round.IsComplete {
			continue
		}
		for _, m := range round.Matchups {
			for _, ref := range []*string{m.Competitor1ID, m.Competitor2ID} {
				if ref == nil || seen[*ref] {
					continue
				}
				if m.WinnerID == nil || *m.WinnerID != *ref {
					seen[*ref] = true
					view.EliminatedCompetitorIDs = append(view.EliminatedCompetitorIDs, *ref)
				}
			}
		}

		// The champion exists once the final round (number == total rounds)
		// is complete: it is that round's single matchup's winner.
		if round.RoundNumber == view.TotalRounds && len(round.Matchups) == 1 {
			view.Champion = round.Matchups[0].Winner
		}
	}

	return view, nil
}

// --- Fiber endpoints ---

type competitorInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Seed        *int   `json:"seed"`
}

func (s *CampaignService) CreateCampaign(c *fiber.Ctx) error {
	var req struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		IsDemo      bool              `json:"is_demo"`
		Competitors []competitorInput `json:"competitors"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	campaign := models.Campaign{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		IsDemo:      req.IsDemo,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		campaignSlug, err := uniqueSlug(tx, req.Name)
		if err != nil {
			return err
		}
		campaign.Slug = campaignSlug

		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}
		for i, input := range req.Competitors {
			if input.Name == "" {
				return invalidInput("competitor %d is missing a name", i+1)
			}
			seed := input.Seed
			if seed == nil {
				position := i + 1
				seed = &position
			}
			competitor := models.Competitor{
				ID:          uuid.NewString(),
				CampaignID:  campaign.ID,
				Name:        input.Name,
				Description: input.Description,
				Seed:        seed,
			}
			if err := tx.Create(&competitor).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error creating campaign: %v", err)
		}
		return respondError(c, err)
	}
	return c.Status(201).JSON(campaign)
}

func (s *CampaignService) GetAllCampaigns(c *fiber.Ctx) error {
	var campaigns []models.Campaign
	if err := s.DB.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		log.Printf("DB Error listing campaigns: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"campaigns": campaigns, "count": len(campaigns)})
}

// GetCurrentCampaign serves the single publicly active campaign.
func (s *CampaignService) GetCurrentCampaign(c *fiber.Ctx) error {
	var campaign models.Campaign
	err := s.DB.First(&campaign, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "no active campaign"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	view, err := s.GetCampaignView(campaign.Slug)
	if err != nil {
		log.Printf("DB Error assembling campaign view %s: %v", campaign.Slug, err)
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (s *CampaignService) GetCampaignBySlug(c *fiber.Ctx) error {
	view, err := s.GetCampaignView(c.Params("slug"))
	if err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error assembling campaign view %s: %v", c.Params("slug"), err)
		}
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (s *CampaignService) UpdateCampaign(c *fiber.Ctx) error {
	id := c.Params("id")

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "campaign not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsDemo      *bool   `json:"is_demo"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsDemo != nil {
		updates["is_demo"] = *req.IsDemo
	}
	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no fields to update"})
	}

	if err := s.DB.Model(&campaign).Updates(updates).Error; err != nil {
		log.Printf("DB Error updating campaign %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	return c.JSON(campaign)
}

// ActivateCampaign makes this campaign the publicly served one. Activation is
// exclusive: every other campaign is deactivated in the same transaction.
func (s *CampaignService) ActivateCampaign(c *fiber.Ctx) error {
	id := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("campaign %s not found", id)
			}
			return err
		}
		if err := tx.Model(&models.Campaign{}).
			Where("id <> ?", id).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&campaign).Update("is_active", true).Error
	})
	if err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error activating campaign %s: %v", id, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "campaign activated", "id": id})
}

func (s *CampaignService) DeactivateCampaign(c *fiber.Ctx) error {
	id := c.Params("id")
	result := s.DB.Model(&models.Campaign{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		log.Printf("DB Error deactivating campaign %s: %v", id, result.Error)
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "campaign not found"})
	}
	return c.JSON(fiber.Map{"message": "campaign deactivated", "id": id})
}

// DeleteCampaign cascades to everything the campaign owns.
func (s *CampaignService) DeleteCampaign(c *fiber.Ctx) error {
	id := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("campaign %s not found", id)
			}
			return err
		}
		for _, model := range []interface{}{
			&models.Vote{}, &models.Matchup{}, &models.Round{},
			&models.Competitor{}, &models.VoteSource{},
		} {
			if err := tx.Where("campaign_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&campaign).Error
	})
	if err != nil {
		if ErrKind(err) == KindStorage {
			log.Printf("DB Error deleting campaign %s: %v", id, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "campaign deleted", "id": id})
}

func (s *CampaignService) AddCompetitor(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "campaign not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var req competitorInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	competitor := models.Competitor{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		Name:        req.Name,
		Description: req.Description,
		Seed:        req.Seed,
	}
	if err := s.DB.Create(&competitor).Error; err != nil {
		log.Printf("DB Error creating competitor: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(201).JSON(competitor)
}

func (s *CampaignService) DeleteCompetitor(c *fiber.Ctx) error {
	competitorID := c.Params("competitor_id")

	var referenced int64
	if err := s.DB.Model(&models.Matchup{}).
		Where("competitor1_id = ? OR competitor2_id = ? OR winner_id = ?",
			competitorID, competitorID, competitorID).
		Count(&referenced).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if referenced > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "competitor is placed in the bracket; re-initialize it before deleting"})
	}

	result := s.DB.Delete(&models.Competitor{}, "id = ?", competitorID)
	if result.Error != nil {
		log.Printf("DB Error deleting competitor %s: %v", competitorID, result.Error)
		return c.Status(500).JSON(fiber.Map{"error": "DB delete failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "competitor not found"})
	}
	return c.JSON(fiber.Map{"message": "competitor deleted", "id": competitorID})
}

// UploadCampaignPhoto stores the campaign's display image in R2 (local
// uploads/ fallback when R2 is not configured).
func (s *CampaignService) UploadCampaignPhoto(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "campaign not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	url, err := s.storePhoto(c, "campaigns")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.DB.Model(&campaign).Update("main_photo_url", url).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	return c.JSON(fiber.Map{"message": "photo uploaded", "url": url})
}

func (s *CampaignService) UploadCompetitorPhoto(c *fiber.Ctx) error {
	competitorID := c.Params("competitor_id")

	var competitor models.Competitor
	if err := s.DB.First(&competitor, "id = ?", competitorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "competitor not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	url, err := s.storePhoto(c, "competitors")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.DB.Model(&competitor).Update("photo_url", url).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	return c.JSON(fiber.Map{"message": "photo uploaded", "url": url})
}

func (s *CampaignService) storePhoto(c *fiber.Ctx, prefix string) (string, error) {
	photo, err := c.FormFile("photo")
	if err != nil || photo.Size == 0 {
		return "", fmt.Errorf("photo file is required")
	}
	ext := filepath.Ext(photo.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	filename := uuid.NewString() + ext

	if utils.R2Enabled() {
		url, err := utils.UploadFileToR2(photo, prefix+"/"+filename)
		if err != nil {
			log.Printf("R2 upload failed: %v", err)
			return "", fmt.Errorf("failed to upload photo")
		}
		return url, nil
	}

	if err := utils.SaveFile(photo, utils.GetUploadPath(filename)); err != nil {
		log.Printf("Local upload failed: %v", err)
		return "", fmt.Errorf("failed to store photo")
	}
	return "/uploads/" + filename, nil
}

// uniqueSlug derives a URL slug from the campaign name, suffixing -2, -3, ...
// until it is free.
func uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return "", invalidInput("name %q does not produce a usable slug", name)
	}

	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := tx.Model(&models.Campaign{}).
			Where("slug = ?", candidate).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
