package services

import (
	"errors"
	"log"
	"time"

	"bracket-vote-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceService manages vote sources and gates ballot submissions by source
// token. The gate is advisory at the UI layer but is always re-enforced
// inside the vote submission transaction.
type SourceService struct {
	DB *gorm.DB
}

func NewSourceService(db *gorm.DB) *SourceService {
	return &SourceService{DB: db}
}

// CheckSourceAllowed validates a ballot-origin token. "direct" always passes.
// Otherwise the code must resolve to a source scoped to the campaign (or a
// global one), be active, and, if it carries a validity window, now must
// fall inside [ValidFrom, ValidUntil).
func (s *SourceService) CheckSourceAllowed(campaignID, code string, now time.Time) error {
	return checkSourceAllowed(s.DB, campaignID, code, now)
}

func checkSourceAllowed(tx *gorm.DB, campaignID, code string, now time.Time) error {
	if code == "" || code == models.DefaultSource {
		return nil
	}

	var source models.VoteSource
	err := tx.Where("code = ? AND (campaign_id = ? OR campaign_id IS NULL)", code, campaignID).
		Order("campaign_id IS NULL"). // campaign-scoped source wins over a global one
		First(&source).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sourceRejected(SourceNotFound, "unknown vote source %q", code)
		}
		return err
	}

	if !source.IsActive {
		return sourceRejected(SourceInactive, "vote source %q is not active", code)
	}
	if source.ValidFrom != nil && now.Before(*source.ValidFrom) {
		return sourceRejected(SourceNotYetValid, "vote source %q is not open yet", code)
	}
	if source.ValidUntil != nil && !now.Before(*source.ValidUntil) {
		return sourceRejected(SourceExpired, "vote source %q has expired", code)
	}
	return nil
}

// --- Fiber endpoints ---

// CheckSourceEndpoint lets the UI show a friendly message before the voter
// fills out a ballot. The submission path runs the same check server-side.
func (s *SourceService) CheckSourceEndpoint(c *fiber.Ctx) error {
	slug := c.Params("slug")
	code := c.Params("code")

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "campaign not found"})
		}
		log.Printf("DB Error fetching campaign %s: %v", slug, err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if err := s.CheckSourceAllowed(campaign.ID, code, time.Now()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"allowed": true, "code": code})
}

func (s *SourceService) CreateSource(c *fiber.Ctx) error {
	var req struct {
		CampaignID  *string    `json:"campaign_id"`
		Code        string     `json:"code"`
		Name        string     `json:"name"`
		Description string     `json:"description"`
		IsActive    *bool      `json:"is_active"`
		ValidFrom   *time.Time `json:"valid_from"`
		ValidUntil  *time.Time `json:"valid_until"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Code == "" {
		return c.Status(400).JSON(fiber.Map{"error": "code is required"})
	}
	if req.Code == models.DefaultSource {
		return c.Status(400).JSON(fiber.Map{"error": "code 'direct' is reserved"})
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && !req.ValidFrom.Before(*req.ValidUntil) {
		return c.Status(400).JSON(fiber.Map{"error": "valid_from must be before valid_until"})
	}

	if req.CampaignID != nil {
		var campaign models.Campaign
		if err := s.DB.First(&campaign, "id = ?", *req.CampaignID).Error; err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "campaign_id not found"})
		}
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	source := models.VoteSource{
		ID:          uuid.NewString(),
		CampaignID:  req.CampaignID,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    isActive,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
	}
	if err := s.DB.Create(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(409).JSON(fiber.Map{"error": "source code already exists for this campaign"})
		}
		log.Printf("DB Error creating vote source: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(201).JSON(source)
}

func (s *SourceService) GetSources(c *fiber.Ctx) error {
	query := s.DB.Order("created_at DESC")
	if campaignID := c.Query("campaign_id"); campaignID != "" {
		query = query.Where("campaign_id = ? OR campaign_id IS NULL", campaignID)
	}

	var sources []models.VoteSource
	if err := query.Find(&sources).Error; err != nil {
		log.Printf("DB Error listing vote sources: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(fiber.Map{"sources": sources, "count": len(sources)})
}

func (s *SourceService) UpdateSource(c *fiber.Ctx) error {
	id := c.Params("id")

	var source models.VoteSource
	if err := s.DB.First(&source, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "vote source not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var req struct {
		Name        *string    `json:"name"`
		Description *string    `json:"description"`
		IsActive    *bool      `json:"is_active"`
		ValidFrom   *time.Time `json:"valid_from"`
		ValidUntil  *time.Time `json:"valid_until"`
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
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.ValidFrom != nil {
		updates["valid_from"] = req.ValidFrom
	}
	if req.ValidUntil != nil {
		updates["valid_until"] = req.ValidUntil
	}
	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no fields to update"})
	}

	if err := s.DB.Model(&source).Updates(updates).Error; err != nil {
		log.Printf("DB Error updating vote source %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	return c.JSON(source)
}

func (s *SourceService) DeleteSource(c *fiber.Ctx) error {
	id := c.Params("id")
	result := s.DB.Delete(&models.VoteSource{}, "id = ?", id)
	if result.Error != nil {
		log.Printf("DB Error deleting vote source %s: %v", id, result.Error)
		return c.Status(500).JSON(fiber.Map{"error": "DB delete failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "vote source not found"})
	}
	return c.JSON(fiber.Map{"message": "vote source deleted", "id": id})
}
