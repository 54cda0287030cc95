package handlers

import (
	"bracket-vote-system/middleware"
	"bracket-vote-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCampaignRoutes(app *fiber.App, campaignService *services.CampaignService, bracketService *services.BracketService) {
	// 🔓 Public bracket views
	app.Get("/campaigns/current", campaignService.GetCurrentCampaign)
	app.Get("/campaigns/:slug", campaignService.GetCampaignBySlug)

	// 🔒 Admin-only
	admin := app.Group("/admin", middleware.AdminAuthMiddleware())

	// Campaign CRUD
	admin.Post("/campaigns", campaignService.CreateCampaign)
	admin.Get("/campaigns", campaignService.GetAllCampaigns)
	admin.Put("/campaigns/:id", campaignService.UpdateCampaign)
	admin.Delete("/campaigns/:id", campaignService.DeleteCampaign)
	admin.Post("/campaigns/:id/activate", campaignService.ActivateCampaign)
	admin.Post("/campaigns/:id/deactivate", campaignService.DeactivateCampaign)
	admin.Post("/campaigns/:id/photo", campaignService.UploadCampaignPhoto)

	// Competitors
	admin.Post("/campaigns/:id/competitors", campaignService.AddCompetitor)
	admin.Delete("/competitors/:competitor_id", campaignService.DeleteCompetitor)
	admin.Post("/competitors/:competitor_id/photo", campaignService.UploadCompetitorPhoto)

	// Bracket progression
	admin.Post("/campaigns/:id/bracket", bracketService.InitializeBracketEndpoint)
	admin.Post("/rounds/:round_id/activate", bracketService.ActivateRoundEndpoint)
	admin.Post("/rounds/:round_id/complete", bracketService.CompleteRoundEndpoint)
	admin.Post("/rounds/:round_id/undo", bracketService.UndoRoundCompletionEndpoint)
	admin.Post("/matchups/:matchup_id/winner", bracketService.SetMatchupWinnerEndpoint)
}
