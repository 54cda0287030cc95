package handlers

import (
	"time"

	"bracket-vote-system/middleware"
	"bracket-vote-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func SetupVotingRoutes(app *fiber.App, voteService *services.VoteService, sourceService *services.SourceService) {
	// 🔓 Public voting flow. Submission is rate limited per IP; the real
	// anti-abuse guard is the (matchup, voter, source) uniqueness constraint.
	public := app.Group("/", middleware.SourceContextMiddleware())
	public.Post("/campaigns/:slug/ballot", limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
	}), voteService.SubmitBallotEndpoint)
	public.Get("/campaigns/:slug/ballot/status", voteService.BallotStatusEndpoint)
	public.Get("/campaigns/:slug/sources/:code/check", sourceService.CheckSourceEndpoint)

	// 🔒 Admin-only
	admin := app.Group("/admin", middleware.AdminAuthMiddleware())

	// Vote administration
	admin.Delete("/votes/:id", voteService.DeleteVoteEndpoint)
	admin.Get("/campaigns/:id/votes", voteService.VoteReportEndpoint)
	admin.Get("/campaigns/:id/votes/export", voteService.ExportVotesCSVEndpoint)

	// Vote source management
	admin.Post("/sources", sourceService.CreateSource)
	admin.Get("/sources", sourceService.GetSources)
	admin.Put("/sources/:id", sourceService.UpdateSource)
	admin.Delete("/sources/:id", sourceService.DeleteSource)
}
