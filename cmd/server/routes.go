package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xchain-router.backend/internal/interfaces/http/handlers"
	"xchain-router.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	planHandler *handlers.PlanHandler
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		plans := v1.Group("/plans")
		{
			// Idempotency-Key guards against a caller retrying a submission
			// before the first response lands; ClaimDeposit below still
			// guards the case the caller reuses the same deposit without
			// the header.
			plans.POST("", middleware.IdempotencyMiddleware(), d.planHandler.SubmitPlan)
			plans.GET("/:uuid", d.planHandler.GetPlanStatus)
		}

		// Dev-only: manual inspection/advancement without waiting on the
		// background worker's poll interval.
		dev := v1.Group("/dev/plans")
		{
			dev.GET("", d.planHandler.ListInProgress)
			dev.POST("/:uuid/advance", d.planHandler.AdvanceOne)
		}
	}
}
