package api

import "github.com/gin-gonic/gin"

// NewRouter wires the cron/manual trigger, the pool-health snapshot, and
// the interactive fill-now stream behind the optional bearer middleware.
func NewRouter(h *Handlers, sharedSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORS())

	admin := r.Group("/admin", RequireBearer(sharedSecret))
	admin.GET("/fill", h.Fill)
	admin.POST("/fill", h.Fill)
	admin.GET("/pool/:genre", h.Pool)
	admin.POST("/fill-now/:genre", h.TriggerFillNow)
	admin.GET("/fill-now/:genre/stream", h.FillNowStream)

	return r
}
