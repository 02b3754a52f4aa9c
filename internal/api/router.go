package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CORSConfig accepts the given origins; "*" or an empty list allows any origin.
func CORSConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handlers, corsOrigins []string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(logger), RequestLogger(logger), cors.New(CORSConfig(corsOrigins)))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/status", h.Status)
	api.GET("/qr", h.QR)
	api.POST("/send", h.Send)
	api.GET("/chats", h.Chats)
	api.GET("/messages/:chatId", h.Messages)
	api.POST("/disconnect", h.Disconnect)

	return r
}
