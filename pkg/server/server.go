package server

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tickermood/pkg/sentiment"
	"tickermood/pkg/source"
)

// Server provides the HTTP API.
type Server struct {
	router *gin.Engine
	addr   string
}

// New creates a new HTTP server.
func New(st Store, analyzer *sentiment.Analyzer, sources []source.Source, port int) *Server {
	if port == 0 {
		port = 8080
	}

	h := NewHandler(st, analyzer, sources)

	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/health", h.GetHealth)

	api := r.Group("/api/v1")
	api.GET("/stocks", h.GetStocks)
	api.GET("/stocks/:symbol/mentions", h.GetStockMentions)
	api.GET("/mentions", h.GetRecentMentions)
	api.GET("/signals", h.GetSignals)
	api.POST("/scrape", h.TriggerScrape)

	return &Server{
		router: r,
		addr:   fmt.Sprintf(":%d", port),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.router.Run(s.addr)
}
