// Package api is the HTTP front of the reef engine: submit, get, search,
// molt, and a status endpoint, JSON in and out. Wire encoding lives here;
// all behavior stays in the engine.
package api

// #region imports
import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/audit"
	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/embed"
	"github.com/reefipedia/reef/internal/engine"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/search"
	"github.com/reefipedia/reef/internal/store"
	"github.com/reefipedia/reef/internal/verify"
)

// #endregion

// #region server

// Server hosts the HTTP handlers.
type Server struct {
	engine *engine.Engine
	store  *store.Store
	epochs *consensus.EpochManager
	model  polyp.ModelID
	logger *slog.Logger
}

// NewServer creates the HTTP server facade. model is the deployment's
// default embedding space for submissions and queries.
func NewServer(e *engine.Engine, st *store.Store, epochs *consensus.EpochManager, model polyp.ModelID, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: e, store: st, epochs: epochs, model: model, logger: logger}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.POST("/polyps", s.handleSubmit)
	v1.GET("/polyps/:id", s.handleGet)
	v1.GET("/polyps/:id/audit", s.handleAudit)
	v1.GET("/polyps/:id/lineage", s.handleLineage)
	v1.POST("/polyps/:id/molt", s.handleMolt)
	v1.POST("/search", s.handleSearch)
	v1.GET("/status", s.handleStatus)
	return r
}

// #endregion server

// #region wire-types

// SubmitBody is the submission payload.
type SubmitBody struct {
	Content       string                  `json:"content" binding:"required"`
	ContentType   string                  `json:"content_type"`
	Language      string                  `json:"language"`
	CreatorDID    string                  `json:"creator_did" binding:"required"`
	CreatorHotkey string                  `json:"creator_hotkey"`
	Source        polyp.SourceAttribution `json:"source"`
	Proof         *polyp.Proof            `json:"proof,omitempty"`
}

// SearchBody is the query payload.
type SearchBody struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
	Rank  string `json:"rank"`
}

type errorBody struct {
	Error string `json:"error"`
}

// #endregion wire-types

// #region handlers

func (s *Server) handleSubmit(c *gin.Context) {
	var body SubmitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	p, err := s.engine.Submit(c.Request.Context(), s.submitRequest(body))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid polyp id"})
		return
	}
	p, err := s.engine.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleAudit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid polyp id"})
		return
	}
	entries, err := audit.ListByPolyp(c.Request.Context(), s.store.DB(), id.String())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleLineage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid polyp id"})
		return
	}
	chain, err := s.engine.Lineage(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": chain})
}

func (s *Server) handleMolt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid polyp id"})
		return
	}
	var body SubmitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	successor, err := s.engine.Molt(c.Request.Context(), id, s.submitRequest(body))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successor)
}

func (s *Server) handleSearch(c *gin.Context) {
	var body SearchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	results, err := s.engine.Search(c.Request.Context(), search.Query{
		Text:  body.Query,
		Model: s.model,
		TopK:  body.TopK,
		Rank:  search.RankMode(body.Rank),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleStatus(c *gin.Context) {
	counts, err := s.store.CountByState(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	status, err := s.epochs.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"states": counts, "epoch": status})
}

// #endregion handlers

// #region helpers

func (s *Server) submitRequest(body SubmitBody) engine.SubmitRequest {
	source := body.Source
	if source.AccessedAt.IsZero() {
		source.AccessedAt = time.Now().UTC()
	}
	return engine.SubmitRequest{
		Content:     body.Content,
		ContentType: body.ContentType,
		Language:    body.Language,
		Model:       s.model,
		Provenance: polyp.Provenance{
			CreatorDID:    body.CreatorDID,
			CreatorHotkey: body.CreatorHotkey,
			Source:        source,
			Pipeline: polyp.Pipeline{
				Steps: []polyp.PipelineStep{{Name: "api-submit", Version: "1"}},
			},
		},
		Proof: body.Proof,
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, polyp.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, polyp.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, polyp.ErrConflict), errors.Is(err, polyp.ErrTerminalState):
		status = http.StatusConflict
	case errors.Is(err, verify.ErrVerifierUnavailable),
		errors.Is(err, embed.ErrModelUnavailable),
		errors.Is(err, embed.ErrEmbeddingFailed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	c.JSON(status, errorBody{Error: err.Error()})
}

// #endregion helpers
