package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// API is the operator view over live meetings.
type API struct {
	Orch *orch.Orchestrator
}

func (a *API) Register(g *gin.RouterGroup) {
	g.GET("/sessions", a.listSessions)
	g.POST("/sessions", a.createSession)
	g.GET("/sessions/:id", a.getSession)
	g.GET("/sessions/:id/participants", a.listParticipants)
	g.GET("/sessions/:id/admissions", a.listAdmissions)
	g.DELETE("/sessions/:id", a.stopSession)
}

type createSessionRequest struct {
	Policy domain.AdmissionPolicy `json:"policy"`
}

func (a *API) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": a.Orch.Sessions.List()})
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": err.Error()})
		return
	}
	if req.Policy != "" && !req.Policy.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "error": "unknown admission policy"})
		return
	}
	s := a.Orch.Sessions.Create(req.Policy)
	c.JSON(http.StatusCreated, s.Info())
}

func (a *API) getSession(c *gin.Context) {
	s, err := a.Orch.Sessions.Get(domain.SessionID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Info())
}

func (a *API) listParticipants(c *gin.Context) {
	s, err := a.Orch.Sessions.Get(domain.SessionID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": s.List()})
}

func (a *API) listAdmissions(c *gin.Context) {
	s, err := a.Orch.Sessions.Get(domain.SessionID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": s.PendingRequests()})
}

func (a *API) stopSession(c *gin.Context) {
	if err := a.Orch.StopSession(domain.SessionID(c.Param("id"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrSessionEnded),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"code": domain.Code(err), "error": err.Error()})
}
