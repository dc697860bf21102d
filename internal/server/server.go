// Package server exposes enrollment and punching over HTTP for kiosk front-ends.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/andresmejia3/facepunch/internal/store"
	"github.com/andresmejia3/facepunch/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Enroller registers a face under an identity.
type Enroller interface {
	EnrollFromImage(ctx context.Context, uniqueID, displayName string, img []byte) (types.Identity, error)
}

// Puncher records attendance.
type Puncher interface {
	RecordPunch(ctx context.Context, img []byte, action string, threshold float64) (types.AttendanceEvent, error)
	Actions() []string
}

// IdentityLister lists enrolled identities.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]store.IdentityRecord, error)
}

type Server struct {
	enroller   Enroller
	puncher    Puncher
	identities IdentityLister
	threshold  float64
}

func New(e Enroller, p Puncher, ids IdentityLister, threshold float64) *Server {
	return &Server{enroller: e, puncher: p, identities: ids, threshold: threshold}
}

// Images are sent base64 encoded; encoding/json decodes them into []byte.
type enrollRequest struct {
	UniqueID    string `json:"unique_id" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Image       []byte `json:"image" binding:"required"`
}

type punchRequest struct {
	Action    string   `json:"action" binding:"required"`
	Image     []byte   `json:"image" binding:"required"`
	Threshold *float64 `json:"threshold"`
}

// Router builds the gin engine. Each request is served on its own goroutine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	// Kiosk front-ends are served from another origin
	r.Use(gin.Recovery(), cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/actions", s.handleActions)
	r.GET("/identities", s.handleIdentities)
	r.POST("/enroll", s.handleEnroll)
	r.POST("/punch", s.handlePunch)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": s.puncher.Actions()})
}

func (s *Server) handleIdentities(c *gin.Context) {
	ids, err := s.identities.ListIdentities(c.Request.Context())
	if err != nil {
		s.fail(c, types.Storage("list identities", err))
		return
	}

	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		out = append(out, gin.H{
			"unique_id":    id.UniqueID,
			"display_name": id.DisplayName,
			"created_at":   id.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"identities": out})
}

func (s *Server) handleEnroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	id, err := s.enroller.EnrollFromImage(c.Request.Context(), req.UniqueID, req.DisplayName, req.Image)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"identity": id})
}

func (s *Server) handlePunch(c *gin.Context) {
	var req punchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	threshold := s.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	ev, err := s.puncher.RecordPunch(c.Request.Context(), req.Image, req.Action, threshold)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": ev})
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, body)
}

// statusFor maps the error taxonomy to an HTTP status and response body.
func statusFor(err error) (int, gin.H) {
	var (
		nm *types.NoMatchError
		ve *types.ValidationError
		se *types.StorageError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "field": ve.Field}
	case errors.Is(err, types.ErrNoFaceDetected):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}
	case errors.As(err, &nm):
		return http.StatusNotFound, gin.H{"error": err.Error(), "distance": nm.Distance}
	case errors.Is(err, types.ErrNoEnrollments):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, types.ErrImageUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error()}
	case errors.As(err, &se):
		return http.StatusInternalServerError, gin.H{"error": "storage failure"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}
