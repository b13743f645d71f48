package adminapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/builder"
	"github.com/harun/twinself/pkg/commandqueue"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/harun/twinself/pkg/prompt"
	"github.com/harun/twinself/pkg/suggestions"
)

const actorAPI = "api"

type errorResponse struct {
	Error string `json:"error"`
}

type jobResponse struct {
	JobID string `json:"job_id"`
}

// RebuildRequest is the optional body of POST /api/rebuild.
type RebuildRequest struct {
	Force             bool `json:"force"`
	DryRun            bool `json:"dry_run"`
	SkipProceduralGen bool `json:"skip_procedural_gen"`
	CreateVersion     bool `json:"create_version"`
	Validate          bool `json:"validate"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
		"queue":       s.queue.GetStats(),
		"subscribers": s.hub.count(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.service.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePlan(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	plan, err := s.service.Plan(c.Request.Context(), force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "plan": plan})
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleListVersions(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Registry().ListVersions())
}

func (s *Server) handleActiveVersion(c *gin.Context) {
	v, ok := s.service.Registry().ActiveVersion()
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no active version"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleGetVersion(c *gin.Context) {
	v, ok := s.service.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "version " + c.Param("id") + " not found"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleDiff(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "from and to are required"})
		return
	}
	diff, ok := s.service.Diff(from, to)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "one or both versions not found"})
		return
	}
	c.JSON(http.StatusOK, diff)
}

func (s *Server) handleRebuild(c *gin.Context) {
	var req RebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	opts := lifecycle.Options{
		Force:             req.Force,
		DryRun:            req.DryRun,
		SkipProceduralGen: req.SkipProceduralGen,
		CreateVersion:     req.CreateVersion,
		Validate:          req.Validate,
		Trigger:           actorAPI,
	}

	ctx := tracing.NewCycleContext(c.Request.Context(), actorAPI)
	id, err := s.queue.Submit(ctx, commandqueue.LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return s.service.Rebuild(ctx, opts)
	}, &commandqueue.TaskOptions{Kind: "rebuild", RequestID: c.GetHeader("X-Request-ID")})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, jobResponse{JobID: id})
}

func (s *Server) handleRollback(c *gin.Context) {
	versionID := c.Param("id")
	restoreData := true
	if raw := c.Query("restore_data"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "restore_data must be a boolean"})
			return
		}
		restoreData = v
	}
	if _, ok := s.service.Registry().Get(versionID); !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "version " + versionID + " not found"})
		return
	}

	ctx := tracing.NewCycleContext(c.Request.Context(), actorAPI)
	id, err := s.queue.Submit(ctx, commandqueue.LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		res := s.service.Rollback(ctx, versionID, restoreData)
		if !res.OK() {
			return res, errors.New(res.Error())
		}
		return res, nil
	}, &commandqueue.TaskOptions{Kind: "rollback", RequestID: c.GetHeader("X-Request-ID")})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, jobResponse{JobID: id})
}

func (s *Server) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.Jobs())
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.queue.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Snapshots().Infos())
}

// handleDeleteSnapshot runs on the lifecycle lane so it cannot race a
// rebuild's snapshot or cleanup.
func (s *Server) handleDeleteSnapshot(c *gin.Context) {
	versionID := c.Param("id")
	ctx := tracing.WithActor(c.Request.Context(), actorAPI)
	value, err := s.queue.Enqueue(ctx, commandqueue.LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return s.service.DeleteSnapshot(ctx, versionID), nil
	}, &commandqueue.TaskOptions{Kind: "snapshot_delete"})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if deleted, _ := value.(bool); !deleted {
		c.JSON(http.StatusNotFound, errorResponse{Error: "snapshot " + versionID + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": versionID})
}

func (s *Server) handleListSuggestions(c *gin.Context) {
	pending, err := s.service.Suggestions().Pending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if pending == nil {
		pending = []builder.Example{}
	}
	c.JSON(http.StatusOK, pending)
}

func (s *Server) handleAddSuggestion(c *gin.Context) {
	var req builder.Example
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	n, err := s.service.Suggestions().Add(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, suggestions.ErrInvalidSuggestion) {
			status = http.StatusBadRequest
		}
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pending": n})
}

// handleProcessSuggestions writes into episodic_data, so it shares the
// lifecycle lane with rebuilds.
func (s *Server) handleProcessSuggestions(c *gin.Context) {
	var opts suggestions.Options
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	ctx := tracing.WithActor(c.Request.Context(), actorAPI)
	id, err := s.queue.Submit(ctx, commandqueue.LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return s.service.Suggestions().Process(opts)
	}, &commandqueue.TaskOptions{Kind: "suggestions_process", RequestID: c.GetHeader("X-Request-ID")})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, jobResponse{JobID: id})
}

func (s *Server) handleActivePrompt(c *gin.Context) {
	p, err := s.service.Prompts().Active()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, prompt.ErrNoPrompt) {
			status = http.StatusNotFound
		}
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Event stream upgrade failed")
		return
	}
	s.hub.serve(conn)
}
