// Package api adapts the pipeline service to HTTP: the cron/manual
// trigger endpoint, the pool-health snapshot, and the interactive
// fill-now SSE stream.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/pipeline"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Handlers wires the pipeline service, the config store, and the Redis
// stage bus into gin.HandlerFuncs.
type Handlers struct {
	Service *pipeline.Service
	Configs store.PipelineConfigStore
	Bus     *store.StageBus
}

func NewHandlers(svc *pipeline.Service, configs store.PipelineConfigStore, bus *store.StageBus) *Handlers {
	return &Handlers{Service: svc, Configs: configs, Bus: bus}
}

type genreFillOutcome struct {
	Success bool                       `json:"success"`
	Result  *models.PipelineFillResult `json:"result,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

type fillResponse struct {
	Timestamp string                       `json:"timestamp"`
	Results   map[string]genreFillOutcome `json:"results"`
}

// Fill runs FillWindow for every enabled PipelineConfig. Each genre's
// run is independent and proceeds in its own goroutine; the genres
// share nothing but the database.
func (h *Handlers) Fill(c *gin.Context) {
	ctx := c.Request.Context()

	configs, err := h.Configs.ListEnabled(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("misconfigured: %v", err)})
		return
	}

	results := make(map[string]genreFillOutcome, len(configs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, cfg := range configs {
		cfg := cfg
		g.Go(func() error {
			outcome := h.runGenre(gctx, cfg)
			mu.Lock()
			results[string(cfg.Genre)] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed := 0, 0
	for _, outcome := range results {
		if outcome.Success {
			succeeded++
		} else {
			failed++
		}
	}
	status := http.StatusOK
	switch {
	case failed > 0 && succeeded > 0:
		status = http.StatusMultiStatus
	case failed > 0 && succeeded == 0:
		status = http.StatusInternalServerError
	}

	c.JSON(status, fillResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   results,
	})
}

func (h *Handlers) runGenre(ctx context.Context, cfg models.PipelineConfig) genreFillOutcome {
	stage := func(st models.Stage) {
		if h.Bus == nil {
			return
		}
		if err := h.Bus.PublishStage(ctx, string(cfg.Genre), string(st)); err != nil {
			log.Debug().Err(err).Str("genre", string(cfg.Genre)).Msg("publish stage failed")
		}
	}

	result := h.Service.FillWindow(ctx, cfg.Genre, cfg, stage)

	success := true
	for _, e := range result.Errors {
		if e.Code == models.ErrCodeMisconfigured || e.Code == models.ErrCodeStorageError {
			success = false
		}
	}
	return genreFillOutcome{Success: success, Result: result}
}

// Pool implements the pool-health snapshot endpoint: a pure read over
// CheckPool, cached briefly in Redis.
func (h *Handlers) Pool(c *gin.Context) {
	genre := models.Genre(c.Param("genre"))
	ctx := c.Request.Context()

	if h.Bus != nil {
		var cached pipeline.PoolHealth
		if hit, err := h.Bus.CachedPoolHealth(ctx, string(genre), &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	health, err := h.Service.CheckPool(ctx, genre)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.Bus != nil {
		if err := h.Bus.CachePoolHealth(ctx, string(genre), health); err != nil {
			log.Debug().Err(err).Str("genre", string(genre)).Msg("cache pool health failed")
		}
	}
	c.JSON(http.StatusOK, health)
}

// TriggerFillNow kicks off an asynchronous FillWindow run for one genre,
// publishing stage transitions to the Redis channel the SSE stream
// relays. It returns immediately; the caller watches the stream.
func (h *Handlers) TriggerFillNow(c *gin.Context) {
	genre := models.Genre(c.Param("genre"))
	ctx := context.WithoutCancel(c.Request.Context())

	configs, err := h.Configs.Get(c.Request.Context(), genre)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	go func() {
		h.runGenre(ctx, configs)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// FillNowStream relays stage transitions for genre over SSE while an
// interactive fill-now run (triggered by TriggerFillNow) is in flight.
func (h *Handlers) FillNowStream(c *gin.Context) {
	if h.Bus == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stage bus not configured"})
		return
	}
	genre := c.Param("genre")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stages, closeSub := h.Bus.SubscribeStage(ctx, genre)
	defer closeSub()

	c.Stream(func(w io.Writer) bool {
		select {
		case stage, ok := <-stages:
			if !ok {
				return false
			}
			c.SSEvent("stage", stage)
			return stage != string(models.StageComplete) && stage != string(models.StageError)
		case <-ctx.Done():
			return false
		}
	})
}
