package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nepse-observer/src/helpers"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"
	"nepse-observer/src/utils"

	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 5000

// -----------------------------------------------------------------------------
// Health and jobs
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	status := "ok"
	var failed []string
	if s.Jobs != nil {
		for _, st := range s.Jobs.Statuses() {
			if st.Status == models.JobFailed {
				failed = append(failed, st.JobName)
			}
		}
	}
	if len(failed) > 0 {
		status = "degraded"
	}

	s.stateMutex.RLock()
	latest := s.latest.Timestamp
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"failed_jobs":   failed,
		"connections":   s.connections.Load(),
		"latest_update": latest,
		"time":          s.Clock.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) listJobs(c *gin.Context) {
	if s.Jobs == nil {
		c.JSON(http.StatusOK, []models.MJobStatus{})
		return
	}
	c.JSON(http.StatusOK, s.Jobs.Statuses())
}

func (s *APIServer) getJob(c *gin.Context) {
	if s.Jobs == nil {
		notFound(c, "job "+c.Param("name"))
		return
	}
	st, err := s.Jobs.Status(c.Param("name"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// runJob starts a job in the background and answers with its run id.
func (s *APIServer) runJob(c *gin.Context) {
	name := c.Param("name")
	if s.Jobs == nil {
		notFound(c, "job "+name)
		return
	}
	runID, err := s.Jobs.Trigger(name)
	if err != nil {
		s.jobError(c, err)
		return
	}
	s.Logger.Info("Manual run of %s accepted (%s)", name, runID)
	c.JSON(http.StatusAccepted, gin.H{"job_name": name, "run_id": runID})
}

func (s *APIServer) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrStopping):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("Job request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// -----------------------------------------------------------------------------
// Market reads
// -----------------------------------------------------------------------------

func (s *APIServer) getIndex(c *gin.Context) {
	idx, err := s.Reader.ReadMarketIndex(c.Request.Context())
	if err != nil {
		s.readError(c, "market index", err)
		return
	}
	c.JSON(http.StatusOK, idx)
}

func (s *APIServer) getStatus(c *gin.Context) {
	st, err := s.Reader.ReadMarketStatus(c.Request.Context())
	if err != nil {
		s.readError(c, "market status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *APIServer) getPrices(c *gin.Context) {
	quotes, err := s.Reader.ReadPrices(c.Request.Context())
	if err != nil {
		s.readError(c, "prices", err)
		return
	}
	if quotes == nil {
		quotes = []models.MPriceQuote{}
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *APIServer) getPrice(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	q, err := s.Reader.ReadPrice(c.Request.Context(), symbol)
	if err != nil {
		s.readError(c, "price "+symbol, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// getIntraday serves the index series of ?date=YYYY-MM-DD, today by default.
func (s *APIServer) getIntraday(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = utils.BusinessDate(s.Clock.Now())
	} else if _, err := time.Parse(utils.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	series, err := s.Reader.ReadIntradayIndex(c.Request.Context(), date)
	if err != nil {
		s.readError(c, "intraday "+date, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"business_date": date, "series": series})
}

// getHistory serves stored daily rows of a symbol, newest first, up to ?limit.
func (s *APIServer) getHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)})
			return
		}
		limit = n
	}

	rows, err := s.Reader.ReadPriceHistory(c.Request.Context(), symbol, limit)
	if err != nil {
		s.readError(c, "history "+symbol, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "history": rows})
}

func (s *APIServer) getSecurity(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	sec, err := s.Reader.ReadSecurity(c.Request.Context(), symbol)
	if err != nil {
		s.readError(c, "security "+symbol, err)
		return
	}
	c.JSON(http.StatusOK, sec)
}

// -----------------------------------------------------------------------------

func (s *APIServer) readError(c *gin.Context, what string, err error) {
	if errors.Is(err, helpers.ErrNotFound) {
		notFound(c, what)
		return
	}
	s.Logger.Error("Read %s failed: %v", what, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}
