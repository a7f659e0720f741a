package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradelab/internal/engine"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
	"tradelab/internal/strategy/builtins"
)

const (
	defaultBarLimit = 100
	defaultRunLimit = 50
)

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/strategies", s.handleStrategies)
	v1.GET("/bars", s.handleBars)
	v1.POST("/backtests", s.handleRunBacktest)
	v1.POST("/backtests/dry-run", s.handleDryRun)
	v1.GET("/backtests", s.handleListRuns)
	v1.GET("/backtests/:id", s.handleGetRun)
	v1.GET("/stream", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.backtester.Strategies()})
}

// barView is the JSON form of a domain.Bar.
type barView struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
	Provider   string    `json:"provider,omitempty"`
}

func (s *Server) handleBars(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	limit := defaultBarLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	market := c.DefaultQuery("market", s.market)

	bars, err := s.bars.LatestBars(c.Request.Context(), symbol, market, limit)
	if err != nil {
		s.log.Error("reading bars", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]barView, len(bars))
	for i, b := range bars {
		out[i] = barView(b)
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "market": market, "bars": out})
}

func (s *Server) handleRunBacktest(c *gin.Context) {
	var wire backtestRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := s.runBacktest(c.Request.Context(), wire)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run": rec})
}

func (s *Server) handleDryRun(c *gin.Context) {
	var wire backtestRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := wire.toEngine(s.defaultCash)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if req.Market == "" {
		req.Market = s.market
	}
	rep, err := s.backtester.DryRun(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy":       rep.Strategy,
		"symbols":        rep.Symbols,
		"bars_loaded":    rep.BarsLoaded,
		"bars_by_symbol": rep.BarsBySymbol,
		"first":          rep.First,
		"last":           rep.Last,
		"starting_cash":  rep.StartingCash,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []store.RunRecord{}})
		return
	}
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	rec, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec})
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case isInvalidRequest(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// isInvalidRequest reports whether err is the caller's fault.
func isInvalidRequest(err error) bool {
	return errors.Is(err, engine.ErrInvalidRequest) ||
		errors.Is(err, strategy.ErrUnknownStrategy) ||
		errors.Is(err, builtins.ErrInvalidParams)
}
