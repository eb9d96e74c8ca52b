// Package gateway exposes a read-only REST facade over the chain state for
// web frontends. Writes still go through the JSON-RPC endpoint so that all
// transactions take a single signed path into the mempool.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/indexer"
	"github.com/ddlab/luckchain/vm/modules/lottery"
)

// Server is the REST gateway.
type Server struct {
	bc      *core.Blockchain
	state   core.State
	indexer *indexer.Indexer
	srv     *http.Server
}

// New creates a gateway Server listening on addr.
func New(addr string, bc *core.Blockchain, state core.State, idx *indexer.Indexer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{bc: bc, state: state, indexer: idx}

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/phase", s.handlePhase)
		v1.GET("/session", s.handleSession)
		v1.GET("/config", s.handleConfig)
		v1.GET("/participants", s.handleParticipants)
		v1.GET("/participants/:address", s.handleParticipant)
		v1.GET("/results", s.handleResults)
		v1.GET("/results/:session_id", s.handleResult)
		v1.GET("/players/:address/sessions", s.handlePlayerSessions)
		v1.GET("/stats", s.handleStats)
		v1.GET("/version", s.handleVersion)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the port synchronously then serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Errorf("gateway server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the gateway, waiting up to 5 seconds for
// in-flight requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// ---- handlers ----

func (s *Server) handlePhase(c *gin.Context) {
	c.JSON(http.StatusOK, lottery.InfoAt(s.bc.Height()+1))
}

func (s *Server) handleSession(c *gin.Context) {
	sess, err := s.state.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session open"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleConfig(c *gin.Context) {
	cfg, err := s.state.GetLotteryConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleParticipants(c *gin.Context) {
	sess, err := s.state.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusOK, []core.Participant{})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess.Participants)
}

func (s *Server) handleParticipant(c *gin.Context) {
	address := c.Param("address")
	sess, err := s.state.GetCurrentSession()
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session open"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for i := range sess.Participants {
		if sess.Participants[i].Address == address {
			c.JSON(http.StatusOK, sess.Participants[i])
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
}

func (s *Server) handleResults(c *gin.Context) {
	limit := 30
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}
	ids, err := s.indexer.GetHistory(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	results := make([]*core.LotteryResult, 0, len(ids))
	for _, id := range ids {
		r, err := s.state.GetResult(id)
		if err != nil {
			continue
		}
		results = append(results, r)
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleResult(c *gin.Context) {
	result, err := s.state.GetResult(c.Param("session_id"))
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePlayerSessions(c *gin.Context) {
	address := c.Param("address")
	sessions, err := s.indexer.GetSessionsByPlayer(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	wins, err := s.indexer.GetWinsByPlayer(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":  address,
		"sessions": sessions,
		"wins":     wins,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.state.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": core.BuildName, "version": core.BuildVersion})
}
