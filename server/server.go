// Package server exposes the relay's HTTP surface: the permission lookup
// forward, the proof callback, challenge reads and the realtime channel.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/m4xw311/typestake/agent"
	"github.com/m4xw311/typestake/errors"
	"github.com/m4xw311/typestake/hub"
	"github.com/m4xw311/typestake/rails"
	"github.com/m4xw311/typestake/settle"
	"github.com/m4xw311/typestake/store"
)

// maxProofBody caps the callback payload; proof envelopes carry full TLS
// transcripts and get large.
const maxProofBody = 50 << 20 // 50 MB

type Server struct {
	engine   *settle.Engine
	store    *store.Store
	provider rails.Provider
	bridge   *agent.Bridge
	hub      *hub.Hub
	chainID  string
	log      *slog.Logger

	router   *gin.Engine
	upgrader websocket.Upgrader

	// base outlives individual requests: an agent turn or settlement must
	// not be cancelled because the client that triggered it went away.
	base context.Context
}

func New(engine *settle.Engine, st *store.Store, provider rails.Provider, bridge *agent.Bridge, h *hub.Hub, chainID string, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	corsConfig.AllowWebSockets = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		engine:   engine,
		store:    st,
		provider: provider,
		bridge:   bridge,
		hub:      h,
		chainID:  chainID,
		log:      log,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		base: context.Background(),
	}

	router.POST("/permissions", s.handlePermissions)
	router.POST("/receive-proofs", s.handleReceiveProofs)
	router.GET("/challenge/:id", s.handleGetChallenge)
	router.GET("/challenges", s.handleListChallenges)
	router.GET("/ws", s.handleWS)
	return s
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "http server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps an error kind to its HTTP status. Unclassified errors are
// internal.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch errors.KindOf(err) {
	case errors.KindMalformed:
		status, msg = http.StatusBadRequest, "invalid request"
	case errors.KindVerification:
		status, msg = http.StatusBadRequest, "invalid proof"
	case errors.KindNotFound:
		status, msg = http.StatusNotFound, "not found"
	case errors.KindDuplicate:
		status, msg = http.StatusConflict, "duplicate"
	case errors.KindUpstream:
		status, msg = http.StatusBadGateway, "upstream unavailable"
	case errors.KindTransfer:
		status, msg = http.StatusInternalServerError, "transfer failed"
	}

	s.log.Warn("request failed", "path", c.FullPath(), "status", status, "err", err)
	c.JSON(status, errorBody{Error: msg, Details: err.Error()})
}

func (s *Server) handlePermissions(c *gin.Context) {
	var req rails.FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.WrapKind(err, errors.KindMalformed, "parsing permissions request"))
		return
	}
	if req.ChainID == "" {
		req.ChainID = s.chainID
	}

	perms, err := s.provider.FetchPermissions(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if perms == nil {
		perms = []rails.Permission{}
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// handleReceiveProofs is the out-of-band proof callback. Any content type is
// accepted; the body is the transport-encoded envelope. 200 means the
// pipeline reached a verdict, qualifying or not.
func (s *Server) handleReceiveProofs(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxProofBody))
	if err != nil {
		s.writeError(c, errors.WrapKind(err, errors.KindMalformed, "reading proof payload"))
		return
	}

	// The capture flow's delivery is fire-and-forget; run the settlement on
	// the server's context so a dropped callback connection cannot cancel a
	// payout mid-flight.
	outcome, err := s.engine.SettleProof(s.base, body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleGetChallenge(c *gin.Context) {
	challenge, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

func (s *Server) handleListChallenges(c *gin.Context) {
	challenges, err := s.store.ListAll(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if challenges == nil {
		challenges = []*store.Challenge{}
	}
	c.JSON(http.StatusOK, gin.H{"challenges": challenges})
}

// handleWS upgrades the realtime channel. Each inbound text message is one
// agent turn; its chunks stream back to the sending client only, while
// settlement outcomes reach every client via the hub.
func (s *Server) handleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := s.hub.Add(ws)
	defer s.hub.Remove(id)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}

		// The turn runs on the server context: a disconnect mid-turn must
		// not cancel it, the results are simply not delivered.
		err = s.bridge.Submit(s.base, string(msg), func(chunk agent.Chunk) {
			s.hub.Send(id, hub.Frame{Type: chunk.Kind, Content: chunk.Content})
		})
		if err != nil {
			s.log.Warn("agent turn failed", "conn_id", id, "err", err)
			s.hub.Send(id, hub.Frame{
				Type:    "error",
				Content: fmt.Sprintf("Agent error: %v", err),
			})
		}
	}
}
