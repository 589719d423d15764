package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/bridge"
	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/talk"
	"github.com/vovakirdan/ttbridge/internal/worker"
)

// WorkerView is the read side of the worker exposed to operators.
type WorkerView interface {
	State() worker.State
	Streaming() bool
	Presence() *worker.Presence
	Accounts() *worker.Accounts
}

// AdminHandlers serves the authenticated operator endpoints.
type AdminHandlers struct {
	worker   WorkerView
	commands bridge.CommandSender
	shutdown func()
	log      *zerolog.Logger
}

// NewAdminHandlers creates operator handlers.
func NewAdminHandlers(w WorkerView, commands bridge.CommandSender, shutdown func(), logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{
		worker:   w,
		commands: commands,
		shutdown: shutdown,
		log:      logger,
	}
}

// StatusResponse describes the talk session.
type StatusResponse struct {
	State     string `json:"state"`
	Streaming bool   `json:"streaming"`
	Online    int    `json:"online"`
}

// AcceptedResponse acknowledges a queued command.
type AcceptedResponse struct {
	Command string `json:"command"`
}

// Status reports session state.
// GET /api/status
func (h *AdminHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		State:     h.worker.State().String(),
		Streaming: h.worker.Streaming(),
		Online:    h.worker.Presence().Len(),
	})
}

// Presence lists connected talk users.
// GET /api/presence
func (h *AdminHandlers) Presence(c *gin.Context) {
	users := h.worker.Presence().Snapshot()
	if users == nil {
		users = []worker.LiteUser{}
	}
	c.JSON(http.StatusOK, users)
}

// Accounts lists cached server accounts.
// GET /api/accounts
func (h *AdminHandlers) Accounts(c *gin.Context) {
	accounts := h.worker.Accounts().List()
	if accounts == nil {
		accounts = []talk.Account{}
	}
	c.JSON(http.StatusOK, accounts)
}

// SkipStream stops the current stream.
// POST /api/streams/skip
func (h *AdminHandlers) SkipStream(c *gin.Context) {
	h.send(c, core.Command{Kind: core.CommandSkipStream})
}

// KickUser kicks a talk user.
// POST /api/users/:id/kick
func (h *AdminHandlers) KickUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	h.send(c, core.Command{Kind: core.CommandKickUser, UserID: id})
}

// BanUser bans and kicks a talk user.
// POST /api/users/:id/ban
func (h *AdminHandlers) BanUser(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	h.send(c, core.Command{Kind: core.CommandBanUser, UserID: id})
}

// Shutdown stops the bridge.
// POST /api/shutdown
func (h *AdminHandlers) Shutdown(c *gin.Context) {
	h.log.Warn().Str("operator", c.GetString(ContextKeyOperator)).Msg("shutdown requested over http")
	c.JSON(http.StatusAccepted, AcceptedResponse{Command: core.CommandShutdown.String()})
	if h.shutdown != nil {
		go h.shutdown()
	}
}

func (h *AdminHandlers) userID(c *gin.Context) (int32, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return 0, false
	}
	return int32(id), true
}

func (h *AdminHandlers) send(c *gin.Context, cmd core.Command) {
	if err := h.commands.SendCommand(c.Request.Context(), cmd); err != nil {
		h.log.Warn().Err(err).Stringer("command", cmd.Kind).Msg("command not queued")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "worker unavailable"})
		return
	}
	h.log.Info().Stringer("command", cmd.Kind).Int32("user_id", cmd.UserID).Str("operator", c.GetString(ContextKeyOperator)).Msg("command queued")
	c.JSON(http.StatusAccepted, AcceptedResponse{Command: cmd.Kind.String()})
}
