package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookPath is where Telegram posts updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// WebhookReceiver accepts one Telegram update request.
type WebhookReceiver interface {
	HandleWebhook(r *http.Request) error
}

// WebhookHandler returns a handler that feeds updates to the bot.
func WebhookHandler(receiver WebhookReceiver, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := receiver.HandleWebhook(c.Request); err != nil {
			logger.Debug().Err(err).Msg("rejected webhook update")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid update"})
			return
		}
		c.Status(http.StatusOK)
	}
}
