package telephony

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sachida369/AICaller/internal/calls"
	"github.com/sachida369/AICaller/internal/store"
	"github.com/sachida369/AICaller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallLogAppender is the store subset the status webhook writes to.
type CallLogAppender interface {
	AppendCallLog(ctx context.Context, id string, entry calls.LogEntry) error
}

// TwilioStatusHandler records Twilio status callbacks on the call log.
//
// No business logic here: call and lead outcomes are still decided by the dialer.
type TwilioStatusHandler struct {
	Calls CallLogAppender

	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string

	// PublicBaseURL is the externally visible origin Twilio signed against.
	PublicBaseURL string

	Now func() time.Time
}

func (h TwilioStatusHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call store not configured"})
		return
	}

	callID := strings.TrimSpace(c.Query("call_id"))
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	form, params, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.AuthToken != "" {
		fullURL := strings.TrimRight(h.PublicBaseURL, "/") + c.Request.URL.RequestURI()
		if !ValidTwilioSignature(h.AuthToken, fullURL, params, c.GetHeader("X-Twilio-Signature")) {
			log.Warn("twilio signature rejected", "call_id", callID)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}
	if form.CallStatus == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallStatus required"})
		return
	}

	err = h.Calls.AppendCallLog(c.Request.Context(), callID, calls.LogEntry{Timestamp: h.Now().UTC(), Message: form.LogLine()})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	case errors.Is(err, store.ErrInvalidTransition):
		// Late callbacks for resolved calls are acknowledged and dropped.
		log.Debug("status for finished call ignored", "call_id", callID, "status", form.CallStatus)
	default:
		log.Error("append provider status failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	c.Status(http.StatusNoContent)
}
