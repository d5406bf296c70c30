package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/crateflow/internal/auditcontext"
)

const HeaderActorID = "X-Actor-ID"

// ActorContext attributes the request to the user named in X-Actor-ID, or to
// the system when the header is absent.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorType, actorID := auditcontext.ActorTypeSystem, ""
		if actor := strings.TrimSpace(c.GetHeader(HeaderActorID)); actor != "" {
			actorType, actorID = auditcontext.ActorTypeUser, actor
		}
		c.Request = c.Request.WithContext(auditcontext.WithActor(c.Request.Context(), actorType, actorID))
		c.Next()
	}
}
