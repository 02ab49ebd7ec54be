package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/audit"
)

// secretFields never reach the audit log.
var secretFields = []string{"password", "login_password", "secret", "current_password", "new_password"}

// AuditRequestBody records the JSON body of admin writes as the audit entry's
// new value. The body is restored for the handler.
func AuditRequestBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.ContentType() != gin.MIMEJSON {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var body map[string]interface{}
		if err := json.Unmarshal(bodyBytes, &body); err == nil {
			for _, f := range secretFields {
				if _, ok := body[f]; ok {
					body[f] = "[redacted]"
				}
			}
			c.Set(audit.KeyNewValue, body)
		}

		c.Next()
	}
}
