package audit

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"

	"subscription_live/internal/models"
)

// Actions recorded in the audit log.
const (
	ActionProductCreate = "product.create"
	ActionProductUpdate = "product.update"
	ActionProductDelete = "product.delete"
	ActionProductImage  = "product.image"

	ActionCouponCreate = "coupon.create"
	ActionCouponUpdate = "coupon.update"
	ActionCouponDelete = "coupon.delete"

	ActionToolCreate = "tool.create"
	ActionToolUpdate = "tool.update"
	ActionToolDelete = "tool.delete"

	ActionOrderRefund = "order.refund"
	ActionGrantRetry  = "order.grant_retry"
	ActionGrantFailed = "order.grant_failed"
	ActionRoleAssign  = "role.assign"
)

const (
	ResourceProduct = "product"
	ResourceCoupon  = "coupon"
	ResourceTool    = "tool"
	ResourceOrder   = "order"
	ResourceUser    = "user"
)

// Filter narrows an audit listing. Zero values match everything.
type Filter struct {
	UserID   string
	Action   string
	Resource string
	Success  *bool
	Limit    int
}

type Store interface {
	Insert(ctx context.Context, entry models.AuditLog) error
	List(ctx context.Context, f Filter) ([]models.AuditLog, error)
}

// Logger writes audit entries in the background so handlers never wait on them.
type Logger struct {
	store Store
	wg    sync.WaitGroup
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Log records an entry asynchronously. Missing id and timestamp are filled in.
func (l *Logger) Log(entry models.AuditLog) {
	if entry.ID == (gocql.UUID{}) {
		entry.ID = gocql.TimeUUID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Insert(ctx, entry); err != nil {
			log.Printf("❌ Audit entry %s not saved: %v", entry.Action, err)
		}
	}()
}

// Wait blocks until every pending entry is written.
func (l *Logger) Wait() { l.wg.Wait() }

func (l *Logger) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	return l.store.List(ctx, f)
}

// Context keys handlers use to enrich the entry written by Action.
const (
	KeyResourceID = "audit_resource_id"
	KeyOldValue   = "audit_old_value"
	KeyNewValue   = "audit_new_value"
)

// Action audits the wrapped admin route once it has been handled.
func (l *Logger) Action(action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		entry := FromContext(c, action, resource)
		status := c.Writer.Status()
		entry.Success = status >= http.StatusOK && status < http.StatusMultipleChoices
		if !entry.Success {
			if len(c.Errors) > 0 {
				entry.ErrorMsg = c.Errors.String()
			} else {
				entry.ErrorMsg = http.StatusText(status)
			}
		}
		l.Log(entry)
	}
}

// FromContext builds an entry from the request and the values handlers stored.
func FromContext(c *gin.Context, action, resource string) models.AuditLog {
	resourceID := c.GetString(KeyResourceID)
	if resourceID == "" {
		resourceID = c.Param("id")
	}
	oldValue, _ := c.Get(KeyOldValue)
	newValue, _ := c.Get(KeyNewValue)

	return models.AuditLog{
		UserID:     c.GetString("user_id"),
		UserEmail:  c.GetString("email"),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		OldValue:   encode(oldValue),
		NewValue:   encode(newValue),
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	}
}

func encode(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
