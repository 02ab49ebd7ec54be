package store

import (
	"context"
	"sort"
	"strings"

	"github.com/gocql/gocql"

	"subscription_live/internal/audit"
	"subscription_live/internal/models"
)

type AuditLogs struct {
	session *gocql.Session
}

func NewAuditLogs(session *gocql.Session) *AuditLogs {
	return &AuditLogs{session: session}
}

func (s *AuditLogs) Insert(ctx context.Context, e models.AuditLog) error {
	return s.session.Query(`INSERT INTO audit_logs (id, user_id, user_email, action, resource, resource_id,
		old_value, new_value, ip_address, user_agent, success, error_msg, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.UserEmail, e.Action, e.Resource, e.ResourceID,
		e.OldValue, e.NewValue, e.IPAddress, e.UserAgent, e.Success, e.ErrorMsg, e.Timestamp,
	).WithContext(ctx).Exec()
}

// List applies the filter and returns the newest entries first.
func (s *AuditLogs) List(ctx context.Context, f audit.Filter) ([]models.AuditLog, error) {
	query, args := auditQuery(f)
	iter := s.session.Query(query, args...).WithContext(ctx).Iter()

	var logs []models.AuditLog
	var e models.AuditLog
	for iter.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.Resource, &e.ResourceID,
		&e.OldValue, &e.NewValue, &e.IPAddress, &e.UserAgent, &e.Success, &e.ErrorMsg, &e.Timestamp) {
		logs = append(logs, e)
		e = models.AuditLog{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	return logs, nil
}

func auditQuery(f audit.Filter) (string, []interface{}) {
	query := `SELECT id, user_id, user_email, action, resource, resource_id,
		old_value, new_value, ip_address, user_agent, success, error_msg, timestamp FROM audit_logs`

	var conditions []string
	var args []interface{}
	if f.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *f.Success)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " LIMIT ?"
	args = append(args, f.Limit)
	if len(conditions) > 0 {
		query += " ALLOW FILTERING"
	}
	return query, args
}
