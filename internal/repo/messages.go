package repo

import (
	"context"
	"database/sql"

	"kitchenflow/internal/domain"
)

func (r Repo) InsertChatMessageTx(ctx context.Context, tx *sql.Tx, m domain.ChatMessage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chat_messages(id,project_id,sender_id,message,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.ProjectID, m.SenderID, m.Message, m.CreatedAt)
	return err
}

// ListChatMessages returns a project's messages oldest-first with the
// sender's display name resolved from profiles.
func (r Repo) ListChatMessages(ctx context.Context, projectID string) ([]domain.ChatMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT m.id, m.project_id, m.sender_id, COALESCE(p.full_name, p.email, ''), m.message, m.created_at
FROM chat_messages m
LEFT JOIN profiles p ON p.id = m.sender_id
WHERE m.project_id = ?
ORDER BY m.created_at, m.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.SenderName, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListChatParticipants returns the distinct user ids involved in a project's
// conversation: everyone who has sent a message plus every phase assignee.
func (r Repo) ListChatParticipants(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT sender_id FROM chat_messages WHERE project_id = ?
UNION
SELECT assigned_to FROM kitchen_project_phases WHERE project_id = ? AND assigned_to IS NOT NULL`, projectID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// --- notifications ---

const notificationCols = `id,user_id,title,message,type,project_id,task_id,read,created_at`

func scanNotificationFields(scan func(dest ...any) error) (domain.Notification, error) {
	var (
		n         domain.Notification
		typ       sql.NullString
		projectID sql.NullString
		taskID    sql.NullString
	)
	err := scan(&n.ID, &n.UserID, &n.Title, &n.Message, &typ, &projectID, &taskID, &n.Read, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Type = typ.String
	if projectID.Valid {
		n.ProjectID = &projectID.String
	}
	if taskID.Valid {
		n.TaskID = &taskID.String
	}
	return n, nil
}

func (r Repo) InsertNotificationTx(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(`+notificationCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Title, n.Message, nullable(n.Type), nullableStringPtr(n.ProjectID), nullableStringPtr(n.TaskID), n.Read, n.CreatedAt)
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id=?`, id)
	return scanNotificationFields(row.Scan)
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotificationFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=? AND read=0`, userID).Scan(&n)
	return n, err
}

func (r Repo) MarkNotificationReadTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsReadTx(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
