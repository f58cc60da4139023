package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded by the workflows. The feed dispatcher filters on
// these names.
const (
	TypeClientCreated               = "client.created"
	TypeProjectCreated              = "project.created"
	TypeProjectUpdated              = "project.updated"
	TypeProjectDeleted              = "project.deleted"
	TypePhaseAssigned               = "phase.assigned"
	TypePhaseStatusChanged          = "phase.status.changed"
	TypeTaskCreated                 = "task.created"
	TypeTaskAssigned                = "task.assigned"
	TypeTaskStatusChanged           = "task.status.changed"
	TypeIndividualTaskCreated       = "individual_task.created"
	TypeIndividualTaskStatusChanged = "individual_task.status.changed"
	TypeTaskUpdatePosted            = "task_update.posted"
	TypeChatMessagePosted           = "chat.message.posted"
	TypeUserRegistered              = "user.registered"
	TypeTeamMemberAdded             = "team_member.added"
	TypeFileRegistered              = "file.registered"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
