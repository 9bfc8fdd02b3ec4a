package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNilTime returns nil if t is nil, otherwise the time value.
func nilIfNilTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// marshalJSONColumn marshals v for a JSON column, returning nil for nil input.
func marshalJSONColumn(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *models.Intervention:
		if val == nil {
			return nil, nil
		}
	case *models.SessionFeedback:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal JSON column: %w", err)
	}
	return string(data), nil
}

// scanTask scans a task row: id, title, description, priority, due_date, created_at, completed.
func scanTask(sc rowScanner) (models.Task, error) {
	var t models.Task
	var description sql.NullString
	var dueDate sql.NullTime
	err := sc.Scan(&t.ID, &t.Title, &description, &t.Priority, &dueDate, &t.CreatedAt, &t.Completed)
	if err != nil {
		return t, err
	}
	t.Description = description.String
	if dueDate.Valid {
		due := dueDate.Time
		t.DueDate = &due
	}
	t.Sessions = []models.Session{}
	return t, nil
}

// scanSession scans a session row: id, task_id, start_time, end_time, duration,
// state, selected_intervention, completed, feedback.
func scanSession(sc rowScanner) (models.Session, error) {
	var s models.Session
	var endTime sql.NullTime
	var duration sql.NullInt64
	var stateJSON string
	var interventionJSON, feedbackJSON sql.NullString
	err := sc.Scan(&s.ID, &s.TaskID, &s.StartTime, &endTime, &duration, &stateJSON, &interventionJSON, &s.Completed, &feedbackJSON)
	if err != nil {
		return s, err
	}
	if endTime.Valid {
		end := endTime.Time
		s.EndTime = &end
	}
	s.Duration = int(duration.Int64)
	if err := json.Unmarshal([]byte(stateJSON), &s.State); err != nil {
		return s, fmt.Errorf("unmarshal session state: %w", err)
	}
	if interventionJSON.Valid && interventionJSON.String != "" {
		var iv models.Intervention
		if err := json.Unmarshal([]byte(interventionJSON.String), &iv); err != nil {
			return s, fmt.Errorf("unmarshal session intervention: %w", err)
		}
		s.SelectedIntervention = &iv
	}
	if feedbackJSON.Valid && feedbackJSON.String != "" {
		var fb models.SessionFeedback
		if err := json.Unmarshal([]byte(feedbackJSON.String), &fb); err != nil {
			return s, fmt.Errorf("unmarshal session feedback: %w", err)
		}
		s.Feedback = &fb
	}
	return s, nil
}
