package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &DB{conn: conn}, mock
}

func alertRows(alertID string, state model.State, createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"alert_id", "source_id", "check_name", "severity", "message",
		"value", "threshold", "current_state", "created_at", "updated_at",
	}).AddRow(alertID, "web-1", "disk_usage", "high", "disk usage above threshold",
		97.5, 90.0, string(state), createdAt, createdAt)
}

func TestDB_GetAlert(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	createdAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs("alert-1").
		WillReturnRows(alertRows("alert-1", model.StateNew, createdAt))

	alert, err := db.GetAlert(ctx, "alert-1")
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if alert.AlertID != "alert-1" || alert.CurrentState != model.StateNew {
		t.Errorf("GetAlert() = %+v", alert)
	}
	if alert.Severity != model.SeverityHigh {
		t.Errorf("severity = %s", alert.Severity)
	}

	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := db.GetAlert(ctx, "missing"); !errors.Is(err, model.ErrAlertNotFound) {
		t.Errorf("GetAlert(missing) error = %v, want ErrAlertNotFound", err)
	}
}

func TestDB_GetAlertState(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT current_state FROM alerts").
		WithArgs("alert-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_state"}).AddRow("acknowledged"))

	state, err := db.GetAlertState(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("GetAlertState() error = %v", err)
	}
	if state != model.StateAcknowledged {
		t.Errorf("state = %s", state)
	}
}

func TestDB_TransitionAlert(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("acknowledge stamps SLA in same transaction", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE alerts").
			WithArgs("alert-1", "new", "acknowledged", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO alert_state_records").
			WithArgs("alert-1", "acknowledged", "alice", "on it", nil, at).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE alert_slas").
			WithArgs("alert-1", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.TransitionAlert(ctx, "alert-1", model.StateNew, model.StateAcknowledged, "alice", "on it", nil, at)
		if err != nil {
			t.Fatalf("TransitionAlert() error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("resolve stamps SLA resolve", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE alerts").
			WithArgs("alert-1", "investigating", "resolved", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO alert_state_records").
			WithArgs("alert-1", "resolved", "alice", "fixed", nil, at).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE alert_slas").
			WithArgs("alert-1", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.TransitionAlert(ctx, "alert-1", model.StateInvestigating, model.StateResolved, "alice", "fixed", nil, at)
		if err != nil {
			t.Fatalf("TransitionAlert() error = %v", err)
		}
	})

	t.Run("investigate writes no SLA stamp", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE alerts").
			WithArgs("alert-1", "acknowledged", "investigating", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO alert_state_records").
			WithArgs("alert-1", "investigating", "alice", "", nil, at).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := db.TransitionAlert(ctx, "alert-1", model.StateAcknowledged, model.StateInvestigating, "alice", "", nil, at)
		if err != nil {
			t.Fatalf("TransitionAlert() error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("state mismatch on existing alert", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE alerts").
			WithArgs("alert-1", "new", "acknowledged", at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("alert-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := db.TransitionAlert(ctx, "alert-1", model.StateNew, model.StateAcknowledged, "alice", "", nil, at)
		var conflict *model.ConcurrentModificationError
		if !errors.As(err, &conflict) {
			t.Fatalf("TransitionAlert() error = %v, want ConcurrentModificationError", err)
		}
	})

	t.Run("missing alert", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE alerts").
			WithArgs("missing", "new", "acknowledged", at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		err := db.TransitionAlert(ctx, "missing", model.StateNew, model.StateAcknowledged, "alice", "", nil, at)
		if !errors.Is(err, model.ErrAlertNotFound) {
			t.Fatalf("TransitionAlert() error = %v, want ErrAlertNotFound", err)
		}
	})

	t.Run("database error rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE alerts").
			WithArgs("alert-1", "new", "acknowledged", at).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := db.TransitionAlert(ctx, "alert-1", model.StateNew, model.StateAcknowledged, "alice", "", nil, at)
		if err == nil {
			t.Fatal("TransitionAlert() expected error")
		}
	})
}

func TestDB_GetStateHistory(t *testing.T) {
	db, mock := newMockDB(t)
	createdAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"record_id", "alert_id", "state", "actor", "notes", "metadata", "created_at",
	}).
		AddRow(int64(1), "alert-1", "new", "system", "alert created", nil, createdAt).
		AddRow(int64(2), "alert-1", "acknowledged", "alice", "on it", `{"channel":"pagerduty"}`, createdAt.Add(5*time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM alert_state_records").
		WithArgs("alert-1").
		WillReturnRows(rows)

	records, err := db.GetStateHistory(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("GetStateHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].State != model.StateNew || records[1].State != model.StateAcknowledged {
		t.Errorf("record states = %s, %s", records[0].State, records[1].State)
	}
	if records[0].Metadata == nil || len(records[0].Metadata) != 0 {
		t.Errorf("nil metadata should scan to empty map, got %v", records[0].Metadata)
	}
	if records[1].Metadata["channel"] != "pagerduty" {
		t.Errorf("metadata = %v", records[1].Metadata)
	}
}

func TestDB_GetStateHistoryBadMetadata(t *testing.T) {
	db, mock := newMockDB(t)
	createdAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"record_id", "alert_id", "state", "actor", "notes", "metadata", "created_at",
	}).AddRow(int64(1), "alert-1", "new", "system", "", "not-json", createdAt)

	mock.ExpectQuery("SELECT (.+) FROM alert_state_records").
		WithArgs("alert-1").
		WillReturnRows(rows)

	records, err := db.GetStateHistory(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("GetStateHistory() error = %v", err)
	}
	if len(records) != 1 || len(records[0].Metadata) != 0 {
		t.Errorf("malformed metadata should degrade to empty map, got %+v", records[0])
	}
}

func TestMaskedErrorsNeverLeakQueries(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM alerts").
		WithArgs("alert-1").
		WillReturnError(sql.ErrConnDone)

	_, err := db.GetAlert(context.Background(), "alert-1")
	if err == nil {
		t.Fatal("GetAlert() expected error")
	}
	if !strings.Contains(err.Error(), "failed to get alert") {
		t.Errorf("error = %q, want wrapped operation name", err)
	}
}
