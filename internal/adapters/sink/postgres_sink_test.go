package sink

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/slomkowski/usb-geiger/internal/domain"
)

func TestPostgresSinkUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	sink := NewPostgresSink(db, "radiation")
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	expectedQuery := regexp.QuoteMeta("INSERT INTO radiation (radiation, cpm, time) VALUES ($1,$2,$3)")
	mock.ExpectExec(expectedQuery).
		WithArgs(0.08, 12.0, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := sink.Update(context.Background(), domain.NewMeasurement(ts, 12, 0.08)); err != nil {
		t.Fatalf("update: %v", err)
	}

	mock.ExpectClose()
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkUpdateMissingValueIsNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "radiation")
	ts := time.Now().UTC()
	cpm := 30.0

	mock.ExpectExec("INSERT INTO radiation").
		WithArgs(nil, 30.0, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := sink.Update(context.Background(), domain.Measurement{Timestamp: ts, CPM: &cpm}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSinkUpdateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSink(db, "radiation")
	mock.ExpectExec("INSERT INTO radiation").WillReturnError(errors.New("connection reset"))

	err = sink.Update(context.Background(), domain.NewMeasurement(time.Now(), 1, 0.01))
	if !errors.Is(err, domain.ErrSink) {
		t.Fatalf("expected ErrSink, got %v", err)
	}
}

func TestPostgresSinkCloseIsIdempotent(t *testing.T) {
	db, mock, _ := sqlmock.New()
	sink := NewPostgresSink(db, "radiation")

	mock.ExpectClose()
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if sink.Enabled() {
		t.Fatalf("closed sink must be disabled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpenPostgresConfig(t *testing.T) {
	s, err := OpenPostgres(context.Background(), PostgresConfig{})
	if err != nil {
		t.Fatalf("disabled sink must not fail: %v", err)
	}
	if s.Enabled() {
		t.Fatalf("expected disabled sink")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("closing a never-initialized sink: %v", err)
	}

	if _, err := OpenPostgres(context.Background(), PostgresConfig{Enabled: true}); err == nil {
		t.Fatalf("expected error for missing conn_string")
	}
	if _, err := OpenPostgres(context.Background(), PostgresConfig{
		Enabled:    true,
		ConnString: "postgres://localhost/db",
		Table:      "radiation; DROP TABLE x",
	}); err == nil {
		t.Fatalf("expected error for invalid table name")
	}
}
