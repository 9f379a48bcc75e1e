package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"drive-in/internal/domain"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestArchive_Dispatch(t *testing.T) {
	db := &fakeDB{}
	a := &Archive{db: db}

	placed := time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)
	ticket := domain.Ticket{
		ID:        "3f1c2b9e-0000-4000-8000-000000000001",
		SessionID: "9a0d7e44-0000-4000-8000-000000000002",
		Items:     []domain.MenuItem{{Name: "Zinger", Price: 450}, {Name: "Krunch", Price: 250}},
		Total:     700,
		PlacedAt:  placed,
	}

	if err := a.Dispatch(context.Background(), ticket); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(db.calls) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(db.calls))
	}
	call := db.calls[0]
	if !strings.Contains(call.sql, "INSERT INTO drive_in_tickets") {
		t.Errorf("unexpected sql: %s", call.sql)
	}
	if len(call.args) != 6 {
		t.Fatalf("args = %d, want 6", len(call.args))
	}
	if call.args[0] != ticket.ID || call.args[1] != ticket.SessionID {
		t.Errorf("ids = %v, %v", call.args[0], call.args[1])
	}

	var items []domain.MenuItem
	if err := json.Unmarshal(call.args[2].([]byte), &items); err != nil {
		t.Fatalf("items arg is not JSON: %v", err)
	}
	if len(items) != 2 || items[0].Name != "Zinger" {
		t.Errorf("items = %+v", items)
	}
	if call.args[3] != 2 || call.args[4] != 700 {
		t.Errorf("count/total = %v/%v", call.args[3], call.args[4])
	}
	if call.args[5] != placed {
		t.Errorf("placed_at = %v", call.args[5])
	}
}

func TestArchive_DispatchError(t *testing.T) {
	a := &Archive{db: &fakeDB{err: errors.New("connection reset")}}

	err := a.Dispatch(context.Background(), domain.Ticket{ID: "t1"})
	if err == nil || !strings.Contains(err.Error(), "t1") {
		t.Errorf("expected wrapped error naming the ticket, got %v", err)
	}
}

func TestArchive_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	a := &Archive{db: db}

	if err := a.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if len(db.calls) != 1 || !strings.Contains(db.calls[0].sql, "CREATE TABLE IF NOT EXISTS drive_in_tickets") {
		t.Errorf("calls = %+v", db.calls)
	}
	if a.Name() != "archive" {
		t.Errorf("Name() = %q", a.Name())
	}
}
