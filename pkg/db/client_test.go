package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/pkg/config"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Where("name = ?", "panicked").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", count)
	}
}

func TestWrapDetectsSQLiteDialect(t *testing.T) {
	if got := Wrap(newTestDB(t)).Dialect(); got != "sqlite" {
		t.Fatalf("expected sqlite dialect, got %q", got)
	}
}

func TestNewOpensSQLiteDriver(t *testing.T) {
	cfg := config.DBConfig{Driver: config.DBDriverSQLite, DSN: "file:" + t.Name() + "?mode=memory&cache=shared"}
	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()
	if client.Dialect() != config.DBDriverSQLite {
		t.Fatalf("unexpected dialect %q", client.Dialect())
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	if !IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "channel_orders_external_id_key"`), "") {
		t.Fatal("expected postgres message to match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: channel_orders.external_id"), "") {
		t.Fatal("expected sqlite message to match")
	}
	if IsUniqueViolation(errors.New("UNIQUE constraint failed: channel_orders.external_id"), "reservations_pkey") {
		t.Fatal("constraint name should narrow the match")
	}
	if !IsUniqueViolation(gorm.ErrDuplicatedKey, "") {
		t.Fatal("expected gorm sentinel to match")
	}
	if IsUniqueViolation(errors.New(`new row violates check constraint "reservations_pkey"`), "reservations_pkey") {
		t.Fatal("constraint name alone must not make a unique violation")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "reservations_pkey"}, "reservations_pkey") {
		t.Fatal("expected pgx unique violation to match")
	}
	if !IsUniqueViolation(&pq.Error{Code: "23505"}, "") {
		t.Fatal("expected lib/pq unique violation to match")
	}
}

func TestIsCheckViolation(t *testing.T) {
	if !IsCheckViolation(&pgconn.PgError{Code: "23514", ConstraintName: "inventory_records_available_non_negative"}, "inventory_records_available_non_negative") {
		t.Fatal("expected pgx check violation to match")
	}
	if IsCheckViolation(&pgconn.PgError{Code: "23514", ConstraintName: "other"}, "inventory_records_available_non_negative") {
		t.Fatal("constraint name should narrow the match")
	}
	if !IsCheckViolation(errors.New("CHECK constraint failed: available_quantity >= 0"), "") {
		t.Fatal("expected sqlite message to match")
	}
	if IsCheckViolation(&pgconn.PgError{Code: "23505"}, "") {
		t.Fatal("unique violations are not check violations")
	}
}

func TestIsNotFound(t *testing.T) {
	db := newTestDB(t)
	var m testModel
	err := db.First(&m, "name = ?", "missing").Error
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
