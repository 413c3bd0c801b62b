package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
)

const bookingReferenceConstraint = "bookings_reference_key"

type bookingRow struct {
	ID            string    `db:"id"`
	Reference     string    `db:"reference"`
	PNR           *string   `db:"pnr"`
	BlockSeatID   string    `db:"block_seat_id"`
	AgencyID      string    `db:"agency_id"`
	WholesalerID  *string   `db:"wholesaler_id"`
	ClassID       int       `db:"class_id"`
	Trip          []byte    `db:"trip"`
	Passengers    []byte    `db:"passengers"`
	Quantity      int       `db:"quantity"`
	Contact       []byte    `db:"contact"`
	PriceSnapshot []byte    `db:"price_snapshot"`
	Status        string    `db:"status"`
	Notes         string    `db:"notes"`
	Audit         []byte    `db:"audit"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

const bookingColumns = `id, reference, pnr, block_seat_id, agency_id, wholesaler_id, class_id, trip, passengers, quantity, contact, price_snapshot, status, notes, audit, created_at, updated_at`

type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	stx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	var doc struct{ trip, passengers, contact, price, audit []byte }
	if doc.trip, err = json.Marshal(b.Trip); err != nil {
		return fmt.Errorf("旅程のエンコードに失敗: %w", err)
	}
	if doc.passengers, err = json.Marshal(b.Passengers); err != nil {
		return fmt.Errorf("搭乗者のエンコードに失敗: %w", err)
	}
	if doc.contact, err = json.Marshal(b.Contact); err != nil {
		return fmt.Errorf("連絡先のエンコードに失敗: %w", err)
	}
	if doc.price, err = json.Marshal(b.PriceSnapshot); err != nil {
		return fmt.Errorf("価格のエンコードに失敗: %w", err)
	}
	if doc.audit, err = json.Marshal(b.Audit); err != nil {
		return fmt.Errorf("監査ログのエンコードに失敗: %w", err)
	}

	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	if _, err := stx.ExecContext(ctx, query,
		b.ID, b.Reference, b.PNR, b.BlockSeatID, b.AgencyID, b.WholesalerID, b.ClassID,
		string(doc.trip), string(doc.passengers), b.Quantity, string(doc.contact), string(doc.price),
		string(b.Status), b.Notes, string(doc.audit), b.CreatedAt, b.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err, bookingReferenceConstraint) {
			return booking.ErrDuplicateReference
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) ExistsByReference(ctx context.Context, tx transaction.Tx, reference string) (bool, error) {
	stx, err := unwrapTx(tx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := stx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE reference = $1)`, reference); err != nil {
		return false, fmt.Errorf("予約番号の確認に失敗: %w", err)
	}
	return exists, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, booking.ErrBookingNotFound
	}
	return r.getOne(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByIDForUpdate は同じ予約への同時ステータス変更を直列化するため行ロックを取得する
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*booking.Booking, error) {
	stx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, booking.ErrBookingNotFound
	}
	return r.getOne(ctx, stx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) GetByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	return r.getOne(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE reference = $1`, reference)
}

func (r *BookingRepository) ListByAgency(ctx context.Context, agencyID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE agency_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, agencyID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		b, err := toBookingEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// UpdateStatus は監査ログを書き換えずに末尾へ追記する
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking, from booking.Status, entry booking.AuditEntry) error {
	stx, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	// jsonb の || で配列同士を連結する
	appended, err := json.Marshal([]booking.AuditEntry{entry})
	if err != nil {
		return fmt.Errorf("監査ログのエンコードに失敗: %w", err)
	}

	query := `UPDATE bookings SET status = $1, audit = audit || $2::jsonb, updated_at = $3 WHERE id = $4 AND status = $5`
	result, err := stx.ExecContext(ctx, query, string(b.Status), string(appended), b.UpdatedAt, b.ID, string(from))
	if err != nil {
		return fmt.Errorf("予約ステータス更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if rows == 0 {
		return booking.ErrStatusConflict
	}
	return nil
}

func (r *BookingRepository) SumConfirmedByClass(ctx context.Context, tx transaction.Tx) ([]booking.ClassBookedTotal, error) {
	stx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var totals []booking.ClassBookedTotal
	query := `SELECT block_seat_id, class_id, COALESCE(SUM(quantity), 0) AS quantity FROM bookings WHERE status = $1 GROUP BY block_seat_id, class_id`
	if err := stx.SelectContext(ctx, &totals, query, string(booking.StatusConfirmed)); err != nil {
		return nil, fmt.Errorf("確定済み座席数の集計に失敗: %w", err)
	}
	return totals, nil
}

func (r *BookingRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*booking.Booking, error) {
	var row bookingRow
	if err := sqlx.GetContext(ctx, q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toBookingEntity(&row)
}

func toBookingEntity(row *bookingRow) (*booking.Booking, error) {
	b := &booking.Booking{
		ID: row.ID, Reference: row.Reference, PNR: row.PNR,
		BlockSeatID: row.BlockSeatID, AgencyID: row.AgencyID, WholesalerID: row.WholesalerID,
		ClassID: row.ClassID, Quantity: row.Quantity,
		Status: booking.Status(row.Status), Notes: row.Notes,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	fields := []struct {
		raw  []byte
		dst  interface{}
		name string
	}{
		{row.Trip, &b.Trip, "旅程"},
		{row.Passengers, &b.Passengers, "搭乗者"},
		{row.Contact, &b.Contact, "連絡先"},
		{row.PriceSnapshot, &b.PriceSnapshot, "価格"},
		{row.Audit, &b.Audit, "監査ログ"},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("%sのデコードに失敗: %w", f.name, err)
		}
	}
	return b, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
