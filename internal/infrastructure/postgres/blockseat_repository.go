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

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
)

type blockSeatRow struct {
	ID                 string    `db:"id"`
	WholesalerID       string    `db:"wholesaler_id"`
	Name               string    `db:"name"`
	AirlineCode        string    `db:"airline_code"`
	AirlineName        string    `db:"airline_name"`
	RouteFrom          string    `db:"route_from"`
	RouteTo            string    `db:"route_to"`
	TripType           string    `db:"trip_type"`
	AvailableDates     []byte    `db:"available_dates"`
	Status             string    `db:"status"`
	IsDeleted          bool      `db:"is_deleted"`
	Currency           string    `db:"currency"`
	SupplierCommission *float64  `db:"supplier_commission"`
	AgencyCommission   *float64  `db:"agency_commission"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type classRow struct {
	BlockSeatID    string `db:"block_seat_id"`
	ClassID        int    `db:"class_id"`
	Name           string `db:"name"`
	TotalSeats     int    `db:"total_seats"`
	AvailableSeats int    `db:"available_seats"`
	BookedSeats    int    `db:"booked_seats"`
	Price          int64  `db:"price"`
	Baggage        string `db:"baggage"`
	Version        int    `db:"version"`
}

func (r *classRow) toEntity() blockseat.Class {
	return blockseat.Class{
		ClassID: r.ClassID, Name: r.Name,
		TotalSeats: r.TotalSeats, AvailableSeats: r.AvailableSeats, BookedSeats: r.BookedSeats,
		Price: r.Price, Baggage: r.Baggage, Version: r.Version,
	}
}

const (
	selectBlockSeat = `SELECT id, wholesaler_id, name, airline_code, airline_name, route_from, route_to, trip_type, available_dates, status, is_deleted, currency, supplier_commission, agency_commission, created_at, updated_at FROM block_seats WHERE id = $1`
	selectClasses   = `SELECT block_seat_id, class_id, name, total_seats, available_seats, booked_seats, price, baggage, version FROM block_seat_classes WHERE block_seat_id = $1 ORDER BY class_id`

	// トランザクション内の再読込では共有ロックを取り、確保が終わるまでステータス変更や論理削除を待たせる
	selectBlockSeatForShare = selectBlockSeat + ` FOR SHARE`

	// 空席数が足りて、ブロックシートが受付中の場合のみ1行更新される
	reserveSeatsQuery = `UPDATE block_seat_classes SET available_seats = available_seats - $3, booked_seats = booked_seats + $3, version = version + 1 WHERE block_seat_id = $1 AND class_id = $2 AND available_seats >= $3 AND EXISTS (SELECT 1 FROM block_seats WHERE id = $1 AND status = 'Available' AND NOT is_deleted)`
	releaseSeatsQuery = `UPDATE block_seat_classes SET available_seats = available_seats + $3, booked_seats = booked_seats - $3, version = version + 1 WHERE block_seat_id = $1 AND class_id = $2 AND booked_seats >= $3`
)

type BlockSeatRepository struct{ db *sqlx.DB }

func NewBlockSeatRepository(db *sqlx.DB) *BlockSeatRepository {
	return &BlockSeatRepository{db: db}
}

// Create はブロックシートとクラスを1トランザクションで登録する
func (r *BlockSeatRepository) Create(ctx context.Context, bs *blockseat.BlockSeat) error {
	if err := bs.Validate(); err != nil {
		return err
	}
	if bs.ID == "" {
		bs.ID = uuid.NewString()
	}
	dates, err := json.Marshal(bs.AvailableDates)
	if err != nil {
		return fmt.Errorf("販売日のエンコードに失敗: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO block_seats (id, wholesaler_id, name, airline_code, airline_name, route_from, route_to, trip_type, available_dates, status, is_deleted, currency, supplier_commission, agency_commission, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	if _, err := tx.ExecContext(ctx, query,
		bs.ID, bs.WholesalerID, bs.Name, bs.Airline.Code, bs.Airline.Name,
		bs.Route.From, bs.Route.To, string(bs.Route.TripType), string(dates),
		string(bs.Status), bs.IsDeleted, bs.Currency,
		bs.Commission.Supplier, bs.Commission.Agency, bs.CreatedAt, bs.UpdatedAt,
	); err != nil {
		return fmt.Errorf("ブロックシート作成に失敗: %w", err)
	}

	for _, c := range bs.Classes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO block_seat_classes (block_seat_id, class_id, name, total_seats, available_seats, booked_seats, price, baggage, version) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			bs.ID, c.ClassID, c.Name, c.TotalSeats, c.AvailableSeats, c.BookedSeats, c.Price, c.Baggage, c.Version,
		); err != nil {
			return fmt.Errorf("クラス作成に失敗: %w", err)
		}
	}

	return tx.Commit()
}

func (r *BlockSeatRepository) GetByID(ctx context.Context, id string) (*blockseat.BlockSeat, error) {
	return r.get(ctx, r.db, selectBlockSeat, id)
}

func (r *BlockSeatRepository) GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*blockseat.BlockSeat, error) {
	stx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, stx, selectBlockSeatForShare, id)
}

func (r *BlockSeatRepository) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*blockseat.BlockSeat, error) {
	// UUID 形式でないIDは存在しないものとして扱う
	if _, err := uuid.Parse(id); err != nil {
		return nil, blockseat.ErrBlockSeatNotFound
	}

	var row blockSeatRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, blockseat.ErrBlockSeatNotFound
		}
		return nil, fmt.Errorf("ブロックシート取得に失敗: %w", err)
	}

	var classes []classRow
	if err := sqlx.SelectContext(ctx, q, &classes, selectClasses, id); err != nil {
		return nil, fmt.Errorf("クラス取得に失敗: %w", err)
	}

	return toBlockSeatEntity(&row, classes)
}

// ReserveSeats は空席を予約済みに移す
// 条件に一致する行がない場合は同時実行による競合とみなす
func (r *BlockSeatRepository) ReserveSeats(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error {
	return r.moveSeats(ctx, tx, reserveSeatsQuery, blockSeatID, classID, quantity)
}

// ReleaseSeats は予約済みを空席に戻す
func (r *BlockSeatRepository) ReleaseSeats(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error {
	return r.moveSeats(ctx, tx, releaseSeatsQuery, blockSeatID, classID, quantity)
}

func (r *BlockSeatRepository) moveSeats(ctx context.Context, tx transaction.Tx, query, blockSeatID string, classID, quantity int) error {
	if quantity <= 0 {
		return blockseat.ErrInvalidQuantity
	}
	stx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	result, err := stx.ExecContext(ctx, query, blockSeatID, classID, quantity)
	if err != nil {
		return fmt.Errorf("座席数の更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if rows != 1 {
		return blockseat.ErrSeatConflict
	}
	return nil
}

func (r *BlockSeatRepository) ListClassLedgers(ctx context.Context, tx transaction.Tx) ([]blockseat.ClassLedger, error) {
	stx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var rows []classRow
	query := `SELECT block_seat_id, class_id, name, total_seats, available_seats, booked_seats, price, baggage, version FROM block_seat_classes ORDER BY block_seat_id, class_id`
	if err := stx.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("座席台帳取得に失敗: %w", err)
	}
	ledgers := make([]blockseat.ClassLedger, len(rows))
	for i, row := range rows {
		ledgers[i] = blockseat.ClassLedger{
			BlockSeatID: row.BlockSeatID, ClassID: row.ClassID,
			TotalSeats: row.TotalSeats, AvailableSeats: row.AvailableSeats, BookedSeats: row.BookedSeats,
		}
	}
	return ledgers, nil
}

func toBlockSeatEntity(row *blockSeatRow, classes []classRow) (*blockseat.BlockSeat, error) {
	var dates []blockseat.TripDate
	if len(row.AvailableDates) > 0 {
		if err := json.Unmarshal(row.AvailableDates, &dates); err != nil {
			return nil, fmt.Errorf("販売日のデコードに失敗: %w", err)
		}
	}
	bs := &blockseat.BlockSeat{
		ID: row.ID, WholesalerID: row.WholesalerID, Name: row.Name,
		Airline:        blockseat.Airline{Code: row.AirlineCode, Name: row.AirlineName},
		Route:          blockseat.Route{From: row.RouteFrom, To: row.RouteTo, TripType: blockseat.TripType(row.TripType)},
		AvailableDates: dates,
		Classes:        make([]blockseat.Class, len(classes)),
		Status:         blockseat.Status(row.Status),
		IsDeleted:      row.IsDeleted,
		Currency:       row.Currency,
		Commission:     blockseat.Commission{Supplier: row.SupplierCommission, Agency: row.AgencyCommission},
		CreatedAt:      row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	for i := range classes {
		bs.Classes[i] = classes[i].toEntity()
	}
	return bs, nil
}

var _ blockseat.Repository = (*BlockSeatRepository)(nil)
