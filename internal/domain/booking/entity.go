package booking

import "time"

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid は定義済みの状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// 監査ログのアクション
const (
	ActionBook = "BOOK"
)

// StatusAction はステータス変更の監査アクション名を返す
func StatusAction(s Status) string {
	return "STATUS_" + string(s)
}

// Trip は予約対象の旅程
type Trip struct {
	TripType      string     `json:"tripType"`
	DepartureDate time.Time  `json:"departureDate"`
	ReturnDate    *time.Time `json:"returnDate,omitempty"`
}

// Passenger は搭乗者
type Passenger struct {
	Title          string     `json:"title,omitempty"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Type           string     `json:"type,omitempty"` // ADT, CHD, INF
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty"`
	PassportNumber string     `json:"passportNumber,omitempty"`
	Nationality    string     `json:"nationality,omitempty"`
}

// Contact は予約の連絡先
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Commission は予約時点の手数料
type Commission struct {
	Supplier *float64 `json:"supplier,omitempty"`
	Agency   *float64 `json:"agency,omitempty"`
}

// PriceSnapshot は予約時点の価格
// 予約後にクラス価格が変わっても再計算しない
type PriceSnapshot struct {
	Currency    string     `json:"currency"`
	UnitPrice   int64      `json:"unitPrice"`
	TotalAmount int64      `json:"totalAmount"`
	Commission  Commission `json:"commissions"`
}

// AuditEntry は追記専用の監査ログ
type AuditEntry struct {
	At     time.Time      `json:"at"`
	By     *string        `json:"by,omitempty"`
	Action string         `json:"action"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Booking は予約エンティティを表す
type Booking struct {
	ID            string
	Reference     string
	PNR           *string
	BlockSeatID   string
	AgencyID      string
	WholesalerID  *string
	ClassID       int
	Trip          Trip
	Passengers    []Passenger
	Quantity      int
	Contact       Contact
	PriceSnapshot PriceSnapshot
	Status        Status
	Notes         string
	Audit         []AuditEntry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewBooking は確定状態の新しい予約を作成する
func NewBooking(reference, blockSeatID, agencyID string, classID int, trip Trip, passengers []Passenger, contact Contact, price PriceSnapshot, by *string) *Booking {
	now := time.Now()
	return &Booking{
		Reference:     reference,
		BlockSeatID:   blockSeatID,
		AgencyID:      agencyID,
		ClassID:       classID,
		Trip:          trip,
		Passengers:    passengers,
		Quantity:      len(passengers),
		Contact:       contact,
		PriceSnapshot: price,
		Status:        StatusConfirmed,
		Audit:         []AuditEntry{{At: now, By: by, Action: ActionBook}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// PlanTransition はステータス遷移を検証し、座席解放が必要かを返す
// 同一ステータスへの遷移は changed=false（何もしない）
func (b *Booking) PlanTransition(target Status) (changed bool, releaseSeats bool, err error) {
	if !target.IsValid() {
		return false, false, ErrInvalidStatus
	}
	if target == b.Status {
		return false, false, nil
	}
	switch b.Status {
	case StatusCancelled:
		return false, false, ErrInvalidTransition
	case StatusConfirmed:
		if target == StatusCancelled {
			return true, true, nil
		}
		return false, false, ErrInvalidTransition
	case StatusPending:
		// PENDING は座席を保持していないため解放は不要
		return true, false, nil
	}
	return false, false, ErrInvalidStatus
}

// ApplyTransition はステータスを変更し監査ログを追記する
func (b *Booking) ApplyTransition(target Status, by *string, meta map[string]any) AuditEntry {
	now := time.Now()
	entry := AuditEntry{At: now, By: by, Action: StatusAction(target), Meta: meta}
	b.Status = target
	b.Audit = append(b.Audit, entry)
	b.UpdatedAt = now
	return entry
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.BlockSeatID == "" {
		return ErrBlockSeatIDRequired
	}
	if b.AgencyID == "" {
		return ErrAgencyIDRequired
	}
	if len(b.Passengers) == 0 {
		return ErrPassengersRequired
	}
	if b.Quantity != len(b.Passengers) {
		return ErrQuantityMismatch
	}
	if b.Reference == "" {
		return ErrReferenceRequired
	}
	return nil
}
