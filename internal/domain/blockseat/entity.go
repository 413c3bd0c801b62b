package blockseat

import "time"

// Status はブロックシートの販売状態を表す
type Status string

const (
	StatusAvailable Status = "Available"
	StatusSoldOut   Status = "SoldOut"
	StatusClosed    Status = "Closed"
	StatusDraft     Status = "Draft"
)

// TripType は片道・往復の区別
type TripType string

const (
	TripTypeOneWay    TripType = "ONE_WAY"
	TripTypeRoundTrip TripType = "ROUND_TRIP"
)

// IsValid は定義済みの旅程種別かを返す
func (t TripType) IsValid() bool {
	return t == TripTypeOneWay || t == TripTypeRoundTrip
}

// Airline は航空会社
type Airline struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Route は区間と旅程種別
type Route struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	TripType TripType `json:"tripType"`
}

// TripDate は販売対象の出発日（往復の場合は復路日も）
type TripDate struct {
	DepartureDate time.Time  `json:"departureDate"`
	ReturnDate    *time.Time `json:"returnDate,omitempty"`
}

// Commission は予約時にスナップショットされる手数料設定
type Commission struct {
	Supplier *float64 `json:"supplier,omitempty"`
	Agency   *float64 `json:"agency,omitempty"`
}

// Class はクラスごとの座席プール
// AvailableSeats + BookedSeats == TotalSeats を常に満たす
type Class struct {
	ClassID        int
	Name           string
	TotalSeats     int
	AvailableSeats int
	BookedSeats    int
	Price          int64 // 最小通貨単位
	Baggage        string
	Version        int
}

// Validate は座席プールの整合性を検証する
func (c *Class) Validate() error {
	if c.TotalSeats < 0 || c.AvailableSeats < 0 || c.BookedSeats < 0 {
		return ErrNegativeSeats
	}
	if c.AvailableSeats+c.BookedSeats != c.TotalSeats {
		return ErrSeatLedgerMismatch
	}
	if c.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// BlockSeat はホールセラーが保有する座席在庫
type BlockSeat struct {
	ID             string
	WholesalerID   string
	Name           string
	Airline        Airline
	Route          Route
	AvailableDates []TripDate
	Classes        []Class
	Status         Status
	IsDeleted      bool
	Currency       string
	Commission     Commission
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBlockSeat は新しいブロックシートを作成する
// 各クラスは全席が空席の状態で初期化される
func NewBlockSeat(wholesalerID, name string, airline Airline, route Route, dates []TripDate, classes []Class, currency string) *BlockSeat {
	now := time.Now()
	initialized := make([]Class, len(classes))
	for i, c := range classes {
		c.AvailableSeats = c.TotalSeats
		c.BookedSeats = 0
		initialized[i] = c
	}
	return &BlockSeat{
		WholesalerID:   wholesalerID,
		Name:           name,
		Airline:        airline,
		Route:          route,
		AvailableDates: dates,
		Classes:        initialized,
		Status:         StatusAvailable,
		Currency:       currency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsBookable は予約受付中かを返す
func (b *BlockSeat) IsBookable() bool {
	return !b.IsDeleted && b.Status == StatusAvailable
}

// FindClass はクラスIDに一致するクラスを返す
func (b *BlockSeat) FindClass(classID int) (*Class, error) {
	for i := range b.Classes {
		if b.Classes[i].ClassID == classID {
			return &b.Classes[i], nil
		}
	}
	return nil, ErrClassNotFound
}

// MatchTripDate は指定された旅程が販売日に含まれるかを確認する
// 出発日は完全一致、往復の場合は復路日も完全一致が必要
func (b *BlockSeat) MatchTripDate(departure time.Time, ret *time.Time) (*TripDate, error) {
	if b.Route.TripType == TripTypeRoundTrip && ret == nil {
		return nil, ErrReturnDateRequired
	}
	dep := NormalizeDate(departure)
	for i := range b.AvailableDates {
		d := &b.AvailableDates[i]
		if !NormalizeDate(d.DepartureDate).Equal(dep) {
			continue
		}
		if b.Route.TripType != TripTypeRoundTrip {
			return d, nil
		}
		if d.ReturnDate != nil && NormalizeDate(*d.ReturnDate).Equal(NormalizeDate(*ret)) {
			return d, nil
		}
	}
	return nil, ErrTripDateUnavailable
}

// Validate はブロックシートの検証を行う
func (b *BlockSeat) Validate() error {
	if b.WholesalerID == "" {
		return ErrWholesalerIDRequired
	}
	if b.Name == "" {
		return ErrNameRequired
	}
	if !b.Route.TripType.IsValid() {
		return ErrInvalidTripType
	}
	if b.Currency == "" {
		return ErrCurrencyRequired
	}
	for _, d := range b.AvailableDates {
		if (b.Route.TripType == TripTypeRoundTrip) != (d.ReturnDate != nil) {
			return ErrReturnDateMismatch
		}
	}
	if len(b.Classes) == 0 {
		return ErrClassesRequired
	}
	seen := make(map[int]struct{}, len(b.Classes))
	for i := range b.Classes {
		c := &b.Classes[i]
		if _, dup := seen[c.ClassID]; dup {
			return ErrDuplicateClassID
		}
		seen[c.ClassID] = struct{}{}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeDate は日付をUTCの0時に丸める
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
