package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	redisinfra "github.com/sanosuguru/go-blockseat-booking/internal/infrastructure/redis"
)

const agencyID = "agency-e2e-1"

var departure = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

func createBlockSeat(t *testing.T, totalSeats int) *blockseat.BlockSeat {
	t.Helper()
	bs := blockseat.NewBlockSeat("ws-e2e", "DAC-JED 12月",
		blockseat.Airline{Code: "SV", Name: "Saudia"},
		blockseat.Route{From: "DAC", To: "JED", TripType: blockseat.TripTypeOneWay},
		[]blockseat.TripDate{{DepartureDate: departure}},
		[]blockseat.Class{{ClassID: 1, Name: "Economy", TotalSeats: totalSeats, Price: 60000, Baggage: "2PC"}},
		"USD",
	)
	require.NoError(t, blockSeatRepo.Create(context.Background(), bs))
	return bs
}

func bookingBody(blockSeatID string, passengerCount int, reference string) map[string]interface{} {
	ps := make([]map[string]interface{}, passengerCount)
	for i := range ps {
		ps[i] = map[string]interface{}{
			"first_name": "Taro",
			"last_name":  fmt.Sprintf("Yamada%d", i+1),
			"type":       "ADT",
		}
	}
	body := map[string]interface{}{
		"block_seat_id": blockSeatID,
		"class_id":      1,
		"trip":          map[string]interface{}{"departure_date": departure.Format("2006-01-02")},
		"passengers":    ps,
		"contact":       map[string]interface{}{"name": "山田太郎", "email": "agent@example.com"},
	}
	if reference != "" {
		body["reference"] = reference
	}
	return body
}

func agencyHeaders() map[string]string {
	return map[string]string{"X-Agency-ID": agencyID, "X-User-ID": "user-e2e"}
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func availability(t *testing.T, server *TestServer, blockSeatID string) (float64, bool) {
	t.Helper()
	rec := server.Request(http.MethodGet, fmt.Sprintf("/api/v1/block-seats/%s/classes/1/availability", blockSeatID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec.Body.Bytes())
	return resp["available_seats"].(float64), resp["cached"].(bool)
}

// TestE2E_HealthCheck はヘルスチェックをテスト
func TestE2E_HealthCheck(t *testing.T) {
	server := getTestServer(t)

	rec := server.Request(http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec.Body.Bytes())
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, map[string]interface{}{"postgres": "ok", "redis": "ok"}, resp["checks"])
}

// TestE2E_CompleteBookingJourney は予約から取消までの一連の流れをテスト
func TestE2E_CompleteBookingJourney(t *testing.T) {
	server := getTestServer(t)
	bs := createBlockSeat(t, 5)
	var bookingID, reference string

	// 1. ブロックシート取得
	t.Run("ブロックシート取得", func(t *testing.T) {
		rec := server.Request(http.MethodGet, "/api/v1/block-seats/"+bs.ID, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode(t, rec.Body.Bytes())
		assert.Equal(t, "ONE_WAY", resp["trip_type"])
	})

	// 2. 空席数はキャッシュ経由で返る
	t.Run("空席数確認", func(t *testing.T) {
		available, cached := availability(t, server, bs.ID)
		assert.Equal(t, float64(5), available)
		assert.False(t, cached)

		available, cached = availability(t, server, bs.ID)
		assert.Equal(t, float64(5), available)
		assert.True(t, cached)
	})

	// 3. 予約作成
	t.Run("予約作成", func(t *testing.T) {
		rec := server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 2, ""), agencyHeaders())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		resp := decode(t, rec.Body.Bytes())
		bookingID = resp["id"].(string)
		reference = resp["reference"].(string)
		assert.Equal(t, "CONFIRMED", resp["status"])
		assert.Equal(t, float64(2), resp["quantity"])
		assert.Equal(t, agencyID, resp["agency_id"])
		assert.Regexp(t, `^BS-\d{8}-[A-Z0-9]{6}$`, reference)

		price := resp["price"].(map[string]interface{})
		assert.Equal(t, "USD", price["currency"])
		assert.Equal(t, float64(120000), price["total_amount"])
	})

	// 4. 予約でキャッシュが無効化され空席数が減る
	t.Run("空席数減少確認", func(t *testing.T) {
		available, cached := availability(t, server, bs.ID)
		assert.Equal(t, float64(3), available)
		assert.False(t, cached)
	})

	// 5. 予約番号で取得
	t.Run("予約番号で取得", func(t *testing.T) {
		rec := server.Request(http.MethodGet, "/api/v1/bookings/reference/"+reference, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, bookingID, decode(t, rec.Body.Bytes())["id"])
	})

	// 6. 代理店の予約一覧
	t.Run("予約一覧取得", func(t *testing.T) {
		rec := server.Request(http.MethodGet, "/api/v1/bookings", nil, agencyHeaders())
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, bookingID, resp[0]["id"])
	})

	// 7. キャンセルで座席が戻る
	t.Run("予約キャンセル", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/status", bookingID)
		rec := server.Request(http.MethodPatch, path, map[string]string{"status": "CANCELLED"}, agencyHeaders())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "CANCELLED", decode(t, rec.Body.Bytes())["status"])

		available, _ := availability(t, server, bs.ID)
		assert.Equal(t, float64(5), available)
	})

	// 8. 同じキャンセルを繰り返しても座席は二重に戻らない
	t.Run("キャンセルの再実行", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/status", bookingID)
		rec := server.Request(http.MethodPatch, path, map[string]string{"status": "CANCELLED"}, agencyHeaders())
		require.Equal(t, http.StatusOK, rec.Code)

		available, _ := availability(t, server, bs.ID)
		assert.Equal(t, float64(5), available)
	})

	// 9. キャンセル済みは確定に戻せない
	t.Run("キャンセル済みの確定は400", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/status", bookingID)
		rec := server.Request(http.MethodPatch, path, map[string]string{"status": "CONFIRMED"}, agencyHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// TestE2E_BookingErrors はエラー応答をテスト
func TestE2E_BookingErrors(t *testing.T) {
	server := getTestServer(t)
	bs := createBlockSeat(t, 2)

	t.Run("代理店IDなしは401", func(t *testing.T) {
		rec := server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 1, ""), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("存在しないブロックシートは404", func(t *testing.T) {
		rec := server.Request(http.MethodPost, "/api/v1/bookings",
			bookingBody("00000000-0000-0000-0000-000000000000", 1, ""), agencyHeaders())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("空席不足は400", func(t *testing.T) {
		rec := server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 3, ""), agencyHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("販売日以外は400", func(t *testing.T) {
		body := bookingBody(bs.ID, 1, "")
		body["trip"] = map[string]interface{}{"departure_date": "2026-12-24"}
		rec := server.Request(http.MethodPost, "/api/v1/bookings", body, agencyHeaders())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("予約番号の重複は409", func(t *testing.T) {
		rec := server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 1, "AGENCY-0001"), agencyHeaders())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 1, "AGENCY-0001"), agencyHeaders())
		assert.Equal(t, http.StatusConflict, rec.Code)

		// 重複で失敗した予約は座席を消費しない
		available, _ := availability(t, server, bs.ID)
		assert.Equal(t, float64(1), available)
	})

	t.Run("存在しない予約は404", func(t *testing.T) {
		rec := server.Request(http.MethodGet, "/api/v1/bookings/not-a-uuid", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// TestE2E_ConcurrentBookings は同時予約で売り越さないことをテスト
func TestE2E_ConcurrentBookings(t *testing.T) {
	server := getTestServer(t)
	const seats, attempts = 4, 16
	bs := createBlockSeat(t, seats)

	var created, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			rec := server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 1, ""), agencyHeaders())
			switch rec.Code {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusConflict, http.StatusBadRequest:
				rejected.Add(1)
			default:
				return fmt.Errorf("想定外のステータス %d: %s", rec.Code, rec.Body.String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(seats), created.Load())
	assert.Equal(t, int32(attempts-seats), rejected.Load())

	available, _ := availability(t, server, bs.ID)
	assert.Equal(t, float64(0), available)
}

// TestE2E_BookingEvents は予約イベントが Redis Streams に発行されることをテスト
func TestE2E_BookingEvents(t *testing.T) {
	server := getTestServer(t)
	bs := createBlockSeat(t, 3)

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        redisClient,
		ConsumerGroup: "e2e",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	messages, err := sub.Subscribe(ctx, eventsTopicPrefix+"."+redisinfra.EventBookingCreated)
	require.NoError(t, err)

	rec := server.Request(http.MethodPost, "/api/v1/bookings", bookingBody(bs.ID, 1, "EVENT-0001"), agencyHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	select {
	case msg := <-messages:
		msg.Ack()
		var ev redisinfra.BookingEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, redisinfra.EventBookingCreated, ev.Type)
		assert.Equal(t, "EVENT-0001", ev.Reference)
		assert.Equal(t, bs.ID, ev.BlockSeatID)
		assert.Equal(t, 1, ev.Quantity)
	case <-ctx.Done():
		t.Fatal("予約作成イベントを受信できませんでした")
	}
}
