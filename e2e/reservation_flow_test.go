package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/api/handler"
)

func userHeader(userID string) map[string]string {
	return map[string]string{handler.HeaderUserID: userID}
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func createTrip(t *testing.T, server *TestServer, capacity, price int) handler.TripResponse {
	t.Helper()
	rec := server.Request(http.MethodPost, "/api/v1/trips", map[string]any{
		"title":            "屋久島トレッキング",
		"location":         "鹿児島",
		"start_date":       "2025-08-10T08:00:00+09:00",
		"end_date":         "2025-08-12T17:00:00+09:00",
		"price_per_person": price,
		"capacity":         capacity,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[handler.TripResponse](t, rec.Body.Bytes())
}

func reserve(server *TestServer, tripID, userID string, people int, idemKey string) (*handler.BookingResponse, int) {
	rec := server.Request(http.MethodPost, "/api/v1/bookings", map[string]any{
		"trip_id":          tripID,
		"number_of_people": people,
		"idempotency_key":  idemKey,
	}, userHeader(userID))
	if rec.Code != http.StatusCreated {
		return nil, rec.Code
	}
	var b handler.BookingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		return nil, http.StatusInternalServerError
	}
	return &b, rec.Code
}

func availability(t *testing.T, server *TestServer, tripID string) int {
	t.Helper()
	rec := server.Request(http.MethodGet, "/api/v1/trips/"+tripID+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[handler.AvailabilityResponse](t, rec.Body.Bytes()).AvailableSeats
}

func TestE2E_HealthCheck(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		rec := server.Request(http.MethodGet, "/health", nil, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[handler.HealthResponse](t, rec.Body.Bytes())
		assert.Equal(t, "ok", resp.Status)
	})
}

// TestE2E_CompleteBookingJourney は作成から取消までの一連の流れをテスト
func TestE2E_CompleteBookingJourney(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		userID := "e2e-user-yamada"
		tr := createTrip(t, server, 10, 30000)
		var bookingID string

		t.Run("ツアーを取得できる", func(t *testing.T) {
			rec := server.Request(http.MethodGet, "/api/v1/trips/"+tr.ID, nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[handler.TripResponse](t, rec.Body.Bytes())
			assert.Equal(t, "屋久島トレッキング", got.Title)
			assert.Equal(t, 10, got.AvailableSeats)
		})

		t.Run("予約すると空席が減る", func(t *testing.T) {
			b, code := reserve(server, tr.ID, userID, 3, "")
			require.Equal(t, http.StatusCreated, code)
			assert.Equal(t, "pending", b.Status)
			assert.Equal(t, 90000, b.TotalPrice)
			bookingID = b.ID

			assert.Equal(t, 7, availability(t, server, tr.ID))
		})

		t.Run("ユーザーで絞り込める", func(t *testing.T) {
			rec := server.Request(http.MethodGet, "/api/v1/bookings?user_id="+userID, nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			list := decode[[]handler.BookingResponse](t, rec.Body.Bytes())
			require.Len(t, list, 1)
			assert.Equal(t, bookingID, list[0].ID)
		})

		t.Run("確定できる", func(t *testing.T) {
			rec := server.Request(http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil, userHeader(userID))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			got := decode[handler.BookingResponse](t, rec.Body.Bytes())
			assert.Equal(t, "confirmed", got.Status)
			assert.NotNil(t, got.ConfirmedAt)

			rec = server.Request(http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil, userHeader(userID))
			assert.Equal(t, http.StatusConflict, rec.Code)
		})

		t.Run("取消すると空席が戻る", func(t *testing.T) {
			rec := server.Request(http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", nil, userHeader(userID))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			got := decode[handler.BookingResponse](t, rec.Body.Bytes())
			assert.Equal(t, "cancelled", got.Status)
			assert.NotNil(t, got.CancelledAt)

			assert.Equal(t, 10, availability(t, server, tr.ID))
		})

		t.Run("二重取消は409で空席は増えない", func(t *testing.T) {
			rec := server.Request(http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", nil, userHeader(userID))
			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, 10, availability(t, server, tr.ID))
		})

		t.Run("取消済みは状態で絞り込める", func(t *testing.T) {
			rec := server.Request(http.MethodGet, "/api/v1/bookings?trip_id="+tr.ID+"&status=cancelled", nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, decode[[]handler.BookingResponse](t, rec.Body.Bytes()), 1)
		})

		t.Run("在庫と台帳が整合している", func(t *testing.T) {
			report, err := server.Engine.Audit(context.Background(), tr.ID)
			require.NoError(t, err)
			assert.True(t, report.Consistent(), "drift=%d", report.Drift())
		})
	})
}

func TestE2E_InsufficientCapacity(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		tr := createTrip(t, server, 4, 10000)

		_, code := reserve(server, tr.ID, "user-1", 3, "")
		require.Equal(t, http.StatusCreated, code)

		rec := server.Request(http.MethodPost, "/api/v1/bookings", map[string]any{
			"trip_id":          tr.ID,
			"number_of_people": 2,
		}, userHeader("user-2"))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, 1, availability(t, server, tr.ID))

		_, code = reserve(server, tr.ID, "user-3", 1, "")
		assert.Equal(t, http.StatusCreated, code)
		assert.Equal(t, 0, availability(t, server, tr.ID))
	})
}

func TestE2E_IdempotentRetry(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		tr := createTrip(t, server, 5, 12000)

		first, code := reserve(server, tr.ID, "user-1", 2, "order-e2e-001")
		require.Equal(t, http.StatusCreated, code)
		second, code := reserve(server, tr.ID, "user-1", 2, "order-e2e-001")
		require.Equal(t, http.StatusCreated, code)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 3, availability(t, server, tr.ID), "再送で座席が二重に減らない")
	})
}

func TestE2E_IdempotencyKeyPerUser(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		first := createTrip(t, server, 5, 12000)
		second := createTrip(t, server, 5, 12000)

		a, code := reserve(server, first.ID, "user-a", 2, "order-shared")
		require.Equal(t, http.StatusCreated, code)

		t.Run("別ユーザーは同じキーで自分の予約を作れる", func(t *testing.T) {
			b, code := reserve(server, second.ID, "user-b", 1, "order-shared")
			require.Equal(t, http.StatusCreated, code)
			assert.NotEqual(t, a.ID, b.ID)
			assert.Equal(t, "user-b", b.UserID)
			assert.Equal(t, 4, availability(t, server, second.ID))
		})

		t.Run("同じキーで内容が異なれば409", func(t *testing.T) {
			_, code := reserve(server, second.ID, "user-a", 2, "order-shared")
			assert.Equal(t, http.StatusConflict, code)
			_, code = reserve(server, first.ID, "user-a", 3, "order-shared")
			assert.Equal(t, http.StatusConflict, code)

			assert.Equal(t, 3, availability(t, server, first.ID))
			assert.Equal(t, 4, availability(t, server, second.ID))
		})
	})
}

func TestE2E_PriceFrozenAtBooking(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		tr := createTrip(t, server, 10, 20000)

		b, code := reserve(server, tr.ID, "user-1", 2, "")
		require.Equal(t, http.StatusCreated, code)

		rec := server.Request(http.MethodPatch, "/api/v1/trips/"+tr.ID+"/price", map[string]any{
			"price_per_person": 25000,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = server.Request(http.MethodGet, "/api/v1/bookings/"+b.ID, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 40000, decode[handler.BookingResponse](t, rec.Body.Bytes()).TotalPrice)

		after, code := reserve(server, tr.ID, "user-2", 2, "")
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, 50000, after.TotalPrice)
	})
}

func TestE2E_ErrorResponses(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		tr := createTrip(t, server, 3, 5000)

		tests := []struct {
			name    string
			method  string
			path    string
			body    any
			headers map[string]string
			want    int
		}{
			{"ユーザーIDなし", http.MethodPost, "/api/v1/bookings", map[string]any{"trip_id": tr.ID, "number_of_people": 1}, nil, http.StatusUnauthorized},
			{"人数0", http.MethodPost, "/api/v1/bookings", map[string]any{"trip_id": tr.ID, "number_of_people": 0}, userHeader("u"), http.StatusBadRequest},
			{"存在しないツアー", http.MethodPost, "/api/v1/bookings", map[string]any{"trip_id": "00000000-0000-0000-0000-000000000000", "number_of_people": 1}, userHeader("u"), http.StatusNotFound},
			{"存在しない予約", http.MethodGet, "/api/v1/bookings/00000000-0000-0000-0000-000000000000", nil, nil, http.StatusNotFound},
			{"不正な状態で絞り込み", http.MethodGet, "/api/v1/bookings?status=unknown", nil, nil, http.StatusBadRequest},
			{"定員0のツアー", http.MethodPost, "/api/v1/trips", map[string]any{"title": "x", "capacity": 0}, nil, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := server.Request(tt.method, tt.path, tt.body, tt.headers)
				assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			})
		}
	})
}

// TestE2E_ConcurrentBookingsNeverOversell は同時予約で定員を超えないことをテスト
func TestE2E_ConcurrentBookingsNeverOversell(t *testing.T) {
	backends(t, func(t *testing.T, server *TestServer) {
		const capacity = 20
		tr := createTrip(t, server, capacity, 8000)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			reserved int
			conflict int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, code := reserve(server, tr.ID, fmt.Sprintf("user-%d", i), 1+i%2, "")
				mu.Lock()
				defer mu.Unlock()
				switch code {
				case http.StatusCreated:
					reserved += 1 + i%2
				case http.StatusConflict:
					conflict++
				}
			}(i)
		}
		wg.Wait()

		assert.LessOrEqual(t, reserved, capacity)
		assert.Positive(t, conflict)
		assert.Equal(t, capacity-reserved, availability(t, server, tr.ID))

		report, err := server.Engine.Audit(context.Background(), tr.ID)
		require.NoError(t, err)
		assert.True(t, report.Consistent(), "drift=%d", report.Drift())
	})
}

func TestE2E_Metrics(t *testing.T) {
	server := NewTestServer(t)
	tr := createTrip(t, server, 2, 1000)
	_, code := reserve(server, tr.ID, "user-1", 1, "")
	require.Equal(t, http.StatusCreated, code)

	rec := server.Request(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.True(t, strings.Contains(body, "/api/v1/bookings"))
}
