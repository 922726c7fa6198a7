package xstation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"xstation/internal/metrics"
	"xstation/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	cacheKeyRooms          = "xstation:cache:rooms"
	cacheKeyCustomers      = "xstation:cache:customers"
	cacheKeyCafeteriaItems = "xstation:cache:cafeteria_items"
)

// endNamespace seeds the deterministic idempotency keys of end requests.
var endNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("xstation:booking-end"))

// Client calls the X-Station REST backend. Every response is an envelope
// {status, message, data}; data is decoded into typed values here.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// NewClient constructs a client with baseURL, API key and request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for catalog lists.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ListActiveBookings returns the bookings currently in progress. Never cached.
func (c *Client) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	var raw json.RawMessage
	if err := c.doGet(ctx, "list_active_bookings", "/api/bookings/active", &raw); err != nil {
		return nil, err
	}
	return decodeBookings(raw)
}

func (c *Client) CreateBooking(ctx context.Context, req models.NewBookingRequest) (*models.Booking, error) {
	var booking models.Booking
	if err := c.doSend(ctx, "create_booking", http.MethodPost, "/api/bookings", req, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

type endBookingRequest struct {
	EndTime *time.Time `json:"end_time,omitempty"`
}

// EndBooking ends a booking. A nil endTime lets the backend use the current
// time; an explicit one is sent with a stable idempotency key so repeated
// attempts for the same expiry are recognisable.
func (c *Client) EndBooking(ctx context.Context, id int64, endTime *time.Time) error {
	key := uuid.New()
	if endTime != nil {
		key = EndIdempotencyKey(id, *endTime)
	}
	headers := map[string]string{"Idempotency-Key": key.String()}
	path := fmt.Sprintf("/api/bookings/%d/end", id)
	return c.doSend(ctx, "end_booking", http.MethodPost, path, endBookingRequest{EndTime: endTime}, headers, nil)
}

// EndIdempotencyKey derives the idempotency key of an auto-end request.
func EndIdempotencyKey(id int64, endTime time.Time) uuid.UUID {
	name := strconv.FormatInt(id, 10) + ":" + strconv.FormatInt(endTime.UnixMilli(), 10)
	return uuid.NewSHA1(endNamespace, []byte(name))
}

func (c *Client) SwitchRoom(ctx context.Context, id int64, roomID int64) (*models.Booking, error) {
	var booking models.Booking
	body := map[string]int64{"room_id": roomID}
	path := fmt.Sprintf("/api/bookings/%d/switch-room", id)
	if err := c.doSend(ctx, "switch_room", http.MethodPost, path, body, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) UpdateDiscount(ctx context.Context, id int64, discount float64) (*models.Booking, error) {
	var booking models.Booking
	body := map[string]float64{"discount": discount}
	path := fmt.Sprintf("/api/bookings/%d/discount", id)
	if err := c.doSend(ctx, "update_discount", http.MethodPut, path, body, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) ListOrders(ctx context.Context, bookingID int64) ([]models.Order, error) {
	var orders []models.Order
	path := "/api/orders?booking_id=" + url.QueryEscape(strconv.FormatInt(bookingID, 10))
	if err := c.doGet(ctx, "list_orders", path, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrder places an order and drops the cafeteria cache, since stock changed.
func (c *Client) CreateOrder(ctx context.Context, req models.NewOrderRequest) (*models.Order, error) {
	var order models.Order
	if err := c.doSend(ctx, "create_order", http.MethodPost, "/api/orders", req, nil, &order); err != nil {
		return nil, err
	}
	c.dropCache(ctx, cacheKeyCafeteriaItems)
	return &order, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.cachedGet(ctx, cacheKeyRooms, "list_rooms", "/api/rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := c.cachedGet(ctx, cacheKeyCustomers, "list_customers", "/api/customers", &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) ListCafeteriaItems(ctx context.Context) ([]models.CafeteriaItem, error) {
	var items []models.CafeteriaItem
	if err := c.cachedGet(ctx, cacheKeyCafeteriaItems, "list_cafeteria_items", "/api/cafeteria/items", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeBookings accepts both {"bookings":[...]} and a bare array.
func decodeBookings(raw json.RawMessage) ([]models.Booking, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.Booking{}, nil
	}

	if raw[0] == '[' {
		var bookings []models.Booking
		if err := json.Unmarshal(raw, &bookings); err != nil {
			return nil, fmt.Errorf("decode bookings: %w", err)
		}
		return bookings, nil
	}

	var wrap struct {
		Bookings []models.Booking `json:"bookings"`
	}
	if err := json.Unmarshal(raw, &wrap); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	if wrap.Bookings == nil {
		wrap.Bookings = []models.Booking{}
	}
	return wrap.Bookings, nil
}

func (c *Client) cachedGet(ctx context.Context, key, operation, path string, out any) error {
	if c.readCache(ctx, key, out) {
		return nil
	}
	if err := c.doGet(ctx, operation, path, out); err != nil {
		return err
	}
	c.writeCache(ctx, key, out)
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("write catalog cache")
	}
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *Client) doGet(ctx context.Context, operation, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(operation, req, out)
}

func (c *Client) doSend(ctx context.Context, operation, method, path string, body any, headers map[string]string, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.addHeaders(req)
	return c.do(operation, req, out)
}

func (c *Client) do(operation string, req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveBackend(operation, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, operation, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrNetwork, operation, err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: DefaultErrorMessage}
		}
		return fmt.Errorf("%s: decode envelope: %w", operation, err)
	}

	if env.Status != "success" || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		c.logger.Debug().Str("operation", operation).Int("http_status", resp.StatusCode).Str("message", msg).Msg("backend reported failure")
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = env.Data
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", operation, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}
