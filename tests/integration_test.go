package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snapfulfil/order-router/internal/adapter/dispatch"
	"github.com/snapfulfil/order-router/internal/adapter/storage"
	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/core/service"
	"github.com/snapfulfil/order-router/internal/metrics"
)

var (
	usSKUs     = []string{"US-STARTER-001", "US-REFILL-001"}
	refillSKUs = []string{"REFILL-001", "REFILL-002", "REFILL-003"}
)

type testEnv struct {
	redis     *redis.Client
	partner   *httptest.Server
	received  map[string]int // partner id -> accepted orders
	mu        sync.Mutex
	endpoints map[domain.Partner]string
	cleanup   func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	env := &testEnv{
		redis:    rdb,
		received: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /partners/{partner}/orders", func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.received[r.PathValue("partner")]++
		env.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"tracking_number": "TRACK-IT-1"})
	})
	env.partner = httptest.NewServer(mux)

	env.endpoints = make(map[domain.Partner]string)
	for _, p := range []domain.Partner{domain.PartnerF1, domain.PartnerF2, domain.PartnerF3, domain.PartnerFUS} {
		env.endpoints[p] = fmt.Sprintf("%s/partners/%s/orders", env.partner.URL, p)
	}

	env.cleanup = func() {
		env.partner.Close()
		rdb.Close()
	}
	return env
}

func (env *testEnv) acceptedBy(partner domain.Partner) int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.received[string(partner)]
}

func (env *testEnv) clearVolumes(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	today := time.Now().UTC().Format("2006-01-02")
	for _, p := range []domain.Partner{domain.PartnerF1, domain.PartnerF2, domain.PartnerF3, domain.PartnerFUS} {
		if err := env.redis.Del(ctx, fmt.Sprintf("volume:%s:%s", p, today)).Err(); err != nil {
			t.Fatalf("failed to clear volume key: %v", err)
		}
	}
}

func (env *testEnv) todayVolume(t *testing.T, partner domain.Partner) int64 {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("volume:%s:%s", partner, time.Now().UTC().Format("2006-01-02"))
	v, err := env.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read volume key: %v", err)
	}
	return v
}

func newProcessor(env *testEnv, caps map[domain.Partner]int64, maxAttempts int) *service.QueueProcessor {
	logger := zap.NewNop()
	counters := storage.NewRedisCounterStore(env.redis, 2*time.Second)
	routing := service.NewRoutingService(usSKUs, refillSKUs, caps, counters, logger)
	dispatcher := dispatch.NewHTTPDispatcher(2*time.Second, logger)
	return service.NewQueueProcessor(routing, storage.NewMemoryJobStore(), dispatcher, env.endpoints, metrics.NewRegistry(), logger, service.ProcessorConfig{
		Workers:         3,
		BufferSize:      100,
		MaxAttempts:     maxAttempts,
		BackoffBase:     10 * time.Millisecond,
		DispatchTimeout: 2 * time.Second,
	})
}

func waitForTerminal(t *testing.T, p *service.QueueProcessor, jobID string) domain.JobDetails {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		details, err := p.GetJobDetails(context.Background(), jobID)
		if err == nil && (details.Status == domain.JobStatusCompleted || details.Status == domain.JobStatusFailed) {
			return details
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return domain.JobDetails{}
}

func TestIntegration_FullRoutingFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	env.clearVolumes(t)

	p := newProcessor(env, nil, 3)
	p.Start()
	defer p.Close()

	ctx := context.Background()
	orders := []struct {
		order      domain.Order
		wantResult domain.RoutingDecision
	}{
		{
			order: domain.Order{
				OrderNumber:         "IT-" + uuid.New().String(),
				PresentmentCurrency: "USD",
				LineItems:           []domain.LineItem{{SKU: "US-STARTER-001", Quantity: 1}},
			},
			wantResult: domain.RoutingDecision{Partner: domain.PartnerFUS, Reason: domain.ReasonUSOrder},
		},
		{
			order: domain.Order{
				OrderNumber:         "IT-" + uuid.New().String(),
				PresentmentCurrency: "GBP",
				LineItems:           []domain.LineItem{{SKU: "REFILL-001", Quantity: 1}},
			},
			wantResult: domain.RoutingDecision{Partner: domain.PartnerF3, Reason: domain.ReasonRefillSKU},
		},
		{
			order: domain.Order{
				OrderNumber:         "IT-" + uuid.New().String(),
				PresentmentCurrency: "GBP",
				LineItems: []domain.LineItem{
					{SKU: "STARTER-001", Quantity: 1},
					{SKU: "GIFT-001", Quantity: 2},
				},
			},
			wantResult: domain.RoutingDecision{Partner: domain.PartnerF1, Reason: domain.ReasonMultiItem},
		},
		{
			order: domain.Order{
				OrderNumber:         "IT-" + uuid.New().String(),
				PresentmentCurrency: "GBP",
				LineItems:           []domain.LineItem{{SKU: "STARTER-001", Quantity: 1}},
			},
			wantResult: domain.RoutingDecision{Partner: domain.PartnerF2, Reason: domain.ReasonSingleItemDefault},
		},
	}

	jobIDs := make([]string, len(orders))
	for i, tc := range orders {
		id, err := p.AddOrder(ctx, tc.order)
		if err != nil {
			t.Fatalf("AddOrder failed: %v", err)
		}
		jobIDs[i] = id
	}

	for i, tc := range orders {
		details := waitForTerminal(t, p, jobIDs[i])
		if details.Status != domain.JobStatusCompleted {
			t.Fatalf("job for %s not completed: %+v", tc.order.OrderNumber, details)
		}
		if details.Result == nil || *details.Result != tc.wantResult {
			t.Errorf("order %s: expected %+v, got %+v", tc.order.OrderNumber, tc.wantResult, details.Result)
		}
	}

	// One order per partner, so every counter and partner endpoint saw
	// exactly one hit.
	for _, partner := range []domain.Partner{domain.PartnerF1, domain.PartnerF2, domain.PartnerF3, domain.PartnerFUS} {
		if got := env.todayVolume(t, partner); got != 1 {
			t.Errorf("expected %s volume 1, got %d", partner, got)
		}
		if got := env.acceptedBy(partner); got != 1 {
			t.Errorf("expected %s to accept 1 order, got %d", partner, got)
		}
	}

	env.clearVolumes(t)
}

func TestIntegration_CapacityFallback(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	env.clearVolumes(t)

	ctx := context.Background()
	today := time.Now().UTC().Format("2006-01-02")

	// F2 is already at its cap for today.
	capValue := int64(5)
	if err := env.redis.Set(ctx, fmt.Sprintf("volume:F2:%s", today), capValue, 0).Err(); err != nil {
		t.Fatalf("failed to seed volume: %v", err)
	}

	p := newProcessor(env, map[domain.Partner]int64{domain.PartnerF2: capValue}, 3)
	p.Start()
	defer p.Close()

	jobID, err := p.AddOrder(ctx, domain.Order{
		OrderNumber:         "IT-" + uuid.New().String(),
		PresentmentCurrency: "GBP",
		LineItems:           []domain.LineItem{{SKU: "STARTER-001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}

	details := waitForTerminal(t, p, jobID)
	if details.Status != domain.JobStatusCompleted {
		t.Fatalf("job not completed: %+v", details)
	}
	if details.Result.Partner != domain.PartnerF1 || details.Result.Reason != domain.ReasonCapacityFallback {
		t.Errorf("expected {F1 capacity_fallback}, got %+v", details.Result)
	}

	if got := env.todayVolume(t, domain.PartnerF2); got != capValue {
		t.Errorf("expected F2 volume unchanged at %d, got %d", capValue, got)
	}
	if got := env.todayVolume(t, domain.PartnerF1); got != 1 {
		t.Errorf("expected F1 volume 1, got %d", got)
	}

	env.clearVolumes(t)
}

func TestIntegration_RetryExhaustion(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	env.clearVolumes(t)

	// Replace every endpoint with one that always rejects.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusBadGateway)
	}))
	defer broken.Close()
	for partner := range env.endpoints {
		env.endpoints[partner] = broken.URL
	}

	p := newProcessor(env, nil, 2)
	p.Start()
	defer p.Close()

	jobID, err := p.AddOrder(context.Background(), domain.Order{
		OrderNumber:         "IT-" + uuid.New().String(),
		PresentmentCurrency: "GBP",
		LineItems:           []domain.LineItem{{SKU: "STARTER-001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("AddOrder failed: %v", err)
	}

	details := waitForTerminal(t, p, jobID)
	if details.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed job, got %+v", details)
	}
	if details.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", details.Attempts)
	}

	// Nothing was dispatched, so no counter may have moved.
	for _, partner := range []domain.Partner{domain.PartnerF1, domain.PartnerF2, domain.PartnerF3, domain.PartnerFUS} {
		if got := env.todayVolume(t, partner); got != 0 {
			t.Errorf("expected %s volume 0, got %d", partner, got)
		}
	}
}
