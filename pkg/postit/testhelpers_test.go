package postit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

var testEpoch = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// testClock is an adjustable clock shared by a service under test.
type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (clock *testClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *testClock) Advance(delta time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(delta)
}

// stubGenerator returns canned text and can be switched to fail.
type stubGenerator struct {
	mutex     sync.Mutex
	calls     int
	failNext  bool
	postText  string
	variant   string
	hashtags  []string
	lastTone   string
	lastIntake Intake
}

func newStubGenerator() *stubGenerator {
	return &stubGenerator{
		postText: "Generated post text",
		variant:  "Rewritten post text",
		hashtags: []string{"#one", "#two"},
	}
}

func (generator *stubGenerator) GeneratePost(_ context.Context, intake Intake) (string, error) {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()
	generator.calls++
	generator.lastIntake = intake
	if generator.failNext {
		generator.failNext = false
		return "", fmt.Errorf("generator down")
	}
	return generator.postText, nil
}

func (generator *stubGenerator) Rewrite(_ context.Context, request RewriteRequest) (string, error) {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()
	generator.calls++
	generator.lastTone = request.Tone
	if generator.failNext {
		generator.failNext = false
		return "", fmt.Errorf("generator down")
	}
	return generator.variant, nil
}

func (generator *stubGenerator) Hashtags(_ context.Context, _ string) ([]string, error) {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()
	generator.calls++
	if generator.failNext {
		generator.failNext = false
		return nil, fmt.Errorf("generator down")
	}
	return generator.hashtags, nil
}

func (generator *stubGenerator) callCount() int {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()
	return generator.calls
}

// stubProvider keeps payments in memory.
type stubProvider struct {
	mutex    sync.Mutex
	payments map[string]ProviderPayment
	created  int
}

func newStubProvider() *stubProvider {
	return &stubProvider{payments: map[string]ProviderPayment{}}
}

func (provider *stubProvider) CreatePayment(_ context.Context, request CreatePaymentRequest) (ProviderPayment, error) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.created++
	payment := ProviderPayment{
		ID:          fmt.Sprintf("tr_stub%04d", provider.created),
		Status:      "open",
		CheckoutURL: "https://checkout.example/" + request.UserID,
		UserID:      request.UserID,
		Coins:       request.Coins,
	}
	provider.payments[payment.ID] = payment
	return payment, nil
}

func (provider *stubProvider) GetPayment(_ context.Context, paymentID string) (ProviderPayment, error) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	payment, exists := provider.payments[paymentID]
	if !exists {
		return ProviderPayment{}, fmt.Errorf("payment %s not found", paymentID)
	}
	return payment, nil
}

func (provider *stubProvider) markPaid(paymentID string) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	payment := provider.payments[paymentID]
	payment.Status = "paid"
	provider.payments[paymentID] = payment
}

type memoryBackend struct {
	mutex    sync.Mutex
	document []byte
}

func (backend *memoryBackend) Name() string { return "memory" }

func (backend *memoryBackend) Load(_ context.Context) ([]byte, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return backend.document, nil
}

func (backend *memoryBackend) Save(_ context.Context, document []byte) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.document = append([]byte(nil), document...)
	return nil
}

func sequentialIDs(prefix string) func() string {
	var mutex sync.Mutex
	counter := 0
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return fmt.Sprintf("%s-%04d", prefix, counter)
	}
}

func mustNewStore(test *testing.T) *DocumentStore {
	test.Helper()
	store, err := NewDocumentStore(zap.NewNop(), &memoryBackend{})
	if err != nil {
		test.Fatalf("store init: %v", err)
	}
	return store
}

func mustNewService(test *testing.T, store Store, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	options = append(options, WithIDGenerator(sequentialIDs("id")))
	service, err := NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustPostID(test *testing.T, raw string) PostID {
	test.Helper()
	postID, err := NewPostID(raw)
	if err != nil {
		test.Fatalf("post id %q: %v", raw, err)
	}
	return postID
}

func mustActionID(test *testing.T, raw string) ActionID {
	test.Helper()
	actionID, err := NewActionID(raw)
	if err != nil {
		test.Fatalf("action id %q: %v", raw, err)
	}
	return actionID
}

func mustCoins(test *testing.T, service *Service, userID UserID) Coins {
	test.Helper()
	var coins Coins
	err := service.store.RunExclusive(context.Background(), func(_ context.Context, state *State) error {
		coins = state.EnsureAccount(userID, "", service.nowFn()).Coins
		return nil
	})
	if err != nil {
		test.Fatalf("read coins: %v", err)
	}
	return coins
}

func mustSetCoins(test *testing.T, service *Service, userID UserID, coins Coins) {
	test.Helper()
	err := service.store.RunExclusive(context.Background(), func(_ context.Context, state *State) error {
		state.EnsureAccount(userID, "", service.nowFn()).Coins = coins
		return nil
	})
	if err != nil {
		test.Fatalf("set coins: %v", err)
	}
}

func mustGenerate(test *testing.T, service *Service, userID UserID, actionID *ActionID) GeneratePayload {
	test.Helper()
	outcome, err := service.Generate(context.Background(), GenerateRequest{
		UserID:   userID,
		ActionID: actionID,
		Intake:   Intake{Notes: "launch announcement"},
	})
	if err != nil {
		test.Fatalf("generate: %v", err)
	}
	return mustDecodeGenerate(test, outcome)
}

func mustDecodeGenerate(test *testing.T, outcome *ActionOutcome) GeneratePayload {
	test.Helper()
	var payload GeneratePayload
	mustUnmarshal(test, outcome.Payload, &payload)
	return payload
}

func mustUnmarshal(test *testing.T, raw []byte, target any) {
	test.Helper()
	if err := json.Unmarshal(raw, target); err != nil {
		test.Fatalf("decode payload %s: %v", strings.TrimSpace(string(raw)), err)
	}
}
