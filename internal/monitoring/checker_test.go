package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadenrich-cli/internal/config"
	"github.com/sells-group/leadenrich-cli/internal/model"
)

func TestChecker_StopsOnContextCancel(t *testing.T) {
	checker := NewChecker(
		NewCollector(&fakeStore{}),
		NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{CheckIntervalSecs: 1},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after context cancel")
	}
}

func TestChecker_CheckTicks(t *testing.T) {
	st := &fakeStore{}
	checker := NewChecker(
		NewCollector(st),
		NewAlerter(config.MonitoringConfig{}),
		config.MonitoringConfig{CheckIntervalSecs: 0}, // defaults inside Run
	)

	// One manual check exercises collect + evaluate without waiting for a tick.
	checker.check(context.Background(), zap.NewNop())
	if st.lastFilter.Limit == 0 {
		t.Fatal("expected collector to query the store")
	}
}

func TestChecker_DeliversAlertsForUnhealthyWindow(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{
		FailureRateThreshold: 0.25,
		WebhookURL:           srv.URL,
	}

	var failed []model.Run
	for i := 0; i < 5; i++ {
		failed = append(failed, model.Run{Status: model.RunStatusFailed})
	}
	checker := NewChecker(NewCollector(&fakeStore{runs: failed}), NewAlerter(cfg), cfg)
	checker.check(context.Background(), zap.NewNop())

	if hits.Load() == 0 {
		t.Fatal("expected a webhook delivery for the failed runs")
	}

	// A window with no runs is skipped before evaluation.
	hits.Store(0)
	idle := NewChecker(NewCollector(&fakeStore{}), NewAlerter(cfg), cfg)
	idle.check(context.Background(), zap.NewNop())

	if hits.Load() != 0 {
		t.Fatalf("expected no webhook deliveries for an idle window, got %d", hits.Load())
	}
}
