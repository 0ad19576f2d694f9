package factory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/factory"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type fakeCentral struct {
	pingErr  error
	pings    int
	sessions []string
}

func (c *fakeCentral) Bundle(sessionID string) *repo.Bundle {
	c.sessions = append(c.sessions, sessionID)
	return &repo.Bundle{Store: repo.StoreCentral}
}

func (c *fakeCentral) Ping(context.Context) error {
	c.pings++
	return c.pingErr
}

type fakeLocal struct{}

func (fakeLocal) Bundle() *repo.Bundle { return &repo.Bundle{Store: repo.StoreLocal} }

// TestForMode 测试按模式选择存储，未知模式回落本地库.
func TestForMode(t *testing.T) {
	central := &fakeCentral{}
	f := factory.New(central, fakeLocal{})
	ctx := context.Background()

	cases := []struct {
		mode string
		want repo.StoreKind
	}{
		{"connected", repo.StoreCentral},
		{"disconnected", repo.StoreLocal},
		{"", repo.StoreLocal},
		{"garbage", repo.StoreLocal},
	}

	for _, tc := range cases {
		b, err := f.For(ctx, session.New("s1", "alice", session.ParseMode(tc.mode)))
		if err != nil {
			t.Fatalf("mode %q: %v", tc.mode, err)
		}

		if b.Store != tc.want {
			t.Errorf("mode %q: got %s, want %s", tc.mode, b.Store, tc.want)
		}
	}

	if len(central.sessions) != 1 || central.sessions[0] != "s1" {
		t.Errorf("central bundle should be bound to the session, got %v", central.sessions)
	}

	if central.pings != 0 {
		t.Errorf("For must not touch the database")
	}
}

// TestCentralNotConfigured 测试未配置中心库.
func TestCentralNotConfigured(t *testing.T) {
	f := factory.New(nil, fakeLocal{})

	_, err := f.For(context.Background(), session.New("s1", "alice", session.ModeConnected))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}

	if !domain.IsRetryable(err) {
		t.Errorf("StoreUnavailable should be retryable")
	}
}

// TestProbeTripsBreaker 测试探测连续失败后熔断，恢复由半开探测完成.
func TestProbeTripsBreaker(t *testing.T) {
	central := &fakeCentral{pingErr: errors.New("connection refused")}
	f := factory.New(central, fakeLocal{}, factory.WithTripAfter(2))
	ctx := context.Background()
	conn := session.New("s1", "alice", session.ModeConnected)

	for i := 0; i < 2; i++ {
		if err := f.Probe(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("probe %d: expected StoreUnavailable, got %v", i, err)
		}
	}

	if f.State() != "open" {
		t.Fatalf("breaker should be open, got %s", f.State())
	}

	if _, err := f.For(ctx, conn); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable while open, got %v", err)
	}

	if err := f.Probe(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("probe while open should fail fast, got %v", err)
	}

	if central.pings != 2 {
		t.Errorf("open breaker must not ping, got %d pings", central.pings)
	}

	b, err := f.For(ctx, session.New("s1", "alice", session.ModeDisconnected))
	if err != nil || b.Store != repo.StoreLocal {
		t.Fatalf("disconnected sessions stay available: %v", err)
	}
}
