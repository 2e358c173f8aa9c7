package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/albertocavalcante/go-modrt/container"
	"github.com/albertocavalcante/go-modrt/resource"
)

func TestCollectorsObserveContainer(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	acts := container.NewActivators()
	acts.Register("fail", func() container.Activator {
		return container.ActivatorFuncs{OnStart: func(context.Context, *container.BundleContext) error {
			return errors.New("no")
		}}
	})
	c, err := container.New(container.WithObserver(m), container.WithActivators(acts))
	if err != nil {
		t.Fatalf("container.New() error = %v", err)
	}
	defer c.Close()
	if err := c.SetStartLevel(ctx, 1); err != nil {
		t.Fatalf("SetStartLevel() error = %v", err)
	}

	a, err := c.Install(ctx, "loc:a", map[string]string{"Bundle-SymbolicName": "a", "Bundle-Activator": "fail"}, resource.MapContent{})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if _, err := c.Install(ctx, "loc:b", map[string]string{"Bundle-SymbolicName": "b", "Import-Package": "missing"}, resource.MapContent{}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	c.ResolveBundles(ctx, nil)
	_ = c.Start(ctx, a, 0)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"installed", testutil.ToFloat64(m.installed), 2},
		{"resolved", testutil.ToFloat64(m.resolvedTotal), 1},
		{"failures", testutil.ToFloat64(m.unresolvedTotal), 1},
		{"activator errors", testutil.ToFloat64(m.activatorErrors.WithLabelValues("start")), 1},
		{"installed->resolved", testutil.ToFloat64(m.transitions.WithLabelValues("INSTALLED", "RESOLVED")), 1},
		{"starting->stopping", testutil.ToFloat64(m.transitions.WithLabelValues("STARTING", "STOPPING")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(reg); n == 0 {
		t.Error("registry collected no metrics")
	}
}

func TestNewDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New() on the same registry succeeded")
	}
	if _, err := New(nil); err != nil {
		t.Errorf("New(nil) error = %v", err)
	}
}
