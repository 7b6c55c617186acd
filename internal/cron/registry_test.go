package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry := NewRegistry()
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			t.Fatalf("register %s: %v", job.Name(), err)
		}
	}
	return registry
}

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "receivables-reconcile"}
	jobB := &stubJob{name: "run-retention"}
	registry := mustRegistry(t, jobA, jobB)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicatesAndBlankNames(t *testing.T) {
	registry := mustRegistry(t, &stubJob{name: "a"})

	if err := registry.Register(&stubJob{name: "a"}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatal("expected blank name to be rejected")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
	if err := registry.Schedule(&stubJob{name: "b"}, -time.Second); err == nil {
		t.Fatal("expected negative spacing to be rejected")
	}
}

func TestRegistrySpacing(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Schedule(&stubJob{name: "daily"}, 24*time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := registry.spacing("daily"); got != 24*time.Hour {
		t.Fatalf("unexpected spacing %s", got)
	}
	if got := registry.spacing("missing"); got != 0 {
		t.Fatalf("unknown jobs are always due, got %s", got)
	}
}
