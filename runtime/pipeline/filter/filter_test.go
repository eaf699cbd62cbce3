package filter

import (
	"context"
	"testing"
	"time"

	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

func rec(lvl level.Level, msg string) record.Record {
	return record.Record{Level: lvl, Message: msg, Time: time.Unix(0, 0)}
}

func TestLevelThreshold_DropsBelowMinimum(t *testing.T) {
	f := NewLevelThreshold(level.Warn)

	_, decision, err := f.Process(context.Background(), rec(level.Info, "x"))
	if err != nil || decision != stage.Drop {
		t.Fatalf("Info below Warn: decision=%v err=%v, want Drop/nil", decision, err)
	}

	_, decision, err = f.Process(context.Background(), rec(level.Error, "x"))
	if err != nil || decision != stage.Continue {
		t.Fatalf("Error above Warn: decision=%v err=%v, want Continue/nil", decision, err)
	}
}

func TestProbabilistic_RateZeroAndOne(t *testing.T) {
	drop := NewProbabilistic(0, nil)
	if _, d, _ := drop.Process(context.Background(), rec(level.Info, "x")); d != stage.Drop {
		t.Fatalf("rate=0 should always drop")
	}

	keep := NewProbabilistic(1, nil)
	if _, d, _ := keep.Process(context.Background(), rec(level.Info, "x")); d != stage.Continue {
		t.Fatalf("rate=1 should always keep")
	}
}

func TestProbabilistic_DeterministicKeyAgreesAcrossCalls(t *testing.T) {
	f := NewProbabilistic(0.5, func(r record.Record) string { return r.Message })
	r := rec(level.Info, "trace-abc")

	_, first, _ := f.Process(context.Background(), r)
	for i := 0; i < 10; i++ {
		_, d, _ := f.Process(context.Background(), r)
		if d != first {
			t.Fatalf("deterministic key produced different decisions across calls")
		}
	}
}

func TestAdaptiveSampler_AlwaysPassBypassesSampling(t *testing.T) {
	f := NewAdaptiveSampler(1, 0, 1, time.Second, level.Error)
	f.passP = 0 // would drop everything if not bypassed

	_, d, _ := f.Process(context.Background(), rec(level.Error, "boom"))
	if d != stage.Continue {
		t.Fatalf("always-pass level was sampled, decision=%v", d)
	}
}

func TestAdaptiveSampler_ConvergesTowardTargetRate(t *testing.T) {
	fake := time.Unix(0, 0)
	timeNow = func() time.Time { return fake }
	defer func() { timeNow = time.Now }()

	f := NewAdaptiveSampler(5, 0, 1, time.Second)
	f.rng = func() float64 { return 0 } // always "pass" the coin flip so we observe passP's effect on the counter only

	for i := 0; i < 50; i++ {
		fake = fake.Add(20 * time.Millisecond)
		f.Process(context.Background(), rec(level.Info, "x"))
	}

	if f.passP > 0.9 {
		t.Fatalf("expected pass probability to decrease under a 50/s observed rate with target 5/s, got %v", f.passP)
	}
}

func TestRateLimiter_GlobalBucketDropsOverBurst(t *testing.T) {
	f := NewRateLimiter(0, 2, nil, 0)

	r := rec(level.Info, "x")
	_, d1, _ := f.Process(context.Background(), r)
	_, d2, _ := f.Process(context.Background(), r)
	_, d3, _ := f.Process(context.Background(), r)

	if d1 != stage.Continue || d2 != stage.Continue {
		t.Fatalf("expected burst of 2 to be admitted, got %v %v", d1, d2)
	}
	if d3 != stage.Drop {
		t.Fatalf("expected third event with rate=0 to be dropped, got %v", d3)
	}
}

func TestRateLimiter_PartitionsByKey(t *testing.T) {
	f := NewRateLimiter(0, 1, func(r record.Record) string { return r.Message }, 0)

	_, dA1, _ := f.Process(context.Background(), rec(level.Info, "a"))
	_, dB1, _ := f.Process(context.Background(), rec(level.Info, "b"))
	_, dA2, _ := f.Process(context.Background(), rec(level.Info, "a"))

	if dA1 != stage.Continue || dB1 != stage.Continue {
		t.Fatalf("expected first event per partition to be admitted, got %v %v", dA1, dB1)
	}
	if dA2 != stage.Drop {
		t.Fatalf("expected second event on the same partition with burst=1 to be dropped, got %v", dA2)
	}
}
