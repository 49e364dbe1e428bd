package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/csverma610/medkit/internal/schema"
)

type interaction struct {
	DrugA    string `json:"drug_a" validate:"required"`
	DrugB    string `json:"drug_b" validate:"required"`
	Severity string `json:"severity" validate:"required,oneof=NONE MINOR MODERATE SEVERE"`
	Summary  string `json:"summary"`
}

var interactionCodec = schema.NewCodec[interaction]("v1")

func testConfig(t *testing.T, opts Options) Config {
	t.Helper()
	if opts.Root == "" && opts.Path == "" {
		opts.Root = t.TempDir()
	}
	if opts.TestMode == nil {
		opts.TestMode = Never
	}
	return NewConfig("drug_drug_interaction", opts)
}

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c := New(cfg, WithLogger(zerolog.Nop()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type counter struct {
	calls int
	value interaction
	err   error
}

func (c *counter) compute(context.Context) (interaction, error) {
	c.calls++
	return c.value, c.err
}

func sampleInteraction() interaction {
	return interaction{DrugA: "Warfarin", DrugB: "Aspirin", Severity: "SEVERE", Summary: "bleeding risk"}
}

func TestFetch_IdempotentCaching(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, testConfig(t, Options{}))
	cnt := &counter{value: sampleInteraction()}
	for i := 0; i < 2; i++ {
		got, err := Fetch(ctx, c, interactionCodec, []string{"x", "y"}, cnt.compute)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if got != cnt.value {
			t.Fatalf("fetch %d returned %+v", i, got)
		}
	}
	if cnt.calls != 1 {
		t.Fatalf("compute called %d times, want 1", cnt.calls)
	}
}

func TestFetch_WarfarinAspirinScenario(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, Options{})
	cnt := &counter{value: sampleInteraction()}

	got, err := FetchOnce(ctx, cfg, interactionCodec, []string{"Warfarin", "Aspirin"}, cnt.compute, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if got != cnt.value {
		t.Fatalf("first fetch returned %+v", got)
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("expected store file after first fetch: %v", err)
	}

	other := &counter{value: interaction{DrugA: "wrong", DrugB: "wrong", Severity: "NONE"}}
	got, err = FetchOnce(ctx, cfg, interactionCodec, []string{"warfarin", " aspirin "}, other.compute, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if got != cnt.value {
		t.Fatalf("second fetch returned %+v, want persisted %+v", got, cnt.value)
	}
	if other.calls != 0 {
		t.Fatalf("compute should not run on a hit, ran %d times", other.calls)
	}
}

func TestFetch_CorruptedEntryRecovers(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, Options{})
	key := KeyFrom("Warfarin", "Aspirin")

	s, err := OpenStore(ctx, cfg.Path(), cfg.StoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, Entry{Key: key, Value: []byte(`{"drug_a": garbage`), SchemaVersion: "v1"}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	cnt := &counter{value: sampleInteraction()}
	c := newTestCache(t, cfg)
	got, err := Fetch(ctx, c, interactionCodec, []string{"Warfarin", "Aspirin"}, cnt.compute)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != cnt.value || cnt.calls != 1 {
		t.Fatalf("got %+v after %d calls", got, cnt.calls)
	}
	_ = c.Close()

	s, err = OpenStore(ctx, cfg.Path(), cfg.StoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	e, found, err := s.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if _, err := interactionCodec.Decode(e.Value); err != nil {
		t.Fatalf("corrupt entry should have been overwritten: %v", err)
	}
}

func TestFetch_StaleSchemaRegenerates(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, Options{})
	cnt := &counter{value: sampleInteraction()}
	if _, err := FetchOnce(ctx, cfg, interactionCodec, []string{"a", "b"}, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
		t.Fatal(err)
	}

	v2 := schema.NewCodec[interaction]("v2")
	if _, err := FetchOnce(ctx, cfg, v2, []string{"a", "b"}, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
		t.Fatal(err)
	}
	if cnt.calls != 2 {
		t.Fatalf("version change should regenerate, compute ran %d times", cnt.calls)
	}
	if _, err := FetchOnce(ctx, cfg, v2, []string{"a", "b"}, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
		t.Fatal(err)
	}
	if cnt.calls != 2 {
		t.Fatalf("regenerated entry should be a hit, compute ran %d times", cnt.calls)
	}
}

func TestFetch_StoreUnavailableStillReturns(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, Options{Root: filepath.Join(blocker, "storage")})
	c := newTestCache(t, cfg)
	if err := c.Open(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected open to fail with ErrStorageUnavailable, got %v", err)
	}
	cnt := &counter{value: sampleInteraction()}
	for i := 0; i < 2; i++ {
		got, err := Fetch(context.Background(), c, interactionCodec, []string{"a", "b"}, cnt.compute)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got != cnt.value {
			t.Fatalf("got %+v", got)
		}
	}
	if cnt.calls != 2 {
		t.Fatalf("without a store every fetch computes, got %d calls", cnt.calls)
	}
}

func TestFetch_TestModeBypassesStore(t *testing.T) {
	cfg := NewConfig("drug_drug_interaction", Options{Root: t.TempDir(), TestMode: func() bool { return true }})
	if cfg.Enabled() {
		t.Fatal("test mode must disable the store")
	}
	cnt := &counter{value: sampleInteraction()}
	for i := 0; i < 2; i++ {
		if _, err := FetchOnce(context.Background(), cfg, interactionCodec, []string{"a", "b"}, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
			t.Fatal(err)
		}
	}
	if cnt.calls != 2 {
		t.Fatalf("compute ran %d times, want 2", cnt.calls)
	}
	if _, err := os.Stat(cfg.Path()); !os.IsNotExist(err) {
		t.Fatalf("store file should not exist in test mode: %v", err)
	}
}

func TestFetch_OverwriteForcesRecompute(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cnt := &counter{value: sampleInteraction()}
	cfg := testConfig(t, Options{Root: root})
	if _, err := FetchOnce(ctx, cfg, interactionCodec, []string{"a", "b"}, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
		t.Fatal(err)
	}

	fresh := &counter{value: interaction{DrugA: "a", DrugB: "b", Severity: "MINOR"}}
	over := testConfig(t, Options{Root: root, Overwrite: true})
	got, err := FetchOnce(ctx, over, interactionCodec, []string{"a", "b"}, fresh.compute, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if fresh.calls != 1 || got != fresh.value {
		t.Fatalf("overwrite should recompute: calls=%d got=%+v", fresh.calls, got)
	}

	reader := &counter{}
	got, err = FetchOnce(ctx, cfg, interactionCodec, []string{"a", "b"}, reader.compute, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if reader.calls != 0 || got != fresh.value {
		t.Fatalf("overwritten value should be stored: calls=%d got=%+v", reader.calls, got)
	}
}

func TestFetch_GenerationErrorPropagatedAndNotCached(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, Options{})
	boom := errors.New("service down")
	failing := &counter{err: boom}
	_, err := FetchOnce(ctx, cfg, interactionCodec, []string{"a", "b"}, failing.compute, WithLogger(zerolog.Nop()))
	if err != boom {
		t.Fatalf("error should be returned unchanged, got %v", err)
	}

	ok := &counter{value: sampleInteraction()}
	if _, err := FetchOnce(ctx, cfg, interactionCodec, []string{"a", "b"}, ok.compute, WithLogger(zerolog.Nop())); err != nil {
		t.Fatal(err)
	}
	if ok.calls != 1 {
		t.Fatal("a failed generation must not leave a cache entry")
	}
}

func TestFetch_InvalidResultReturnedButNotStored(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, Options{})
	bad := &counter{value: interaction{DrugA: "a"}}
	for i := 0; i < 2; i++ {
		got, err := FetchOnce(ctx, cfg, interactionCodec, []string{"a", "b"}, bad.compute, WithLogger(zerolog.Nop()))
		if err != nil {
			t.Fatalf("encode failure should not surface: %v", err)
		}
		if got != bad.value {
			t.Fatalf("got %+v", got)
		}
	}
	if bad.calls != 2 {
		t.Fatalf("unencodable result should not be cached, calls=%d", bad.calls)
	}
}

func TestFetch_CapacityExceededStillReturns(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, Options{CapacityBytes: 1, CompressionThreshold: -1})
	buf := make([]byte, 128<<10)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	v := sampleInteraction()
	v.Summary = hex.EncodeToString(buf)
	cnt := &counter{value: v}
	c := newTestCache(t, cfg)
	for i := 0; i < 2; i++ {
		got, err := Fetch(ctx, c, interactionCodec, []string{"big"}, cnt.compute)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got != v {
			t.Fatal("fetch should return the computed value")
		}
	}
	if cnt.calls != 2 {
		t.Fatalf("a full store cannot cache, calls=%d", cnt.calls)
	}
}

func TestFetch_NilCacheComputes(t *testing.T) {
	cnt := &counter{value: sampleInteraction()}
	got, err := Fetch(context.Background(), nil, interactionCodec, []string{"a"}, cnt.compute)
	if err != nil || got != cnt.value || cnt.calls != 1 {
		t.Fatalf("got %+v err=%v calls=%d", got, err, cnt.calls)
	}
}

func TestFetchOnce_ClosesOnPanic(t *testing.T) {
	cfg := testConfig(t, Options{})
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		_, _ = FetchOnce(context.Background(), cfg, interactionCodec, []string{"a"}, func(context.Context) (interaction, error) {
			panic("boom")
		}, WithLogger(zerolog.Nop()))
	}()
	// The store was released, so a fresh open and write succeed.
	s, err := OpenStore(context.Background(), cfg.Path(), cfg.StoreOptions())
	if err != nil {
		t.Fatalf("reopen after panic: %v", err)
	}
	defer s.Close()
	if err := s.Put(context.Background(), Entry{Key: "k", Value: []byte("v")}); err != nil {
		t.Fatalf("put after panic: %v", err)
	}
}

// corruptRows applies set to every row of cfg's store.
func corruptRows(t *testing.T, cfg Config, set string) {
	t.Helper()
	ctx := context.Background()
	s, err := OpenStore(ctx, cfg.Path(), cfg.StoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Compressed != 1 {
		t.Fatalf("expected one compressed entry, stats %+v", st)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE entries SET "+set); err != nil {
		t.Fatalf("%s: %v", set, err)
	}
}

func TestFetch_CorruptCompressedEntryRecovers(t *testing.T) {
	cases := []struct {
		name string
		set  string
	}{
		{"negative size", "size = -1"},
		{"huge size", "size = 1099511627776"},
		{"size mismatch", "size = size + 1"},
		{"garbage value", "value = X'DEADBEEF'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, Options{})
			want := sampleInteraction()
			want.Summary = strings.Repeat("major bleeding risk; monitor INR. ", 30)
			cnt := &counter{value: want}
			components := []string{"Warfarin", "Aspirin"}

			if _, err := FetchOnce(ctx, cfg, interactionCodec, components, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
				t.Fatal(err)
			}
			corruptRows(t, cfg, tc.set)

			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			m, err := NewMetrics(mp.Meter("test"))
			if err != nil {
				t.Fatal(err)
			}
			got, err := FetchOnce(ctx, cfg, interactionCodec, components, cnt.compute, WithLogger(zerolog.Nop()), WithMetrics(m))
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if got != want || cnt.calls != 2 {
				t.Fatalf("corrupt entry should regenerate: calls=%d", cnt.calls)
			}

			var rm metricdata.ResourceMetrics
			if err := reader.Collect(ctx, &rm); err != nil {
				t.Fatal(err)
			}
			found := findMetric(rm, "medkit.cache.decode_failures")
			if found == nil {
				t.Fatal("decode failure not counted")
			}
			sum, ok := found.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
				t.Fatalf("decode_failures = %+v", found.Data)
			}

			if _, err := FetchOnce(ctx, cfg, interactionCodec, components, cnt.compute, WithLogger(zerolog.Nop())); err != nil {
				t.Fatal(err)
			}
			if cnt.calls != 2 {
				t.Fatalf("regenerated entry should be a hit, calls=%d", cnt.calls)
			}
		})
	}
}
