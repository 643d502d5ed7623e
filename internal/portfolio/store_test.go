package portfolio

import (
	"errors"
	"math"
	"sync"
	"testing"
)

const eps = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

// newTestStore создаёт маленькую вселенную (50 активов на сектор):
// Financials BBID1..50, Energy BBID51..100, Banking BBID101..150,
// Industrials BBID151..200, Textiles BBID201..250.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Config{Seed: 42, AssetsPerSector: 50, PortfolioSize: 20})
}

// createP1 создаёт портфель: Financials 0.4, Energy 0.2, Banking 0.2,
// Industrials 0.2, Textiles 0 (один актив с нулевым весом).
func createP1(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.Create("P1", []Allocation{
		{AssetID: "BBID1", Weight: 0.25},
		{AssetID: "BBID2", Weight: 0.15},
		{AssetID: "BBID51", Weight: 0.1},
		{AssetID: "BBID52", Weight: 0.1},
		{AssetID: "BBID101", Weight: 0.2},
		{AssetID: "BBID151", Weight: 0.2},
		{AssetID: "BBID201", Weight: 0},
	})
	if err != nil {
		t.Fatalf("create P1: %v", err)
	}
}

func sectorWeight(t *testing.T, s *Store, id, sector string) float64 {
	t.Helper()
	weights, err := s.SectorWeights(id)
	if err != nil {
		t.Fatalf("sector weights: %v", err)
	}
	return weights[sector]
}

func totalWeight(t *testing.T, s *Store, id string) float64 {
	t.Helper()
	snap, err := s.Snapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var total float64
	for _, c := range snap {
		total += c.Weight
	}
	return total
}

func TestUniverse_Layout(t *testing.T) {
	s := newTestStore(t)
	u := s.Universe()

	if u.Size() != 250 {
		t.Fatalf("expected 250 assets, got %d", u.Size())
	}

	cases := map[string]string{
		"BBID1":   "Financials",
		"BBID50":  "Financials",
		"BBID51":  "Energy",
		"BBID150": "Banking",
		"BBID250": "Textiles",
	}
	for id, want := range cases {
		got, ok := u.Sector(id)
		if !ok || got != want {
			t.Errorf("%s: expected %s, got %s (found=%v)", id, want, got, ok)
		}
	}

	if _, ok := u.Sector("BBID251"); ok {
		t.Error("BBID251 should not exist")
	}

	for i := 1; i <= 250; i++ {
		p, ok := u.Price(AssetID(i))
		if !ok {
			t.Fatalf("no price for %s", AssetID(i))
		}
		if p < 1 || p > 5 {
			t.Errorf("price of %s out of range: %v", AssetID(i), p)
		}
		if !approx(p*100, math.Round(p*100)) {
			t.Errorf("price of %s not rounded to cents: %v", AssetID(i), p)
		}
	}
}

func TestUniverse_SeedIsDeterministic(t *testing.T) {
	a := New(Config{Seed: 7, AssetsPerSector: 10})
	b := New(Config{Seed: 7, AssetsPerSector: 10})

	for i := 1; i <= 50; i++ {
		pa, _ := a.Universe().Price(AssetID(i))
		pb, _ := b.Universe().Price(AssetID(i))
		if pa != pb {
			t.Fatalf("price of %s differs: %v vs %v", AssetID(i), pa, pb)
		}
	}
}

func TestGenerate(t *testing.T) {
	s := newTestStore(t)

	cs, err := s.Generate("P7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cs) != 20 {
		t.Fatalf("expected 20 constituents, got %d", len(cs))
	}

	seen := make(map[string]bool)
	for _, c := range cs {
		if !approx(c.Weight, 0.05) {
			t.Errorf("%s: expected weight 0.05, got %v", c.AssetID, c.Weight)
		}
		if !IsSector(c.Sector) {
			t.Errorf("%s: unexpected sector %q", c.AssetID, c.Sector)
		}
		if seen[c.AssetID] {
			t.Errorf("duplicate asset %s", c.AssetID)
		}
		seen[c.AssetID] = true
	}

	if !approx(totalWeight(t, s, "P7"), 1) {
		t.Errorf("expected total weight 1")
	}
	if !s.Has("P7") {
		t.Error("P7 should exist")
	}
}

func TestGenerate_EmptyID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Generate(""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCreate_Errors(t *testing.T) {
	s := newTestStore(t)
	createP1(t, s)

	tests := []struct {
		name  string
		id    string
		alloc []Allocation
		want  error
	}{
		{"exists", "P1", []Allocation{{AssetID: "BBID1", Weight: 1}}, ErrPortfolioExists},
		{"empty", "P2", nil, ErrInvalidArgument},
		{"unknown asset", "P2", []Allocation{{AssetID: "XYZ", Weight: 1}}, ErrUnknownAsset},
		{"duplicate asset", "P2", []Allocation{{AssetID: "BBID1", Weight: 0.5}, {AssetID: "BBID1", Weight: 0.5}}, ErrInvalidArgument},
		{"negative weight", "P2", []Allocation{{AssetID: "BBID1", Weight: -0.1}}, ErrInvalidWeight},
		{"over 100%", "P2", []Allocation{{AssetID: "BBID1", Weight: 0.7}, {AssetID: "BBID2", Weight: 0.7}}, ErrInvalidWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(tt.id, tt.alloc)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReset_Idempotent(t *testing.T) {
	s := newTestStore(t)
	createP1(t, s)

	before, _ := s.Snapshot("P1")

	set := 0.15
	if _, err := s.AdjustSector("P1", "Energy", Adjustment{SetWeight: &set}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	for i := 0; i < 2; i++ {
		res, err := s.Reset("P1")
		if err != nil {
			t.Fatalf("reset #%d: %v", i+1, err)
		}
		if res.Message == "" {
			t.Error("expected reset message")
		}

		after, _ := s.Snapshot("P1")
		if len(after) != len(before) {
			t.Fatalf("reset #%d: expected %d constituents, got %d", i+1, len(before), len(after))
		}
		for j := range before {
			if before[j] != after[j] {
				t.Errorf("reset #%d: constituent %d differs: %+v vs %+v", i+1, j, before[j], after[j])
			}
		}
	}
}

func TestReset_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Reset("missing"); !errors.Is(err, ErrPortfolioNotFound) {
		t.Errorf("expected ErrPortfolioNotFound, got %v", err)
	}
}

func TestGenerate_ReplacesOriginal(t *testing.T) {
	s := newTestStore(t)
	createP1(t, s)

	generated, err := s.Generate("P1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := s.Reset("P1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	snap, _ := s.Snapshot("P1")
	if len(snap) != len(generated) {
		t.Errorf("expected reset to the generated portfolio (%d assets), got %d", len(generated), len(snap))
	}
}

func TestStore_ConcurrentWritesDoNotLoseUpdates(t *testing.T) {
	s := newTestStore(t)
	createP1(t, s)

	const writers = 40
	inc := 0.001

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustSector("P1", "Energy", Adjustment{IncreaseByWeight: &inc}); err != nil {
				t.Errorf("adjust: %v", err)
			}
		}()
	}
	wg.Wait()

	got := sectorWeight(t, s, "P1", "Energy")
	want := 0.2 + writers*inc
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected Energy weight %v, got %v", want, got)
	}
}

func TestIDs_Sorted(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"P3", "P1", "P2"} {
		if _, err := s.Generate(id); err != nil {
			t.Fatalf("generate %s: %v", id, err)
		}
	}

	ids := s.IDs()
	if len(ids) != 3 || ids[0] != "P1" || ids[1] != "P2" || ids[2] != "P3" {
		t.Errorf("unexpected ids: %v", ids)
	}
}
