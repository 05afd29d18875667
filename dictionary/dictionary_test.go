package dictionary

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/fuzzrig/evmfuzz/evmtypes"
	"github.com/fuzzrig/evmfuzz/statediff"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{MaxValuesPerCategory: 16, DictionaryWeight: 40}, false},
		{"zero max", Config{MaxValuesPerCategory: 0, DictionaryWeight: 40}, true},
		{"negative weight", Config{MaxValuesPerCategory: 16, DictionaryWeight: -1}, true},
		{"weight over 100", Config{MaxValuesPerCategory: 16, DictionaryWeight: 101}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	if _, err := NewConfig(0, true, true, 50); err == nil {
		t.Error("expected error for zero max values per category")
	}
	cfg, err := NewConfig(16, true, true, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxValuesPerCategory != 16 || cfg.DictionaryWeight != 50 {
		t.Errorf("config not populated as expected: %+v", cfg)
	}
}

func TestDictionarySampleEmpty(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 4, DictionaryWeight: 40})
	rnd := rand.New(rand.NewSource(1))
	if _, ok := d.Sample(CategoryAddress, rnd); ok {
		t.Error("expected sample from empty dictionary to fail")
	}
}

func TestDictionaryAbsorbAddress(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 4, DictionaryWeight: 40, IncludeStorage: true})
	addr := evmtypes.BytesToAddress([]byte{0x42})

	b := statediff.NewStateDiffBuilder(1, evmtypes.Hash{})
	b.RecordBalanceChange(addr, big.NewInt(0), big.NewInt(500))
	d.Absorb(b.Build(), nil)

	if d.Len(CategoryAddress) != 1 {
		t.Fatalf("expected 1 absorbed address, got %d", d.Len(CategoryAddress))
	}
	rnd := rand.New(rand.NewSource(1))
	v, ok := d.Sample(CategoryAddress, rnd)
	if !ok || v.Addr != addr {
		t.Errorf("expected sampled address %s, got %s (ok=%v)", addr.Hex(), v.Addr.Hex(), ok)
	}

	if d.Len(CategoryUint256) != 1 {
		t.Errorf("expected the balance to be absorbed as a uint256 candidate, got %d", d.Len(CategoryUint256))
	}
}

func TestDictionaryAbsorbStorage(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 4, DictionaryWeight: 40, IncludeStorage: true})
	addr := evmtypes.BytesToAddress([]byte{0x01})
	key := evmtypes.BytesToHash([]byte{0x10})
	val := evmtypes.BytesToHash([]byte{0x20})

	b := statediff.NewStateDiffBuilder(1, evmtypes.Hash{})
	b.RecordStorageChange(addr, key, evmtypes.Hash{}, val)
	d.Absorb(b.Build(), nil)

	if d.Len(CategoryFixedBytes) == 0 {
		t.Error("expected storage key/values to be absorbed as fixed-bytes candidates")
	}
	if d.Len(CategoryUint256) == 0 {
		t.Error("expected storage key/values to be absorbed as uint256 candidates")
	}
}

func TestDictionaryAbsorbIgnoresStorageWhenDisabled(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 4, DictionaryWeight: 40, IncludeStorage: false})
	addr := evmtypes.BytesToAddress([]byte{0x01})
	key := evmtypes.BytesToHash([]byte{0x10})
	val := evmtypes.BytesToHash([]byte{0x20})

	b := statediff.NewStateDiffBuilder(1, evmtypes.Hash{})
	b.RecordStorageChange(addr, key, evmtypes.Hash{}, val)
	d.Absorb(b.Build(), nil)

	if d.Len(CategoryFixedBytes) != 0 {
		t.Error("storage absorption should be disabled")
	}
}

func TestRingBufferFIFOEviction(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 2, DictionaryWeight: 0})
	addrs := []evmtypes.Address{
		evmtypes.BytesToAddress([]byte{0x01}),
		evmtypes.BytesToAddress([]byte{0x02}),
		evmtypes.BytesToAddress([]byte{0x03}),
	}
	for _, a := range addrs {
		d.insertAddress(a)
	}
	if d.Len(CategoryAddress) != 2 {
		t.Fatalf("expected ring buffer capped at 2, got %d", d.Len(CategoryAddress))
	}

	found := make(map[evmtypes.Address]bool)
	for _, v := range d.buckets[CategoryAddress].values {
		found[v.Addr] = true
	}
	if found[addrs[0]] {
		t.Error("oldest address should have been evicted (FIFO)")
	}
	if !found[addrs[1]] || !found[addrs[2]] {
		t.Error("two most recent addresses should remain")
	}
}

func TestDictionaryAbsorbLogsWhenEnabled(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 4, DictionaryWeight: 40, IncludePushBytes: true})
	logs := []evmtypes.Log{
		{
			Topics: []evmtypes.Hash{evmtypes.BytesToHash([]byte{0x01})},
			Data:   []byte{0xde, 0xad, 0xbe, 0xef},
		},
	}
	d.Absorb(nil, logs)

	if d.Len(CategoryBytes) != 1 {
		t.Errorf("expected log data absorbed as bytes candidate, got %d", d.Len(CategoryBytes))
	}
	if d.Len(CategoryUint256) == 0 {
		t.Error("expected log topic absorbed as uint256 candidate")
	}
}

func TestSeedFromBackend(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 8, DictionaryWeight: 40, IncludeStorage: true})
	d.SeedFromBackend(&fakeBackend{
		addrs: []evmtypes.Address{evmtypes.BytesToAddress([]byte{0x07})},
		storage: map[evmtypes.Address]map[evmtypes.Hash]evmtypes.Hash{
			evmtypes.BytesToAddress([]byte{0x07}): {
				evmtypes.BytesToHash([]byte{0x01}): evmtypes.BytesToHash([]byte{0x02}),
			},
		},
	})

	if d.Len(CategoryAddress) != 1 {
		t.Errorf("expected 1 seeded address, got %d", d.Len(CategoryAddress))
	}
	if d.Len(CategoryUint256) == 0 {
		t.Error("expected storage words seeded as uint256 candidates")
	}
}

func TestSeedFromBackendNil(t *testing.T) {
	d := New(Config{MaxValuesPerCategory: 4, DictionaryWeight: 40})
	d.SeedFromBackend(nil) // must not panic
	if d.Len(CategoryAddress) != 0 {
		t.Error("nil backend should not seed anything")
	}
}

type fakeBackend struct {
	addrs   []evmtypes.Address
	storage map[evmtypes.Address]map[evmtypes.Hash]evmtypes.Hash
}

func (f *fakeBackend) Addresses() []evmtypes.Address { return f.addrs }
func (f *fakeBackend) StorageAt(addr evmtypes.Address) map[evmtypes.Hash]evmtypes.Hash {
	return f.storage[addr]
}
func (f *fakeBackend) BalanceOf(addr evmtypes.Address) *big.Int { return big.NewInt(0) }
