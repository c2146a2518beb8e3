package robinhash_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineCode/robinhash"
	"github.com/lineCode/robinhash/arena"
	"github.com/lineCode/robinhash/hashers"
)

func newTestTable(t *testing.T, valSize int, opts ...robinhash.Option) *robinhash.Table {
	t.Helper()
	tbl, err := robinhash.New(arena.New(), 16, 0.7, valSize, opts...)
	require.NoError(t, err)
	return tbl
}

func val(n int) []byte {
	return []byte(fmt.Sprintf("%08d", n))
}

func TestInsertAndGet(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	require.NoError(t, tbl.Insert(hasher, []byte("alpha"), val(1)))
	require.NoError(t, tbl.Insert(hasher, []byte("beta"), val(2)))

	v, ok := tbl.Get(hasher, []byte("alpha"))
	require.True(t, ok)
	assert.Equal(t, val(1), v)

	v, ok = tbl.Get(hasher, []byte("beta"))
	require.True(t, ok)
	assert.Equal(t, val(2), v)

	_, ok = tbl.Get(hasher, []byte("gamma"))
	assert.False(t, ok)
}

func TestInsertDuplicateOverwrites(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	require.NoError(t, tbl.Insert(hasher, []byte("key"), val(1)))
	require.NoError(t, tbl.Insert(hasher, []byte("key"), val(2)))
	assert.Equal(t, 1, tbl.Len())

	v, ok := tbl.Get(hasher, []byte("key"))
	require.True(t, ok)
	assert.Equal(t, val(2), v)
}

func TestInsertRejectsWrongValueSize(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()
	err := tbl.Insert(hasher, []byte("key"), []byte("short"))
	assert.ErrorIs(t, err, robinhash.ErrInvariantViolation)
}

func TestNewRejectsLoadOutOfRange(t *testing.T) {
	_, err := robinhash.New(arena.New(), 16, 0, 8)
	assert.ErrorIs(t, err, robinhash.ErrLoadOutOfRange)

	_, err = robinhash.New(arena.New(), 16, 1, 8)
	assert.ErrorIs(t, err, robinhash.ErrLoadOutOfRange)
}

func TestUpsertAllocatesThenReturnsExistingSlot(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	v, isDup, err := tbl.Upsert(hasher, []byte("key"))
	require.NoError(t, err)
	assert.False(t, isDup)
	copy(v, val(1))

	v2, isDup, err := tbl.Upsert(hasher, []byte("key"))
	require.NoError(t, err)
	assert.True(t, isDup)
	assert.Equal(t, val(1), v2)
}

func TestDeleteRemovesKeyAndReportsMiss(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	require.NoError(t, tbl.Insert(hasher, []byte("key"), val(7)))

	v, ok := tbl.Delete(hasher, []byte("key"))
	require.True(t, ok)
	assert.Equal(t, val(7), v)

	_, ok = tbl.Get(hasher, []byte("key"))
	assert.False(t, ok)

	_, ok = tbl.Delete(hasher, []byte("key"))
	assert.False(t, ok)
}

func TestDeleteThenReinsertSucceeds(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	require.NoError(t, tbl.Insert(hasher, []byte("key"), val(1)))
	_, ok := tbl.Delete(hasher, []byte("key"))
	require.True(t, ok)

	require.NoError(t, tbl.Insert(hasher, []byte("key"), val(2)))
	v, ok := tbl.Get(hasher, []byte("key"))
	require.True(t, ok)
	assert.Equal(t, val(2), v)
}

func TestIterateVisitsEveryLiveRecord(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	want := map[string][]byte{}
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		want[string(key)] = val(i)
		require.NoError(t, tbl.Insert(hasher, key, val(i)))
	}

	got := map[string][]byte{}
	tbl.Iterate(func(key, value []byte) bool {
		got[string(key)] = append([]byte(nil), value...)
		return true
	})
	assert.Equal(t, want, got)
}

func TestIterateStopsEarly(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()
	for i := 0; i < 20; i++ {
		require.NoError(t, tbl.Insert(hasher, []byte(fmt.Sprintf("key-%d", i)), val(i)))
	}

	visited := 0
	tbl.Iterate(func(key, value []byte) bool {
		visited++
		return visited < 5
	})
	assert.Equal(t, 5, visited)
}

func TestGrowsPastInitialCapacityAndKeepsAllRecords(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	const n = 5000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		require.NoError(t, tbl.Insert(hasher, key, val(i)))
	}
	assert.Equal(t, n, tbl.Len())
	assert.Greater(t, tbl.Capacity(), uint64(16))

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		v, ok := tbl.Get(hasher, key)
		require.True(t, ok, "missing key %s after growth", key)
		assert.Equal(t, val(i), v)
	}
}

func TestShrinksAfterBulkDelete(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()

	const n = 2000
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		require.NoError(t, tbl.Insert(hasher, keys[i], val(i)))
	}
	grownCap := tbl.Capacity()

	for i := 0; i < n-20; i++ {
		_, ok := tbl.Delete(hasher, keys[i])
		require.True(t, ok)
	}

	assert.Less(t, tbl.Capacity(), grownCap)
	for i := n - 20; i < n; i++ {
		v, ok := tbl.Get(hasher, keys[i])
		require.True(t, ok)
		assert.Equal(t, val(i), v)
	}
}

// TestCrossCheckAgainstBuiltinMap drives a table and a builtin map through
// the same randomized sequence of inserts, deletes and lookups, requires
// every delete and lookup result to agree, and compares their full contents
// at the end - the same
// property-testing shape the teacher's generic maps use against Go's
// builtin map, adapted to this table's byte-string/comma-ok surface.
func TestCrossCheckAgainstBuiltinMap(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.FNV1a()
	reference := map[string][]byte{}

	rng := rand.New(rand.NewSource(42))
	const universe = 300

	for i := 0; i < 20000; i++ {
		n := rng.Intn(universe)
		key := []byte(fmt.Sprintf("k%03d", n))

		switch rng.Intn(3) {
		case 0:
			v := val(n)
			require.NoError(t, tbl.Insert(hasher, key, v))
			reference[string(key)] = v
		case 1:
			_, wantOK := reference[string(key)]
			_, gotOK := tbl.Delete(hasher, key)
			require.Equal(t, wantOK, gotOK, "key %q", key)
			delete(reference, string(key))
		case 2:
			wantV, wantOK := reference[string(key)]
			gotV, gotOK := tbl.Get(hasher, key)
			require.Equal(t, wantOK, gotOK, "key %q", key)
			if wantOK {
				assert.Equal(t, wantV, gotV, "key %q", key)
			}
		}
	}

	assert.Equal(t, len(reference), tbl.Len())
	for k, wantV := range reference {
		gotV, ok := tbl.Get(hasher, []byte(k))
		require.True(t, ok, "key %q missing at final check", k)
		assert.Equal(t, wantV, gotV)
	}
}

func TestWriteStatsWritesOnlyOccupiedDepths(t *testing.T) {
	tbl := newTestTable(t, 8)
	hasher := hashers.XXHash()
	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.Insert(hasher, []byte(fmt.Sprintf("key-%d", i)), val(i)))
	}

	var buf fmtStringerBuf
	require.NoError(t, tbl.WriteStats(&buf))
	assert.NotEmpty(t, buf.String())
	assert.NotContains(t, buf.String(), ": 0\n")
}

type fmtStringerBuf struct {
	data []byte
}

func (b *fmtStringerBuf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *fmtStringerBuf) String() string { return string(b.data) }

func ExampleTable() {
	tbl, err := robinhash.New(arena.New(), 4, 0.7, 4)
	if err != nil {
		panic(err)
	}
	hasher := hashers.XXHash()

	_ = tbl.Insert(hasher, []byte("go"), []byte("lang"))
	v, ok := tbl.Get(hasher, []byte("go"))
	fmt.Println(string(v), ok)
	// Output: lang true
}
