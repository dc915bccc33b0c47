package models_test

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rowflow/rowflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lazy(name string, typ models.ValueType) *models.ValueMeta {
	return models.NewValueMeta(name, typ).WithStorage(models.StorageBinaryString)
}

func TestValueMeta_Normalize(t *testing.T) {
	date := time.Date(2021, 3, 4, 5, 6, 7, 8000000, time.UTC)
	testCases := []struct {
		meta *models.ValueMeta
		in   interface{}
		exp  interface{}
		err  bool
	}{
		{meta: models.NewValueMeta("s", models.TypeString), in: "abc", exp: "abc"},
		{meta: lazy("s", models.TypeString), in: []byte("abc"), exp: "abc"},
		{meta: lazy("s", models.TypeString), in: []byte(""), exp: ""},
		{meta: lazy("i", models.TypeInteger), in: []byte(" 42 "), exp: int64(42)},
		{meta: lazy("i", models.TypeInteger), in: []byte(""), exp: nil},
		{meta: lazy("i", models.TypeInteger), in: []byte("4x2"), err: true},
		{meta: lazy("n", models.TypeNumber), in: []byte("2.5"), exp: 2.5},
		{meta: lazy("b", models.TypeBoolean), in: []byte("Y"), exp: true},
		{meta: lazy("b", models.TypeBoolean), in: []byte("false"), exp: false},
		{meta: lazy("b", models.TypeBoolean), in: []byte("maybe"), err: true},
		{meta: lazy("d", models.TypeDate), in: []byte("2021/03/04 05:06:07.008"), exp: date},
		{meta: lazy("x", models.TypeString), in: "not bytes", err: true},
		{meta: lazy("x", models.TypeString), in: nil, exp: nil},
	}
	for i, tc := range testCases {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			got, err := tc.meta.Normalize(tc.in)
			if tc.err {
				require.Error(t, err)
				assert.True(t, models.IsConversionError(err), "expected a conversion error, got %v", err)
				return
			}
			require.NoError(t, err)
			if !cmp.Equal(tc.exp, got) {
				t.Errorf("unexpected value -want/+got:\n%s", cmp.Diff(tc.exp, got))
			}
		})
	}
}

func TestValueMeta_DateMask(t *testing.T) {
	m := lazy("d", models.TypeDate)
	m.StorageMeta.Mask = "2006-01-02"
	got, err := m.Normalize([]byte("2020-12-31"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), got)

	enc, err := m.ConvertToStorage(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("2020-12-31"), enc)
}

func TestValueMeta_ConvertToStorage(t *testing.T) {
	m := lazy("i", models.TypeInteger)
	enc, err := m.ConvertToStorage(int64(-17))
	require.NoError(t, err)
	assert.Equal(t, []byte("-17"), enc)

	dec, err := m.Normalize(enc)
	require.NoError(t, err)
	assert.Equal(t, int64(-17), dec)

	normal := models.NewValueMeta("i", models.TypeInteger)
	v, err := normal.ConvertToStorage(int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestConvertData(t *testing.T) {
	str := models.NewValueMeta("s", models.TypeString)
	integer := models.NewValueMeta("i", models.TypeInteger)
	number := models.NewValueMeta("n", models.TypeNumber)
	boolean := models.NewValueMeta("b", models.TypeBoolean)
	none := models.NewValueMeta("x", models.TypeNone)

	testCases := []struct {
		src, dst *models.ValueMeta
		in, exp  interface{}
		err      bool
	}{
		{src: str, dst: integer, in: "12", exp: int64(12)},
		{src: str, dst: integer, in: "twelve", err: true},
		{src: str, dst: number, in: "1.5", exp: 1.5},
		{src: str, dst: boolean, in: "YES", exp: true},
		{src: number, dst: integer, in: 3.0, exp: int64(3)},
		{src: number, dst: integer, in: 3.5, err: true},
		{src: integer, dst: str, in: int64(7), exp: "7"},
		{src: integer, dst: number, in: int64(7), exp: 7.0},
		{src: str, dst: none, in: "keep", exp: "keep"},
		{src: str, dst: integer, in: nil, exp: nil},
	}
	for i, tc := range testCases {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			got, err := models.ConvertData(tc.src, tc.dst, tc.in)
			if tc.err {
				require.Error(t, err)
				assert.True(t, models.IsConversionError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, got)
		})
	}
}

func TestValueMeta_Compare(t *testing.T) {
	m := models.NewValueMeta("v", models.TypeInteger)
	assert.Equal(t, 0, m.Compare(nil, nil))
	assert.Equal(t, -1, m.Compare(nil, int64(1)))
	assert.Equal(t, 1, m.Compare(int64(1), nil))
	assert.Equal(t, -1, m.Compare(int64(1), int64(2)))
	assert.Equal(t, 0, m.Compare("a", "a"))
	assert.Equal(t, 1, m.Compare(true, false))
}

func TestValueMeta_CompareNaN(t *testing.T) {
	m := models.NewValueMeta("v", models.TypeNumber)
	nan := math.NaN()
	assert.Equal(t, 0, m.Compare(nan, nan))
	assert.Equal(t, 0, m.Compare(nan, math.Float64frombits(0x7ff8000000000001)))
	assert.Equal(t, 1, m.Compare(nan, 1.0))
	assert.Equal(t, -1, m.Compare(1.0, nan))
	assert.Equal(t, -1, m.Compare(math.Inf(1), nan))
	assert.Equal(t, -1, m.Compare(nil, nan))
}

func TestEqualRows_StorageIsTransparent(t *testing.T) {
	normal := models.NewRowSchema(
		models.NewValueMeta("Name", models.TypeString),
		models.NewValueMeta("Id", models.TypeInteger),
	)
	binary := models.NewRowSchema(
		lazy("Name", models.TypeString),
		lazy("Id", models.TypeInteger),
	)
	eq, err := models.EqualRows(normal, models.Row{"Name1", int64(1)}, binary, models.Row{[]byte("Name1"), []byte("1")})
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = models.EqualRows(normal, models.Row{"Name1", int64(1)}, binary, models.Row{[]byte("Name1"), []byte("2")})
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestRowSchema(t *testing.T) {
	s := models.NewRowSchema(
		models.NewValueMeta("a", models.TypeString),
		models.NewValueMeta("b", models.TypeInteger),
	)
	assert.Equal(t, 1, s.IndexOf("b"))
	assert.Equal(t, -1, s.IndexOf("c"))
	assert.Error(t, s.Clone().Add(models.NewValueMeta("a", models.TypeNumber)))

	c := s.Clone()
	require.NoError(t, c.Add(models.NewValueMeta("c", models.TypeNumber)))
	assert.Equal(t, 2, s.Len(), "clone must not change the original")
	assert.Equal(t, []string{"a", "b", "c"}, c.Names())

	other := models.NewRowSchema(
		lazy("a", models.TypeString),
		models.NewValueMeta("b", models.TypeInteger),
	)
	assert.NoError(t, s.Compatible(other))
	assert.Error(t, s.Compatible(c))
}

func TestRow_DeepCopy(t *testing.T) {
	buf := []byte("Value1")
	r := models.Row{buf, "s", int64(1), nil, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := r.DeepCopy()
	require.NoError(t, err)
	if !cmp.Equal(r, c) {
		t.Fatalf("copy differs -want/+got:\n%s", cmp.Diff(r, c))
	}
	// The producer reuses its buffer.
	copy(buf, "XXXXXX")
	assert.Equal(t, []byte("Value1"), c[0])
}

func TestAppendKey(t *testing.T) {
	key := func(vs ...interface{}) string {
		var b []byte
		for _, v := range vs {
			var err error
			b, err = models.AppendKey(b, v)
			require.NoError(t, err)
		}
		return string(b)
	}
	assert.Equal(t, key("a", int64(1)), key("a", int64(1)))
	assert.NotEqual(t, key("ab", "c"), key("a", "bc"))
	assert.NotEqual(t, key(nil), key(""))
	assert.NotEqual(t, key(int64(1)), key(1.0))
	assert.Equal(t, key(0.0), key(math.Copysign(0, -1)))
	assert.Equal(t, key(math.NaN()), key(math.Float64frombits(0x7ff8000000000001)))
	assert.NotEqual(t, key(math.NaN()), key(math.Inf(1)))

	_, err := models.AppendKey(nil, struct{}{})
	assert.Error(t, err)
}
