package clone

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	Prop string `json:"prop"`
	Obj  *node  `json:"obj,omitempty"`
}

type listNode struct {
	Name string
	Next *listNode
}

type withTags struct {
	Visible string `json:"visible"`
	Hidden  string `json:"-"`
	Empty   string `json:"empty,omitempty"`
	Plain   int
	private int
}

type inner struct {
	A int `json:"a"`
}

type outer struct {
	inner
	B int `json:"b"`
}

type selfEmbed struct {
	*selfEmbed
	X int
}

type badMarshaler struct{}

func (badMarshaler) MarshalJSON() ([]byte, error) { return nil, errors.New("nope") }

func TestClone_Primitives(t *testing.T) {
	assert.Nil(t, Clone(nil))
	assert.Equal(t, true, Clone(true))
	assert.Equal(t, int64(42), Clone(42))
	assert.Equal(t, int64(-7), Clone(int8(-7)))
	assert.Equal(t, uint64(7), Clone(uint16(7)))
	assert.Equal(t, 1.5, Clone(1.5))
	assert.Equal(t, "hello", Clone("hello"))
}

func TestClone_NonFiniteBecomesNull(t *testing.T) {
	assert.Nil(t, Clone(math.NaN()))
	assert.Nil(t, Clone(math.Inf(1)))
	assert.Equal(t, []any{1.0, nil}, Clone([]float64{1, math.Inf(-1)}))
}

func TestClone_NestedContainers(t *testing.T) {
	in := map[string]any{
		"list": []any{1, "two", map[string]any{"three": 3.0}},
		"flag": false,
		"none": nil,
	}
	out := Clone(in)
	assert.Equal(t, map[string]any{
		"list": []any{int64(1), "two", map[string]any{"three": 3.0}},
		"flag": false,
		"none": nil,
	}, out)
}

func TestClone_CopyIsIndependent(t *testing.T) {
	src := map[string]any{"inner": []any{"a"}}
	out := Clone(src).(map[string]any)

	src["inner"].([]any)[0] = "mutated"
	src["added"] = 1

	assert.Equal(t, []any{"a"}, out["inner"])
	assert.NotContains(t, out, "added")
}

func TestClone_SelfReferentialMapDropsBackEdge(t *testing.T) {
	c := map[string]any{"prop": "value"}
	c["obj"] = c

	assert.Equal(t, map[string]any{"prop": "value"}, Clone(c))
}

func TestClone_SelfReferentialStruct(t *testing.T) {
	c := &node{Prop: "value"}
	c.Obj = c

	assert.Equal(t, map[string]any{"prop": "value"}, Clone(c))
}

func TestClone_LongerCycle(t *testing.T) {
	a := &listNode{Name: "a"}
	b := &listNode{Name: "b", Next: a}
	a.Next = b

	assert.Equal(t, map[string]any{
		"Name": "a",
		"Next": map[string]any{"Name": "b"},
	}, Clone(a))
}

func TestClone_ArrayBackEdgeBecomesNull(t *testing.T) {
	s := make([]any, 2)
	s[0] = "x"
	s[1] = s

	assert.Equal(t, []any{"x", nil}, Clone(s))
}

func TestClone_SharedButAcyclicIsCopiedTwice(t *testing.T) {
	shared := map[string]any{"k": "v"}
	in := map[string]any{"a": shared, "b": shared}

	assert.Equal(t, map[string]any{
		"a": map[string]any{"k": "v"},
		"b": map[string]any{"k": "v"},
	}, Clone(in))
}

func TestClone_OpaqueValuesBecomePlaceholders(t *testing.T) {
	in := map[string]any{
		"fn":      func() {},
		"ch":      make(chan int),
		"complex": complex(1, 2),
		"keep":    "yes",
	}
	assert.Equal(t, map[string]any{
		"fn":      map[string]any{},
		"ch":      map[string]any{},
		"complex": map[string]any{},
		"keep":    "yes",
	}, Clone(in))

	assert.Equal(t, map[string]any{}, Clone(func() {}))
}

func TestClone_StructTags(t *testing.T) {
	out := Clone(withTags{Visible: "v", Hidden: "h", Plain: 3, private: 9})
	assert.Equal(t, map[string]any{"visible": "v", "Plain": int64(3)}, out)
}

func TestClone_EmbeddedStructIsFlattened(t *testing.T) {
	out := Clone(outer{inner: inner{A: 1}, B: 2})
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2)}, out)
}

func TestClone_EmbeddedSelfPointer(t *testing.T) {
	n := &selfEmbed{X: 7}
	n.selfEmbed = n

	assert.Equal(t, map[string]any{"X": int64(7)}, Clone(n))
	assert.Equal(t, map[string]any{"X": int64(7)}, Clone(*n))
}

func TestClone_Marshalers(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05Z", Clone(ts))
	assert.Equal(t, map[string]any{}, Clone(badMarshaler{}))
}

func TestClone_Bytes(t *testing.T) {
	assert.Equal(t, []any{int64(1), int64(2), int64(255)}, Clone([]byte{1, 2, 255}))
}

func TestClone_IntKeyedMap(t *testing.T) {
	assert.Equal(t, map[string]any{"1": "a", "2": "b"}, Clone(map[int]string{2: "b", 1: "a"}))
}

func TestClone_UnsupportedKeyIsPlaceholder(t *testing.T) {
	assert.Equal(t, map[string]any{}, Clone(map[[2]int]string{{1, 2}: "x"}))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []any{
		"string",
		"",
		3.25,
		true,
		nil,
		[]any{1.0, "a", []any{}},
		map[string]any{"k": map[string]any{"deep": []any{true, nil}}},
	}
	for _, v := range values {
		s, err := Encode(v)
		require.NoError(t, err)
		got, err := Decode(s)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEncode_LongString(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}
	s, err := Encode(string(long))
	require.NoError(t, err)
	got, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, string(long), got)
}

func TestEncode_SortedKeys(t *testing.T) {
	s, err := Encode(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, s)
}

func TestEncode_Cycle(t *testing.T) {
	c := map[string]any{"prop": "value"}
	c["obj"] = c
	s, err := Encode(c)
	require.NoError(t, err)
	assert.Equal(t, `{"prop":"value"}`, s)
}

func TestDecode_Empty(t *testing.T) {
	v, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Decode("{not json")
	assert.Error(t, err)
}
