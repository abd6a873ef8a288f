package bridge

import (
	"reflect"
	"testing"

	"go.starlark.net/starlark"
)

// TestRoundTripPreservesSupportedJSONValues exercises the bridge's
// marshalling invariant: for every JSON value shape the bridge claims to
// support, ToJSON(FromJSON(v)) reproduces v exactly.
func TestRoundTripPreservesSupportedJSONValues(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		"hello",
		"",
		int64(0),
		int64(42),
		int64(-7),
		3.5,
		-2.25,
		[]any{},
		[]any{int64(1), "two", 3.5, true, nil},
		map[string]any{},
		map[string]any{"a": int64(1), "b": []any{int64(2), int64(3)}},
		map[string]any{
			"nested": map[string]any{
				"deep": []any{"x", "y", map[string]any{"z": true}},
			},
		},
	}

	for _, want := range cases {
		got, err := ToJSON(FromJSON(want))
		if err != nil {
			t.Fatalf("ToJSON(FromJSON(%#v)) returned error: %v", want, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch: got %#v, want %#v", got, want)
		}
	}
}

func TestFromJSONIntegerVsFloatSplit(t *testing.T) {
	// A whole-numbered float64 (as produced by encoding/json for any bare
	// number) becomes a script int; anything with a fractional part stays
	// a float.
	whole := FromJSON(float64(10))
	got, err := ToJSON(whole)
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if _, ok := got.(int64); !ok {
		t.Errorf("got %T, want int64 for a whole-numbered JSON float", got)
	}

	fractional := FromJSON(float64(10.5))
	got, err = ToJSON(fractional)
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if f, ok := got.(float64); !ok || f != 10.5 {
		t.Errorf("got %#v, want float64(10.5)", got)
	}
}

func TestToJSONRejectsNonStringDictKeys(t *testing.T) {
	dict := FromJSON(map[string]any{"a": int64(1)})
	// Sanity: the happy path dict still converts cleanly.
	if _, err := ToJSON(dict); err != nil {
		t.Fatalf("unexpected error converting a valid dict: %v", err)
	}

	bad := starlark.NewDict(1)
	if err := bad.SetKey(starlark.MakeInt(1), starlark.String("x")); err != nil {
		t.Fatalf("building int-keyed dict: %v", err)
	}
	if _, err := ToJSON(bad); err == nil {
		t.Error("expected ToJSON to reject a dict with a non-string key")
	}
}

// TestFromJSONBytesPreservesObjectKeyOrder is the regression this exists
// for: FromJSON(decoded-into-any) loses the source's real key order to
// Go's randomized map iteration, but FromJSONBytes walks the raw bytes
// itself and must reproduce the exact order they appeared in.
func TestFromJSONBytesPreservesObjectKeyOrder(t *testing.T) {
	raw := []byte(`{"zebra": 1, "apple": 2, "mango": 3, "banana": {"b2": 1, "b1": 2}}`)
	v, err := FromJSONBytes(raw)
	if err != nil {
		t.Fatalf("FromJSONBytes failed: %v", err)
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		t.Fatalf("got %T, want *starlark.Dict", v)
	}

	var gotKeys []string
	for _, item := range dict.Items() {
		gotKeys = append(gotKeys, string(item[0].(starlark.String)))
	}
	wantKeys := []string{"zebra", "apple", "mango", "banana"}
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("got keys %v, want %v", gotKeys, wantKeys)
	}
	for i := range wantKeys {
		if gotKeys[i] != wantKeys[i] {
			t.Errorf("key order mismatch at %d: got %v, want %v", i, gotKeys, wantKeys)
		}
	}

	nestedVal, _, _ := dict.Get(starlark.String("banana"))
	nested, ok := nestedVal.(*starlark.Dict)
	if !ok {
		t.Fatalf("got %T, want nested *starlark.Dict", nestedVal)
	}
	nestedKeys := nested.Keys()
	if len(nestedKeys) != 2 || string(nestedKeys[0].(starlark.String)) != "b2" {
		t.Errorf("nested key order not preserved: %v", nestedKeys)
	}
}

func TestFromJSONBytesPreservesArrayOrderAndTypes(t *testing.T) {
	v, err := FromJSONBytes([]byte(`[3, "two", true, null, 1.5, {"k": "v"}]`))
	if err != nil {
		t.Fatalf("FromJSONBytes failed: %v", err)
	}
	list, ok := v.(*starlark.List)
	if !ok {
		t.Fatalf("got %T, want *starlark.List", v)
	}
	if list.Len() != 6 {
		t.Fatalf("got %d elements, want 6", list.Len())
	}
	if i, ok := list.Index(0).(starlark.Int); !ok || i.String() != "3" {
		t.Errorf("index 0: got %v, want int 3", list.Index(0))
	}
	if list.Index(3) != starlark.None {
		t.Errorf("index 3: got %v, want None", list.Index(3))
	}
}
