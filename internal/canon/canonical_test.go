package canon

import (
	"math"
	"strings"
	"testing"
)

func TestMarshal_SortedKeys(t *testing.T) {
	got, err := Marshal(map[string]any{
		"zeta":  "z",
		"alpha": "a",
		"mid":   "m",
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"alpha":"a","mid":"m","zeta":"z"}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_NestedObjects(t *testing.T) {
	got, err := Marshal(map[string]any{
		"outer": map[string]any{
			"b": int64(2),
			"a": int64(1),
		},
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"outer":{"a":1,"b":2}}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := Marshal(map[string]any{"k": "<a>&</a>"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if strings.Contains(string(got), `\u003c`) {
		t.Errorf("HTML characters were escaped: %s", got)
	}
	want := `{"k":"<a>&</a>"}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_IntegralFloatsRenderAsIntegers(t *testing.T) {
	// json.Unmarshal produces float64 for every number; 5 and 5.0 must
	// hash identically.
	got, err := Marshal(map[string]any{"n": float64(5)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"n":5}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_NullAndBool(t *testing.T) {
	got, err := Marshal(map[string]any{"a": nil, "b": true})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"a":null,"b":true}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_ArrayOrderPreserved(t *testing.T) {
	got, err := Marshal([]any{"c", "a", "b"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `["c","a","b"]`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshal_NonFiniteNumberRejected(t *testing.T) {
	_, err := Marshal(map[string]any{"n": math.NaN()})
	if err == nil {
		t.Error("expected error for NaN, got nil")
	}
}

func TestMarshal_UnsupportedType(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Error("expected error for unsupported type, got nil")
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	obj := map[string]any{
		"site":  "example.com",
		"rules": []any{map[string]any{"id": "r1", "effect": "deny"}},
		"seq":   int64(42),
	}

	first, err := Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(obj)
		if err != nil {
			t.Fatalf("Marshal iteration %d failed: %v", i, err)
		}
		if string(again) != string(first) {
			t.Fatalf("Marshal not deterministic: %s vs %s", again, first)
		}
	}
}
