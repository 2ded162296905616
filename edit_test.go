package ringdb

import (
	"errors"
	"reflect"
	"testing"
)

func TestMergePatch(t *testing.T) {
	tests := []struct {
		data     map[string]any
		patch    map[string]any
		expected map[string]any
	}{
		{nil, map[string]any{"a": 1}, map[string]any{"a": 1}},
		{map[string]any{"a": 1}, map[string]any{"b": 2}, map[string]any{"a": 1, "b": 2}},
		{map[string]any{"a": 1}, map[string]any{"a": 2}, map[string]any{"a": 2}},
		{map[string]any{"a": 1, "b": 2}, map[string]any{"a": nil}, map[string]any{"b": 2}},
	}
	for _, tt := range tests {
		got := must(MergePatch(tt.patch)(tt.data))
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("** MergePatch(%v)(%v) = %v, wanted %v", tt.patch, tt.data, got, tt.expected)
		}
	}
}

func TestMergePatchDoesNotMutateInput(t *testing.T) {
	data := map[string]any{"a": 1}
	must(MergePatch(map[string]any{"a": 2})(data))
	if data["a"] != 1 {
		t.Errorf("** input mutated: %v", data)
	}
}

func TestApplyEditsSequential(t *testing.T) {
	got := must(applyEdits(map[string]any{"n": 0},
		[]Edit{
			MergePatch(map[string]any{"n": 1}),
			MergePatch(map[string]any{"m": 2}),
			Replace(map[string]any{"only": true}),
		}))
	if !reflect.DeepEqual(got, map[string]any{"only": true}) {
		t.Errorf("** applyEdits = %v", got)
	}
}

func TestApplyEditsError(t *testing.T) {
	fail := errors.New("boom")
	_, err := applyEdits(nil, []Edit{
		func(map[string]any) (map[string]any, error) { return nil, fail },
	})
	if !errors.Is(err, fail) {
		t.Errorf("** applyEdits error = %v, wanted boom", err)
	}
}
