package ringdb

// Edit is a pure function from old payload to new payload. Edits are applied
// sequentially during update; they must not depend on where the prior value
// is physically stored, because when a read-only ring holds the record the
// already-computed result is forwarded upward instead of replaying the edits.
type Edit func(data map[string]any) (map[string]any, error)

// MergePatch returns an Edit with merge-patch semantics: fields present in
// patch overwrite the old value's fields, a nil patch field removes the
// field, everything else is carried over.
func MergePatch(patch map[string]any) Edit {
	return func(data map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(data)+len(patch))
		for k, v := range data {
			out[k] = v
		}
		for k, v := range patch {
			if v == nil {
				delete(out, k)
			} else {
				out[k] = v
			}
		}
		return out, nil
	}
}

// Replace returns an Edit that discards the old payload entirely.
func Replace(data map[string]any) Edit {
	return func(map[string]any) (map[string]any, error) {
		return data, nil
	}
}

func applyEdits(data map[string]any, edits []Edit) (map[string]any, error) {
	for _, edit := range edits {
		var err error
		data, err = edit(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}
