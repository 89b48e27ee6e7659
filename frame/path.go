package frame

// GetIn walks path through nested maps and returns the value found, or nil
// when any segment is missing or a non-map value is reached early.
// An empty path returns db itself.
func GetIn(db DB, path Path) any {
	var current any = db
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}

// AssocIn returns a copy of db with value written at path. Maps along the
// path are shallow-copied so db itself is left untouched; missing maps are
// created and non-map intermediates are replaced by new maps. An empty path
// replaces the whole db when value is a map and returns db unchanged otherwise.
func AssocIn(db DB, path Path, value any) DB {
	if len(path) == 0 {
		if m, ok := value.(map[string]any); ok {
			return m
		}
		return db
	}
	return assoc(db, path, value)
}

func assoc(m map[string]any, path Path, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	key := path[0]
	if len(path) == 1 {
		out[key] = value
		return out
	}
	child, _ := out[key].(map[string]any)
	out[key] = assoc(child, path[1:], value)
	return out
}
