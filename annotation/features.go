package annotation

import "iter"

// FeatureMap maps feature names to values. Keys are unique and keep the
// order of their first insertion.
type FeatureMap struct {
	keys []string
	vals map[string]Value
}

// NewFeatureMap creates an empty FeatureMap.
func NewFeatureMap() *FeatureMap {
	return &FeatureMap{vals: make(map[string]Value)}
}

// Get returns the value stored under name.
func (fm *FeatureMap) Get(name string) (Value, bool) {
	if fm == nil {
		return Value{}, false
	}
	v, ok := fm.vals[name]
	return v, ok
}

// Has reports whether name is set (a stored Null counts as set).
func (fm *FeatureMap) Has(name string) bool {
	_, ok := fm.Get(name)
	return ok
}

// Put stores v under name, overwriting any previous value in place.
func (fm *FeatureMap) Put(name string, v Value) {
	if fm.vals == nil {
		fm.vals = make(map[string]Value)
	}
	if _, ok := fm.vals[name]; !ok {
		fm.keys = append(fm.keys, name)
	}
	fm.vals[name] = v
}

// Delete removes name from the map.
func (fm *FeatureMap) Delete(name string) {
	if _, ok := fm.vals[name]; !ok {
		return
	}
	delete(fm.vals, name)
	for i, k := range fm.keys {
		if k == name {
			fm.keys = append(fm.keys[:i], fm.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of features.
func (fm *FeatureMap) Len() int {
	if fm == nil {
		return 0
	}
	return len(fm.keys)
}

// Keys returns the feature names in insertion order.
func (fm *FeatureMap) Keys() []string {
	if fm == nil {
		return nil
	}
	out := make([]string, len(fm.keys))
	copy(out, fm.keys)
	return out
}

// All iterates over the features in insertion order.
func (fm *FeatureMap) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if fm == nil {
			return
		}
		for _, k := range fm.keys {
			if !yield(k, fm.vals[k]) {
				return
			}
		}
	}
}
