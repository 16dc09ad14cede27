package kvlookup

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hupe1980/kvlookup/blobstore"
	"github.com/hupe1980/kvlookup/internal/kvfile"
	"github.com/hupe1980/kvlookup/sqlstore"
)

// LoadingMode selects how a store file is accessed. Lookup results are
// identical in both modes.
type LoadingMode int

const (
	// MemoryMapped maps the file into the address space.
	MemoryMapped LoadingMode = iota
	// FileOnly issues a positional read per access.
	FileOnly
)

func (m LoadingMode) String() string {
	switch m {
	case MemoryMapped:
		return "MEMORY_MAPPED"
	case FileOnly:
		return "FILE_ONLY"
	default:
		return fmt.Sprintf("LoadingMode(%d)", int(m))
	}
}

// ParseLoadingMode accepts "MEMORY_MAPPED" and "FILE_ONLY" in any case,
// with '-' or '_' as separator. The empty string selects MemoryMapped.
func ParseLoadingMode(s string) (LoadingMode, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "", "MEMORY_MAPPED", "MMAP":
		return MemoryMapped, nil
	case "FILE_ONLY", "FILE":
		return FileOnly, nil
	default:
		return 0, fmt.Errorf("unknown loading mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m LoadingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LoadingMode) UnmarshalText(b []byte) error {
	v, err := ParseLoadingMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m LoadingMode) fileMode() kvfile.Mode {
	if m == FileOnly {
		return kvfile.ModeFileOnly
	}
	return kvfile.ModeMemoryMapped
}

// Config is the per-stage configuration. It is immutable for a run.
type Config struct {
	// InputAnnotationSet names the set to read; empty selects the default set.
	InputAnnotationSet string `json:"input_annotation_set,omitempty"`
	// InputAnnotationType is required.
	InputAnnotationType string `json:"input_annotation_type"`
	// ContainingAnnotationType restricts processing to annotations contained
	// in annotations of this type. Empty disables the restriction.
	ContainingAnnotationType string `json:"containing_annotation_type,omitempty"`
	// KeyFeature names the feature holding the key. Empty uses the covered text.
	KeyFeature string `json:"key_feature,omitempty"`
	// ValueFeature receives the looked-up value.
	ValueFeature string `json:"value_feature"`
	// StoreURL locates the store file: a local path, a file:// URL, or a
	// remote URL resolved through the registered blob stores.
	StoreURL    string      `json:"store_url,omitempty"`
	LoadingMode LoadingMode `json:"loading_mode"`
	MapName     string      `json:"map_name"`
	// SQL selects the SQL backend instead of a store file.
	SQL *sqlstore.Config `json:"sql,omitempty"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		InputAnnotationType: "Lookup",
		ValueFeature:        "value",
		LoadingMode:         MemoryMapped,
		MapName:             "map",
	}
}

// Validate reports the first invalid field as a *ConfigurationError.
func (c Config) Validate() error {
	if c.InputAnnotationType == "" {
		return &ConfigurationError{Field: "input_annotation_type", Message: "must not be empty"}
	}
	if c.ValueFeature == "" {
		return &ConfigurationError{Field: "value_feature", Message: "must not be empty"}
	}
	if c.LoadingMode != MemoryMapped && c.LoadingMode != FileOnly {
		return &ConfigurationError{Field: "loading_mode", Message: fmt.Sprintf("unsupported value %d", int(c.LoadingMode))}
	}
	if c.SQL != nil {
		if err := c.SQL.Validate(); err != nil {
			return &ConfigurationError{Field: "sql", Message: err.Error()}
		}
		return nil
	}
	if c.StoreURL == "" {
		return &ConfigurationError{Field: "store_url", Message: "must not be empty"}
	}
	if c.MapName == "" {
		return &ConfigurationError{Field: "map_name", Message: "must not be empty"}
	}
	return nil
}

// Backend names of a ResourceKey.
const (
	BackendFile = "kvfile"
	BackendSQL  = "sql"
)

// ResourceKey identifies one physical store. Stages whose configuration
// yields the same key share one handle.
type ResourceKey struct {
	Backend  string
	Location string
	Mode     LoadingMode
	MapName  string
}

func (k ResourceKey) String() string {
	return fmt.Sprintf("%s:%s#%s[%s]", k.Backend, k.Location, k.MapName, k.Mode)
}

// ResourceKey derives the registry key of the configured store.
func (c Config) ResourceKey() (ResourceKey, error) {
	if c.SQL != nil {
		url, err := c.SQL.ExpandURL()
		if err != nil {
			return ResourceKey{}, &ConfigurationError{Field: "sql.url", Message: err.Error()}
		}
		return ResourceKey{Backend: BackendSQL, Location: url, Mode: c.LoadingMode, MapName: c.SQL.Table}, nil
	}

	loc := c.StoreURL
	if !blobstore.IsRemote(loc) {
		loc = strings.TrimPrefix(loc, "file://")
		abs, err := filepath.Abs(loc)
		if err != nil {
			return ResourceKey{}, &ConfigurationError{Field: "store_url", Message: err.Error()}
		}
		loc = abs
	}
	return ResourceKey{Backend: BackendFile, Location: loc, Mode: c.LoadingMode, MapName: c.MapName}, nil
}
