// Package phylumcfg loads the volume tunables and the open-file
// attribute configuration of spec.md §6, following the teacher's
// internal/config/config.go shape: unmarshal a JSON document into a
// struct with defaults applied afterward.
package phylumcfg

import (
	"encoding/binary"
	"encoding/json"

	"github.com/conservify/phylum/phylumerr"
)

// Config holds the volume-wide tunables spec.md §3/§4.2/§4.9 leave as
// deployment choices: sector size S, the WorkingBuffers pool capacity,
// the B+ tree order N, and the MAX_NAME bound.
type Config struct {
	SectorSize     int `json:"sector_size"`
	BufferCapacity int `json:"buffer_capacity"`
	TreeOrder      int `json:"tree_order"`
	MaxName        int `json:"max_name"`
}

// Default mirrors the teacher's pattern of a package-level zero-config
// baseline (internal/config/config.go's DefaultConfig) rather than
// requiring every caller to hand-fill every field.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load unmarshals a JSON document into a Config and applies defaults to
// any field left at its zero value.
func Load(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, phylumerr.New(phylumerr.LogicError, "Config.Load", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SectorSize == 0 {
		c.SectorSize = 256
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = 8
	}
	if c.TreeOrder == 0 {
		c.TreeOrder = 8
	}
	if c.MaxName == 0 {
		c.MaxName = 64
	}
}

// minHeaderOverhead is the smallest possible varint-prefixed record: a
// one-byte length prefix plus a one-byte tag, the floor every sector
// size must clear to hold even an empty chain header.
const minHeaderOverhead = 2

// Validate reports a LogicError for any combination that would make a
// sector unable to hold even a single zero-length record plus its own
// chain header, or a B+ tree order too small to ever split.
func (c *Config) Validate() error {
	if c.SectorSize < minHeaderOverhead*2 {
		return phylumerr.New(phylumerr.LogicError, "Config.Validate", nil)
	}
	if c.BufferCapacity < 1 {
		return phylumerr.New(phylumerr.LogicError, "Config.Validate", nil)
	}
	if c.TreeOrder < 2 {
		return phylumerr.New(phylumerr.LogicError, "Config.Validate", nil)
	}
	if c.MaxName < 1 || c.MaxName > c.SectorSize {
		return phylumerr.New(phylumerr.LogicError, "Config.Validate", nil)
	}
	return nil
}

// Flag is the open-file config's bitset (spec.md §6).
type Flag uint32

const (
	// Truncate is the one bit of spec.md §6's open_file_config.flags
	// bitset. No operation in this module reads Flags, so setting it
	// has no effect; existing payload is kept.
	Truncate Flag = 1 << iota
)

// Attribute is one slot of the open_file_config attribute array (spec.md
// §6): a type byte, its payload, and a dirty bit set whenever u32 changes
// it. Size is implicit in len(Payload) — the struct carries no separate
// size field because Go slices already know their length.
type Attribute struct {
	Type    byte
	Payload []byte
	Dirty   bool
}

// OpenFileConfig is the per-open-call attribute set spec.md §6 and §4.8
// describe: a fixed slot array addressed by attribute type, plus the
// Truncate flag.
type OpenFileConfig struct {
	Attributes []Attribute
	Flags      Flag
}

// NewOpenFileConfig builds a config with one zero-valued 4-byte slot per
// attribute type in types.
func NewOpenFileConfig(types ...byte) *OpenFileConfig {
	cfg := &OpenFileConfig{Attributes: make([]Attribute, len(types))}
	for i, t := range types {
		cfg.Attributes[i] = Attribute{Type: t, Payload: make([]byte, 4)}
	}
	return cfg
}

func (cfg *OpenFileConfig) slot(attrType byte) *Attribute {
	for i := range cfg.Attributes {
		if cfg.Attributes[i].Type == attrType {
			return &cfg.Attributes[i]
		}
	}
	return nil
}

// ApplyPayload copies a decoded FileAttribute record's payload into the
// matching slot, as DirectoryChain.find (spec.md §4.6) requires. A type
// with no matching slot is ignored — the caller didn't ask for it.
func (cfg *OpenFileConfig) ApplyPayload(attrType byte, payload []byte) {
	if s := cfg.slot(attrType); s != nil {
		n := copy(s.Payload, payload)
		for i := n; i < len(s.Payload); i++ {
			s.Payload[i] = 0
		}
	}
}

// U32 reads a slot's payload as a little-endian 4-byte integer (spec.md
// §4.8 u32(type)), ok=false if no such slot exists.
func (cfg *OpenFileConfig) U32(attrType byte) (uint32, bool) {
	s := cfg.slot(attrType)
	if s == nil || len(s.Payload) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(s.Payload), true
}

// SetU32 writes value into a slot as a little-endian 4-byte integer and
// marks it dirty if the value actually changed (spec.md §4.8
// u32(type, value)).
func (cfg *OpenFileConfig) SetU32(attrType byte, value uint32) {
	s := cfg.slot(attrType)
	if s == nil {
		cfg.Attributes = append(cfg.Attributes, Attribute{Type: attrType, Payload: make([]byte, 4)})
		s = &cfg.Attributes[len(cfg.Attributes)-1]
	}
	if len(s.Payload) < 4 {
		s.Payload = make([]byte, 4)
	}
	if binary.LittleEndian.Uint32(s.Payload) == value {
		return
	}
	binary.LittleEndian.PutUint32(s.Payload, value)
	s.Dirty = true
}

// DirtyAttributes returns the slots with pending writes, for
// FileAppender.close to flush via DirectoryChain.file_attributes.
func (cfg *OpenFileConfig) DirtyAttributes() []Attribute {
	var out []Attribute
	for _, a := range cfg.Attributes {
		if a.Dirty {
			out = append(out, a)
		}
	}
	return out
}

// ClearDirty resets every slot's dirty bit after a successful flush.
func (cfg *OpenFileConfig) ClearDirty() {
	for i := range cfg.Attributes {
		cfg.Attributes[i].Dirty = false
	}
}
