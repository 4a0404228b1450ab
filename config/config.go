// Package config holds the settings of a database file reader. Settings come from defaults, an HCL file and command
// line flags, in that order.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"dataserver/buffer"
	"dataserver/common"
	"dataserver/vm"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/scanner"
	"github.com/hashicorp/hcl/hcl/token"
)

type Config struct {
	PageSize    int
	BlockPages  int
	ArenaBlocks int

	MinMemory int64
	MaxMemory int64

	MaintenancePeriod time.Duration
	DefragPeriod      time.Duration

	UseBufferPool bool
	MaxThreads    int
	ExtentSize    int64
}

func Default() Config {
	return Config{
		PageSize:          common.DefaultPageSize,
		BlockPages:        common.DefaultBlockPages,
		ArenaBlocks:       common.DefaultArenaBlocks,
		MaintenancePeriod: common.DefaultMaintenancePeriod,
		DefragPeriod:      common.DefaultDefragPeriod,
		UseBufferPool:     true,
		MaxThreads:        common.MaxThreads,
		ExtentSize:        common.DefaultExtentSize,
	}
}

type setter func(c *Config, val interface{}) error

var vars = map[string]setter{
	"page_size": func(c *Config, val interface{}) (err error) {
		c.PageSize, err = toInt(val)
		return
	},
	"block_pages": func(c *Config, val interface{}) (err error) {
		c.BlockPages, err = toInt(val)
		return
	},
	"arena_blocks": func(c *Config, val interface{}) (err error) {
		c.ArenaBlocks, err = toInt(val)
		return
	},
	"min_memory": func(c *Config, val interface{}) (err error) {
		c.MinMemory, err = toBytes(val)
		return
	},
	"max_memory": func(c *Config, val interface{}) (err error) {
		c.MaxMemory, err = toBytes(val)
		return
	},
	"maintenance_period": func(c *Config, val interface{}) (err error) {
		c.MaintenancePeriod, err = toDuration(val)
		return
	},
	"defrag_period": func(c *Config, val interface{}) (err error) {
		c.DefragPeriod, err = toDuration(val)
		return
	},
	"use_buffer_pool": func(c *Config, val interface{}) (err error) {
		c.UseBufferPool, err = toBool(val)
		return
	},
	"max_threads": func(c *Config, val interface{}) (err error) {
		c.MaxThreads, err = toInt(val)
		return
	},
	"extent_size": func(c *Config, val interface{}) (err error) {
		c.ExtentSize, err = toBytes(val)
		return
	},
}

// Names returns the names of all config variables in sorted order.
func Names() []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set assigns one variable. val may be a string or the value type HCL decodes to.
func (c *Config) Set(name string, val interface{}) error {
	set, ok := vars[name]
	if !ok {
		return fmt.Errorf("%s is not a config variable", name)
	}
	if err := set(c, val); err != nil {
		return fmt.Errorf("%s: %s", name, err)
	}
	return nil
}

// Apply decodes HCL from b onto c. Variables in skip are left alone; they were set on the command line.
func (c *Config) Apply(b []byte, skip map[string]struct{}) error {
	var cfg map[string]interface{}
	if err := hcl.Decode(&cfg, string(b)); err != nil {
		return err
	}
	if pos, ok := danglingAssign(b); ok {
		return fmt.Errorf("%s: assignment without a value", pos)
	}

	for name, val := range cfg {
		if _, ok := skip[name]; ok {
			continue
		}
		if err := c.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

// danglingAssign finds an assignment at the end of the input that has no value. hcl.Decode drops such an assignment
// without an error.
func danglingAssign(b []byte) (token.Pos, bool) {
	s := scanner.New(b)
	s.Error = func(token.Pos, string) {}

	var last token.Token
	for {
		tok := s.Scan()
		switch tok.Type {
		case token.EOF:
			return last.Pos, last.Type == token.ASSIGN
		case token.COMMENT:
			continue
		}
		last = tok
	}
}

// Parse returns the defaults overridden by the HCL in b.
func Parse(b []byte) (Config, error) {
	c := Default()
	if err := c.Apply(b, nil); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Load reads and parses the HCL file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Geometry() vm.Geometry {
	return vm.Geometry{
		PageSize:    c.PageSize,
		BlockPages:  c.BlockPages,
		ArenaBlocks: c.ArenaBlocks,
	}
}

// PoolOptions returns the buffer pool settings of c.
func (c Config) PoolOptions() buffer.Options {
	return buffer.Options{
		Geometry:          c.Geometry(),
		MinMemory:         c.MinMemory,
		MaxMemory:         c.MaxMemory,
		MaintenancePeriod: c.MaintenancePeriod,
		DefragPeriod:      c.DefragPeriod,
		MaxThreads:        c.MaxThreads,
		ExtentSize:        c.ExtentSize,
	}
}

func (c Config) Validate() error {
	return c.PoolOptions().Validate()
}

func toInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected an integer; got %v", v)
		}
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("expected an integer; got %v", val)
	}
}

// toBytes accepts plain numbers and sizes like "64MiB" or "2 GB".
func toBytes(val interface{}) (int64, error) {
	if s, ok := val.(string); ok {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return 0, err
		}
		return int64(n), nil
	}
	n, err := toInt(val)
	return int64(n), err
}

// toDuration accepts numbers of seconds and strings like "90s" or "5m".
func toDuration(val interface{}) (time.Duration, error) {
	if s, ok := val.(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	n, err := toInt(val)
	if err != nil {
		return 0, fmt.Errorf("expected seconds or a duration; got %v", val)
	}
	return time.Duration(n) * time.Second, nil
}

func toBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("expected boolean value; got %v", val)
	}
}
