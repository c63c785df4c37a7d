// internal/config/model.go
//
// Typed configuration model for ddoccached.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `DDOC_`-prefixed environment overrides  – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs—only plain strings.
//
// Validation happens immediately after unmarshal; the process fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// Cache section
//

// Cache holds the cache core's own tunables: spec.md §6's max_size and
// refresh_interval, plus this node's identity and peer list for cluster
// broadcast.
type Cache struct {
	MaxSize         int      `koanf:"max_size"         validate:"gte=0"`
	RefreshInterval string   `koanf:"refresh_interval" validate:"required"`
	NodeID          string   `koanf:"node_id"          validate:"required"`
	Peers           []string `koanf:"peers"`
}

//
// Shard section
//

// Shard holds DSN templates and secrets for the MySQL shards the cache's
// recover path reads design documents from.
//
// The *template* (`DSNTemplate`) is kept in YAML so operators can tweak
// host, port, or flags without touching Vault.  The *secret* portion
// (`Password`) is stored in Vault and injected at runtime, keeping
// credentials out of flat files and git history.
type Shard struct {
	DSNTemplate string `koanf:"dsn_template" validate:"required"`
	Password    string `koanf:"password"     validate:"required"`
}

//
// Admin HTTP section
//

// Admin holds the admin/observability HTTP surface's listen address.
type Admin struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or DDOC_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // DDOC_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the process lifetime.
type Config struct {
	Cache Cache `koanf:"cache"`
	Shard Shard `koanf:"shard"`
	Admin Admin `koanf:"admin"`
	Paths Paths `koanf:"-"` // not loaded from config files
}

// RefreshInterval parses Cache.RefreshInterval (e.g. "90s", "5m").  Load
// calls it once after validateStruct and fails on a parse error, so callers
// past Load() can treat a parse error here as unreachable.
func (c *Config) RefreshInterval() (time.Duration, error) {
	return time.ParseDuration(c.Cache.RefreshInterval)
}
