package api

import "time"

// Config holds server configuration.
type Config struct {
	Port           int
	SheetsDir      string        // Sheet library served under /sheets
	StoreDir       string        // Content-addressed store for inputs and outputs
	HistoryDB      string        // SQLite ledger path (empty = no history)
	JobsDir        string        // Bundles read and written by /jobs live here
	CacheTTL       time.Duration // Lifetime of memoised transpositions
	CacheEntries   int           // Maximum memoised transpositions
	MaxUploadBytes int64         // Largest accepted request body
	AllowedOrigins []string      // CORS and WebSocket origins (empty = allow all)

	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	TLS               TLSConfig  // TLS configuration
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// DefaultConfig returns the configuration used by "scoreshift serve"
// when no flags are given.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		SheetsDir:      "sheets",
		StoreDir:       ".scoreshift/store",
		HistoryDB:      ".scoreshift/history.db",
		JobsDir:        "bundles",
		CacheTTL:       5 * time.Minute,
		CacheEntries:   256,
		MaxUploadBytes: 10 << 20,
	}
}
