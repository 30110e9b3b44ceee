// Package config implements CLI flag parsing and validation for s3bfg,
// generalizing the teacher's parseConfig/parseByteSize (config.go) to the
// wider set of knobs a parallel, IP-fanning downloader needs: slot count,
// forced block size, DNS discovery tuning, and a memory-only destination
// mode for pure-throughput benchmarking.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"s3bfg/internal/s3uri"
)

// Config holds every runtime knob parsed from CLI flags.
type Config struct {
	Bucket string
	Key    string
	Region string // only used to load the SDK config (us-east-1 when empty); the Object Probe always discovers the bucket's region
	URI    string // alternative to -bucket/-key: s3:// or an S3 HTTPS URL

	Profile         string
	AccessKeyID     string
	SecretAccessKey string

	Destination string // empty means MemoryOnly
	MemoryOnly  bool

	Slots            int
	ForcedBlockBytes uint64
	MaxAttempts      int
	Port             int

	DNSServer        string // empty means "choose based on IsEC2"
	DesiredEndpoints int
	DNSMaxRounds     int
	DNSConcurrency   int
	DNSRoundDelay    time.Duration

	ProgressInterval time.Duration
	JSONOutput       bool
}

// defaultDNSServerPublic and defaultDNSServerEC2 match spec §6: a public
// resolver off-EC2, the VPC DNS resolver on EC2 (chosen by the
// caller after awscreds.IsEC2, not here — config has no network access).
const (
	defaultDNSServerPublic = "8.8.8.8:53"
	defaultDNSServerEC2    = "169.254.169.253:53"
)

// DefaultDNSServer returns the DNS server config should fall back to when
// -dns-server was left unset, based on whether the process is running on
// EC2.
func DefaultDNSServer(isEC2 bool) string {
	if isEC2 {
		return defaultDNSServerEC2
	}
	return defaultDNSServerPublic
}

// Parse parses os.Args[1:] (via the flag package's default CommandLine)
// into a validated Config.
func Parse() (*Config, error) {
	cfg := &Config{}
	var rawBlockSize string

	flag.StringVar(&cfg.Bucket, "bucket", "", "S3 bucket name (required unless -uri is given)")
	flag.StringVar(&cfg.Key, "key", "", "S3 object key (required unless -uri is given)")
	flag.StringVar(&cfg.Region, "region", "", "AWS region for loading the SDK configuration (empty = us-east-1); the bucket's region is always discovered by the object probe")
	flag.StringVar(&cfg.URI, "uri", "", "S3 object URI (s3://bucket/key or an S3 HTTPS URL) — overrides -bucket/-key/-region")
	flag.StringVar(&cfg.Profile, "profile", "", "AWS named profile from ~/.aws/credentials or ~/.aws/config")
	flag.StringVar(&cfg.AccessKeyID, "access-key-id", "", "AWS access key ID (overrides profile)")
	flag.StringVar(&cfg.SecretAccessKey, "secret-access-key", "", "AWS secret access key (overrides profile)")
	flag.StringVar(&cfg.Destination, "destination", "", "Write the object to this file path")
	flag.BoolVar(&cfg.MemoryOnly, "memory-only", false, "Discard downloaded bytes instead of writing a file (throughput benchmarking)")
	flag.IntVar(&cfg.Slots, "slots", 16, "Number of concurrent fetch slots")
	flag.StringVar(&rawBlockSize, "block-size", "", "Force a fixed block size (e.g. 64MB); empty = use the object's native part layout")
	flag.IntVar(&cfg.MaxAttempts, "max-attempts", 3, "Maximum fetch attempts per block before giving up")
	flag.IntVar(&cfg.Port, "port", 443, "TCP port to dial on each discovered endpoint")
	flag.StringVar(&cfg.DNSServer, "dns-server", "", "DNS server for endpoint discovery (empty = 8.8.8.8:53, or the VPC DNS resolver 169.254.169.253:53 when running on EC2)")
	flag.IntVar(&cfg.DesiredEndpoints, "desired-endpoints", 0, "Stop endpoint discovery once this many distinct IPs are found (0 = stop after the first round that finds any IP)")
	flag.IntVar(&cfg.DNSMaxRounds, "dns-max-rounds", 10, "Maximum discovery rounds before giving up")
	flag.IntVar(&cfg.DNSConcurrency, "dns-concurrency", 8, "Concurrent DNS lookups per discovery round")
	flag.DurationVar(&cfg.DNSRoundDelay, "dns-round-delay", 50*time.Millisecond, "Delay between discovery rounds")
	flag.DurationVar(&cfg.ProgressInterval, "progress-interval", time.Second, "How often the progress renderer repaints")
	flag.BoolVar(&cfg.JSONOutput, "json", false, "Suppress the startup banner; the final summary is printed as text either way")
	flag.Parse()

	if err := cfg.validate(rawBlockSize); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate(rawBlockSize string) error {
	if cfg.URI != "" {
		loc, err := s3uri.Parse(cfg.URI)
		if err != nil {
			return fmt.Errorf("--uri: %w", err)
		}
		cfg.Bucket, cfg.Key, cfg.Region = loc.Bucket, loc.Key, loc.Region
	}

	if cfg.Bucket == "" {
		return fmt.Errorf("--bucket is required")
	}
	if cfg.Key == "" {
		return fmt.Errorf("--key is required")
	}
	if cfg.Destination != "" && cfg.MemoryOnly {
		return fmt.Errorf("--destination and --memory-only are mutually exclusive")
	}
	if cfg.Destination == "" && !cfg.MemoryOnly {
		cfg.MemoryOnly = true // default to memory-only, matching the teacher's discard-by-default
	}
	if cfg.Slots < 1 {
		return fmt.Errorf("--slots must be >= 1")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("--max-attempts must be >= 1")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("--port must be in [1, 65535]")
	}
	if cfg.DesiredEndpoints < 0 {
		return fmt.Errorf("--desired-endpoints must be >= 0")
	}
	if cfg.DNSMaxRounds < 1 {
		return fmt.Errorf("--dns-max-rounds must be >= 1")
	}
	if cfg.DNSConcurrency < 1 {
		return fmt.Errorf("--dns-concurrency must be >= 1")
	}

	if rawBlockSize != "" {
		size, err := ParseByteSize(rawBlockSize)
		if err != nil {
			return fmt.Errorf("--block-size: %w", err)
		}
		cfg.ForcedBlockBytes = size
	}

	return nil
}

// namedSizes maps single-word preset names to their byte values, matching
// the teacher's config.go presets exactly.
var namedSizes = map[string]uint64{
	"XS":  1 << 20,
	"S":   4 << 20,
	"M":   8 << 20,
	"L":   64 << 20,
	"XL":  256 << 20,
	"XXL": 1 << 30,
}

var suffixMultipliers = map[string]uint64{
	"B":   1,
	"KB":  1 << 10,
	"KIB": 1 << 10,
	"MB":  1 << 20,
	"MIB": 1 << 20,
	"GB":  1 << 30,
	"GIB": 1 << 30,
	"TB":  1 << 40,
	"TIB": 1 << 40,
}

// ParseByteSize parses human-friendly byte size strings like "64MB",
// "1GiB", "512KB", or a named preset (XS, S, M, L, XL, XXL), generalizing
// the teacher's parseByteSize (now shared by --block-size and any future
// size-valued flag).
func ParseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	if v, ok := namedSizes[strings.ToUpper(s)]; ok {
		return v, nil
	}

	upper := strings.ToUpper(s)
	var suffix, numStr string
	for k := range suffixMultipliers {
		if strings.HasSuffix(upper, k) && len(k) > len(suffix) {
			suffix = k
			numStr = strings.TrimSpace(s[:len(s)-len(k)])
		}
	}
	if suffix == "" {
		suffix = "B"
		numStr = s
	}
	if numStr == "" {
		return 0, fmt.Errorf("no numeric value in %q", s)
	}

	var value float64
	if _, err := fmt.Sscanf(numStr, "%f", &value); err != nil {
		return 0, fmt.Errorf("cannot parse number %q in %q", numStr, s)
	}
	if value <= 0 {
		return 0, fmt.Errorf("value must be positive in %q", s)
	}

	return uint64(value * float64(suffixMultipliers[suffix])), nil
}
