// ABOUTME: Flag and environment configuration for the Tsukimi node
// ABOUTME: Parsed once at startup, following the teacher's cmd flag style
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds every runtime value the node's components need.
type Config struct {
	GRPCAddr         string
	DiscoverGRPC     bool
	IncrementHost    string
	AssetDir         string
	LogFile          string
	Debug            bool
	OutputSampleRate int
	NodeName         string
}

// Parse builds a Config from CLI flags, falling back to environment
// variables for any flag not given on the command line, following the
// teacher's own flag-driven cmd/*/main.go style.
func Parse() Config {
	grpcAddr := flag.String("grpc-addr", envOr("TSUKIMI_GRPC_ADDR", ""), "Tsukimi session server address (host:port)")
	discover := flag.Bool("discover-grpc", envOrBool("TSUKIMI_DISCOVER_GRPC", false), "Discover the session server via mDNS when --grpc-addr is unset")
	incrementHost := flag.String("increment-host", envOr("TSUKIMI_INCREMENT_HOST", ""), "HTTPS host receiving proximity increment POSTs")
	assetDir := flag.String("asset-dir", envOr("TSUKIMI_ASSET_DIR", "assets"), "Directory containing mp3 music and sound-effect assets")
	logFile := flag.String("log-file", envOr("TSUKIMI_LOG_FILE", "tsukimi-node.log"), "Log file path")
	debug := flag.Bool("debug", envOrBool("TSUKIMI_DEBUG", false), "Enable debug logging")
	sampleRate := flag.Int("output-sample-rate", envOrInt("TSUKIMI_OUTPUT_SAMPLE_RATE", 44100), "Sample rate the shared audio output context runs at")
	nodeName := flag.String("name", envOr("TSUKIMI_NODE_NAME", ""), "Node friendly name (default: hostname)")

	flag.Parse()

	name := *nodeName
	if name == "" {
		if hostname, err := os.Hostname(); err == nil {
			name = hostname
		} else {
			name = "tsukimi-node"
		}
	}

	return Config{
		GRPCAddr:         *grpcAddr,
		DiscoverGRPC:     *discover,
		IncrementHost:    *incrementHost,
		AssetDir:         *assetDir,
		LogFile:          *logFile,
		Debug:            *debug,
		OutputSampleRate: *sampleRate,
		NodeName:         name,
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envOrInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
