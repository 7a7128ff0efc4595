package main

import (
	"flag"
	"fmt"
	"os"
)

type Config struct {
	Port        int
	Host        string
	MetricsPort int
	LogLevel    string
	LogFormat   string

	StorageBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PostgresHost   string
	PostgresPort   int
	PostgresDB     string
	PostgresUser   string
	PostgresPass   string

	ArtifactBackend string
	ArtifactDir     string
	S3Region        string
	S3Bucket        string
	S3Prefix        string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	VersionRetention int
	DriftThreshold   float64
	RetrainThreshold float64

	TLSCert   string
	TLSKey    string
	EnableTLS bool
	Version   bool
}

func ParseFlags() *Config {
	config := &Config{}

	flag.IntVar(&config.Port, "port", 8080, "Server port")
	flag.StringVar(&config.Host, "host", "0.0.0.0", "Server host")
	flag.IntVar(&config.MetricsPort, "metrics-port", 9090, "Prometheus metrics port")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&config.LogFormat, "log-format", "json", "Log format (json, text)")

	flag.StringVar(&config.StorageBackend, "storage", "memory", "Record store backend (memory, redis, postgres)")
	flag.StringVar(&config.RedisAddr, "redis-addr", "localhost:6379", "Redis address")
	flag.StringVar(&config.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&config.RedisDB, "redis-db", 0, "Redis database number")
	flag.StringVar(&config.PostgresHost, "postgres-host", "localhost", "PostgreSQL host")
	flag.IntVar(&config.PostgresPort, "postgres-port", 5432, "PostgreSQL port")
	flag.StringVar(&config.PostgresDB, "postgres-db", "modelops", "PostgreSQL database")
	flag.StringVar(&config.PostgresUser, "postgres-user", "modelops", "PostgreSQL user")
	flag.StringVar(&config.PostgresPass, "postgres-password", "", "PostgreSQL password")

	flag.StringVar(&config.ArtifactBackend, "artifacts", "local", "Artifact store backend (local, s3)")
	flag.StringVar(&config.ArtifactDir, "artifact-dir", "./artifacts", "Local artifact directory")
	flag.StringVar(&config.S3Region, "s3-region", "us-east-1", "S3 region")
	flag.StringVar(&config.S3Bucket, "s3-bucket", "", "S3 bucket for artifacts")
	flag.StringVar(&config.S3Prefix, "s3-prefix", "modelops", "S3 key prefix")

	flag.StringVar(&config.InfluxURL, "influx-url", "", "InfluxDB URL for telemetry (empty disables)")
	flag.StringVar(&config.InfluxToken, "influx-token", "", "InfluxDB token")
	flag.StringVar(&config.InfluxOrg, "influx-org", "modelops", "InfluxDB organization")
	flag.StringVar(&config.InfluxBucket, "influx-bucket", "telemetry", "InfluxDB bucket")

	flag.IntVar(&config.VersionRetention, "version-retention", 10, "Non-archived versions kept per model")
	flag.Float64Var(&config.DriftThreshold, "drift-threshold", 0.1, "Relative change treated as drift")
	flag.Float64Var(&config.RetrainThreshold, "retrain-threshold", 0.2, "Relative change that triggers retraining")

	flag.StringVar(&config.TLSCert, "tls-cert", "", "Path to TLS certificate")
	flag.StringVar(&config.TLSKey, "tls-key", "", "Path to TLS key")
	flag.BoolVar(&config.EnableTLS, "enable-tls", false, "Enable TLS")
	flag.BoolVar(&config.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nModel Lifecycle Server\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if config.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildDate)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		os.Exit(0)
	}

	return config
}
