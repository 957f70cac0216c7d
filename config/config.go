package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Store backends for print jobs
const (
	StoreMemory   = "memory"
	StoreRaft     = "raft"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	// Node configuration
	NodeID    string
	RaftAddr  string
	RaftDir   string
	HTTPAddr  string
	Bootstrap bool
	JoinAddr  string
	Peers     []string

	// Job store
	Store       string
	SQLitePath  string
	PostgresDSN string

	// Fleet
	FleetFile string
	FleetSize int
	StateDir  string

	TickInterval time.Duration
	LogLevel     string
}

// ParseFlags parses command line flags and returns a Config, exiting on bad input
func ParseFlags() *Config {
	config, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return config
}

// Parse parses args into a Config and validates it
func Parse(args []string) (*Config, error) {
	config := &Config{}
	fs := flag.NewFlagSet("printfarm", flag.ContinueOnError)

	// Define flags
	fs.StringVar(&config.NodeID, "id", "", "Node ID (required with -store=raft)")
	fs.StringVar(&config.RaftAddr, "raft-addr", "", "Raft transport address (required with -store=raft)")
	fs.StringVar(&config.RaftDir, "raft-dir", "", "Raft storage directory (required with -store=raft)")
	fs.StringVar(&config.HTTPAddr, "http-addr", ":8080", "HTTP API address")
	fs.BoolVar(&config.Bootstrap, "bootstrap", false, "Bootstrap the cluster")
	fs.StringVar(&config.JoinAddr, "join", "", "HTTP address of an existing node to join")
	peersStr := fs.String("peers", "", "Comma-separated list of peer addresses")

	fs.StringVar(&config.Store, "store", StoreMemory, "Job store: memory, raft, sqlite or postgres")
	fs.StringVar(&config.SQLitePath, "sqlite-path", "printfarm.db", "SQLite database file")
	fs.StringVar(&config.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string (required with -store=postgres)")

	fs.StringVar(&config.FleetFile, "fleet", "", "JSON fleet file with printers and model estimates")
	fs.IntVar(&config.FleetSize, "fleet-size", 10, "Number of default printers when no fleet file is given")
	fs.StringVar(&config.StateDir, "state-dir", "", "Directory for printer snapshots (in memory when empty)")

	fs.DurationVar(&config.TickInterval, "tick", time.Second, "Scheduler tick interval")
	fs.StringVar(&config.LogLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")

	// Parse flags
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Parse peers
	if *peersStr != "" {
		for _, p := range strings.Split(*peersStr, ",") {
			if p = strings.TrimSpace(p); p != "" {
				config.Peers = append(config.Peers, p)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the flags required by the selected store are present
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP address is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.FleetFile == "" && c.FleetSize <= 0 {
		return fmt.Errorf("fleet size must be positive, got %d", c.FleetSize)
	}

	switch c.Store {
	case StoreMemory:
	case StoreRaft:
		if c.NodeID == "" {
			return errors.New("node ID is required with -store=raft")
		}
		if c.RaftAddr == "" {
			return errors.New("raft address is required with -store=raft")
		}
		if c.RaftDir == "" {
			return errors.New("raft directory is required with -store=raft")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required with -store=sqlite")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres DSN is required with -store=postgres")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}
