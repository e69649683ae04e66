package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/logger"
	"github.com/oarkflow/permit/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "import":
		handleImport()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permit - permission fixture and evaluation tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permit convert <input> <output>                        - Convert between formats")
	fmt.Println("  permit validate <file>                                 - Validate configuration")
	fmt.Println("  permit stats <file>                                    - Show configuration statistics")
	fmt.Println("  permit import <file> <sqlite.db>                       - Write subjects into a SQLite store")
	fmt.Println("  permit check <file|sqlite.db> <subject> <action> <type[:id]> [key=value...]")
	fmt.Println()
	fmt.Println("Supported formats: .permit, .dsl, .yaml, .yml, .json")
	fmt.Println("Set PERMIT_VERBOSE=1 to log evaluation details.")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit convert <input> <output>")
		os.Exit(1)
	}
	inputFile, outputFile := os.Args[2], os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit validate <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	st := cfg.Stats()
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Subjects: %d\n", st.Subjects)
	fmt.Printf("  Permissions: %d\n", st.Permissions)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit stats <file>")
		os.Exit(1)
	}
	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	st := cfg.Stats()

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat, _ := os.Stat(filename); stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Permissions:")
	fmt.Printf("  Subjects:     %d\n", st.Subjects)
	fmt.Printf("  Bindings:     %d\n", st.Permissions)
	fmt.Printf("  Grants:       %d\n", st.Grants)
	fmt.Printf("  Denies:       %d\n", st.Denies)
	fmt.Printf("  Constrained:  %d\n", st.Constrained)
	fmt.Printf("  Conditional:  %d\n", st.Conditional)
	fmt.Printf("  Expiring:     %d\n", st.Expiring)
	fmt.Printf("  Inactive:     %d\n", st.Inactive)
	fmt.Println()

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Decision cache TTL:  %dms\n", cfg.Engine.DecisionCacheTTL)
	backend := cfg.Engine.CacheBackend
	if backend == "" {
		backend = permit.CacheBackendMemory
	}
	fmt.Printf("  Cache backend:       %s\n", backend)
	if cfg.Engine.RemoteURL != "" {
		fmt.Printf("  Remote authority:    %s (deny on failure: %t)\n", cfg.Engine.RemoteURL, cfg.Engine.RemoteFailureDeny)
	}
}

func handleImport() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit import <file> <sqlite.db>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	count, err := importConfig(context.Background(), cfg, os.Args[3])
	if err != nil {
		fmt.Printf("Error importing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d bindings for %d subjects into %s\n", count, len(cfg.Subjects), os.Args[3])
}

// importConfig replaces each configured subject's bindings in the database.
// The database is closed before it returns, so callers may exit right after.
func importConfig(ctx context.Context, cfg *permit.Config, dbPath string) (int, error) {
	db, closeDB, err := openSQLite(ctx, dbPath)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer closeDB()

	src := stores.NewSQLSource(db)
	count := 0
	for _, s := range cfg.Subjects {
		if err := src.RevokeSubject(ctx, s.ID); err != nil {
			return count, fmt.Errorf("clear %s: %w", s.ID, err)
		}
		for _, ep := range s.Permissions {
			if _, err := src.Grant(ctx, s.ID, ep); err != nil {
				return count, fmt.Errorf("grant to %s: %w", s.ID, err)
			}
			count++
		}
	}
	return count, nil
}

func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: permit check <file|sqlite.db> <subject> <action> <type[:id]> [key=value...]")
		os.Exit(1)
	}
	file, subject := os.Args[2], os.Args[3]
	req, err := permit.ParseRequest(os.Args[4], os.Args[5], os.Args[6:])
	if err != nil {
		fmt.Printf("Invalid request: %v\n", err)
		os.Exit(1)
	}

	var l logger.Logger = logger.NewNullLogger()
	if os.Getenv("PERMIT_VERBOSE") != "" {
		l = logger.NewPhusluLogger()
	}

	res, err := runCheck(context.Background(), file, subject, req, l)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if !res.Granted {
		os.Exit(2)
	}
}

// runCheck decides req for subject against file. Any database it opens is
// closed before it returns.
func runCheck(ctx context.Context, file, subject string, req permit.CheckRequest, l logger.Logger) (*permit.CheckResult, error) {
	var (
		source permit.PermissionSource
		opts   []permit.Option
	)
	if isSQLite(file) {
		db, closeDB, err := openSQLite(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		defer closeDB()
		source = stores.NewSQLSource(db)
		opts = append(opts, permit.WithLogger(l))
	} else {
		cfg, err := loadConfig(file)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		source = stores.NewMemorySourceFromConfig(cfg)
		if opts, err = stores.EvaluatorOptions(cfg, l); err != nil {
			return nil, fmt.Errorf("configure evaluator: %w", err)
		}
	}

	ev, err := permit.NewEvaluator(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("build evaluator: %w", err)
	}
	if err := ev.SetSubject(ctx, subject); err != nil {
		return nil, fmt.Errorf("load subject: %w", err)
	}
	res, err := ev.Check(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	return res, nil
}

func isSQLite(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func openSQLite(ctx context.Context, filename string) (*squealx.DB, func(), error) {
	sqlDB, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, nil, err
	}
	db := squealx.NewDb(sqlDB, "sqlite", filepath.Base(filename))
	if err := stores.Migrate(ctx, db); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return db, func() { sqlDB.Close() }, nil
}

func loadConfig(filename string) (*permit.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	loader := permit.NewConfigLoader()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".permit", ".dsl":
		return loader.LoadDSL(data)
	case ".yaml", ".yml":
		return loader.LoadYAML(data)
	case ".json":
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *permit.Config, filename string) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".permit", ".dsl":
		data, err = permit.NewDSLEncoder().Encode(cfg)
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
