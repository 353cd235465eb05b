// Command sukunadb_sim runs the replicated multi-version transaction
// simulator. With a file argument it executes the command script and
// exits; with no argument it starts an interactive prompt.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sushant-115/sukunadb/config"
	"github.com/sushant-115/sukunadb/core/storage/datamanager"
	"github.com/sushant-115/sukunadb/core/transaction"
	"github.com/sushant-115/sukunadb/internal/command"
	internaltelemetry "github.com/sushant-115/sukunadb/internal/telemetry"
	"github.com/sushant-115/sukunadb/pkg/logger"
	"github.com/sushant-115/sukunadb/pkg/telemetry"
)

func main() {
	cfg := config.Default()
	flag.StringVar(&cfg.Logger.Level, "log-level", cfg.Logger.Level, "minimum log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Logger.Format, "log-format", cfg.Logger.Format, "log format (console or json)")
	flag.StringVar(&cfg.Logger.OutputFile, "log-output", cfg.Logger.OutputFile, "log destination (stderr, stdout, or a file)")
	flag.BoolVar(&cfg.Telemetry.Enabled, "metrics", cfg.Telemetry.Enabled, "expose Prometheus metrics")
	flag.IntVar(&cfg.Telemetry.PrometheusPort, "metrics-port", cfg.Telemetry.PrometheusPort, "Prometheus /metrics port")
	flag.Parse()

	runID := uuid.New().String()
	log, err := logger.New(cfg.Logger, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry, runID)
	if err != nil {
		log.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	metrics, err := internaltelemetry.NewEngineMetrics(tel.Meter)
	if err != nil {
		log.Fatal("failed to register engine metrics", zap.Error(err))
	}

	dm := datamanager.New(log)
	mgr := transaction.NewManager(dm, os.Stdout, log, metrics)

	if args := flag.Args(); len(args) > 0 {
		cfg.Input = args[0]
	}
	if cfg.Input != "" {
		runFile(mgr, cfg.Input, log)
		return
	}
	runInteractive(mgr, log)
}

// runFile executes every command in the script and exits 0 on clean EOF.
// A missing input file exits 1.
func runFile(mgr *transaction.Manager, path string, log *zap.Logger) {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open input file %s: %v\n", path, err)
		os.Exit(1)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		execute(mgr, scanner.Text(), lineNo, log)
	}
	if err := scanner.Err(); err != nil {
		log.Fatal("failed reading input", zap.Error(err))
	}
}

// runInteractive drives the engine from a readline prompt.
func runInteractive(mgr *transaction.Manager, log *zap.Logger) {
	rl, err := readline.New("sukunadb> ")
	if err != nil {
		log.Fatal("failed to start interactive prompt", zap.Error(err))
	}
	defer rl.Close()

	fmt.Println("SukunaDB simulator (interactive mode). Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on ctrl-d, readline.ErrInterrupt on ctrl-c
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return
			}
			log.Error("failed reading input", zap.Error(err))
			return
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "help":
			printHelp()
			continue
		case "exit", "quit":
			return
		case "status":
			printStatus(mgr)
			continue
		}
		execute(mgr, line, 0, log)
	}
}

// execute parses one line and dispatches it to the engine.
func execute(mgr *transaction.Manager, line string, lineNo int, log *zap.Logger) {
	cmd, err := command.Parse(line)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		log.Warn("rejected command", zap.Int("line", lineNo), zap.Error(err))
		return
	}
	if cmd == nil { // blank or comment
		return
	}

	switch cmd.Kind {
	case command.KindBegin:
		mgr.Begin(cmd.Txn, false)
	case command.KindBeginRO:
		mgr.Begin(cmd.Txn, true)
	case command.KindRead:
		mgr.Read(cmd.Txn, cmd.Variable)
	case command.KindWrite:
		mgr.Write(cmd.Txn, cmd.Variable, cmd.Value)
	case command.KindEnd:
		mgr.End(cmd.Txn)
	case command.KindFail:
		mgr.FailSite(cmd.Site)
	case command.KindRecover:
		mgr.RecoverSite(cmd.Site)
	case command.KindDump:
		mgr.Dump()
	}
}

func printStatus(mgr *transaction.Manager) {
	for id := 1; id <= 10; id++ {
		if status, ok := mgr.SiteStatus(id); ok {
			fmt.Printf("Site %d: %s\n", id, status)
		}
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  begin(T1)        start a read-write transaction")
	fmt.Println("  beginRO(T1)      start a read-only transaction")
	fmt.Println("  R(T1,x2)         read a variable")
	fmt.Println("  W(T1,x2,42)      buffer a write")
	fmt.Println("  end(T1)          validate and commit or abort")
	fmt.Println("  fail(3)          take a site down")
	fmt.Println("  recover(3)       recover a site")
	fmt.Println("  dump()           print modified variables per site")
	fmt.Println("  status           show site availability")
	fmt.Println("  help")
	fmt.Println("  exit / quit")
}
