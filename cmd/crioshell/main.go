// Command crioshell is an interactive shell over a single in-process
// Engine, the storage-engine analogue of the teacher's cmd/client REPL
// (which instead dials a running SQL server over TCP). There is no server
// here: crioshell links directly against internal/engine and runs every
// command in its own process.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/crio-db/crio/internal/btree"
	"github.com/crio-db/crio/internal/config"
	"github.com/crio-db/crio/internal/engine"
	"github.com/crio-db/crio/internal/heap"
	"github.com/crio-db/crio/internal/pageid"
)

// shell holds everything one REPL session touches: the open engine, plus
// the in-memory name -> handle caches a real client would otherwise have
// to re-derive from the Page Directory on every command.
type shell struct {
	eng     *engine.Engine
	tables  map[string]*heap.Table
	indexes map[string]*btree.Tree
}

func main() {
	var (
		workdir    = flag.String("workdir", "./crio-data", "database directory")
		configPath = flag.String("config", "", "optional YAML config file")
		histPath   = flag.String("history", defaultHistoryPath(), "history file path")
		mem        = flag.Bool("mem", false, "use an in-memory FileSet instead of the filesystem")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *workdir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var eng *engine.Engine
	if *mem {
		eng, err = engine.OpenMem(cfg)
	} else {
		eng, err = engine.Open(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = eng.Close() }()

	sh := &shell{eng: eng, tables: make(map[string]*heap.Table), indexes: make(map[string]*btree.Tree)}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "crio> ",
		HistoryFile:     *histPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Printf("crio engine open at %s\n", cfg.Workdir)
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "\\q" || line == "quit" || line == "exit" {
			return
		}
		if line == "\\help" {
			printHelp()
			continue
		}

		if err := sh.dispatch(line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func loadConfig(path, workdir string) (*config.EngineConfig, error) {
	var cfg *config.EngineConfig
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg = config.Defaults()
	}
	if err != nil {
		return nil, err
	}
	if workdir != "" {
		cfg.Workdir = workdir
	}
	return cfg, nil
}

func (sh *shell) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "createtable":
		return sh.createTable(args)
	case "opentable":
		return sh.openTable(args)
	case "put":
		return sh.put(args)
	case "get":
		return sh.get(args)
	case "scan":
		return sh.scan(args)
	case "createindex":
		return sh.createIndex(args)
	case "openindex":
		return sh.openIndex(args)
	case "index-put":
		return sh.indexPut(args)
	case "index-get":
		return sh.indexGet(args)
	case "index-range":
		return sh.indexRange(args)
	case "flush":
		return sh.eng.FlushAll()
	case "stats":
		sh.stats()
		return nil
	default:
		return fmt.Errorf("unknown command: %s (try \\help)", cmd)
	}
}

func (sh *shell) createTable(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: createtable <name>")
	}
	tbl, err := sh.eng.CreateTable(args[0])
	if err != nil {
		return err
	}
	sh.tables[args[0]] = tbl
	fmt.Printf("created table %q, first page %s\n", args[0], tbl.FirstPageID())
	return nil
}

func (sh *shell) openTable(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: opentable <name>")
	}
	tbl, err := sh.eng.OpenTable(args[0])
	if err != nil {
		return err
	}
	sh.tables[args[0]] = tbl
	fmt.Printf("opened table %q\n", args[0])
	return nil
}

func (sh *shell) lookupTable(name string) (*heap.Table, error) {
	tbl, ok := sh.tables[name]
	if ok {
		return tbl, nil
	}
	tbl, err := sh.eng.OpenTable(name)
	if err != nil {
		return nil, err
	}
	sh.tables[name] = tbl
	return tbl, nil
}

func (sh *shell) put(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: put <table> <hex-bytes>")
	}
	tbl, err := sh.lookupTable(args[0])
	if err != nil {
		return err
	}
	tup, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("decode hex tuple: %w", err)
	}
	rid, err := tbl.Insert(tup)
	if err != nil {
		return err
	}
	fmt.Println(rid.String())
	return nil
}

func (sh *shell) get(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: get <table> <file:offset/slot>")
	}
	tbl, err := sh.lookupTable(args[0])
	if err != nil {
		return err
	}
	rid, err := parseRecordID(args[1])
	if err != nil {
		return err
	}
	tup, err := tbl.Get(rid)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(tup))
	return nil
}

func (sh *shell) scan(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: scan <table>")
	}
	tbl, err := sh.lookupTable(args[0])
	if err != nil {
		return err
	}
	n := 0
	err = tbl.Scan(func(rid heap.RecordID, tup []byte) error {
		fmt.Printf("%s  %s\n", rid.String(), hex.EncodeToString(tup))
		n++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("(%d rows)\n", n)
	return nil
}

func (sh *shell) createIndex(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: createindex <name>")
	}
	tr, err := sh.eng.CreateIndex(args[0])
	if err != nil {
		return err
	}
	sh.indexes[args[0]] = tr
	fmt.Printf("created index %q, order %d\n", args[0], tr.Order)
	return nil
}

func (sh *shell) openIndex(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: openindex <name>")
	}
	tr, err := sh.eng.OpenIndex(args[0])
	if err != nil {
		return err
	}
	sh.indexes[args[0]] = tr
	fmt.Printf("opened index %q, height %d\n", args[0], tr.Height())
	return nil
}

func (sh *shell) lookupIndex(name string) (*btree.Tree, error) {
	tr, ok := sh.indexes[name]
	if ok {
		return tr, nil
	}
	tr, err := sh.eng.OpenIndex(name)
	if err != nil {
		return nil, err
	}
	sh.indexes[name] = tr
	return tr, nil
}

func (sh *shell) indexPut(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: index-put <name> <key> <file:offset/slot>")
	}
	tr, err := sh.lookupIndex(args[0])
	if err != nil {
		return err
	}
	key, err := parseKey(args[1])
	if err != nil {
		return err
	}
	rid, err := parseRecordID(args[2])
	if err != nil {
		return err
	}
	return tr.Insert(key, rid)
}

func (sh *shell) indexGet(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: index-get <name> <key>")
	}
	tr, err := sh.lookupIndex(args[0])
	if err != nil {
		return err
	}
	key, err := parseKey(args[1])
	if err != nil {
		return err
	}
	rid, err := tr.Search(key)
	if err != nil {
		return err
	}
	fmt.Println(rid.String())
	return nil
}

func (sh *shell) indexRange(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: index-range <name> <lo> <hi>")
	}
	tr, err := sh.lookupIndex(args[0])
	if err != nil {
		return err
	}
	lo, err := parseKey(args[1])
	if err != nil {
		return err
	}
	hi, err := parseKey(args[2])
	if err != nil {
		return err
	}
	rids, err := tr.RangeScan(lo, hi)
	if err != nil {
		return err
	}
	for _, rid := range rids {
		fmt.Println(rid.String())
	}
	fmt.Printf("(%d matches)\n", len(rids))
	return nil
}

func (sh *shell) stats() {
	fmt.Printf("tables open: %d, indexes open: %d, tables registered: %d\n",
		len(sh.tables), len(sh.indexes), len(sh.eng.Tables()))
}

func parseKey(s string) (btree.Key, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return btree.Key(n), nil
}

// parseRecordID parses the "fileID:offset/slot" format produced by
// heap.RecordID.String().
func parseRecordID(s string) (heap.RecordID, error) {
	pagePart, slotPart, ok := strings.Cut(s, "/")
	if !ok {
		return heap.RecordID{}, fmt.Errorf("invalid record id %q, want file:offset/slot", s)
	}
	fileStr, offStr, ok := strings.Cut(pagePart, ":")
	if !ok {
		return heap.RecordID{}, fmt.Errorf("invalid page id %q, want file:offset", pagePart)
	}
	fileID, err := strconv.ParseUint(fileStr, 10, 8)
	if err != nil {
		return heap.RecordID{}, fmt.Errorf("invalid file id %q: %w", fileStr, err)
	}
	offset, err := strconv.ParseUint(offStr, 10, 32)
	if err != nil {
		return heap.RecordID{}, fmt.Errorf("invalid offset %q: %w", offStr, err)
	}
	slot, err := strconv.ParseUint(slotPart, 10, 16)
	if err != nil {
		return heap.RecordID{}, fmt.Errorf("invalid slot %q: %w", slotPart, err)
	}
	pid, err := pageid.New(uint8(fileID), uint32(offset))
	if err != nil {
		return heap.RecordID{}, err
	}
	return heap.RecordID{PageID: pid, SlotID: uint16(slot)}, nil
}

func printHelp() {
	fmt.Println(`meta commands:
  \q | quit | exit             quit
  \help                        show this help

table commands:
  createtable <name>           create an empty table
  opentable <name>             reopen an existing table
  put <table> <hex-bytes>      insert a tuple, prints its record id
  get <table> <file:offset/slot>  fetch a tuple by record id
  scan <table>                 print every live tuple

index commands:
  createindex <name>                  create an empty B+ tree index
  openindex <name>                     reopen an existing index
  index-put <name> <key> <file:offset/slot>  insert a key -> record id mapping
  index-get <name> <key>               point lookup
  index-range <name> <lo> <hi>         inclusive range scan

  flush                        force every dirty page to disk
  stats                        print open-handle counters`)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".crioshell_history"
	}
	return home + "/.crioshell_history"
}
