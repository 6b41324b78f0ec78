// Command scoreshift transposes MusicXML scores.
// It transposes single scores and whole bundles, prints the key tables,
// shows the transposition history, and serves the REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/ScoreShift/core/cas"
	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/musicxml"
	"github.com/FocuswithJustin/ScoreShift/core/shift"
	"github.com/FocuswithJustin/ScoreShift/core/sqlite"
	"github.com/FocuswithJustin/ScoreShift/core/transpose"
	"github.com/FocuswithJustin/ScoreShift/internal/api"
	"github.com/FocuswithJustin/ScoreShift/internal/archive"
	"github.com/FocuswithJustin/ScoreShift/internal/batch"
	"github.com/FocuswithJustin/ScoreShift/internal/catalog"
	"github.com/FocuswithJustin/ScoreShift/internal/history"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
	"github.com/FocuswithJustin/ScoreShift/internal/validation"
)

const version = api.Version

// CLI defines the command-line interface for scoreshift.
type CLI struct {
	LogLevel  string `name:"log-level" help:"Log level" default:"info" enum:"debug,info,warn,error" env:"SCORESHIFT_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format" default:"text" enum:"text,json" env:"SCORESHIFT_LOG_FORMAT"`

	Transpose TransposeCmd `cmd:"" help:"Transpose a single score"`
	Batch     BatchCmd     `cmd:"" help:"Transpose every score in a bundle"`
	Inspect   InspectCmd   `cmd:"" help:"Show key, parts and pitches of a score"`
	Keys      KeysCmd      `cmd:"" help:"Print the flat and sharp key tables"`
	Sheets    SheetsCmd    `cmd:"" help:"List the sheet library"`
	History   HistoryCmd   `cmd:"" help:"Show recorded transpositions"`
	Serve     ServeCmd     `cmd:"" help:"Start REST API server"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// AfterApply configures logging before any command runs.
func (c *CLI) AfterApply() error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

// TransposeCmd transposes one score. "-" reads stdin; without --out the
// result goes to stdout.
type TransposeCmd struct {
	In         string `arg:"" help:"Score to transpose (.musicxml, .xml, .xml.gz, .xml.xz or - for stdin)"`
	Out        string `short:"o" help:"Output path; compression follows the extension" type:"path"`
	Shift      string `short:"s" required:"" help:"Shift expression: +2, -5, up 3, down 1, Eb->G, to F, random"`
	DropStems  bool   `name:"drop-stems" help:"Remove stem directions so renderers recompute them"`
	Instrument string `help:"MIDI program or preset name for every part"`
	Pretty     bool   `help:"Indent the output"`
	Store      string `help:"Keep input and output in this content-addressed store" type:"path" env:"SCORESHIFT_STORE"`
	History    string `help:"Record the transposition in this SQLite ledger" type:"path" env:"SCORESHIFT_HISTORY"`
}

func (c *TransposeCmd) Run() error {
	return c.run(context.Background(), os.Stdin, os.Stdout)
}

func (c *TransposeCmd) run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	expr, err := shift.Parse(c.Shift)
	if err != nil {
		return err
	}
	program, err := musicxml.ParseInstrument(c.Instrument)
	if err != nil {
		return err
	}

	data, source, err := readInput(c.In, stdin)
	if err != nil {
		return err
	}
	if err := validation.ValidateScore(data); err != nil {
		return scerrors.Wrap(err, source)
	}

	doc, err := musicxml.Parse(data)
	if err != nil {
		return err
	}
	fifths := 0
	if expr.NeedsKey() {
		if fifths, err = doc.KeySignature(); err != nil {
			return err
		}
	}
	semitones, err := expr.ResolveIn(fifths, doc.Mode(), nil)
	if err != nil {
		return err
	}

	out, res, err := musicxml.Transpose(doc, musicxml.Options{
		Semitones:      semitones,
		DropStemLayout: c.DropStems,
		MIDIProgram:    program,
	})
	if err != nil {
		return scerrors.Wrap(err, source)
	}
	body := out.Serialize()
	if c.Pretty {
		body = musicxml.Format(out, musicxml.FormatOptions{})
	}

	if c.Out == "" {
		if _, err := stdout.Write(body); err != nil {
			return err
		}
	} else {
		if err := validation.ValidatePath(c.Out); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
		if err := archive.WriteScore(c.Out, body); err != nil {
			return err
		}
	}

	if c.Store != "" {
		store, err := cas.NewStore(c.Store)
		if err != nil {
			return err
		}
		if _, err := store.Put(data); err != nil {
			return err
		}
		if _, err := store.Put(body); err != nil {
			return err
		}
	}
	if c.History != "" {
		ledger, err := history.Open(ctx, c.History)
		if err != nil {
			return err
		}
		defer ledger.Close()
		if _, err := ledger.Record(ctx, history.Entry{
			Source:       source,
			InputBlake3:  cas.Blake3Hash(data),
			OutputSHA256: cas.Hash(body),
			Semitones:    res.Semitones,
			FromFifths:   res.FromFifths,
			ToFifths:     res.ToFifths,
			Pitches:      res.Pitches,
		}); err != nil {
			return err
		}
	}

	logging.TransposeEvent(source, res.Semitones, res.FromFifths, res.ToFifths, res.Pitches,
		"from_key", transpose.KeyName(res.FromFifths, doc.Mode()),
		"to_key", transpose.KeyName(res.ToFifths, doc.Mode()),
		"output", c.Out)
	return nil
}

// readInput reads a score file, or stdin for "-".
func readInput(path string, stdin io.Reader) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, validation.MaxScoreSize+1))
		return data, "stdin", err
	}
	if err := validation.ValidatePath(path); err != nil {
		return nil, "", fmt.Errorf("invalid input path: %w", err)
	}
	data, err := archive.ReadScore(path)
	return data, path, err
}

// BatchCmd transposes a bundle.
type BatchCmd struct {
	In         string `arg:"" help:"Input bundle (.tar.gz, .tgz, .tar.xz, .txz)" type:"existingfile"`
	Out        string `short:"o" required:"" help:"Output bundle" type:"path"`
	Shift      string `short:"s" required:"" help:"Shift expression applied to every score"`
	DropStems  bool   `name:"drop-stems" help:"Remove stem directions so renderers recompute them"`
	Instrument string `help:"MIDI program or preset name for every part"`
	Quiet      bool   `short:"q" help:"Do not print per-entry progress"`
}

func (c *BatchCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, os.Stdout)
}

func (c *BatchCmd) run(ctx context.Context, stdout io.Writer) error {
	expr, err := shift.Parse(c.Shift)
	if err != nil {
		return err
	}
	program, err := musicxml.ParseInstrument(c.Instrument)
	if err != nil {
		return err
	}

	if err := checkBundle(c.In); err != nil {
		return err
	}

	start := time.Now()
	summary, err := batch.Run(ctx, c.In, c.Out, batch.Options{
		Shift:          expr,
		DropStemLayout: c.DropStems,
		MIDIProgram:    program,
	}, func(p batch.Progress) {
		if !c.Quiet {
			fmt.Fprintf(stdout, "[%d/%d] %s\n", p.Done, p.Total, p.Entry)
		}
	})
	if err != nil {
		return err
	}

	for _, s := range summary.Scores {
		fmt.Fprintf(stdout, "  %s: %+d semitones, %s -> %s\n", s.Name, s.Result.Semitones,
			transpose.KeyName(s.Result.FromFifths, "major"), transpose.KeyName(s.Result.ToFifths, "major"))
	}
	fmt.Fprintf(stdout, "Transposed %d score(s), copied %d other entries in %s\n",
		len(summary.Scores), summary.Copied, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(stdout, "Created: %s\n", c.Out)
	return nil
}

// checkBundle rejects an input whose content does not match its extension.
func checkBundle(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := validation.ValidateFileType(f, path); err != nil {
		return scerrors.Wrapf(err, "invalid input bundle %s", path)
	}
	return nil
}

// InspectCmd prints what ScoreShift sees in a score.
type InspectCmd struct {
	In    string `arg:"" help:"Score to inspect (- for stdin)"`
	XPath string `name:"xpath" help:"Also print the text of nodes matching this XPath expression"`
}

func (c *InspectCmd) Run() error {
	return c.run(os.Stdin, os.Stdout)
}

func (c *InspectCmd) run(stdin io.Reader, stdout io.Writer) error {
	data, source, err := readInput(c.In, stdin)
	if err != nil {
		return err
	}
	if v := musicxml.Validate(data); !v.Valid {
		for _, e := range v.Errors {
			fmt.Fprintf(stdout, "  [FAIL] line %d col %d: %s\n", e.Line, e.Column, e.Message)
		}
		return fmt.Errorf("%s is not a valid MusicXML score", source)
	}

	doc, err := musicxml.Parse(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Score: %s\n", source)
	fmt.Fprintf(stdout, "  Root: %s\n", doc.RootName())
	if title := doc.Title(); title != "" {
		fmt.Fprintf(stdout, "  Title: %s\n", title)
	}
	fmt.Fprintf(stdout, "  Parts: %d\n", doc.Parts())
	if fifths, err := doc.KeySignature(); err == nil {
		fmt.Fprintf(stdout, "  Key: %s (fifths %d)\n", transpose.KeyName(fifths, doc.Mode()), fifths)
	} else {
		fmt.Fprintf(stdout, "  Key: none (%v)\n", err)
	}
	pitches, err := doc.Pitches()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "  Pitches: %d\n", len(pitches))
	if len(pitches) > 0 {
		lo, hi := pitches[0], pitches[0]
		for _, p := range pitches[1:] {
			if p.MIDI() < lo.MIDI() {
				lo = p
			}
			if p.MIDI() > hi.MIDI() {
				hi = p
			}
		}
		fmt.Fprintf(stdout, "  Range: %s - %s\n", lo, hi)
	}

	if c.XPath != "" {
		values, err := doc.Query(c.XPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "  %s: %d match(es)\n", c.XPath, len(values))
		for _, v := range values {
			fmt.Fprintf(stdout, "    %s\n", v)
		}
	}
	return nil
}

// KeysCmd prints the key tables.
type KeysCmd struct{}

func (c *KeysCmd) Run() error {
	return printKeys(os.Stdout)
}

func printKeys(w io.Writer) error {
	tables := api.NewKeyTables()
	fmt.Fprintf(w, "%-5s  %-12s  %-12s\n", "INDEX", "FLAT (<= 0)", "SHARP (> 0)")
	for i := range tables.Flat {
		flat, sharp := tables.Flat[i], tables.Sharp[i]
		fmt.Fprintf(w, "%-5d  %-12s  %-12s\n", i,
			fmt.Sprintf("%s (%+d)", flat.Tonic, flat.Fifths),
			fmt.Sprintf("%s (%+d)", sharp.Tonic, sharp.Fifths))
	}
	fmt.Fprintf(w, "\nInstruments: %s\n", strings.Join(tables.Instruments, ", "))
	return nil
}

// SheetsCmd lists a sheet library.
type SheetsCmd struct {
	Dir   string `help:"Sheet library directory" default:"sheets" type:"path" env:"SCORESHIFT_SHEETS"`
	Task  string `help:"Only sheets of this task"`
	Staff string `help:"Only sheets in this staff layout"`
}

func (c *SheetsCmd) Run() error {
	return c.run(os.Stdout)
}

func (c *SheetsCmd) run(w io.Writer) error {
	cat, err := catalog.Open(c.Dir)
	if err != nil {
		return err
	}
	sheets, err := cat.List()
	if err != nil {
		return err
	}
	n := 0
	for _, s := range sheets {
		if (c.Task != "" && s.Task != c.Task) || (c.Staff != "" && s.Staff != c.Staff) {
			continue
		}
		fmt.Fprintf(w, "%-32s  %-14s  %8d  %s\n", s.Name, s.Staff, s.Size, s.File)
		n++
	}
	staves, err := cat.Staves()
	if err != nil {
		return err
	}
	tasks, err := cat.Tasks()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d sheet(s); library has %d task(s) in %s\n", n, len(tasks), strings.Join(staves, ", "))
	return nil
}

// HistoryCmd shows the transposition ledger.
type HistoryCmd struct {
	DB    string `help:"SQLite ledger path" default:".scoreshift/history.db" type:"path" env:"SCORESHIFT_HISTORY"`
	Limit int    `short:"n" help:"Number of entries to show" default:"20"`
	Input string `help:"Only entries for this input BLAKE3 digest"`
}

func (c *HistoryCmd) Run() error {
	return c.run(context.Background(), os.Stdout)
}

func (c *HistoryCmd) run(ctx context.Context, w io.Writer) error {
	if c.Limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}
	ledger, err := history.OpenReadOnly(c.DB)
	if errors.Is(err, scerrors.ErrNotFound) {
		fmt.Fprintln(w, "No transpositions recorded.")
		return nil
	}
	if err != nil {
		return err
	}
	defer ledger.Close()

	var entries []history.Entry
	if c.Input != "" {
		entries, err = ledger.ForInput(ctx, c.Input)
	} else {
		entries, err = ledger.List(ctx, c.Limit)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%4d  %s  %-28s  %+3d  %s -> %s  %d pitches  %s\n",
			e.ID, e.CreatedAt.Format(time.RFC3339), e.Source, e.Semitones,
			transpose.KeyName(e.FromFifths, "major"), transpose.KeyName(e.ToFifths, "major"),
			e.Pitches, shortDigest(e.OutputSHA256))
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No transpositions recorded.")
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	Port           int           `help:"HTTP server port" default:"8080" env:"SCORESHIFT_PORT"`
	Sheets         string        `help:"Sheet library directory" default:"sheets" type:"path" env:"SCORESHIFT_SHEETS"`
	Store          string        `help:"Content-addressed score store (empty disables)" default:".scoreshift/store" type:"path" env:"SCORESHIFT_STORE"`
	History        string        `help:"SQLite history ledger (empty disables)" default:".scoreshift/history.db" type:"path" env:"SCORESHIFT_HISTORY"`
	Jobs           string        `help:"Directory for batch job bundles" default:"bundles" type:"path" env:"SCORESHIFT_JOBS"`
	CacheTTL       time.Duration `name:"cache-ttl" help:"Lifetime of cached transpositions" default:"5m"`
	CacheEntries   int           `name:"cache-entries" help:"Maximum cached transpositions" default:"256"`
	MaxUpload      int64         `name:"max-upload" help:"Largest accepted request body in bytes" default:"10485760"`
	AllowedOrigins []string      `name:"allowed-origin" help:"Allowed CORS and WebSocket origin (repeatable; none allows all)" env:"SCORESHIFT_ALLOWED_ORIGINS"`
	RateLimit      int           `name:"rate-limit" help:"Requests per minute per client (0 disables)"`
	RateBurst      int           `name:"rate-burst" help:"Rate limit burst size" default:"10"`
	APIKey         string        `name:"api-key" help:"Require this X-API-Key on protected endpoints" env:"SCORESHIFT_API_KEY"`
	TLSCert        string        `name:"tls-cert" help:"TLS certificate file" type:"path"`
	TLSKey         string        `name:"tls-key" help:"TLS private key file" type:"path"`
}

func (c *ServeCmd) config() api.Config {
	return api.Config{
		Port:              c.Port,
		SheetsDir:         c.Sheets,
		StoreDir:          c.Store,
		HistoryDB:         c.History,
		JobsDir:           c.Jobs,
		CacheTTL:          c.CacheTTL,
		CacheEntries:      c.CacheEntries,
		MaxUploadBytes:    c.MaxUpload,
		AllowedOrigins:    c.AllowedOrigins,
		RateLimitRequests: c.RateLimit,
		RateLimitBurst:    c.RateBurst,
		Auth:              api.AuthConfig{Enabled: c.APIKey != "", APIKey: c.APIKey},
		TLS: api.TLSConfig{
			Enabled:  c.TLSCert != "" || c.TLSKey != "",
			CertFile: c.TLSCert,
			KeyFile:  c.TLSKey,
		},
	}
}

func (c *ServeCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.Start(ctx, c.config())
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Printf("scoreshift version %s\n", version)
	fmt.Printf("sqlite driver: %s (%s)\n", info.Package, info.DriverType)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("scoreshift"),
		kong.Description("ScoreShift - MusicXML transposition on the line of fifths"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
