package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csverma610/medkit/internal/cache"
	"github.com/csverma610/medkit/internal/generators"
	"github.com/csverma610/medkit/internal/registry"
)

// moduleCommand binds one generator module to its command line.
type moduleCommand struct {
	usage string
	// run parses fs/args, calls the generator and returns the result with the
	// words used to name the output file.
	run func(ctx context.Context, r *generators.Runner, fs *flag.FlagSet, args []string) (any, []string, error)
}

var moduleCommands = map[string]moduleCommand{
	generators.DrugDrugModule: {
		usage: "[-age n] [-conditions c] [-dosage1 d] [-dosage2 d] <medicine1> <medicine2>",
		run:   runDrugDrug,
	},
	generators.DrugFoodModule: {
		usage: "[-age n] [-conditions c] [-diet d] [-food f] <medicine>",
		run:   runDrugFood,
	},
	generators.DiseaseModule: {
		usage: "[-speciality s] <disease>",
		run:   runDisease,
	},
	generators.SurgicalToolModule: {
		usage: "<tool name>",
		run:   runSurgicalTool,
	},
}

// optionalInt is an int flag that remembers whether it was set.
type optionalInt struct {
	v   int
	set bool
}

func (o *optionalInt) String() string {
	if o == nil || !o.set {
		return ""
	}
	return strconv.Itoa(o.v)
}

func (o *optionalInt) Set(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	o.v, o.set = n, true
	return nil
}

func (o *optionalInt) ptr() *int {
	if !o.set {
		return nil
	}
	v := o.v
	return &v
}

func runDrugDrug(ctx context.Context, r *generators.Runner, fs *flag.FlagSet, args []string) (any, []string, error) {
	var age optionalInt
	fs.Var(&age, "age", "Patient age in years (0-150)")
	conditions := fs.String("conditions", "", "Patient medical conditions, comma-separated")
	dosage1 := fs.String("dosage1", "", "Dosage of the first medicine")
	dosage2 := fs.String("dosage2", "", "Dosage of the second medicine")
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 2 {
		return nil, nil, fmt.Errorf("%w: expected two medicine names", ErrUsage)
	}
	in := generators.DrugDrugInput{
		DrugA:      fs.Arg(0),
		DrugB:      fs.Arg(1),
		Age:        age.ptr(),
		Conditions: *conditions,
		DosageA:    *dosage1,
		DosageB:    *dosage2,
	}
	res, err := r.DrugDrugInteraction(ctx, in)
	return res, []string{in.DrugA, in.DrugB}, err
}

func runDrugFood(ctx context.Context, r *generators.Runner, fs *flag.FlagSet, args []string) (any, []string, error) {
	var age optionalInt
	fs.Var(&age, "age", "Patient age in years (0-150)")
	conditions := fs.String("conditions", "", "Patient medical conditions, comma-separated")
	diet := fs.String("diet", "", "Patient diet type")
	food := fs.String("food", "", "Specific food or beverage to check")
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return nil, nil, fmt.Errorf("%w: expected one medicine name", ErrUsage)
	}
	in := generators.DrugFoodInput{
		Medicine:     fs.Arg(0),
		Diet:         *diet,
		Conditions:   *conditions,
		Age:          age.ptr(),
		SpecificFood: *food,
	}
	res, err := r.DrugFoodInteraction(ctx, in)
	return res, []string{in.Medicine, in.SpecificFood}, err
}

func runDisease(ctx context.Context, r *generators.Runner, fs *flag.FlagSet, args []string) (any, []string, error) {
	speciality := fs.String("speciality", "", "Audience speciality (default Internal Medicine)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	disease := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(disease) == "" {
		return nil, nil, fmt.Errorf("%w: expected a disease name", ErrUsage)
	}
	res, err := r.DiseaseInfo(ctx, generators.DiseaseInput{Disease: disease, Speciality: *speciality})
	return res, []string{disease}, err
}

func runSurgicalTool(ctx context.Context, r *generators.Runner, fs *flag.FlagSet, args []string) (any, []string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	tool := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(tool) == "" {
		return nil, nil, fmt.Errorf("%w: expected a tool name", ErrUsage)
	}
	res, err := r.SurgicalToolInfo(ctx, tool)
	return res, []string{tool}, err
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *App) runModule(ctx context.Context, cmd moduleCommand, name string, args []string, stdout io.Writer) error {
	a.purgeExpired(ctx, name)
	a.preflight(ctx)

	start := time.Now()
	res, subject, err := cmd.run(ctx, a.runner, newFlagSet(name), args)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	out := deriveOutputPath(a.cfg, name, subject...)
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("module", name).Str("out", out).Dur("elapsed", time.Since(start)).Msg("wrote result")
	if a.cfg.JSON {
		if _, err := fmt.Fprintln(stdout, string(b)); err != nil {
			return err
		}
		return nil
	}
	_, err = fmt.Fprintf(stdout, "Results saved to: %s\n", out)
	return err
}

// Usage writes the command summary.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: medkit [flags] <command> [command flags] [args]")
	fmt.Fprintln(w, "\ncommands:")
	fmt.Fprintln(w, "  modules [-category c]                list registered modules")
	fmt.Fprintln(w, "  cache stats|purge|clear [module...]  administer module stores")
	fmt.Fprintln(w, "  version                              print build information")
	names := make([]string, 0, len(moduleCommands))
	for n := range moduleCommands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %s %s\n", n, moduleCommands[n].usage)
	}
}

func (a *App) runModules(args []string, stdout io.Writer) error {
	fs := newFlagSet("modules")
	category := fs.String("category", "", "Only list modules in this category")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tMODEL\tCOMMAND\tDESCRIPTION")
	for _, name := range a.registry.Names() {
		m, _ := a.registry.Lookup(name)
		if *category != "" && m.Category != *category {
			continue
		}
		_, runnable := moduleCommands[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.Category, m.Model, yesNo(runnable), m.Description)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func (a *App) runCache(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: cache needs one of stats, purge, clear", ErrUsage)
	}
	sub, rest := args[0], args[1:]
	fs := newFlagSet("cache " + sub)
	maxAge := fs.Duration("max-age", a.cfg.CacheMaxAge, "Remove entries older than this (purge)")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	modules := fs.Args()
	for _, m := range modules {
		if _, err := a.registry.Require(m); err != nil {
			return err
		}
	}
	root := a.cacheOptions().Root

	switch sub {
	case "stats":
		if len(modules) == 0 {
			found, err := storedModules(root)
			if err != nil {
				return err
			}
			modules = found
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODULE\tENTRIES\tSTORED\tRAW\tCOMPRESSED\tCAPACITY\tPATH")
		for _, m := range modules {
			st, err := cache.StatsFor(ctx, a.cacheConfig(m))
			if err != nil {
				return fmt.Errorf("stats %s: %w", m, err)
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n", m, st.Entries, st.StoredBytes, st.RawBytes, st.Compressed, st.CapacityBytes, st.Path)
		}
		return tw.Flush()
	case "purge":
		if *maxAge <= 0 {
			return fmt.Errorf("%w: purge needs -max-age > 0", ErrUsage)
		}
		if len(modules) == 0 {
			found, err := storedModules(root)
			if err != nil {
				return err
			}
			modules = found
		}
		total := 0
		for _, m := range modules {
			n, err := cache.PurgeByAge(ctx, a.cacheConfig(m), *maxAge)
			if err != nil {
				return fmt.Errorf("purge %s: %w", m, err)
			}
			total += n
		}
		_, err := fmt.Fprintf(stdout, "Purged %d entries older than %s\n", total, *maxAge)
		return err
	case "clear":
		if len(modules) == 0 {
			n, err := cache.ClearDir(root)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(stdout, "Removed %d stores from %s\n", n, root)
			return err
		}
		for _, m := range modules {
			if err := cache.RemoveStore(a.cacheConfig(m).Path()); err != nil {
				return fmt.Errorf("clear %s: %w", m, err)
			}
		}
		_, err := fmt.Fprintf(stdout, "Removed %d stores\n", len(modules))
		return err
	}
	return fmt.Errorf("%w: unknown cache command %q", ErrUsage, sub)
}

// storedModules lists the modules that have a store file under root.
func storedModules(root string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*"+cache.StoreExt))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), cache.StoreExt))
	}
	sort.Strings(out)
	return out, nil
}

// ExitCode maps a run error to the process exit status: 0 on success, 2 for
// usage problems and unknown modules, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage), errors.Is(err, registry.ErrModuleNotFound), errors.Is(err, generators.ErrInvalidInput):
		return 2
	}
	return 1
}
