// Package main is the tcga-import command line: it builds analysis-ready
// artifacts from mirrored TCGA archives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/internal/archive"
	"github.com/nucleus/tcga-import/internal/artifact"
	"github.com/nucleus/tcga-import/internal/barcode"
	"github.com/nucleus/tcga-import/internal/config"
	"github.com/nucleus/tcga-import/internal/importer"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	warn  = color.New(color.FgYellow).SprintFunc()
)

func main() {
	cfg := config.Load()

	app := kingpin.New("tcga-import", "Build sample by probe matrices, segment files and clinical tables from TCGA archives.")
	app.HelpFlag.Short('h')

	buildCmd := app.Command("build", "Build the artifacts of one archive request.")
	buildRequest := buildCmd.Arg("request", "YAML or JSON build request.").Required().ExistingFile()
	uuidTable := buildCmd.Flag("uuid", "UUID to barcode translation table.").Default(cfg.UUIDTable).String()
	mirror := buildCmd.Flag("mirror", "Root of the archive mirror.").Default(cfg.Mirror).String()
	workDir := buildCmd.Flag("workdir", "Parent of the temporary work directory.").Default(cfg.WorkDir).String()
	outDir := buildCmd.Flag("outdir", "Artifact output directory.").Default(cfg.OutDir).String()
	sorter := buildCmd.Flag("sorter", "Channel sorter.").Default(cfg.Sorter).Enum(config.SorterMerge, config.SorterExec)
	sanitize := buildCmd.Flag("sanitize", "Drop race and ethnicity from clinical outputs.").Bool()
	downloadOnly := buildCmd.Flag("download-only", "Verify the archives are present and stop.").Bool()
	checksum := buildCmd.Flag("checksum", "Verify archive md5 files before building.").Bool()
	checksumDelete := buildCmd.Flag("checksum-delete", "Verify archive md5 files and delete corrupt archives.").Bool()
	reportOnly := buildCmd.Flag("report", "Print the resolved request as JSON and stop.").Bool()
	keepWorkDir := buildCmd.Flag("keep-workdir", "Keep the work directory after a successful build.").Bool()

	listCmd := app.Command("list", "List supported platforms or subtypes.")
	listWhat := listCmd.Arg("what", "platforms or subtypes").Default("platforms").Enum("platforms", "subtypes")

	checksumCmd := app.Command("checksum", "Verify the archives of a request against their md5 files.")
	checksumRequest := checksumCmd.Arg("request", "YAML or JSON build request.").Required().ExistingFile()
	checksumMirror := checksumCmd.Flag("mirror", "Root of the archive mirror.").Default(cfg.Mirror).String()
	checksumDel := checksumCmd.Flag("delete", "Delete corrupt archives and their md5 files.").Bool()

	dagCmd := app.Command("barcode-dag", "Read aliquot barcodes from stdin and write barcode DAG edges.")

	catalogCmd := app.Command("catalog", "List catalogued artifacts of a basename.")
	catalogBasename := catalogCmd.Arg("basename", "Artifact basename.").Required().String()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := cfg.NewLogger()
	app.FatalIfError(err, "logger")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case buildCmd.FullCommand():
		cfg.UUIDTable, cfg.Mirror, cfg.WorkDir, cfg.OutDir, cfg.Sorter = *uuidTable, *mirror, *workDir, *outDir, *sorter
		cfg.Sanitize = cfg.Sanitize || *sanitize
		cfg.KeepWorkDir = cfg.KeepWorkDir || *keepWorkDir
		opts := importer.OptionsFrom(cfg)
		opts.DownloadOnly = *downloadOnly
		opts.Checksum = *checksum
		opts.ChecksumDelete = *checksumDelete
		err = runBuild(ctx, cfg, opts, *buildRequest, *reportOnly, logger)
	case listCmd.FullCommand():
		err = runList(cfg, *listWhat)
	case checksumCmd.FullCommand():
		cfg.Mirror = *checksumMirror
		err = runChecksum(cfg, *checksumRequest, *checksumDel)
	case dagCmd.FullCommand():
		err = runBarcodeDAG()
	case catalogCmd.FullCommand():
		err = runCatalog(ctx, cfg, *catalogBasename)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func runBuild(ctx context.Context, cfg *config.Config, opts importer.Options, path string, reportOnly bool, logger logrus.FieldLogger) error {
	req, err := config.LoadRequest(path)
	if err != nil {
		return err
	}
	if reportOnly {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(req)
	}

	im, closeSink, err := importer.Setup(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	rep, err := im.Run(ctx, req)
	if rep != nil && rep.WorkDir != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", warn("work directory kept:"), rep.WorkDir)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s, version %s)\n", bold("built"), rep.Basename, rep.Platform, rep.Version)
	for _, pub := range rep.Artifacts {
		fmt.Printf("  %s %s %s\n", green(pub.Name), humanize.Bytes(uint64(pub.Size)), pub.MD5)
		for _, obj := range pub.Objects {
			fmt.Printf("    %s\n", obj)
		}
	}
	if rep.SoftErrors > 0 {
		fmt.Printf("  %s\n", warn(strconv.Itoa(rep.SoftErrors)+" soft errors, see the .error logs"))
	}
	return nil
}

func runList(cfg *config.Config, what string) error {
	registry, err := importer.Registry(cfg)
	if err != nil {
		return err
	}
	for _, name := range registry.Names() {
		if what == "platforms" {
			fmt.Println(name)
			continue
		}
		p, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		for _, st := range p.SubtypeNames() {
			fmt.Printf("%s\t%s\n", name, st)
		}
	}
	return nil
}

func runChecksum(cfg *config.Config, path string, deleteCorrupt bool) error {
	req, err := config.LoadRequest(path)
	if err != nil {
		return err
	}
	im := importer.New(nil, nil, nil, importer.OptionsFrom(cfg), nil)
	paths, err := im.ArchivePaths(req)
	if err != nil {
		return err
	}
	failed := 0
	for _, p := range paths {
		c, err := archive.Verify(p, deleteCorrupt)
		if err != nil {
			return err
		}
		status := green(string(c.Status))
		if c.Status != archive.StatusOK {
			failed++
			status = red(string(c.Status))
			if c.Deleted {
				status += " " + warn("deleted")
			}
		}
		fmt.Printf("%s\t%s\n", status, p)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed verification", failed, len(paths))
	}
	return nil
}

func runBarcodeDAG() error {
	dag := barcode.NewDAG()
	if _, err := dag.ReadFrom(os.Stdin); err != nil {
		return err
	}
	_, err := dag.WriteTo(os.Stdout)
	return err
}

func runCatalog(ctx context.Context, cfg *config.Config, basename string) error {
	catalog, err := artifact.OpenCatalog(ctx, cfg.CatalogDriver, cfg.CatalogURL)
	if err != nil {
		return err
	}
	defer catalog.Close()
	entries, err := catalog.List(ctx, basename)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%dx%d\t%s\n", e.Version, bold(e.Name), e.Subtype, e.Rows, e.Cols, e.Location)
	}
	return nil
}
