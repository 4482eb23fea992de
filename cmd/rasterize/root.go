package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/feichai0017/pdf-rasterizer/config"
	"github.com/feichai0017/pdf-rasterizer/internal/agent"
	"github.com/feichai0017/pdf-rasterizer/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-rasterizer/internal/pagerange"
	"github.com/feichai0017/pdf-rasterizer/internal/service/analysis"
	"github.com/feichai0017/pdf-rasterizer/internal/service/conversion"
	"github.com/feichai0017/pdf-rasterizer/internal/service/export"
	"github.com/feichai0017/pdf-rasterizer/internal/store"
	"github.com/feichai0017/pdf-rasterizer/internal/utils/validator"
	"github.com/feichai0017/pdf-rasterizer/pkg/logger"
)

type options struct {
	configPath string
	outDir     string
	pages      string
	dpi        int
	format     string
	unpadded   bool
	analyze    bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "rasterize <file.pdf>",
		Short: "Convert the pages of a PDF into an image archive",
		Long: `Rasterize renders every page (or the pages given with --pages) of a PDF
at the configured resolution and writes <name>_<dpi>dpi.zip into the output directory.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flags.StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	flags.StringVarP(&opts.pages, "pages", "p", "", `pages to convert, e.g. "1-3, 7"`)
	flags.IntVar(&opts.dpi, "dpi", 0, "output resolution (72-600)")
	flags.StringVar(&opts.format, "format", "", "image format: png or jpeg")
	flags.BoolVar(&opts.unpadded, "unpadded", false, "name pages page_N instead of Page_00N")
	flags.BoolVar(&opts.analyze, "analyze", false, "summarize the first page with the configured analysis provider")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	return cmd
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dpi != 0 {
		cfg.Conversion.DPI = opts.dpi
	}
	if opts.format != "" {
		cfg.Conversion.Format = opts.format
	}
	if opts.unpadded {
		cfg.Conversion.PaddedNames = false
	}
	if !opts.analyze {
		cfg.Analysis.Provider = agent.ProviderNone
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, opts *options, path string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithErrorPaths([]string{"stderr"}),
	)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	analyzer, err := agent.NewAnalyzer(ctx, &cfg.Analysis, log)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(filepath.Base(path)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
	)

	s := store.New()
	trigger := analysis.NewTrigger(s, analyzer, &analysis.Config{Timeout: cfg.Analysis.Timeout}, log)
	defer trigger.Close()

	svc := conversion.NewService(
		s,
		pdf.NewLoader(log),
		pdf.NewRasterizer(&pdf.RasterizerConfig{
			Format:      pdf.Format(cfg.Conversion.Format),
			JPEGQuality: cfg.Conversion.JPEGQuality,
		}, log),
		trigger,
		validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize:       cfg.Upload.MaxFileSize,
			MaxPageCount:      cfg.Upload.MaxPageCount,
			ValidateStructure: cfg.Upload.ValidateStructure,
		}),
		log,
		&conversion.ServiceConfig{DPI: cfg.Conversion.DPI},
		conversion.WithProgressHook(func(_ string, progress int) {
			_ = bar.Set(progress)
		}),
	)
	defer svc.Close()

	p, err := svc.IngestAndLoad(ctx, conversion.Upload{Filename: filepath.Base(path), Data: data})
	if err != nil {
		return err
	}

	var pages []int
	if opts.pages != "" {
		pages = append([]int{}, pagerange.Parse(opts.pages, p.Metadata.TotalPages)...)
	}
	if err := svc.Convert(ctx, p.ID, pages); err != nil {
		return err
	}
	_ = bar.Finish()

	p, _ = svc.Project(p.ID)
	packager := export.NewService(nil, &export.Config{
		DPI:         cfg.Conversion.DPI,
		Format:      cfg.Conversion.Format,
		PaddedNames: cfg.Conversion.PaddedNames,
	}, log)
	file, err := packager.Pack(p, false)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out := filepath.Join(opts.outDir, file.Filename)
	if err := os.WriteFile(out, file.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Printf("%s: %d pages -> %s\n", p.Metadata.Name, len(file.PageNumbers), out)

	if task, ok := trigger.Task(p.ID); ok {
		result, err := task.Wait(ctx)
		if err != nil {
			log.Warn("Analysis failed", logger.Error(err))
			return nil
		}
		printAnalysis(result.Title, result.Summary, result.KeyPoints)
	}
	return nil
}

func printAnalysis(title, summary string, keyPoints []string) {
	fmt.Printf("\n%s\n\n%s\n", title, summary)
	for _, kp := range keyPoints {
		fmt.Printf("  - %s\n", kp)
	}
}
