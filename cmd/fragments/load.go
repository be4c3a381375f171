package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"fragment-loader/common"
	"fragment-loader/internal/fetchqueue"
	"fragment-loader/internal/fragment"
	"fragment-loader/internal/page"
)

type loadOptions struct {
	pagePath string
	base     string
	out      string
	prefix   string
	toc      bool
	queue    common.QueueConfig
}

func newLoadCmd() *cobra.Command {
	opts := loadOptions{queue: common.QueueConfigFromEnv()}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch every fragment and write the assembled page",
		Long: "Fetch every fragment referenced by the page's placeholders and write the assembled page.\n" +
			"Failed fragments leave their placeholder untouched; the command only fails when the page\n" +
			"itself cannot be read or written.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.pagePath, "page", "", "Page HTML file")
	f.StringVar(&opts.base, "base", "", "Fragment base URL or directory (default: the page's directory)")
	f.StringVar(&opts.out, "out", "", "Output file (default: stdout)")
	f.StringVar(&opts.prefix, "prefix", page.DefaultPrefix, "Placeholder id prefix")
	f.BoolVar(&opts.toc, "toc", true, "Fill <d-contents> with a table of contents from the article headings")
	f.IntVar(&opts.queue.MaxConcurrent, "max-concurrent", opts.queue.MaxConcurrent, "Fragments fetched at once")
	f.IntVar(&opts.queue.MaxRetries, "max-retries", opts.queue.MaxRetries, "Retries after a failed fetch")
	f.DurationVar(&opts.queue.BaseDelay, "base-delay", opts.queue.BaseDelay, "Backoff before the first retry; doubles each retry")
	f.DurationVar(&opts.queue.MaxDelay, "max-delay", opts.queue.MaxDelay, "Cap on a single backoff (0 = uncapped)")
	f.DurationVar(&opts.queue.AttemptTimeout, "attempt-timeout", opts.queue.AttemptTimeout, "Timeout per fetch attempt (0 = none)")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}

func runLoad(cmd *cobra.Command, opts loadOptions) error {
	doc, err := readPage(opts.pagePath)
	if err != nil {
		return err
	}
	base := opts.base
	if base == "" {
		base = filepath.Dir(opts.pagePath)
	}
	httpClient, _ := fragment.BuildHTTPClient()
	client, err := fragment.NewClient(base, httpClient)
	if err != nil {
		return err
	}
	q, err := fetchqueue.New(client, opts.queue.Options()...)
	if err != nil {
		return err
	}

	placeholders := doc.Placeholders(opts.prefix)
	report := page.Load(cmd.Context(), q, placeholders)
	if opts.toc {
		if entries, ok := doc.GenerateTOC(); ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "table of contents: %d entries\n", entries)
		}
	}

	if err := writePage(cmd.OutOrStdout(), opts.out, doc); err != nil {
		return err
	}
	printReport(cmd.ErrOrStderr(), report)
	return nil
}

func readPage(path string) (*page.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	doc, err := page.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", path, err)
	}
	return doc, nil
}

func writePage(stdout io.Writer, out string, doc *page.Document) error {
	if out == "" {
		return doc.Render(stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}

func printReport(w io.Writer, report page.Report) {
	fmt.Fprintf(w, "loaded %d/%d fragments\n", report.Loaded, len(report.Results))
	for _, res := range report.Failures() {
		msg := res.Err.Error()
		if code := fetchqueue.StatusCode(res.Err); code != 0 {
			msg = fmt.Sprintf("status %d", code)
		}
		fmt.Fprintf(w, "  failed %s attempts=%d: %s\n", res.Job.Locator, res.Attempts, strings.TrimSpace(msg))
	}
}
