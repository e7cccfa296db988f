package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datallboy/modfetch/internal/app"
	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/resolver"
)

type transferFlags struct {
	output          string
	hash            string
	algorithm       string
	refreshEndpoint string
	headers         []string
	noResume        bool
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "destination file (default: download dir + file name from URL)")
	cmd.Flags().StringVar(&f.hash, "hash", "", "expected hex digest of the finished file")
	cmd.Flags().StringVar(&f.algorithm, "algo", "md5", "hash algorithm: md5, sha1 or sha256")
	cmd.Flags().StringVar(&f.refreshEndpoint, "refresh-endpoint", "", "API endpoint that returns fresh download links")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "extra request header as Name=Value (repeatable)")
	cmd.Flags().BoolVar(&f.noResume, "no-resume", false, "always download from scratch")
}

func (f *transferFlags) options() (domain.TransferOptions, error) {
	algo, err := domain.ParseHashAlgorithm(f.algorithm)
	if err != nil {
		return domain.TransferOptions{}, err
	}

	opts := domain.TransferOptions{
		AllowResume:     !f.noResume,
		ExpectedHash:    f.hash,
		HashAlgorithm:   algo,
		RefreshEndpoint: f.refreshEndpoint,
	}

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, "=")
		if !ok || name == "" {
			return domain.TransferOptions{}, fmt.Errorf("invalid header %q, want Name=Value", h)
		}
		if opts.AuthHeaders == nil {
			opts.AuthHeaders = map[string]string{}
		}
		opts.AuthHeaders[name] = value
	}
	return opts, nil
}

func newFetchCmd() *cobra.Command {
	var flags transferFlags

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Download a single file right now, without the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(false)
			if err != nil {
				return err
			}

			opts, err := flags.options()
			if err != nil {
				return err
			}

			dest := flags.output
			if dest == "" {
				dest = filepath.Join(cfg.Download.OutDir, filepath.Base(strings.SplitN(args[0], "?", 2)[0]))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := app.NewContext(cfg, log)
			gov := a.NewGovernor()
			eng := a.NewEngine()

			req := domain.TransferRequest{
				URL:         args[0],
				Destination: dest,
				Options:     opts,
				OnProgress: func(p domain.Progress) {
					fmt.Printf("\r%5.1f%% | %s / %s | %s/s   ",
						p.Percentage,
						humanize.Bytes(uint64(p.BytesDownloaded)),
						humanize.Bytes(uint64(p.TotalBytes)),
						humanize.Bytes(uint64(p.Speed)))
				},
			}
			if opts.RefreshEndpoint != "" {
				res := resolver.New(cfg.Resolver.APIKey, gov, log,
					resolver.WithTimeout(cfg.Resolver.Timeout),
					resolver.WithUserAgent(cfg.Resolver.UserAgent))
				req.Refresh = func(ctx context.Context, _ string) (string, error) {
					return res.Resolve(ctx, opts.RefreshEndpoint)
				}
			}

			result := eng.Transfer(ctx, req)
			fmt.Println()

			if cfg.Quota.StatePath != "" {
				if err := gov.SaveState(cfg.Quota.StatePath); err != nil {
					log.Warn("%v", err)
				}
			}

			switch {
			case result.Cancelled:
				return fmt.Errorf("cancelled, partial file kept at %s", dest)
			case !result.Success:
				return fmt.Errorf("download failed: %s", result.Error)
			}

			fmt.Printf("Saved %s (%s", dest, humanize.Bytes(uint64(result.TotalBytes)))
			if result.Resumed {
				fmt.Printf(", resumed")
			}
			if result.HashVerified {
				fmt.Printf(", %s verified", opts.HashAlgorithm)
			}
			fmt.Println(")")
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
