package patcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Patcher turns subscriptions into an Xray outbounds file and reloads the
// router daemon when the file changed.
type Patcher struct {
	opts      Options
	fetcher   Fetcher
	restarter Restarter
	log       *slog.Logger
	out       io.Writer
}

func NewPatcher(opts Options, fetcher Fetcher, restarter Restarter, log *slog.Logger) *Patcher {
	return &Patcher{
		opts:      opts.WithDefaults(),
		fetcher:   fetcher,
		restarter: restarter,
		log:       log,
		out:       os.Stdout,
	}
}

// Run builds the config from subs, writes it when it differs from the file on
// disk and restarts the daemon. Nothing is written if any subscription fails.
func (p *Patcher) Run(ctx context.Context, subs []Subscription) error {
	conf, err := p.BuildXrayConfig(ctx, subs)
	if err != nil {
		return err
	}
	prev, err := p.ReadPrevConfig()
	if err != nil {
		return err
	}
	next, err := p.render(prev, conf)
	if err != nil {
		return err
	}

	if p.opts.DryRun {
		_, err = p.out.Write(next)
		return err
	}
	if prev != nil && SameJSON(prev, next) {
		p.log.Info("No subscription changes found, exiting.")
		return nil
	}
	if err = p.writeOut(next); err != nil {
		return err
	}
	return p.restarter.Restart(ctx)
}

// BuildXrayConfig resolves every subscription in order into one outbound.
func (p *Patcher) BuildXrayConfig(ctx context.Context, subs []Subscription) (*XrayConfig, error) {
	outbounds := make([]OutboundConfig, 0, len(subs))
	for _, sub := range subs {
		o, err := p.resolve(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("subscription %q: %w", sub.Tag, err)
		}
		outbounds = append(outbounds, o)
	}
	return NewXrayConfig(outbounds...), nil
}

func (p *Patcher) resolve(ctx context.Context, sub Subscription) (OutboundConfig, error) {
	p.log.Info(fmt.Sprintf("Requesting subscription URL: %s", sub.URL))
	body, err := p.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		return OutboundConfig{}, err
	}
	proxyURL, err := ExtractProxyURL(body)
	if err != nil {
		return OutboundConfig{}, err
	}
	creds, err := ParseProxyURL(proxyURL)
	if err != nil {
		return OutboundConfig{}, err
	}
	p.log.Info(fmt.Sprintf("Using proxy for %s: %s", sub.Tag, proxyURL))
	return BuildOutbound(sub, creds), nil
}

// ReadPrevConfig returns the current content of the output file, nil if there is none.
func (p *Patcher) ReadPrevConfig() (JSONObject, error) {
	p.log.Debug(fmt.Sprintf("Reading xray config file: %s", p.opts.Output))
	f, err := os.ReadFile(p.opts.Output)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (p *Patcher) render(prev JSONObject, conf *XrayConfig) (JSONObject, error) {
	if !p.opts.Patch {
		if prev != nil {
			if _, ok := normalize(prev); !ok {
				p.log.Warn(fmt.Sprintf("%s is not a valid JSON file and will be overwritten", p.opts.Output))
			}
		}
		return conf.MarshalIndent()
	}

	next, err := patchOutbounds(prev, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to patch %s: %w", p.opts.Output, err)
	}
	if before, after := firstOutboundTag(prev), firstOutboundTag(next); prev != nil && before != after {
		p.log.Warn(fmt.Sprintf("Xray default outbound changed from %q to %q. This may cause unexpected dispatch result.", before, after))
	}
	return next, nil
}

func (p *Patcher) writeOut(doc JSONObject) error {
	p.log.Info(fmt.Sprintf("Writing new configuration to %s", p.opts.Output))
	if err := os.MkdirAll(filepath.Dir(p.opts.Output), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(p.opts.Output, doc, 0644); err != nil {
		p.log.Error(fmt.Sprintf("Failed to write out config file: %v", err))
		return err
	}
	return nil
}

// writeFileAtomic writes into a temp file next to path and renames it over
// path, so readers never see a truncated config.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(f.Name(), perm); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
