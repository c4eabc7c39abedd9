package ime

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"imecore/internal/config"
	"imecore/internal/dict"
	"imecore/internal/filter"
	"imecore/internal/logging"
	"imecore/internal/menu"
	"imecore/internal/session"
	"imecore/internal/userdict"
)

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewFromConfig builds an engine from the application configuration:
// code tables, the user dictionary and the candidate filters. Missing
// table files are skipped with a warning. extra options are applied last.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, extra ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Default().WithComponent("engine").Logger
	}

	ctx := session.New(session.WithLogger(logger))
	ctx.SetOption(session.OptionSoftCursor, cfg.Engine.SoftCursor)
	for _, gate := range []struct {
		enabled bool
		option  string
	}{
		{cfg.Filters.Convert.Enabled, cfg.Filters.Convert.Option},
		{cfg.Filters.Width.Enabled, cfg.Filters.Width.Option},
	} {
		if gate.enabled && gate.option != "" {
			ctx.SetOption(gate.option, true)
		}
	}
	for name, value := range cfg.Engine.Options {
		ctx.SetOption(name, value)
	}

	opts := []Option{
		WithContext(ctx),
		WithLogger(logger),
		WithPageSize(cfg.Engine.PageSize),
		WithAutoCommit(cfg.Engine.AutoCommit),
	}

	loaded := 0
	for _, path := range cfg.Dictionary.Tables {
		table, err := dict.LoadTable(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("code table not found", "path", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		tr := dict.NewTranslator(table)
		tr.CompletionLimit = cfg.Dictionary.CompletionLimit
		opts = append(opts, WithSegmentor(dict.NewSegmentor(table)), WithTranslator(tr))
		logger.Info("loaded code table", "name", table.Name, "entries", table.Len())
		loaded++
	}
	if loaded == 0 {
		logger.Warn("no code table loaded; input is echoed raw")
	}

	filters, err := buildFilters(cfg.Filters, ctx, logger)
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		opts = append(opts, WithFilter(f))
	}

	var manager *userdict.Manager
	if cfg.UserDict.Enabled {
		store, err := userdict.Open(cfg.UserDict.Path,
			userdict.WithCacheTTL(time.Duration(cfg.UserDict.CacheTTLSec)*time.Second),
			userdict.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open user dictionary: %w", err)
		}
		tr := userdict.NewTranslator(store)
		tr.Boost = cfg.UserDict.Boost
		manager = userdict.NewManager(store)
		opts = append(opts,
			WithTranslator(tr),
			WithCloser(store),
			WithCloser(closerFunc(func() error {
				manager.Detach()
				return nil
			})))
	}

	e := NewEngine(append(opts, extra...)...)
	if manager != nil {
		manager.Attach(ctx)
	}
	return e, nil
}

// buildFilters returns the configured filters in application order:
// script conversion, width conversion, then deduplication.
func buildFilters(cfg config.FiltersConfig, options filter.OptionReader, logger *slog.Logger) ([]menu.Filter, error) {
	var filters []menu.Filter

	if cfg.Convert.Enabled {
		conv, err := filter.LoadMapConverter(cfg.Convert.MapPath)
		if err != nil {
			return nil, err
		}
		tips, err := filter.ParseTipsLevel(cfg.Convert.Tips)
		if err != nil {
			return nil, err
		}
		excluded := make(map[string]bool, len(cfg.Convert.ExcludedTypes))
		for _, t := range cfg.Convert.ExcludedTypes {
			excluded[t] = true
		}
		filters = append(filters, &filter.ConvertFilter{
			Converter:      conv,
			Option:         cfg.Convert.Option,
			Options:        options,
			ExcludedTypes:  excluded,
			Tips:           tips,
			ShowInComment:  cfg.Convert.ShowInComment,
			InheritComment: cfg.Convert.InheritComment,
		})
		logger.Info("phrase conversion enabled", "entries", conv.Len(), "option", cfg.Convert.Option)
	}

	if cfg.Width.Enabled {
		conv, err := filter.NewWidthConverter(cfg.Width.Mode)
		if err != nil {
			return nil, err
		}
		filters = append(filters, &filter.ConvertFilter{
			Converter:      conv,
			Option:         cfg.Width.Option,
			Options:        options,
			InheritComment: true,
		})
	}

	if cfg.Uniquify {
		filters = append(filters, filter.NewUniquifier())
	}
	return filters, nil
}
