package i18n

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

// DefaultLocale is always available without touching the disk
const DefaultLocale = "en"

//go:embed en.json
var defaultTable []byte

// Bundle serves localized string tables
type Bundle struct {
	dir       string
	supported []string
	matcher   language.Matcher

	mu     sync.RWMutex
	tables map[string]map[string]string
	group  singleflight.Group
}

// New creates a Bundle reading extra locales from dir. supported lists the
// locale codes visitors may pick; the default locale is always included.
func New(dir string, supported []string) (*Bundle, error) {
	var base map[string]string
	if err := json.Unmarshal(defaultTable, &base); err != nil {
		return nil, fmt.Errorf("failed to parse embedded %s table: %w", DefaultLocale, err)
	}

	locales := []string{DefaultLocale}
	for _, code := range supported {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" || code == DefaultLocale {
			continue
		}
		if _, err := language.Parse(code); err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", code, err)
		}
		locales = append(locales, code)
	}

	tags := make([]language.Tag, len(locales))
	for i, code := range locales {
		tags[i] = language.Make(code)
	}

	return &Bundle{
		dir:       dir,
		supported: locales,
		matcher:   language.NewMatcher(tags),
		tables:    map[string]map[string]string{DefaultLocale: base},
	}, nil
}

// Supported returns the selectable locale codes, default first
func (b *Bundle) Supported() []string {
	return append([]string(nil), b.supported...)
}

// IsSupported reports whether locale can be selected
func (b *Bundle) IsSupported(locale string) bool {
	for _, code := range b.supported {
		if code == locale {
			return true
		}
	}
	return false
}

// Match picks the best supported locale for an Accept-Language header
func (b *Bundle) Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, index, confidence := b.matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}
	return b.supported[index]
}

// T looks key up in locale, then the default locale, then returns the key itself
func (b *Bundle) T(locale, key string) string {
	if table, err := b.table(locale); err == nil {
		if v, ok := table[key]; ok && v != "" {
			return v
		}
	}
	if v, ok := b.defaults()[key]; ok && v != "" {
		return v
	}
	return key
}

// Table returns every key for locale with default-locale values filling the gaps.
// A locale that cannot be loaded yields the default table.
func (b *Bundle) Table(locale string) map[string]string {
	out := maps.Clone(b.defaults())
	table, err := b.table(locale)
	if err != nil {
		slog.Warn("Falling back to default locale", "locale", locale, "error", err)
		return out
	}
	for k, v := range table {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func (b *Bundle) defaults() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tables[DefaultLocale]
}

func (b *Bundle) table(locale string) (map[string]string, error) {
	if !b.IsSupported(locale) {
		return nil, fmt.Errorf("unsupported locale %q", locale)
	}

	b.mu.RLock()
	table, ok := b.tables[locale]
	b.mu.RUnlock()
	if ok {
		return table, nil
	}

	v, err, _ := b.group.Do(locale, func() (any, error) {
		table, err := b.load(locale)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.tables[locale] = table
		b.mu.Unlock()
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func (b *Bundle) load(locale string) (map[string]string, error) {
	path := filepath.Join(b.dir, locale+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	slog.Info("Loaded locale", "locale", locale, "keys", len(table))
	return table, nil
}

// Invalidate drops a cached locale so the next lookup reloads it
func (b *Bundle) Invalidate(locale string) {
	if locale == DefaultLocale {
		return
	}
	b.mu.Lock()
	delete(b.tables, locale)
	b.mu.Unlock()
}

// Watch invalidates cached tables whose files change until ctx is cancelled
func (b *Bundle) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(b.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", b.dir, err)
	}
	slog.Info("Watching locales", "dir", b.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			locale := strings.TrimSuffix(name, ".json")
			b.Invalidate(locale)
			slog.Debug("Locale changed", "locale", locale, "op", ev.Op.String())
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("Locale watcher error", "error", watchErr)
		}
	}
}
