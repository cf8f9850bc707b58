package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/arkilian/metaquery/internal/config"
)

// parseSource parses a --source flag of the form name=kind:target. target is
// the DSN for SQL kinds and the storage prefix for file kinds, where it may
// carry options as a query string: exports?header=true&delimiter=%7C
func parseSource(s string) (config.SourceConfig, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return config.SourceConfig{}, fmt.Errorf("source %q: want name=kind:target", s)
	}
	kind, target, _ := strings.Cut(rest, ":")
	sc := config.SourceConfig{Name: name, Kind: config.SourceKind(strings.ToLower(kind))}

	switch {
	case sc.Kind.IsSQL():
		sc.DSN = target
	case sc.Kind.IsFile():
		prefix, query, _ := strings.Cut(target, "?")
		sc.Prefix = prefix
		opts, err := url.ParseQuery(query)
		if err != nil {
			return sc, fmt.Errorf("source %s: %w", name, err)
		}
		for key := range opts {
			v := opts.Get(key)
			switch key {
			case "header":
				if sc.Header, err = strconv.ParseBool(v); err != nil {
					return sc, fmt.Errorf("source %s: header: %w", name, err)
				}
			case "delimiter":
				sc.Delimiter = v
			case "extension":
				sc.Extension = v
			case "consistency":
				sc.Consistency = v
			case "widths":
				for _, w := range strings.Split(v, ",") {
					n, err := strconv.Atoi(strings.TrimSpace(w))
					if err != nil {
						return sc, fmt.Errorf("source %s: widths: %w", name, err)
					}
					sc.Widths = append(sc.Widths, n)
				}
			default:
				return sc, fmt.Errorf("source %s: unknown option %q", name, key)
			}
		}
	case sc.Kind == config.KindMemory:
	default:
		return sc, fmt.Errorf("source %s: unknown kind %q", name, kind)
	}
	return sc, nil
}
