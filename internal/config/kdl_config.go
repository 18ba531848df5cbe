package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/strategy"
)

// Load reads and validates a KDL config file. A missing file yields the
// defaults so callers never special-case absence.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, apperrors.NewConfigError("file", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the default file name from dir.
func LoadOrDefault(dir string) (*Config, error) {
	return Load(filepath.Join(dir, DefaultFileName))
}

// parseKDL fills a default config from the document, so absent nodes
// keep their defaults.
func parseKDL(content string) (*Config, error) {
	cfg := DefaultConfig()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, apperrors.NewConfigError("kdl", nil, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "resolver":
			if err := parseResolver(n, &cfg.Resolver); err != nil {
				return nil, err
			}
		case "classifier":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "exclude-id":
					cfg.Classifier.ExcludeIDs = append(cfg.Classifier.ExcludeIDs, collectStringArgs(cn)...)
				case "id-trust-floor":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Classifier.IDTrustFloor = v
					}
				}
			}
		case "cache":
			for _, cn := range n.Children {
				if nodeName(cn) == "max-entries" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxEntries = v
					}
				}
			}
		case "archive":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Archive.Dir = s
					}
				case "pattern":
					if s, ok := firstStringArg(cn); ok {
						cfg.Archive.Pattern = s
					}
				case "watch":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Archive.Watch = b
					}
				case "parallelism":
					if v, ok := firstIntArg(cn); ok {
						cfg.Archive.Parallelism = v
					}
				}
			}
		}
	}

	return cfg, nil
}

func parseResolver(n *document.Node, r *Resolver) error {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "chain":
			if args := collectStringArgs(cn); len(args) > 0 {
				r.Chain = args
			}
		case "disable-bounds":
			if b, ok := firstBoolArg(cn); ok {
				r.DisableBounds = b
			}
		case "threshold":
			// threshold "strict" 1.0
			name, ok := firstStringArg(cn)
			if !ok {
				return apperrors.NewConfigError("resolver.threshold", nil,
					fmt.Errorf("expects a strategy name and a value"))
			}
			v, ok := secondFloatArg(cn)
			if !ok {
				return apperrors.NewConfigError("resolver.threshold", name,
					fmt.Errorf("expects a numeric value after the strategy name"))
			}
			// Canonicalize so lookups match however the strategy was
			// spelled. Unknown names stay as written for Validate.
			if kind, err := strategy.ParseKind(name); err == nil {
				name = kind.String()
			}
			r.Thresholds[name] = v
		case "hidden-parent-threshold":
			if v, ok := firstFloatArg(cn); ok {
				r.HiddenParentThreshold = v
			}
		case "fuzzy-floor":
			if v, ok := firstFloatArg(cn); ok {
				r.FuzzyFloor = v
			}
		}
	}
	return nil
}

// Helper functions leveraging the kdl-go document model.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	return floatValue(n, n.Arguments[0].Value)
}

func secondFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) < 2 {
		return 0, false
	}
	return floatValue(n, n.Arguments[1].Value)
}

func floatValue(n *document.Node, raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid numeric value for '%s' in KDL config, expected number but got %T", nodeName(n), raw)
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block form: chain { "strict"; "standard" } puts each string in a
	// child node's name rather than an argument.
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
