// Package config loads the spreader settings from a JSON file or, when the
// file is absent, from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/yaml"

	"github.com/sbahar619/namespace-label-spreader/internal/controller"
)

const (
	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = "config.json"

	// SourceEnvironment is reported as Config.Source when no file was found.
	SourceEnvironment = "environment"

	EnvKubeDefaultUser = "KUBE_DEFAULT_USER"
	EnvClusterServer   = "CLUSTER_SERVER"
	EnvClusterName     = "CLUSTER_NAME"
	EnvUserName        = "USER_NAME"
	EnvUserToken       = "USER_TOKEN"
	EnvContext         = "CONTEXT"
	EnvInsecure        = "INSECURE_REQUESTS"
	EnvSpreadLabels    = "SPREAD_NAMESPACE_LABELS"
	EnvSpreadKinds     = "SPREAD_KINDS"
	EnvCacheTime       = "CACHE_TIME"
	EnvLogLevel        = "LOG_LEVEL"

	defaultCacheSeconds = 180
	maxLogLevel         = 2
)

type Config struct {
	KubeDefaultUser  bool   // Use kubeconfig or in-cluster credentials
	ClusterServer    string // API server URL when not using the default user
	ClusterName      string
	UserName         string
	UserToken        string // Bearer token when not using the default user
	Context          string
	InsecureRequests bool // Skip TLS verification of the API server

	SpreadLabels []string // Namespace label keys copied onto resources
	SpreadKinds  []string // Kinds whose objects receive the labels
	CacheTime    time.Duration
	LogLevel     int

	// Source is the file the values came from, or SourceEnvironment.
	Source string
}

// Load reads path if it exists and falls back to lookupEnv otherwise; the two
// sources are never mixed. Keys missing from the chosen source take their
// defaults.
func Load(path string, lookupEnv func(string) (string, bool)) (Config, error) {
	if path == "" {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		values, err := parseFile(data)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg, err := parse(values.lookup)
		cfg.Source = path
		return cfg, err
	case errors.Is(err, fs.ErrNotExist):
		cfg, err := parse(lookupEnv)
		cfg.Source = SourceEnvironment
		return cfg, err
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
}

type fileValues map[string]string

// parseFile accepts JSON or YAML objects whose values may be strings, numbers
// or booleans. Null values count as unset.
func parseFile(data []byte) (fileValues, error) {
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	values := fileValues{}
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			values[k] = t
		case bool, float64, int64, int:
			values[k] = fmt.Sprint(t)
		default:
			return nil, fmt.Errorf("%s must be a string, number or boolean", k)
		}
	}
	return values, nil
}

func (v fileValues) lookup(key string) (string, bool) {
	s, ok := v[key]
	return s, ok
}

func parse(lookup func(string) (string, bool)) (Config, error) {
	var errs []error
	get := func(key string) string {
		s, _ := lookup(key)
		return strings.TrimSpace(s)
	}
	parseBool := func(key string) bool {
		s := get(key)
		if s == "" {
			return false
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, s))
		}
		return b
	}
	parseInt := func(key string, def int) int {
		s := get(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, s))
			return def
		}
		return n
	}

	cfg := Config{
		KubeDefaultUser:  parseBool(EnvKubeDefaultUser),
		ClusterServer:    get(EnvClusterServer),
		ClusterName:      get(EnvClusterName),
		UserName:         get(EnvUserName),
		UserToken:        get(EnvUserToken),
		Context:          get(EnvContext),
		InsecureRequests: parseBool(EnvInsecure),
		SpreadLabels:     splitList(get(EnvSpreadLabels)),
		SpreadKinds:      splitList(get(EnvSpreadKinds)),
		CacheTime:        time.Duration(parseInt(EnvCacheTime, defaultCacheSeconds)) * time.Second,
		LogLevel:         parseInt(EnvLogLevel, 0),
	}
	return cfg, utilerrors.NewAggregate(errs)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error

	for _, key := range c.SpreadLabels {
		if msgs := validation.IsQualifiedName(key); len(msgs) > 0 {
			errs = append(errs, fmt.Errorf("invalid label key '%s' in %s: %s", key, EnvSpreadLabels, strings.Join(msgs, ", ")))
		}
	}
	for _, kind := range c.SpreadKinds {
		if msgs := validation.IsDNS1123Label(strings.ToLower(kind)); len(msgs) > 0 {
			errs = append(errs, fmt.Errorf("invalid kind '%s' in %s: %s", kind, EnvSpreadKinds, strings.Join(msgs, ", ")))
		}
	}
	if c.CacheTime <= 0 {
		errs = append(errs, fmt.Errorf("%s must be a positive number of seconds", EnvCacheTime))
	}
	if c.LogLevel < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvLogLevel))
	}
	if !c.KubeDefaultUser {
		if c.ClusterServer == "" {
			errs = append(errs, fmt.Errorf("%s is required unless %s is true", EnvClusterServer, EnvKubeDefaultUser))
		}
		if c.UserToken == "" {
			errs = append(errs, fmt.Errorf("%s is required unless %s is true", EnvUserToken, EnvKubeDefaultUser))
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (c Config) Rule() controller.PropagationRule {
	return controller.NewPropagationRule(c.SpreadLabels, c.SpreadKinds)
}

// ZapLevel maps LOG_LEVEL onto zap so that logr V(n) messages show for n up to
// the configured level. Levels above the most verbose one in use are clamped.
func (c Config) ZapLevel() zapcore.Level {
	return zapcore.Level(-min(c.LogLevel, maxLogLevel))
}
