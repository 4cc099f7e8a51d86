package config

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// loader implements the Service interface for configuration management.
type loader struct {
	koanf      *koanf.Koanf
	validator  *validator.Validate
	metadata   Metadata
	metadataMu sync.RWMutex
}

func sensitiveStringDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(SensitiveString("")) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return SensitiveString(v), nil
	case []byte:
		return SensitiveString(v), nil
	default:
		return data, nil
	}
}

// NewService creates a new configuration service with validation support.
func NewService() Service {
	v := validator.New()
	if err := RegisterCustomValidators(v); err != nil {
		panic(fmt.Sprintf("config: register validators: %v", err))
	}
	return &loader{
		koanf:     koanf.New("."),
		validator: v,
		metadata: Metadata{
			Sources: make(map[string]SourceType),
		},
	}
}

// Load merges defaults, files, environment and CLI flags in that order of
// precedence, then decodes and validates the result.
func (l *loader) Load(_ context.Context, sources ...Source) (*Config, error) {
	l.reset()
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	l.trackChanges(nil, SourceDefault)
	var files, flags []Source
	for _, source := range sources {
		switch {
		case source == nil || source.Type() == SourceEnv:
		case source.Type() == SourceCLI:
			flags = append(flags, source)
		default:
			files = append(files, source)
		}
	}
	for _, source := range files {
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}
	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}
	for _, source := range flags {
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}
	return l.unmarshalAndValidate()
}

func (l *loader) reset() {
	l.koanf = koanf.New(".")
	l.metadataMu.Lock()
	l.metadata.Sources = make(map[string]SourceType)
	l.metadata.LoadedAt = time.Now()
	l.metadataMu.Unlock()
}

func (l *loader) snapshot() map[string]any {
	out := make(map[string]any, len(l.koanf.Keys()))
	for _, key := range l.koanf.Keys() {
		out[key] = l.koanf.Get(key)
	}
	return out
}

// trackChanges attributes every key that is new or changed since before to source.
func (l *loader) trackChanges(before map[string]any, source SourceType) {
	for _, key := range l.koanf.Keys() {
		prev, existed := before[key]
		if !existed || !reflect.DeepEqual(prev, l.koanf.Get(key)) {
			l.trackSource(key, source)
		}
	}
}

// loadEnvironment applies only the variables declared through env tags.
func (l *loader) loadEnvironment() error {
	before := l.snapshot()
	envToPath := make(map[string]string)
	for _, m := range GenerateEnvMappings() {
		envToPath[m.EnvVar] = m.ConfigPath
	}
	err := l.koanf.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return envToPath[key], value
		},
	}), nil)
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	l.trackChanges(before, SourceEnv)
	return nil
}

func (l *loader) loadSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	before := l.snapshot()
	if source.Type() == SourceYAML {
		// set key by key so sibling defaults under a partial section survive
		for key, value := range flattenMap("", data) {
			if err := l.koanf.Set(key, value); err != nil {
				return fmt.Errorf("failed to set key %s from source %s: %w", key, source.Type(), err)
			}
		}
	} else if err := l.koanf.Load(rawMap(data), nil); err != nil {
		return fmt.Errorf("failed to apply source %s: %w", source.Type(), err)
	}
	l.trackChanges(before, source.Type())
	return nil
}

func flattenMap(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		nested, ok := v.(map[string]any)
		if !ok {
			out[key] = v
			continue
		}
		for fk, fv := range flattenMap(key, nested) {
			out[fk] = fv
		}
	}
	return out
}

func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				sensitiveStringDecodeHook,
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate runs the struct tag rules and then the cross-field checks.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := l.validateCustom(config); err != nil {
		return fmt.Errorf("custom validation failed: %w", err)
	}
	return nil
}

// GetSource reports which source last set key.
func (l *loader) GetSource(key string) SourceType {
	l.metadataMu.RLock()
	defer l.metadataMu.RUnlock()
	if source, ok := l.metadata.Sources[key]; ok {
		return source
	}
	return SourceDefault
}

func (l *loader) trackSource(key string, source SourceType) {
	l.metadataMu.Lock()
	defer l.metadataMu.Unlock()
	l.metadata.Sources[key] = source
}

func (l *loader) validateCustom(config *Config) error {
	if err := validateDatabase(&config.Database); err != nil {
		return err
	}
	if config.Source.Driver == "s3" && config.Source.S3.Bucket == "" {
		return fmt.Errorf("source s3 bucket is required when source driver is s3")
	}
	if config.Source.Driver == "fs" && config.Source.Dir == "" {
		return fmt.Errorf("source dir is required when source driver is fs")
	}
	if err := validateNotify(&config.Notify); err != nil {
		return err
	}
	if config.Lock.Driver == "redis" && config.Lock.Key == "" {
		return fmt.Errorf("lock key is required when lock driver is redis")
	}
	if config.Runtime.LoadRetries > 0 && config.Runtime.RetryBackoff <= 0 {
		return fmt.Errorf("runtime retry_backoff must be positive when load_retries is set")
	}
	return nil
}

func validateDatabase(db *DatabaseConfig) error {
	switch db.Driver {
	case "sqlite":
		if strings.TrimSpace(db.SQLitePath) == "" {
			return fmt.Errorf("database sqlite_path is required for the sqlite driver")
		}
		return nil
	default:
		if db.ConnString != "" {
			return nil
		}
		var missing []string
		if db.Host == "" {
			missing = append(missing, "host")
		}
		if db.User == "" {
			missing = append(missing, "user")
		}
		if db.Password.Value() == "" {
			missing = append(missing, "password")
		}
		if db.DBName == "" {
			missing = append(missing, "name")
		}
		if len(missing) > 0 {
			return fmt.Errorf(
				"database configuration incomplete: missing %s (or provide conn_string)",
				strings.Join(missing, ", "),
			)
		}
		return nil
	}
}

func validateNotify(n *NotifyConfig) error {
	switch n.Driver {
	case "smtp":
		s := n.SMTP
		if s.Host == "" || s.Port == 0 || s.User == "" || s.Password.Value() == "" || s.Recipient == "" {
			return fmt.Errorf("smtp notification requires host, port, user, password and recipient")
		}
	case "webhook":
		u, err := url.Parse(n.Webhook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook notification requires an absolute url")
		}
	}
	return nil
}

// rawMap feeds an already decoded map to koanf.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
