package config

import (
	"reflect"
	"sort"
	"sync"
)

// EnvMapping binds an environment variable to a dotted config path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
	Sensitive  bool
}

var loadEnvMappings = sync.OnceValue(func() []EnvMapping {
	var out []EnvMapping
	walkEnvTags(reflect.TypeFor[Config](), "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigPath < out[j].ConfigPath })
	return out
})

// GenerateEnvMappings lists every env-tagged field of Config, ordered by path.
func GenerateEnvMappings() []EnvMapping {
	return loadEnvMappings()
}

func walkEnvTags(t reflect.Type, prefix string, out *[]EnvMapping) {
	for i := range t.NumField() {
		f := t.Field(i)
		key := f.Tag.Get("koanf")
		if !f.IsExported() || key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct {
			walkEnvTags(f.Type, path, out)
			continue
		}
		if env := f.Tag.Get("env"); env != "" && env != "-" {
			*out = append(*out, EnvMapping{
				EnvVar:     env,
				ConfigPath: path,
				Sensitive:  f.Type == reflect.TypeFor[SensitiveString]() || f.Tag.Get("sensitive") == "true",
			})
		}
	}
}

// EnvVarFor returns the environment variable bound to path, or "".
func EnvVarFor(path string) string {
	for _, m := range loadEnvMappings() {
		if m.ConfigPath == path {
			return m.EnvVar
		}
	}
	return ""
}

// IsSensitivePath reports whether the value at path must be redacted.
func IsSensitivePath(path string) bool {
	for _, m := range loadEnvMappings() {
		if m.ConfigPath == path {
			return m.Sensitive
		}
	}
	return false
}
