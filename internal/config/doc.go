// Package config loads runtime configuration with viper. Default() is the
// baseline; Load overlays a JSON or YAML file and STRATA_* environment
// variables, then validates the result.
//
//	cfg, err := config.Load("/etc/strata.yaml")
//	if err != nil { /* handle */ }
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
package config
