// Package config loads typed configuration structs from the environment
// using caarlos0/env tags, after reading an optional .env file with godotenv.
//
// Every package in this module owns its Config struct; cmd/coord loads each
// one with Load, which parses a given type once and caches the result:
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
// Parse skips the cache and is what tests use after t.Setenv. LoadEnv reads
// additional env files; values already present in the environment win.
package config
