// Package sundaecli provides the CLI and Lambda boilerplate shared by the gateway
// binaries: service identity, common flags, structured logging and CloudWatch metrics.
package sundaecli

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func App(service Service, action cli.ActionFunc, flags ...cli.Flag) *cli.App {
	return &cli.App{
		Name:                 service.Name,
		Usage:                fmt.Sprintf("%v websocket gateway", service.Name),
		Version:              service.Version,
		EnableBashCompletion: true,
		Before:               InitCommonOpts,
		Action:               action,
		Flags:                flags,
	}
}

// InitCommonOpts validates CommonOpts after flag parsing and applies the global log level.
func InitCommonOpts(c *cli.Context) error {
	if CommonOpts.LogLevel == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(CommonOpts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %v: %w", CommonOpts.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func CommitHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
		return info.Main.Version
	}
	return "unknown"
}
