package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/quizchat/internal/infrastructure/env"
)

// DetermineConfigPath returns "" when no config file exists; Load then runs
// on defaults and environment variables alone.
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("QUIZCHAT_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"$HOME/.config/quizchat/config.yaml",
			"/etc/quizchat/config.yaml",
		}

		for _, p := range candidates {
			p = os.ExpandEnv(p)
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
