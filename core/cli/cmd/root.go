package cmd

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/geoflow/geoflow/core/cli/internal"
	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/logger"
)

// version is set from main via SetVersion
var version = "dev"

// SetVersion sets the version reported by --version and the runtime
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var (
	configFile string
	port       string
	logLevel   int
	verbose    bool
	logTags    string
	logFile    bool
)

// envFiles are tried in order; the first one found wins
var envFiles = []string{".env.local", ".env"}

var rootCmd = &cobra.Command{
	Use:           "geoflow",
	Short:         "GeoFlow\nChain-of-thought geospatial analysis backend",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "Path to the configuration file (default ./"+config.DefaultFile+")")
}

// resolvePathArg accepts either a project directory holding geoflow.yaml or a config file
func resolvePathArg(command string, args []string) error {
	log := logger.New(command)
	if len(args) == 0 {
		return nil
	}
	if configFile != "" {
		return log.Errorf("cannot combine path argument with --file")
	}

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return log.Errorf("invalid %s path %q: %w", command, target, err)
	}
	if info.IsDir() {
		configFile = filepath.Join(target, config.DefaultFile)
		return nil
	}
	configFile = target
	return nil
}

// loadEnvFiles loads the first env file found next to configPath, then in the
// working directory. Variables already present in the environment are kept.
// It returns the file that was loaded, or "".
func loadEnvFiles(configPath string) string {
	dirs := []string{"."}
	if dir := filepath.Dir(configPath); configPath != "" && dir != "." {
		dirs = append([]string{dir}, dirs...)
	}
	for _, dir := range dirs {
		for _, name := range envFiles {
			path := filepath.Join(dir, name)
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// loadConfig loads env files and the config. Without --file a missing
// geoflow.yaml falls back to defaults.
func loadConfig() (*config.Config, error) {
	if path := loadEnvFiles(configFile); path != "" {
		logger.New("main").Debugf("Loaded environment from %s", path)
	}
	return internal.LoadConfig(configFile, configFile != "")
}
