package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/geoflow/geoflow/core/cli/internal"
	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/logger"
	"github.com/geoflow/geoflow/core/runtime"
)

var watch bool

const reloadDebounce = 500 * time.Millisecond

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:           "start [path]",
	Short:         "Run the GeoFlow server",
	RunE:          startServer,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&port, "port", "p", "", "Server port (overrides config file and PORT env var)")
	startCmd.Flags().IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG (overrides config file)")
	startCmd.Flags().BoolVarP(&verbose, "verbose", "", false, "Enable verbose logging (sets log level to DEBUG)")
	startCmd.Flags().StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides GEOFLOW_LOG_TAGS env var")
	startCmd.Flags().BoolVar(&logFile, "log-file", false, "Stream logs to file in /tmp/.geoflow/logs/")
	startCmd.Flags().BoolVar(&watch, "watch", false, "Watch the config and template files and hot-reload on changes")
}

func startServer(cmd *cobra.Command, args []string) error {
	if err := resolvePathArg("start", args); err != nil {
		return err
	}
	if watch {
		return startServerWithWatch()
	}
	rt, err := PrepareRuntime()
	if err != nil {
		return err
	}
	return rt.Start()
}

// reloadKind says how a file change is applied to a running server
type reloadKind int

const (
	reloadNone reloadKind = iota
	reloadTemplates
	reloadRestart
)

// classifyChange maps a changed path onto the reload it needs. Config changes
// rebuild the runtime; template changes are swapped in place.
func classifyChange(path, configPath, templatesPath string) reloadKind {
	clean := filepath.Clean(path)
	switch {
	case configPath != "" && clean == filepath.Clean(configPath):
		return reloadRestart
	case templatesPath != "" && clean == filepath.Clean(templatesPath):
		return reloadTemplates
	default:
		return reloadNone
	}
}

func startServerWithWatch() error {
	log := logger.New("watch")

	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultFile
		configFile = configPath
	}

	rt, err := PrepareRuntime()
	if err != nil {
		return err
	}
	templatesPath := rt.Config().Templates.File

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Directories are watched so editors that replace files on save are still seen
	watched := map[string]bool{}
	for _, path := range []string{configPath, templatesPath} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return log.Errorf("failed to watch %s: %w", dir, err)
		}
		watched[dir] = true
	}

	changes := make(chan reloadKind)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	defer close(done)

	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		pending := reloadNone
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				kind := classifyChange(event.Name, configPath, templatesPath)
				if kind == reloadNone {
					continue
				}
				// A restart also picks up template changes
				pending = max(pending, kind)
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				select {
				case changes <- pending:
				case <-done:
					return
				}
				pending = reloadNone
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("File watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	if templatesPath != "" {
		log.Infof("Watching %s and %s for changes", configPath, templatesPath)
	} else {
		log.Infof("Watching %s for changes", configPath)
	}

	if err := rt.StartAsync(); err != nil {
		return err
	}

	for {
		select {
		case <-sigChan:
			return rt.Stop()
		case kind := <-changes:
			if kind == reloadTemplates {
				log.Infof("Template changes detected, reloading")
				if err := rt.ReloadTemplates(); err != nil {
					log.Warnf("%v", err)
				}
				continue
			}

			log.Infof("Config changes detected, restarting")
			newRt, err := PrepareRuntime()
			if err != nil {
				log.Warnf("Reload failed, keeping current server running: %v", err)
				continue
			}
			if newRt.Config().Store.Backend == "memory" {
				log.Warnf("In-memory sessions are discarded on restart")
			}
			if err := rt.Stop(); err != nil {
				return log.Errorf("failed to stop server for reload: %w", err)
			}
			if err := newRt.StartAsync(); err != nil {
				return log.Errorf("failed to start new server: %w", err)
			}
			rt = newRt
			log.Infof("Server reloaded successfully")
		}
	}
}

// prepareLogging applies log flags. Config-file levels are applied later, once loaded.
func prepareLogging() (string, error) {
	log := logger.New("main")
	if verbose {
		logger.SetLogLevel(logger.LogLevelDebug)
	} else if logLevel > 0 {
		logger.SetLogLevel(logLevel)
	} else {
		logger.SetLogLevel(logger.LogLevelInfo)
	}

	// CLI flag takes precedence over env var
	tagFilterStr := logTags
	if tagFilterStr == "" {
		tagFilterStr = os.Getenv("GEOFLOW_LOG_TAGS")
	}
	if tagFilterStr != "" {
		logger.SetTagFilter(tagFilterStr)
	}

	if !logFile {
		return "", nil
	}
	filePath, err := logger.SetLogFile()
	if err != nil {
		return "", log.Errorf("failed to initialize log file: %w", err)
	}
	return filePath, nil
}

// loadConfig loads .env files next to the config file, then the config itself
// PrepareRuntime loads config, validates, and creates a runtime ready to start
func PrepareRuntime() (*runtime.Runtime, error) {
	log := logger.New("main")

	filePath, err := prepareLogging()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, log.Errorf("%w", err)
	}

	resolvedPort := internal.ResolvePort(port, cfg)
	if logLevel == 0 && !verbose {
		logger.SetLogLevel(internal.ResolveLogLevel(verbose, logLevel, cfg))
	}

	if filePath != "" {
		log.Infof("Log file: %s", filePath)
	}

	if cfg.Path() != "" {
		log.Infof("Configuration loaded from %s", cfg.Path())
	} else {
		log.Infof("No config file found, using defaults")
	}
	log.Debugf("Store backend: %s", cfg.Store.Backend)
	log.Debugf("Step delay: %s, workflow delay: %s", cfg.Workflow.StepDelay, cfg.Workflow.WorkflowDelay)
	if cfg.Templates.File != "" {
		log.Debugf("Templates: %s", cfg.Templates.File)
	}

	rt, err := runtime.NewRuntime(cfg, resolvedPort, version)
	if err != nil {
		return nil, log.Errorf("%w", err)
	}
	log.Infof("Runtime initialized")

	return rt, nil
}
