package serve

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/cedarkv/cedar/cmd/util"
	"github.com/cedarkv/cedar/lib/config"
	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/lib/logging"
	"github.com/cedarkv/cedar/lib/memory"
)

var (
	// ServeCmd runs the store until interrupted
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the cedar store",
		Long:  `Run the cedar store with the specified configuration. The configuration can be set via a config file or environment variables. The format of the environment variables is CEDAR_<option> (e.g. CEDAR_DATABASES=32)`,
		RunE:  run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitEnv)

	// add flags
	key := "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which keyspace metrics are exposed in Prometheus format (e.g. localhost:9121), empty disables the endpoint"))

	key = "cron-interval"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("The interval of the maintenance loop in milliseconds. Each tick performs incremental rehashing, active expiration and snapshot scheduling"))
}

func run(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	logging.InitLoggers(cfg.LogLevel)
	lg := logging.GetLogger("cli")

	fmt.Println(cfg.String())

	srv := db.NewServer(cfg)

	// restore the previous dataset if a snapshot exists
	path := srv.SnapshotPath()
	if _, err := os.Stat(path); err == nil {
		if err := srv.Load(path); err != nil {
			return fmt.Errorf("failed to load snapshot %s: %w", path, err)
		}
	} else {
		lg.Infof("no snapshot at %s, starting empty", path)
	}

	// apply config file edits at runtime
	if file := viper.GetString("config"); file != "" {
		stop, err := config.Watch(file, srv.SetConfig)
		if err != nil {
			return err
		}
		defer stop()
	}

	// expose keyspace metrics
	if endpoint := viper.GetString("metrics-endpoint"); endpoint != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			vm.WritePrometheus(w, true)
		})
		go func() {
			lg.Infof("metrics on http://%s/metrics", endpoint)
			if err := http.ListenAndServe(endpoint, mux); err != nil {
				lg.Errorf("metrics endpoint failed: %v", err)
			}
		}()
	}

	interval := time.Duration(viper.GetInt("cron-interval")) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	lg.Infof("cedar ready, %d databases, %d bytes in use", srv.NumDatabases(), memory.Used())

	for {
		select {
		case <-ticker.C:
			srv.Cron()
		case s := <-sig:
			lg.Infof("received %s, saving before shutdown", s)
			// wait out an in-flight background save so the final save
			// does not race it on the temp file
			for srv.BackgroundSaveInProgress() {
				time.Sleep(10 * time.Millisecond)
				srv.ReapBackgroundSave()
			}
			if err := srv.Save(path); err != nil {
				return err
			}
			return nil
		}
	}
}
