package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sidecus/raftleader/pkg/kvstore"
	"github.com/sidecus/raftleader/pkg/logstore"
	"github.com/sidecus/raftleader/pkg/metrics"
	"github.com/sidecus/raftleader/pkg/raft"
	"github.com/sidecus/raftleader/pkg/transport"
	"github.com/sidecus/raftleader/pkg/util"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raftleaderd",
		Short: "Runs a single node's Leader-core replication engine",
		Long: "raftleaderd demonstrates wiring the Leader replication core " +
			"(progress table, heartbeat loop, replicator, commit calculator, " +
			"pending-command queue) to real storage, transport and a key/value " +
			"state machine. It assumes this node is already leader: electing " +
			"one is outside the Leader core's scope.",
		RunE: run,
	}

	flags := root.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./raftleaderd.yaml)")
	flags.String("id", "", "this node's id")
	flags.String("listen", ":9090", "address to serve the transport RPC service on")
	flags.String("metrics-listen", ":9100", "address to serve /metrics on")
	flags.StringToString("peers", nil, "peer id=address pairs, e.g. b=localhost:9091,c=localhost:9092")
	flags.String("data-dir", "./data", "directory for the bbolt log store")
	flags.Int64("message-timeout-ms", 600, "heartbeat/message timeout in milliseconds")
	flags.Int("max-entries-per-request", 64, "max log entries per AppendEntries request")
	flags.Int("log-level", util.LevelInfo, "log verbosity (1=error .. 4=trace)")

	viper.BindPFlags(flags)

	return root
}

func run(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("raftleaderd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("RAFTLEADERD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	util.SetLogLevel(viper.GetInt("log-level"))

	self := viper.GetString("id")
	if self == "" {
		return fmt.Errorf("--id is required")
	}

	peers := viper.GetStringMapString("peers")
	voters := []string{self}
	addrByPeer := make(map[string]string, len(peers))
	for id, addr := range peers {
		voters = append(voters, id)
		addrByPeer[strings.ToLower(id)] = addr
	}
	topology := raft.NewTopology(voters)

	log, err := logstore.Open(viper.GetString("data-dir") + "/raftleader.db")
	if err != nil {
		return err
	}
	defer log.Close()

	store := kvstore.NewKVStore()

	engine := newStaticEngine(
		self,
		viper.GetInt64("message-timeout-ms"),
		viper.GetInt("max-entries-per-request"),
		topology,
		log,
		store,
	)

	client := transport.NewClient(self, func(peer string) (string, bool) {
		addr, ok := addrByPeer[strings.ToLower(peer)]
		return addr, ok
	})
	defer client.Close()

	leader, err := raft.New(self, engine, log, store, client)
	if err != nil {
		return fmt.Errorf("starting leader core: %w", err)
	}
	defer leader.Dispose()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	collector.Attach(leader)

	leader.OnFatalError(func(err error) {
		util.WriteError("%s: leader core retired itself after a fatal log error: %s", self, err)
	})

	dispatcher := &leaderDispatcher{leader: leader, store: store}
	server := transport.NewServer(dispatcher)
	go func() {
		if err := server.Serve(viper.GetString("listen")); err != nil {
			util.WriteError("transport server exited: %s", err)
		}
	}()
	defer server.GracefulStop()

	http.Handle("/metrics", promhttp.Handler())
	util.WriteInfo("%s: serving /metrics on %s", self, viper.GetString("metrics-listen"))
	return http.ListenAndServe(viper.GetString("metrics-listen"), nil)
}
