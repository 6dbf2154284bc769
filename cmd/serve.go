package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/superx/pkg/alert"
	"github.com/theapemachine/superx/pkg/cluster"
	"github.com/theapemachine/superx/pkg/errors"
	"github.com/theapemachine/superx/pkg/logging"
	"github.com/theapemachine/superx/pkg/protocol"
	"github.com/theapemachine/superx/pkg/push"
	"github.com/theapemachine/superx/pkg/registry"
	"github.com/theapemachine/superx/pkg/service"
	"github.com/theapemachine/superx/pkg/task"
	"github.com/theapemachine/superx/pkg/transport"
	"github.com/theapemachine/superx/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long:  longServe,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires every component (C1-C9) and starts C10's HTTP front door,
// blocking until an interrupt or terminate signal asks it to wind down.
func runServe() error {
	if path := viper.GetString("logging.auditLogPath"); path != "" {
		if err := logging.Init(path); err != nil {
			log.Error("audit log init failed", "error", err)
		}
		defer logging.Close()
	}

	reg := registry.New()
	if err := preloadAgents(reg); err != nil {
		log.Error("agent preload had errors", "error", err)
	}
	adapters := protocol.DefaultRegistry()
	trans := transport.New()

	var alerter worker.BreakerAlerter
	if token := viper.GetString("slack.botToken"); token != "" {
		alerter = alert.NewSlackAlerter(token, viper.GetString("slack.channel"))
	}

	workerCfg := worker.Config{
		MaxInFlight:      viper.GetInt("worker.maxInFlight"),
		FailureThreshold: viper.GetInt("worker.failureThreshold"),
		FailureWindow:    viper.GetDuration("worker.failureWindow"),
		Cooldown:         viper.GetDuration("worker.cooldown"),
		CallTimeout:      viper.GetDuration("worker.callTimeout"),
	}
	pool := worker.NewPool(workerCfg, trans, alerter)

	store := task.New(task.NewBus(), push.NewService())
	clusterView := cluster.New(viper.GetString("cluster.namespace"), viper.GetString("cluster.labelSelector"))

	gatewayCfg := service.Config{
		Addr:          viper.GetString("gateway.addr"),
		PublicBaseURL: viper.GetString("gateway.publicBaseURL"),
		CallTimeout:   viper.GetDuration("gateway.callTimeout"),
		CardCacheTTL:  viper.GetDuration("gateway.cardCacheTTL"),
		RateLimitRPS:  viper.GetInt64("gateway.rateLimitRPS"),
		RateLimitSpan: viper.GetDuration("gateway.rateLimitSpan"),
	}
	gw := service.New(gatewayCfg, reg, adapters, pool, store, trans, clusterView)

	go func() {
		log.Info("gateway listening", "addr", gatewayCfg.Addr)
		if err := gw.Start(); err != nil {
			log.Error("gateway stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := gw.Shutdown(ctx); err != nil {
		log.Error("gateway shutdown error", "error", err)
		return err
	}

	log.Info("gateway stopped")
	return nil
}

// agentConfig is one entry under the "agents" config key: agents to
// register before the gateway starts accepting traffic, alongside whatever
// gets registered later via the agents.upsert RPC.
type agentConfig struct {
	ID              string `mapstructure:"id"`
	URL             string `mapstructure:"url"`
	Bearer          string `mapstructure:"bearer"`
	Protocol        string `mapstructure:"protocol"`
	ProtocolVersion string `mapstructure:"protocolVersion"`
}

// preloadAgents registers every statically-configured agent, continuing
// past individual failures and returning them aggregated so one malformed
// entry doesn't keep the rest out of the registry.
func preloadAgents(reg *registry.Registry) error {
	var configs []agentConfig
	if err := viper.UnmarshalKey("agents", &configs); err != nil {
		return err
	}

	var failures []any
	for _, c := range configs {
		agent := &registry.Agent{
			ID:              c.ID,
			URL:             c.URL,
			Bearer:          c.Bearer,
			Protocol:        c.Protocol,
			ProtocolVersion: c.ProtocolVersion,
		}

		if !agent.Validate() {
			failures = append(failures, fmt.Sprintf("agent %q: missing id or url", c.ID))
			continue
		}

		reg.Upsert(agent)
	}

	if len(failures) > 0 {
		return errors.NewError(failures...)
	}
	return nil
}

var longServe = `
Serve the gateway, dispatching message.send/message.stream/tasks.* over
JSON-RPC to registered A2A and MCP agents.

Examples:
  # Serve on the configured address
  superx serve
`
