package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/gas-monitor/internal/config"
	"github.com/sweeney/gas-monitor/internal/demo"
	"github.com/sweeney/gas-monitor/internal/gpio"
	"github.com/sweeney/gas-monitor/internal/metrics"
	"github.com/sweeney/gas-monitor/internal/monitor"
	"github.com/sweeney/gas-monitor/internal/mqtt"
	"github.com/sweeney/gas-monitor/internal/serial"
	"github.com/sweeney/gas-monitor/internal/status"
	"github.com/sweeney/gas-monitor/internal/supervisor"
	"github.com/sweeney/gas-monitor/internal/web"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor daemon",
		Long: "Connects to the sensor board (falling back to demo telemetry if configured), " +
			"logs significant readings and serves status over HTTP until interrupted.",
		Args: cobra.NoArgs,
		RunE: runDaemon,
	}

	cmd.Flags().String("http", "", "HTTP status address (overrides http.addr; \"off\" disables)")
	cmd.Flags().String("broker", "", "MQTT broker URL (overrides mqtt.broker; \"off\" disables)")
	cmd.Flags().Bool("demo-fallback", true, "Use demo telemetry when the device cannot be reached (overrides link.demo_fallback)")
	cmd.Flags().String("on-link-lost", "", "reconnect or demo (overrides link.on_link_lost)")
	cmd.Flags().Bool("alarm", false, "Drive the GPIO alarm line (overrides alarm.enabled)")

	RootCmd.AddCommand(cmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &cfg); err != nil {
		return err
	}

	st, _ := openStore(cfg)
	log.Printf("store: %d entries in %s", st.Len(), cfg.Log.Path)

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}
	m := metrics.New()

	var publisher mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher = p
		m.WatchBacklog(p)
		tracker.SetMQTTConnected(p.IsConnected())

		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	var alarm gpio.Alarm
	if cfg.Alarm.Enabled {
		a, err := gpio.NewRealAlarm(cfg.Alarm.Chip, cfg.Alarm.Pin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		alarm = a
	}

	// Bind before starting anything so a bad address fails fast.
	var ln net.Listener
	if cfg.HTTP.Addr != "" {
		ln, err = net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			if alarm != nil {
				alarm.Close()
			}
			return fmt.Errorf("http listen: %w", err)
		}
	}

	opener := &serial.RealOpener{
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
		Settle:      cfg.Serial.Settle,
	}
	session := serial.NewSession(opener, serial.SessionOptions{
		Attempts: cfg.Serial.Attempts,
		Backoff:  cfg.Serial.Backoff,
	})
	policy, _ := supervisor.ParsePolicy(cfg.Link.OnLinkLost)
	sup := supervisor.New(supervisor.Config{
		Target:         cfg.Serial.Port,
		DemoFallback:   cfg.Link.DemoFallback,
		OnLinkLost:     policy,
		HealthInterval: cfg.Link.HealthInterval,
		PollInterval:   cfg.Link.PollInterval,
		RetryInterval:  cfg.Link.RetryInterval,
	}, session, opener, demo.New(nil))

	mon := monitor.New(st, tracker, monitor.Options{
		Publisher: publisher,
		Alarm:     alarm,
		Metrics:   m,
		Retention: cfg.Log.Retention,
		Network:   readNetworkInfo,
	})
	mon.RequestPrune()

	sched := cron.New()
	if cfg.Log.PruneSchedule != "" {
		if _, err := sched.AddFunc(cfg.Log.PruneSchedule, mon.RequestPrune); err != nil {
			return fmt.Errorf("prune schedule: %w", err)
		}
	}
	if publisher != nil && cfg.MQTT.Heartbeat > 0 {
		sched.Schedule(cron.Every(cfg.MQTT.Heartbeat), cron.FuncJob(mon.RequestHeartbeat))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	reason := "STOPPED"
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	g.Go(func() error {
		select {
		case s := <-sigCh:
			reason = signalName(s)
			log.Printf("received %v, shutting down", s)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		return sup.Run(gctx)
	})
	// The supervisor closes its event channel on exit, so the monitor sees
	// every final state change before returning.
	g.Go(func() error {
		return mon.Run(context.Background(), sup.Events())
	})

	if ln != nil {
		srv := web.New(cfg.HTTP.Addr, tracker, web.Options{Store: st, Metrics: m, Control: sup})
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
		log.Printf("http status server listening on %s", ln.Addr())
	}

	log.Printf("started: port=%q baud=%d log=%s broker=%q demo_fallback=%v on_link_lost=%s",
		cfg.Serial.Port, cfg.Serial.Baud, cfg.Log.Path, cfg.MQTT.Broker, cfg.Link.DemoFallback, cfg.Link.OnLinkLost)

	err = g.Wait()
	if err != nil {
		reason = "ERROR"
	}
	if ferr := mon.Shutdown(reason); ferr != nil {
		log.Printf("store: final save: %v", ferr)
	}
	log.Printf("stopped (%s)", reason)
	return err
}

// applyRunFlags overrides cfg with any run flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("http") {
		v, _ := flags.GetString("http")
		cfg.HTTP.Addr = offToEmpty(v)
	}
	if flags.Changed("broker") {
		v, _ := flags.GetString("broker")
		cfg.MQTT.Broker = offToEmpty(v)
	}
	if flags.Changed("demo-fallback") {
		cfg.Link.DemoFallback, _ = flags.GetBool("demo-fallback")
	}
	if flags.Changed("on-link-lost") {
		cfg.Link.OnLinkLost, _ = flags.GetString("on-link-lost")
	}
	if flags.Changed("alarm") {
		cfg.Alarm.Enabled, _ = flags.GetBool("alarm")
	}
	return cfg.Validate()
}

func offToEmpty(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Port:           cfg.Serial.Port,
		Baud:           cfg.Serial.Baud,
		LogPath:        cfg.Log.Path,
		SaveEvery:      cfg.Log.SaveEvery,
		Retention:      cfg.Log.Retention,
		DemoFallback:   cfg.Link.DemoFallback,
		LinkLostPolicy: cfg.Link.OnLinkLost,
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
