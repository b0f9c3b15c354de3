package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/kingston115/pidtune/internal/advisor"
	"github.com/kingston115/pidtune/internal/analysis"
	"github.com/kingston115/pidtune/internal/config"
	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/metrics"
	"github.com/kingston115/pidtune/internal/plant"
	"github.com/kingston115/pidtune/internal/storage"
	"github.com/kingston115/pidtune/internal/telemetry"
	"github.com/kingston115/pidtune/internal/tui"
	"github.com/kingston115/pidtune/internal/tune"
)

var (
	dataDir    string
	configFile string
	preset     string

	setpoint      float64
	interval      time.Duration
	kp            float64
	ki            float64
	kd            float64
	maxRounds     int
	maxGainChange float64
	seed          int64
	noise         float64

	advisorURL     string
	advisorModel   string
	advisorKey     string
	advisorTimeout time.Duration

	live        bool
	metricsPort int

	feedTimeout time.Duration

	stepOutput   float64
	stepDuration time.Duration
	fromSession  string

	exportPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pidtune",
		Short: "closed-loop PID tuning with an external advisor",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "sessions", "session data directory")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "run a tuning session against the simulated plant",
		RunE:  runTune,
	}
	addSessionFlags(tuneCmd)
	tuneCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "plant noise seed")
	tuneCmd.Flags().Float64Var(&noise, "noise", config.DefaultConfig().Plant.NoiseLevel, "sensor noise stddev")
	tuneCmd.Flags().BoolVar(&live, "live", false, "live terminal view")
	tuneCmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port")

	bridgeCmd := &cobra.Command{
		Use:   "bridge",
		Short: "tune a real controller over the stdin/stdout wire protocol",
		Long: `Reads telemetry lines (timestamp_ms,setpoint,input,pwm,error[,kp,ki,kd])
from stdin and writes SET/SETPOINT/RESET commands to stdout. Point both at a
serial relay to tune a physical rig.`,
		RunE: runBridge,
	}
	addSessionFlags(bridgeCmd)
	bridgeCmd.Flags().DurationVar(&feedTimeout, "feed-timeout", 2*time.Second, "max wait for a telemetry line per tick")

	suggestCmd := &cobra.Command{
		Use:   "suggest",
		Short: "estimate initial gains from a step response",
		RunE:  runSuggest,
	}
	suggestCmd.Flags().Float64Var(&stepOutput, "output", 255, "held control output for the step")
	suggestCmd.Flags().DurationVar(&stepDuration, "duration", 30*time.Second, "step length")
	suggestCmd.Flags().DurationVar(&interval, "interval", config.DefaultInterval, "sample interval")
	suggestCmd.Flags().Int64Var(&seed, "seed", 1, "plant noise seed")
	suggestCmd.Flags().StringVar(&fromSession, "session", "", "identify from a stored session instead of simulating")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored sessions",
		RunE:  runList,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [session_id]",
		Short: "plot a stored session",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlot,
	}

	exportCmd := &cobra.Command{
		Use:   "export [session_id]",
		Short: "export a stored session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&exportPath, "out", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	rootCmd.AddCommand(tuneCmd, bridgeCmd, suggestCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSessionFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "configuration preset")
	cmd.Flags().Float64Var(&setpoint, "setpoint", def.Control.Setpoint, "target process value")
	cmd.Flags().DurationVar(&interval, "interval", def.Control.Interval, "control tick interval")
	cmd.Flags().Float64Var(&kp, "kp", def.Control.Kp, "initial proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", def.Control.Ki, "initial integral gain")
	cmd.Flags().Float64Var(&kd, "kd", def.Control.Kd, "initial derivative gain")
	cmd.Flags().IntVar(&maxRounds, "rounds", def.Tuning.MaxRounds, "advisory round budget")
	cmd.Flags().Float64Var(&maxGainChange, "max-gain-change", def.Tuning.MaxGainChange, "per-round gain change fraction, 0 disables")
	cmd.Flags().StringVar(&advisorURL, "advisor-url", def.Advisor.BaseURL, "OpenAI-compatible API base URL")
	cmd.Flags().StringVar(&advisorModel, "model", def.Advisor.Model, "advisor model name")
	cmd.Flags().StringVar(&advisorKey, "api-key", "", "advisor API key (or PIDTUNE_API_KEY)")
	cmd.Flags().DurationVar(&advisorTimeout, "advisor-timeout", def.Advisor.Timeout, "per-round advisory timeout")
}

func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// CLI flags override preset and config file.
	f := cmd.Flags()
	if f.Changed("setpoint") {
		cfg.Control.Setpoint = setpoint
	}
	if f.Changed("interval") {
		cfg.Control.Interval = interval
	}
	if f.Changed("kp") {
		cfg.Control.Kp = kp
	}
	if f.Changed("ki") {
		cfg.Control.Ki = ki
	}
	if f.Changed("kd") {
		cfg.Control.Kd = kd
	}
	if f.Changed("rounds") {
		cfg.Tuning.MaxRounds = maxRounds
	}
	if f.Changed("max-gain-change") {
		cfg.Tuning.MaxGainChange = maxGainChange
	}
	if f.Changed("noise") {
		cfg.Plant.NoiseLevel = noise
	}
	if f.Changed("advisor-url") {
		cfg.Advisor.BaseURL = advisorURL
	}
	if f.Changed("model") {
		cfg.Advisor.Model = advisorModel
	}
	if f.Changed("api-key") {
		cfg.Advisor.APIKey = advisorKey
	}
	if f.Changed("advisor-timeout") {
		cfg.Advisor.Timeout = advisorTimeout
	}
	if f.Changed("metrics-port") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = metricsPort
	}
	if cfg.Advisor.APIKey == "" {
		cfg.Advisor.APIKey = os.Getenv("PIDTUNE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sessionDir resolves the data directory: the --data flag when set,
// else the config file's storage dir, else the flag default.
func sessionDir(cmd *cobra.Command, cfg *config.Config) string {
	if f := cmd.Flag("data"); f != nil && f.Changed {
		return dataDir
	}
	if cfg.Storage.Dir != "" {
		return cfg.Storage.Dir
	}
	return dataDir
}

// buildSession assembles the controller, window, advisor client and
// orchestrator shared by the tune and bridge commands.
func buildSession(cfg *config.Config, p plant.Plant, realtime bool) (*tune.Orchestrator, *control.PID, error) {
	pid, err := control.NewPID(
		control.Gains{Kp: cfg.Control.Kp, Ki: cfg.Control.Ki, Kd: cfg.Control.Kd},
		control.Limits{
			OutputMax:   cfg.Control.OutputMax,
			RateMax:     cfg.Control.RateMax,
			IntegralMax: cfg.Control.IntegralMax,
		},
	)
	if err != nil {
		return nil, nil, err
	}

	w, err := telemetry.NewWindow(cfg.Window.Capacity, cfg.Window.AnalysisSize,
		cfg.Window.ConvergenceSize, cfg.Window.Threshold)
	if err != nil {
		return nil, nil, err
	}

	adv := advisor.NewClient(advisor.ClientConfig{
		BaseURL:     cfg.Advisor.BaseURL,
		APIKey:      cfg.Advisor.APIKey,
		Model:       cfg.Advisor.Model,
		Temperature: cfg.Advisor.Temperature,
		MaxTokens:   cfg.Advisor.MaxTokens,
		Timeout:     cfg.Advisor.Timeout,
	})

	orch, err := tune.New(pid, p, w, adv, tune.Options{
		Interval:       cfg.Control.Interval,
		Setpoint:       cfg.Control.Setpoint,
		MaxRounds:      cfg.Tuning.MaxRounds,
		MaxGainChange:  cfg.Tuning.MaxGainChange,
		AdvisorTimeout: cfg.Advisor.Timeout,
		Realtime:       realtime,
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, pid, nil
}

func newThermal(cfg *config.Config, seed int64) *plant.Thermal {
	th := plant.NewThermal(seed)
	th.Ambient = cfg.Plant.Ambient
	th.HeaterCoeff = cfg.Plant.HeaterCoeff
	th.HeaterLag = cfg.Plant.HeaterLag
	th.Transfer = cfg.Plant.Transfer
	th.Cooling = cfg.Plant.Cooling
	th.OutputScale = cfg.Control.OutputMax
	th.NoiseLevel = cfg.Plant.NoiseLevel
	th.Reset(cfg.Plant.Ambient)
	return th
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("seed") && cfg.Plant.Seed != 0 {
		seed = cfg.Plant.Seed
	}
	th := newThermal(cfg, seed)
	orch, _, err := buildSession(cfg, th, live)
	if err != nil {
		return err
	}

	st := storage.New(sessionDir(cmd, cfg))
	if err := st.Init(); err != nil {
		return err
	}
	recorder := storage.NewRecorder()
	orch.AddObserver(recorder)

	if cfg.Metrics.Enabled {
		m := metrics.New()
		orch.AddObserver(m)
		m.Serve(cfg.Metrics.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rep tune.Report
	var runErr error

	if live {
		obs := tui.NewChannelObserver()
		orch.AddObserver(obs)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan struct{})
		go func() {
			rep, runErr = orch.Run(runCtx)
			close(done)
		}()

		p := tea.NewProgram(tui.NewModel(obs.Events(), cancel, cfg.Control.Setpoint))
		if _, err := p.Run(); err != nil {
			cancel()
			<-done
			return err
		}
		cancel()
		<-done
	} else {
		orch.AddObserver(&consoleObserver{logEvery: cfg.Window.Capacity})
		log.Printf("Starting tuning session (setpoint: %.1f, interval: %v, rounds: %d, gains: P=%.3f I=%.3f D=%.3f)",
			cfg.Control.Setpoint, cfg.Control.Interval, cfg.Tuning.MaxRounds,
			cfg.Control.Kp, cfg.Control.Ki, cfg.Control.Kd)
		rep, runErr = orch.Run(ctx)
	}

	if runErr != nil && !errors.Is(runErr, tune.ErrRoundLimit) && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	id, err := recorder.Persist(st, cfg.Control.Setpoint, cfg.Control.Interval)
	if err != nil {
		return err
	}
	printReport(rep, id)
	return nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	feed := plant.NewFeed(64, feedTimeout)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if rec, ok := telemetry.ParseLine(scanner.Text()); ok {
				feed.PushReading(rec.Sample.Measured, rec.Sample.Output)
			}
		}
	}()

	orch, _, err := buildSession(cfg, feed, false)
	if err != nil {
		return err
	}

	st := storage.New(sessionDir(cmd, cfg))
	if err := st.Init(); err != nil {
		return err
	}
	recorder := storage.NewRecorder()
	orch.AddObserver(recorder)
	orch.AddObserver(&commander{out: os.Stdout})
	orch.AddObserver(&consoleObserver{logEvery: cfg.Window.Capacity})

	// Put the device in a known state before the first tick.
	fmt.Println(telemetry.SetpointCommand(cfg.Control.Setpoint))
	fmt.Println(telemetry.SetCommand(control.Gains{Kp: cfg.Control.Kp, Ki: cfg.Control.Ki, Kd: cfg.Control.Kd}))
	fmt.Println(telemetry.ResetCommand)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting bridge session (setpoint: %.1f, feed timeout: %v)",
		cfg.Control.Setpoint, feedTimeout)
	rep, runErr := orch.Run(ctx)
	if runErr != nil && !errors.Is(runErr, tune.ErrRoundLimit) && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	id, err := recorder.Persist(st, cfg.Control.Setpoint, cfg.Control.Interval)
	if err != nil {
		return err
	}
	printReport(rep, id)
	return nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	var samples []telemetry.Sample

	if fromSession != "" {
		st := storage.New(dataDir)
		records, err := st.LoadRecords(fromSession)
		if err != nil {
			return err
		}
		for _, r := range records {
			samples = append(samples, r.Sample)
		}
	} else {
		th := plant.NewThermal(seed)
		th.NoiseLevel = 0

		dt := interval.Seconds()
		steps := int(stepDuration.Seconds() / dt)
		elapsed := time.Duration(0)
		for i := 0; i < steps; i++ {
			measured, err := th.Advance(context.Background(), stepOutput, dt)
			if err != nil {
				return err
			}
			elapsed += interval
			samples = append(samples, telemetry.NewSample(elapsed, 0, measured, stepOutput))
		}
	}

	model, err := analysis.EstimateFOPDT(samples)
	if err != nil {
		return err
	}

	gains, err := model.ZieglerNichols()
	if err != nil {
		return err
	}

	measured := make([]float64, len(samples))
	for i, s := range samples {
		measured[i] = s.Measured
	}
	fmt.Println(asciigraph.Plot(measured,
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption("step response"),
	))
	fmt.Println()

	fmt.Printf("model: %s\n", model)
	fmt.Printf("suggested gains (Ziegler-Nichols open loop):\n")
	fmt.Printf("  kp: %.4f\n", gains.Kp)
	fmt.Printf("  ki: %.4f\n", gains.Ki)
	fmt.Printf("  kd: %.4f\n", gains.Kd)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	sessions, err := st.List()
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("no sessions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSTATE\tROUNDS\tSETPOINT\tFINAL P/I/D\tBEST MEAN ERR")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t%.3f/%.3f/%.3f\t%.2f\n",
			s.ID,
			s.Timestamp.Format("2006-01-02 15:04:05"),
			s.State,
			len(s.Rounds),
			s.Setpoint,
			s.FinalGains.Kp, s.FinalGains.Ki, s.FinalGains.Kd,
			s.BestMeanErr,
		)
	}

	return w.Flush()
}

func runPlot(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	records, err := st.LoadRecords(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("session: %s\n", meta.ID)
	fmt.Printf("state: %s, rounds: %d, setpoint: %.1f\n\n", meta.State, len(meta.Rounds), meta.Setpoint)

	measured := make([]float64, len(records))
	errs := make([]float64, len(records))
	for i, r := range records {
		measured[i] = r.Sample.Measured
		errs[i] = r.Sample.Error
	}

	fmt.Println(asciigraph.Plot(measured,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("measured"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(errs,
		asciigraph.Height(6),
		asciigraph.Width(80),
		asciigraph.Caption("error"),
	))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	return st.ExportJSON(args[0], exportPath)
}

func printReport(rep tune.Report, sessionID string) {
	fmt.Printf("\nsession %s: %s\n", sessionID, rep.State)
	fmt.Printf("rounds: %d, ticks: %d, elapsed: %v\n", rep.Rounds, rep.Ticks, rep.Elapsed.Round(time.Millisecond))
	fmt.Printf("final gains: P=%.4f I=%.4f D=%.4f\n", rep.FinalGains.Kp, rep.FinalGains.Ki, rep.FinalGains.Kd)
	if rep.HaveBest {
		fmt.Printf("best gains:  P=%.4f I=%.4f D=%.4f (mean |error| %.2f)\n",
			rep.BestGains.Kp, rep.BestGains.Ki, rep.BestGains.Kd, rep.BestMeanErr)
	}
}

// commander pushes gain changes to the device side of the bridge.
type commander struct {
	out io.Writer
}

func (c *commander) OnTick(telemetry.Sample, control.Gains) {}

func (c *commander) OnRound(r tune.Round) {
	if r.Outcome == tune.OutcomeApplied || r.Outcome == tune.OutcomeConverged {
		fmt.Fprintln(c.out, telemetry.SetCommand(r.Gains))
	}
}

func (c *commander) OnFinish(tune.Report) {}

// consoleObserver logs a status line once per window and every round.
type consoleObserver struct {
	logEvery int
	ticks    int
}

func (c *consoleObserver) OnTick(s telemetry.Sample, g control.Gains) {
	c.ticks++
	if c.logEvery > 0 && c.ticks%c.logEvery == 0 {
		log.Printf("Status: t=%.1fs | measured: %.2f | output: %.1f | error: %.2f",
			s.Elapsed.Seconds(), s.Measured, s.Output, s.Error)
	}
}

func (c *consoleObserver) OnRound(r tune.Round) {
	log.Printf("Round %d: %s | mean |error|: %.2f, max: %.2f | P=%.3f I=%.3f D=%.3f",
		r.Number, r.Outcome, r.MeanAbsError, r.MaxAbsError, r.Gains.Kp, r.Gains.Ki, r.Gains.Kd)
}

func (c *consoleObserver) OnFinish(rep tune.Report) {
	log.Printf("Session %s after %d rounds (%d ticks)", rep.State, rep.Rounds, rep.Ticks)
}
