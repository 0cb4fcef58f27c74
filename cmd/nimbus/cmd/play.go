package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/catalog"
	"github.com/jmylchreest/nimbus/internal/database"
	"github.com/jmylchreest/nimbus/internal/gameservice"
	"github.com/jmylchreest/nimbus/internal/models"
	"github.com/jmylchreest/nimbus/internal/presence"
	"github.com/jmylchreest/nimbus/internal/repository"
	"github.com/jmylchreest/nimbus/internal/session"
	"github.com/jmylchreest/nimbus/internal/transport"
)

var playCmd = &cobra.Command{
	Use:   "play <title>",
	Short: "Launch a streaming session from the terminal",
	Long: `Launch a streaming session for the named title and stream until
interrupted. The title is resolved against the local catalog cache by id
or name. Press Ctrl-C to end the session; the remote session is stopped
and local resources are released before the command returns.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().String("profile", "", "Quality profile (defaults to session.default_profile)")
	playCmd.Flags().Bool("stats", false, "Print stats samples to stdout while streaming")
}

// terminalSink prints stats samples as single lines on stdout.
type terminalSink struct{}

func (terminalSink) Push(s models.StatsSample) {
	fmt.Printf("fps=%.1f latency=%.0fms bitrate=%dkbps loss=%.2f%% res=%s\n",
		s.FrameRate, s.LatencyMs, s.BitrateKbps, s.PacketLoss*100, s.Resolution())
}

// discardSink drops stats samples.
type discardSink struct{}

func (discardSink) Push(models.StatsSample) {}

func runPlay(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	creds := auth.NewFileSource(cfg.Auth.TokenFile, cfg.Auth.Token)
	catalogSvc := catalog.NewService(cfg.Catalog, repository.NewTitleRepository(db.DB), creds, logger)

	title, err := catalogSvc.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	profiles, err := models.LoadProfiles(cfg.Session.ProfilesFile)
	if err != nil {
		return fmt.Errorf("loading quality profiles: %w", err)
	}
	profileName, _ := cmd.Flags().GetString("profile")
	if profileName == "" {
		profileName = cfg.Session.DefaultProfile
	}
	profile, err := models.ResolveProfile(profiles, profileName)
	if err != nil {
		return err
	}

	var sink session.StatsSink = discardSink{}
	if show, _ := cmd.Flags().GetBool("stats"); show {
		sink = terminalSink{}
	}

	sessionCfg := session.DefaultConfig()
	sessionCfg.StatsInterval = cfg.Session.StatsInterval
	sessionCfg.StallWarnAfter = cfg.Session.StallWarnAfter
	sessionCfg.MountPoint = cfg.Transport.MountPoint

	controller := session.NewController(sessionCfg,
		session.NewRequestGate(creds),
		gameservice.New(cfg.Service, logger),
		transport.NewEngine(cfg.Transport, logger),
		presence.NewReporter(cfg.Presence, creds, logger),
		sink, logger)

	// Ctrl-C during negotiation cancels the launch; once streaming it
	// becomes the exit trigger instead.
	launchCtx, stopNotify := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stopNotify()

	fmt.Printf("launching %s (%s)\n", title.Name, profileName)
	if err := controller.Launch(launchCtx, session.TitleSelection{
		ID:      title.RemoteID,
		Name:    title.Name,
		StoreID: title.StoreID,
	}, profile); err != nil {
		return fmt.Errorf("launching session: %w", err)
	}
	stopNotify()

	fmt.Println("streaming; press Ctrl-C to exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := controller.Exit(context.Background()); err != nil {
		return fmt.Errorf("exiting session: %w", err)
	}
	fmt.Println("session ended")
	return nil
}
