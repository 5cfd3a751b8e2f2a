package main

import (
	"flag"
	"fmt"
	"github.com/adrg/xdg"
	"github.com/jypelle/jukeboxsrv/internal/srv"
	"github.com/jypelle/jukeboxsrv/internal/srv/config"
	"github.com/jypelle/jukeboxsrv/internal/version"
	"github.com/sirupsen/logrus"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

const configSuffix = "jukeboxsrv"

func main() {

	// Logger
	logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true})

	mainCommand := filepath.Base(os.Args[0])

	// region Flags and Commands definition

	// Debug Mode
	debugMode := flag.Bool("d", false, "Enable debug mode")

	// User config dir
	defaultConfigDir := filepath.Join(xdg.ConfigHome, configSuffix)
	configDir := flag.String("c", defaultConfigDir, "Location of jukeboxsrv config folder")

	// Usage
	flag.Usage = func() {
		fmt.Printf("\nUsage: %s [OPTIONS] [COMMAND]\n", mainCommand)
		fmt.Printf("\nA jukebox playing paid requests first and random songs otherwise\n")
		fmt.Printf("\nOptions:\n")
		flag.PrintDefaults()
		fmt.Printf("\nCommands:\n")
		fmt.Printf("  run       Run server\n")
		fmt.Printf("  scan      Regenerate the music catalog\n")
		fmt.Printf("  request   Add a paid request\n")
		fmt.Printf("  report    Show play statistics\n")
		fmt.Printf("  version   Show the version number\n")
		fmt.Printf("\nRun '%s COMMAND --help' for more information on a command.\n", mainCommand)
	}

	// run command
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)

	runCmd.Usage = func() {
		fmt.Printf("\nUsage: %s run\n", mainCommand)
		fmt.Printf("\nRun the server\n")
	}

	// scan command
	scanCmd := flag.NewFlagSet("scan", flag.ExitOnError)

	scanCmd.Usage = func() {
		fmt.Printf("\nUsage: %s scan\n", mainCommand)
		fmt.Printf("\nRegenerate the music catalog from the music folder\n")
	}

	// request command
	requestCmd := flag.NewFlagSet("request", flag.ExitOnError)

	requestCmd.Usage = func() {
		fmt.Printf("\nUsage: %s request INDEX\n", mainCommand)
		fmt.Printf("\nAdd a paid request for the song at catalog position INDEX\n")
	}

	// report command
	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)

	reportCmd.Usage = func() {
		fmt.Printf("\nUsage: %s report\n", mainCommand)
		fmt.Printf("\nShow total plays, unique songs played and the most played songs\n")
	}

	// version command
	versionCmd := flag.NewFlagSet("version", flag.ExitOnError)

	versionCmd.Usage = func() {
		fmt.Printf("\nUsage: %s version\n", mainCommand)
		fmt.Printf("\nShow the version information\n")
	}

	// endregion

	// region Flags and Commands Parsing
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	var requestIndex int
	var err error

	switch flag.Arg(0) {
	case "run":
		parseNoArgs(runCmd, mainCommand)
	case "scan":
		parseNoArgs(scanCmd, mainCommand)
	case "request":
		requestCmd.Parse(flag.Args()[1:])
		if requestCmd.NArg() != 1 {
			fmt.Printf("\n\"%s %s\" requires exactly 1 argument\n", mainCommand, flag.Arg(0))
			requestCmd.Usage()
			os.Exit(1)
		}
		requestIndex, err = strconv.Atoi(requestCmd.Arg(0))
		if err != nil || requestIndex < 0 {
			fmt.Printf("\n%s is not a song index\n", requestCmd.Arg(0))
			os.Exit(1)
		}
	case "report":
		parseNoArgs(reportCmd, mainCommand)
	case "version":
		parseNoArgs(versionCmd, mainCommand)
	default:
		fmt.Printf("\n%s is not a jukeboxsrv command\n", flag.Args()[0])
		flag.Usage()
		os.Exit(1)
	}
	// endregion

	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
		logrus.Printf("Debug mode activated")
	}

	if versionCmd.Parsed() {
		fmt.Printf("Version %s\n", version.AppVersion.String())
		return
	}

	if runCmd.Parsed() {
		// Create jukebox server
		serverApp, err := srv.NewServerApp(*configDir, *debugMode)
		if err != nil {
			logrus.Fatalf("Unable to create jukebox server: %v", err)
		}

		// Listen stop signal
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

		// Start jukebox server
		serverApp.Start()

		sig := <-ch
		logrus.Infof("Received signal: %v", sig)
		serverApp.Stop()

		fmt.Print(serverApp.Report())
		return
	}

	serverConfig, err := config.NewServerConfig(*configDir, *debugMode)
	if err != nil {
		logrus.Fatalf("Unable to load configuration: %v", err)
	}
	defer serverConfig.FlushSave()

	switch {
	case scanCmd.Parsed():
		c, err := srv.ScanCatalog(serverConfig)
		if err != nil {
			logrus.Fatalf("Unable to scan music folder: %v", err)
		}
		fmt.Printf("%d songs in catalog\n", c.Len())
	case requestCmd.Parsed():
		err := srv.RequestSong(serverConfig, requestIndex)
		if err != nil {
			logrus.Fatalf("Unable to add request: %v", err)
		}
		fmt.Printf("Song %d requested\n", requestIndex)
	case reportCmd.Parsed():
		fmt.Print(srv.StatisticsReport(serverConfig))
	}
}

func parseNoArgs(cmd *flag.FlagSet, mainCommand string) {
	cmd.Parse(flag.Args()[1:])
	if cmd.NArg() > 0 {
		fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flag.Arg(0))
		cmd.Usage()
		os.Exit(1)
	}
}
