package srv

import (
	"context"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/catalog"
	"github.com/jypelle/jukeboxsrv/internal/inbox"
	"github.com/jypelle/jukeboxsrv/internal/scheduler"
	"github.com/jypelle/jukeboxsrv/internal/srv/config"
	"github.com/jypelle/jukeboxsrv/internal/srv/device"
	"github.com/jypelle/jukeboxsrv/internal/stats"
	"github.com/jypelle/jukeboxsrv/internal/version"
	"github.com/sirupsen/logrus"
	"os"
	"time"
)

type ServerApp struct {
	*config.ServerConfig

	catalog   *catalog.Catalog
	inbox     *inbox.FileInbox
	stats     *stats.Store
	scheduler *scheduler.Scheduler

	audioDevice        *device.Audio
	playerDevice       *device.Player
	inboxWatcherDevice *device.InboxWatcher
	apiDevice          *device.Api

	playLogFile *os.File

	schedulerCancel context.CancelFunc
	schedulerDone   chan error

	eventLoopAskDone chan bool
	eventLoopDone    chan bool
}

func NewServerApp(configDir string, debugMode bool) (*ServerApp, error) {

	logrus.Debugf("Creation of jukebox server %s ...", version.AppVersion.String())

	serverConfig, err := config.NewServerConfig(configDir, debugMode)
	if err != nil {
		return nil, err
	}

	app := &ServerApp{
		ServerConfig:     serverConfig,
		eventLoopAskDone: make(chan bool),
		eventLoopDone:    make(chan bool),
	}

	// Stores
	app.catalog, err = catalog.Open(app.GetCompleteMusicFolder(), app.GetCompleteCatalogFilename(), app.GetCompleteCheckFilename())
	if err != nil {
		return nil, err
	}
	logrus.Infof("Music catalog loaded: %d songs", app.catalog.Len())

	app.stats = stats.Load(app.GetCompleteStatisticsFilename())
	app.inbox = inbox.NewFileInbox(app.GetCompleteRequestFilename(), app.catalog)

	// Devices
	app.audioDevice = device.NewAudio(app.ServerState)
	app.playerDevice = device.NewPlayer(app.PlayerParam.Command, app.PlayerParam.Args)
	app.inboxWatcherDevice = device.NewInboxWatcher(app.GetCompleteRequestFilename(), app.inbox)
	publishers := scheduler.Publishers{scheduler.NewFilePublisher(app.GetCompleteNowPlayingFilename())}
	if app.ApiParam.Enabled {
		app.apiDevice = device.NewApi(app.ServerConfig, app)
		publishers = append(publishers, app.apiDevice)
	}

	app.scheduler = scheduler.New(app.catalog, app.inbox, app.stats, app.playerDevice, scheduler.Options{
		StatisticsPath: app.GetCompleteStatisticsFilename(),
		PollInterval:   app.PollInterval,
		RandomGenres:   app.RandomGenres,
		Publisher:      publishers,
		PlayLog:        app.openPlayLog(),
	})

	logrus.Debugln("Server created")

	return app, nil
}

// openPlayLog returns the logger keeping one line per play, nil when the play log can't be opened
func (s *ServerApp) openPlayLog() *logrus.Logger {
	if s.PlayLogFile == "" {
		return nil
	}
	file, err := os.OpenFile(s.GetCompletePlayLogFilename(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		logrus.Warnf("Unable to open play log: %v", err)
		return nil
	}
	s.playLogFile = file

	playLog := logrus.New()
	playLog.SetOutput(file)
	playLog.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: time.RFC3339})
	return playLog
}

func (s *ServerApp) Start() {
	logrus.Printf("Starting jukebox server ...")

	logrus.Printf("Starting devices ...")

	// Start volume device
	s.audioDevice.Start()

	// Start player device
	s.playerDevice.Start()

	// Start event loop
	go s.eventLoop()

	// Start inbox watcher device
	if err := s.inboxWatcherDevice.Start(); err != nil {
		logrus.Warnf("Unable to watch paid requests: %v", err)
	}

	// Start api device
	if s.apiDevice != nil {
		s.apiDevice.Start()
	}

	// Start scheduler
	ctx, cancel := context.WithCancel(context.Background())
	s.schedulerCancel = cancel
	s.schedulerDone = make(chan error, 1)
	go func() {
		s.schedulerDone <- s.scheduler.Run(ctx)
	}()
}

func (s *ServerApp) Stop() {
	logrus.Printf("Stopping jukebox server ...")

	// Stop api
	if s.apiDevice != nil {
		s.apiDevice.StopSendingEvent()
	}

	// Stop inbox watcher device
	s.inboxWatcherDevice.StopSendingEvent()

	// Stop event loop
	logrus.Infof("Stop event loop")
	s.eventLoopAskDone <- true
	<-s.eventLoopDone

	// Stop scheduler, the current song is stopped and recorded
	if s.schedulerCancel != nil {
		s.schedulerCancel()
		if err := <-s.schedulerDone; err != nil {
			logrus.Warnf("Scheduler stopped with error: %v", err)
		}
	}

	// Stop player device
	s.playerDevice.Stop()

	// Stop volume device
	s.audioDevice.Stop()

	// Flush config backup
	s.ServerConfig.ServerState.FlushSave()

	if s.playLogFile != nil {
		if err := s.playLogFile.Close(); err != nil {
			logrus.Warnf("Unable to close play log: %v", err)
		}
	}

	logrus.Printf("Server stopped")
}

// Report renders the statistics summary shown at shutdown
func (s *ServerApp) Report() string {
	return s.stats.Report(s.catalog, s.TopCount, time.Now())
}

func (s *ServerApp) NowPlaying() (apimodel.NowPlaying, bool) {
	return s.scheduler.NowPlaying()
}

func (s *ServerApp) PendingRequests() []apimodel.SongIndex {
	indices := []apimodel.SongIndex{}
	for _, index := range s.inbox.Poll() {
		indices = append(indices, apimodel.SongIndex(index))
	}
	return indices
}

func (s *ServerApp) Statistics(top int) apimodel.Statistics {
	return s.stats.Statistics(s.catalog, top)
}

func (s *ServerApp) Song(index apimodel.SongIndex) (apimodel.Song, bool) {
	song, err := s.catalog.Get(int(index))
	if err != nil {
		return apimodel.Song{}, false
	}
	return song.ApiSong(), true
}
