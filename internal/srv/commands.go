package srv

import (
	"github.com/jypelle/jukeboxsrv/internal/catalog"
	"github.com/jypelle/jukeboxsrv/internal/inbox"
	"github.com/jypelle/jukeboxsrv/internal/srv/config"
	"github.com/jypelle/jukeboxsrv/internal/stats"
	"github.com/sirupsen/logrus"
	"time"
)

// ScanCatalog regenerates the catalog document from the music folder
func ScanCatalog(serverConfig *config.ServerConfig) (*catalog.Catalog, error) {
	c, err := catalog.Scan(serverConfig.GetCompleteMusicFolder())
	if err != nil {
		return nil, err
	}
	err = catalog.Save(serverConfig.GetCompleteCatalogFilename(), serverConfig.GetCompleteCheckFilename(), c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RequestSong appends a paid request for the song at index
func RequestSong(serverConfig *config.ServerConfig, index int) error {
	c, err := catalog.Load(serverConfig.GetCompleteCatalogFilename())
	if err != nil {
		return err
	}
	return inbox.NewFileInbox(serverConfig.GetCompleteRequestFilename(), c).Append(index)
}

// StatisticsReport renders the persisted statistics
func StatisticsReport(serverConfig *config.ServerConfig) string {
	c, err := catalog.Load(serverConfig.GetCompleteCatalogFilename())
	if err != nil {
		logrus.Warnf("%v", err)
		c = catalog.New(nil)
	}
	return stats.Load(serverConfig.GetCompleteStatisticsFilename()).Report(c, serverConfig.TopCount, time.Now())
}
