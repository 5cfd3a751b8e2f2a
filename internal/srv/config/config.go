package config

import (
	"fmt"
	"github.com/jypelle/jukeboxsrv/internal/tool"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
)

const paramFilename = "param.yaml"
const stateFilename = "state.yaml"

type ServerConfig struct {
	ConfigDir string
	DebugMode bool

	*ServerParam
	*ServerState
}

func NewServerConfig(configDir string, debugMode bool) (*ServerConfig, error) {
	serverConfig := &ServerConfig{
		ConfigDir: configDir,
		DebugMode: debugMode,
	}

	// Check Configuration folder
	_, err := os.Stat(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Printf("Creation of config folder: %s", configDir)
			err = os.MkdirAll(configDir, 0770)
			if err != nil {
				return nil, fmt.Errorf("unable to create config folder: %w", err)
			}
		} else {
			return nil, fmt.Errorf("unable to access config folder %s: %w", configDir, err)
		}
	}

	// Open param file
	serverConfig.ServerParam = &ServerParam{}
	rawConfig, err := os.ReadFile(serverConfig.GetCompleteParamFilename())
	if err == nil {
		// Interpret param file
		err = yaml.Unmarshal(rawConfig, serverConfig.ServerParam)
		if err != nil {
			return nil, fmt.Errorf("unable to interpret param file: %w", err)
		}
	} else {
		// Create default param file
		logrus.Infof("Create default param file")
		err = yaml.Unmarshal(ParamDefaultFile, serverConfig.ServerParam)
		if err != nil {
			return nil, fmt.Errorf("unable to interpret default param file: %w", err)
		}

		err = serverConfig.SaveParam()
		if err != nil {
			return nil, err
		}
	}
	serverConfig.ServerParam.applyDefaults()

	// Open state file
	serverConfig.ServerState, err = NewServerState(serverConfig.GetCompleteStateFilename())
	if err != nil {
		return nil, err
	}

	return serverConfig, nil
}

// resolve makes filename absolute, relative paths being taken from the config folder
func (sc *ServerConfig) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(sc.ConfigDir, filename)
}

func (sc *ServerConfig) GetCompleteParamFilename() string {
	return filepath.Join(sc.ConfigDir, paramFilename)
}

func (sc *ServerConfig) GetCompleteStateFilename() string {
	return filepath.Join(sc.ConfigDir, stateFilename)
}

func (sc *ServerConfig) GetCompleteMusicFolder() string {
	return sc.resolve(sc.MusicFolder)
}

func (sc *ServerConfig) GetCompleteCatalogFilename() string {
	return sc.resolve(sc.CatalogFile)
}

func (sc *ServerConfig) GetCompleteCheckFilename() string {
	return sc.resolve(sc.CheckFile)
}

func (sc *ServerConfig) GetCompleteRequestFilename() string {
	return sc.resolve(sc.RequestFile)
}

func (sc *ServerConfig) GetCompleteStatisticsFilename() string {
	return sc.resolve(sc.StatisticsFile)
}

func (sc *ServerConfig) GetCompleteNowPlayingFilename() string {
	return sc.resolve(sc.NowPlayingFile)
}

func (sc *ServerConfig) GetCompletePlayLogFilename() string {
	return sc.resolve(sc.PlayLogFile)
}

func (sc *ServerConfig) SaveParam() error {
	logrus.Debugf("Save param file: %s", sc.GetCompleteParamFilename())
	rawConfig, err := yaml.Marshal(*sc.ServerParam)
	if err != nil {
		return fmt.Errorf("unable to serialize param file: %w", err)
	}
	err = tool.WriteFileAtomic(sc.GetCompleteParamFilename(), rawConfig, 0660)
	if err != nil {
		return fmt.Errorf("unable to save param file: %w", err)
	}
	return nil
}
