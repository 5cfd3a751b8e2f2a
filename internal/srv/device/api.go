package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/inbox"
	"github.com/jypelle/jukeboxsrv/internal/srv/config"
	"github.com/jypelle/jukeboxsrv/internal/srv/event"
	"github.com/jypelle/jukeboxsrv/internal/tool"
	"github.com/sirupsen/logrus"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"
	"time"
)

// JukeboxView gives the API read access to the jukebox
type JukeboxView interface {
	NowPlaying() (apimodel.NowPlaying, bool)
	PendingRequests() []apimodel.SongIndex
	Statistics(top int) apimodel.Statistics
	Song(index apimodel.SongIndex) (apimodel.Song, bool)
}

type Api struct {
	lock         sync.RWMutex
	eventChannel chan event.ApiEvent

	router    *mux.Router
	apiRouter *mux.Router
	server    *http.Server

	config *config.ServerConfig
	view   JukeboxView

	subscribers map[chan apimodel.NowPlaying]struct{}
}

func NewApi(config *config.ServerConfig, view JukeboxView) *Api {
	api := Api{
		config:       config,
		view:         view,
		eventChannel: make(chan event.ApiEvent),
		subscribers:  make(map[chan apimodel.NowPlaying]struct{}),
	}

	api.router = mux.NewRouter().StrictSlash(false)

	// API Routes
	api.apiRouter = api.router.PathPrefix("/api").Subrouter()
	api.apiRouter.NotFoundHandler = http.HandlerFunc(ErrorNotFoundAction)
	api.apiRouter.MethodNotAllowedHandler = http.HandlerFunc(ErrorMethodNotAllowedAction)

	// Auth middleware
	api.apiRouter.Use(
		func(handler http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer func() {
					if rec := recover(); rec != nil {
						logrus.Warningf("recovered from panic : [%v] - stack trace : \n [%s]", rec, debug.Stack())
						strMessage := fmt.Sprintf("%v", rec)
						GlobalErrorAction(w, strMessage, http.StatusInternalServerError)
					}
				}()

				// Check API Key
				apiKey := r.Header.Get("x-api-key")
				if apiKey != config.ServerParam.ApiParam.ApiKey {
					ErrorStatusAction(w, r, http.StatusForbidden)
					return
				}

				logrus.Debugf("PATH: %s %s", r.Host, r.URL.Path)

				handler.ServeHTTP(w, r)
			})
		})

	// Create server check endpoint
	api.apiRouter.HandleFunc("/is_alive",
		func(w http.ResponseWriter, r *http.Request) {
			ErrorStatusAction(w, r, http.StatusOK)
		}).Methods("GET")

	// Read endpoints
	api.apiRouter.HandleFunc("/now_playing",
		func(w http.ResponseWriter, r *http.Request) {
			nowPlaying, ok := api.view.NowPlaying()
			if !ok {
				GlobalErrorAction(w, "nothing played yet", http.StatusNotFound)
				return
			}
			JsonAction(w, nowPlaying)
		}).Methods("GET")
	api.apiRouter.HandleFunc("/now_playing/feed", api.nowPlayingFeedAction).Methods("GET")
	api.apiRouter.HandleFunc("/requests",
		func(w http.ResponseWriter, r *http.Request) {
			JsonAction(w, apimodel.PendingRequests{Indices: api.view.PendingRequests()})
		}).Methods("GET")
	api.apiRouter.HandleFunc("/statistics",
		func(w http.ResponseWriter, r *http.Request) {
			top := api.config.TopCount
			if topStr := r.URL.Query().Get("top"); topStr != "" {
				var err error
				top, err = strconv.Atoi(topStr)
				if err != nil || top < 0 {
					apimodel.WrongParametersErrorMessage.SendError(w)
					return
				}
			}
			JsonAction(w, api.view.Statistics(top))
		}).Methods("GET")
	api.apiRouter.HandleFunc("/songs/{index}",
		func(w http.ResponseWriter, r *http.Request) {
			index, ok := songIndexVar(r)
			if !ok {
				apimodel.WrongParametersErrorMessage.SendError(w)
				return
			}
			song, ok := api.view.Song(index)
			if !ok {
				apimodel.UnknownSongErrorMessage.SendError(w)
				return
			}
			JsonAction(w, song)
		}).Methods("GET")

	// Write endpoints, served by the event loop
	api.apiRouter.HandleFunc("/request/{index}",
		func(w http.ResponseWriter, r *http.Request) {
			index, ok := songIndexVar(r)
			if !ok {
				apimodel.WrongParametersErrorMessage.SendError(w)
				return
			}
			err := api.send(event.ApiEventRequestData{Index: index})
			switch {
			case err == nil:
				ErrorStatusAction(w, r, http.StatusOK)
			case errors.Is(err, inbox.ErrInvalidEntry):
				apimodel.UnknownSongErrorMessage.SendError(w)
			case errors.Is(err, inbox.ErrConflict):
				GlobalErrorAction(w, err.Error(), http.StatusConflict)
			default:
				GlobalErrorAction(w, err.Error(), http.StatusInternalServerError)
			}
		}).Methods("POST")
	api.apiRouter.HandleFunc("/player/skip",
		func(w http.ResponseWriter, r *http.Request) {
			err := api.send(event.ApiEventSkipData{})
			if err == nil {
				ErrorStatusAction(w, r, http.StatusOK)
			} else {
				GlobalErrorAction(w, err.Error(), http.StatusConflict)
			}
		}).Methods("POST")
	api.apiRouter.HandleFunc("/audio/volume/{volume}",
		func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)
			volumeStr, ok := vars["volume"]
			if !ok {
				ErrorStatusAction(w, r, http.StatusBadRequest)
				return
			}
			volume, err := strconv.ParseInt(volumeStr, 10, 0)
			if err != nil {
				ErrorStatusAction(w, r, http.StatusBadRequest)
				return
			}
			err = api.send(event.ApiEventAudioVolumeData{Volume: volume})
			if err == nil {
				ErrorStatusAction(w, r, http.StatusOK)
			} else {
				GlobalErrorAction(w, err.Error(), http.StatusForbidden)
			}
		}).Methods("POST")

	// Tell the browser that it's OK for JS to communicate with the server
	headersOk := handlers.AllowedHeaders([]string{"x-api-key"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})

	api.server = &http.Server{
		Addr:         ":" + strconv.FormatInt(config.ServerParam.ApiParam.SslPort, 10),
		Handler:      handlers.CompressHandler(handlers.CORS(originsOk, headersOk, methodsOk)(api.router)),
		ReadTimeout:  time.Second * 240,
		WriteTimeout: time.Second * 240,
		IdleTimeout:  time.Second * 240,
	}

	return &api
}

func songIndexVar(r *http.Request) (apimodel.SongIndex, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, false
	}
	return apimodel.SongIndex(index), true
}

// send hands data to the event loop and waits for its answer
func (d *Api) send(data interface{}) error {
	result := make(chan error)
	d.eventChannel <- event.ApiEvent{Result: result, Data: data}
	return <-result
}

func (d *Api) Handler() http.Handler {
	return d.server.Handler
}

func (d *Api) Start() {
	logrus.Infof("Start api device")

	err := tool.EnsureTlsCertificate(
		"jypelle",
		"Jukebox Server",
		d.selfSignedKeyFilename(),
		d.selfSignedCertFilename(),
		[]string{})
	if err != nil {
		logrus.Fatalf("Unable to generate cert and key files : %v\n", err)
	}

	// Launch https server
	go func() {
		err := d.server.ListenAndServeTLS(d.selfSignedCertFilename(), d.selfSignedKeyFilename())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Error(err)
		}
	}()
}

func (d *Api) StopSendingEvent() {
	logrus.Infof("Stop api device")
	d.server.Shutdown(context.Background())
}

func (d *Api) EventChannel() chan event.ApiEvent {
	return d.eventChannel
}

func (d *Api) selfSignedKeyFilename() string {
	return filepath.Join(d.config.ConfigDir, "key.pem")
}

func (d *Api) selfSignedCertFilename() string {
	return filepath.Join(d.config.ConfigDir, "cert.pem")
}

func JsonAction(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logrus.Warnf("Unable to encode response: %v", err)
	}
}

func ErrorNotFoundAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusNotFound)
}

func ErrorMethodNotAllowedAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusMethodNotAllowed)
}

func ErrorStatusAction(w http.ResponseWriter, r *http.Request, status int) {
	ErrorMessageAction(w, "", status)
}

func GlobalErrorAction(w http.ResponseWriter, message string, status int) {
	ErrorMessageAction(w, message, status)
}

func ErrorMessageAction(w http.ResponseWriter, title string, status int) {
	apimodel.ErrorMessage{
		ErrStatusCode: status,
		ErrMessage:    title,
	}.SendError(w)
}
