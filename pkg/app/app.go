package app

import (
	"context"
	"net/url"
	"pinctl/pkg/app/config"
	"pinctl/pkg/gpio"
	"pinctl/pkg/mqtt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// driver is the pin-control interface selected by Config.Driver
	driver gpio.Driver

	// registry owns all pins claimed by the application
	registry *gpio.Registry

	// watched are the inputs whose changes are published to mqtt
	watched []*gpio.Input

	// ctx is cancelled on Close and stops running pwm patterns
	ctx    context.Context
	cancel context.CancelFunc
	// jobs counts the running pwm patterns
	jobs sync.WaitGroup

	closeOnce sync.Once

	// restart signals application restart
	restart chan struct{}
	// shutdown signals application shutdown
	shutdown chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(),
		mqtt: mqtt.New(),

		ctx:      ctx,
		cancel:   cancel,
		restart:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}, err
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()

	return nil
}

// init initializes the application.
func (app *App) init() (err error) {
	if app.driver == nil {
		if app.driver, err = openDriver(app.config); err != nil {
			debug.ErrorLog.Printf("can't open %s driver: %v", app.config.Driver, err)
			return err
		}
	}

	app.registry = gpio.NewRegistry(app.driver,
		gpio.WithInterval(app.config.Interval),
		gpio.WithPins(app.config.Pins...))

	if err = app.mqtt.Connect(app.config.MQTT.Connection); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	if err = app.watch(); err != nil {
		return err
	}

	// initDefaultRoutes should be always called last because it accesses the registry
	app.initDefaultRoutes()

	return nil
}

// Restart returns the read only restart channel.
// Restart is used to be able to react on application restart. (see cmd/main.go)
func (app *App) Restart() <-chan struct{} {
	return app.restart
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/main.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

// Close stops running pwm patterns, releases all pins and disconnects from the mqtt broker.
func (app *App) Close() error {
	app.closeOnce.Do(app.close)
	return nil
}

func (app *App) close() {
	// no new pwm patterns are started once the web server is down
	if app.web != nil {
		_ = app.web.Shutdown()
	}

	if app.cancel != nil {
		app.cancel()
	}
	app.jobs.Wait()

	for _, in := range app.watched {
		if err := in.Close(); err != nil {
			debug.ErrorLog.Printf("can't close gpio%d: %v", in.ID(), err)
		}
	}

	if app.registry != nil {
		if err := app.registry.Shutdown(); err != nil {
			debug.ErrorLog.Printf("can't release pins: %v", err)
		}
	}

	if app.driver != nil {
		_ = app.driver.Close()
	}

	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
		// no listener is left which could send to C
		close(app.mqtt.C)
	}
}
