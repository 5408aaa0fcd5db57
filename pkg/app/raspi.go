package app

import (
	"encoding/json"
	"fmt"
	"pinctl/pkg/app/config"
	"pinctl/pkg/chardev"
	"pinctl/pkg/gpio"
	"pinctl/pkg/gpiomem"
	"pinctl/pkg/mqtt"
	"pinctl/pkg/periph"
	"pinctl/pkg/port"
	"pinctl/pkg/sysfs"
	"time"

	"github.com/womat/debug"
)

// changeMessage is the mqtt payload of a level change.
type changeMessage struct {
	Pin  int       `json:"pin"`
	Old  string    `json:"old"`
	New  string    `json:"new"`
	Edge string    `json:"edge"`
	Time time.Time `json:"time"`
}

// openDriver opens the pin-control interface configured in c.Driver.
func openDriver(c *config.Config) (gpio.Driver, error) {
	switch c.Driver {
	case "sysfs", "":
		d, err := sysfs.Open(c.SysfsRoot)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "gpiod":
		d, err := chardev.Open(c.Chip)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "gpiomem":
		d, err := gpiomem.Open()
		if err != nil {
			return nil, err
		}
		return d, nil
	case "periph":
		d, err := periph.Open()
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown gpio driver %q", c.Driver)
}

// watch claims the configured inputs and publishes their level changes.
func (app *App) watch() error {
	for _, w := range app.config.Watch {
		in, err := app.registry.OpenInput(w.Pin)
		if err != nil {
			debug.ErrorLog.Printf("can't open input gpio%d: %v", w.Pin, err)
			return err
		}
		app.watched = append(app.watched, in)

		topic := w.Topic
		if topic == "" {
			topic = fmt.Sprintf("%s/%d", app.config.MQTT.Topic, w.Pin)
		}

		if _, err = in.Subscribe(app.publish(topic)); err != nil {
			debug.ErrorLog.Printf("can't watch gpio%d: %v", w.Pin, err)
			return err
		}
		debug.InfoLog.Printf("watching gpio%d, publish to %s", w.Pin, topic)
	}
	return nil
}

// publish returns a ChangeFunc which sends each change to the mqtt topic.
func (app *App) publish(topic string) gpio.ChangeFunc {
	return func(src gpio.LevelReader, old, new port.Level) {
		e := port.Event{Pin: src.ID(), Old: old, New: new, Time: time.Now()}
		debug.InfoLog.Printf("gpio%d changed %v -> %v", e.Pin, old, new)

		payload, err := json.Marshal(changeMessage{
			Pin:  e.Pin,
			Old:  e.Old.String(),
			New:  e.New.String(),
			Edge: edgeName(e.Type()),
			Time: e.Time,
		})
		if err != nil {
			debug.ErrorLog.Printf("can't marshal change of gpio%d: %v", e.Pin, err)
			return
		}

		app.mqtt.Send(mqtt.Message{Topic: topic, Payload: payload})
	}
}

func edgeName(t port.EventType) string {
	switch t {
	case port.RisingEdge:
		return "rising"
	case port.FallingEdge:
		return "falling"
	default:
		return "other"
	}
}
