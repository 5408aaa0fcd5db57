package app

import (
	"errors"
	"net/http"
	"pinctl/pkg/gpio"
	"pinctl/pkg/port"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

type directionRequest struct {
	Direction string `json:"direction"`
}

type levelRequest struct {
	Level string `json:"level"`
}

// pwmRequest starts a software pwm pattern, a duration of -1 ms runs until the pin is released.
type pwmRequest struct {
	Strength int `json:"strength"`
	Duration int `json:"duration"`
}

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandlePins returns the state of all pins known to the registry.
func (app *App) HandlePins() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request pins")
		return ctx.JSON(app.registry.Pins())
	}
}

// HandlePin returns direction and level of one pin.
func (app *App) HandlePin() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := pinParam(ctx)
		if err != nil {
			return sendError(ctx, err)
		}

		state := gpio.PinState{Pin: id, Direction: port.Unclaimed.String(), Level: port.Unknown.String()}
		if p, ok := app.registry.Lookup(id); ok {
			state.Direction = p.Direction().String()
			state.Level = p.Read().String()
		}
		return ctx.JSON(state)
	}
}

// HandleClaim claims a pin or changes its direction.
func (app *App) HandleClaim() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := pinParam(ctx)
		if err != nil {
			return sendError(ctx, err)
		}

		var req directionRequest
		if err = ctx.BodyParser(&req); err != nil {
			return sendError(ctx, gpio.ErrInvalidParam)
		}
		dir, err := port.ParseDirection(req.Direction)
		if err != nil || dir == port.Unclaimed {
			return sendError(ctx, gpio.ErrInvalidParam)
		}

		debug.InfoLog.Printf("web request claim gpio%d as %v", id, dir)
		p, err := app.registry.ObtainOrReconfigure(id, dir)
		if err != nil {
			return sendError(ctx, err)
		}
		return ctx.JSON(gpio.PinState{Pin: id, Direction: p.Direction().String(), Level: p.Read().String()})
	}
}

// HandleLevel writes the level of an output pin.
func (app *App) HandleLevel() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		p, err := app.claimedPin(ctx)
		if err != nil {
			return sendError(ctx, err)
		}

		var req levelRequest
		if err = ctx.BodyParser(&req); err != nil {
			return sendError(ctx, gpio.ErrInvalidParam)
		}
		l, err := port.ParseLevel(req.Level)
		if err != nil {
			return sendError(ctx, gpio.ErrInvalidParam)
		}

		debug.InfoLog.Printf("web request write %v to gpio%d", l, p.ID())
		if err = p.Write(l); err != nil {
			return sendError(ctx, err)
		}
		return ctx.JSON(gpio.PinState{Pin: p.ID(), Direction: p.Direction().String(), Level: p.Read().String()})
	}
}

// HandlePWM starts a software pwm pattern in the background.
func (app *App) HandlePWM() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		p, err := app.claimedPin(ctx)
		if err != nil {
			return sendError(ctx, err)
		}

		var req pwmRequest
		if err = ctx.BodyParser(&req); err != nil {
			return sendError(ctx, gpio.ErrInvalidParam)
		}
		if req.Strength < 0 || req.Strength > 255 || req.Duration < -1 {
			return sendError(ctx, gpio.ErrInvalidParam)
		}
		if p.Direction() != port.Output {
			return sendError(ctx, gpio.ErrDirectionMismatch)
		}
		if app.ctx.Err() != nil {
			return sendError(ctx, gpio.ErrDisposed)
		}

		d := time.Duration(req.Duration) * time.Millisecond
		if req.Duration == -1 {
			d = gpio.Forever
		}

		debug.InfoLog.Printf("web request pwm gpio%d strength %d for %v", p.ID(), req.Strength, d)
		app.jobs.Add(1)
		go func() {
			defer app.jobs.Done()
			if err := p.AnalogWrite(app.ctx, uint8(req.Strength), d); err != nil {
				debug.DebugLog.Printf("pwm gpio%d stopped: %v", p.ID(), err)
			}
		}()

		ctx.Status(http.StatusAccepted)
		return ctx.JSON(fiber.Map{"pin": p.ID(), "strength": req.Strength, "duration": req.Duration})
	}
}

// HandleRelease releases a pin.
func (app *App) HandleRelease() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id, err := pinParam(ctx)
		if err != nil {
			return sendError(ctx, err)
		}

		debug.InfoLog.Printf("web request release gpio%d", id)
		if err = app.registry.Release(id); err != nil {
			return sendError(ctx, err)
		}
		return ctx.SendStatus(http.StatusNoContent)
	}
}

// claimedPin returns the pin of the request, it must have been claimed before.
func (app *App) claimedPin(ctx *fiber.Ctx) (*gpio.Pin, error) {
	id, err := pinParam(ctx)
	if err != nil {
		return nil, err
	}

	p, ok := app.registry.Lookup(id)
	if !ok {
		return nil, gpio.ErrDirectionMismatch
	}
	return p, nil
}

func pinParam(ctx *fiber.Ctx) (int, error) {
	id, err := strconv.Atoi(ctx.Params("id"))
	if err != nil {
		return 0, gpio.ErrInvalidPin
	}
	return id, nil
}

// sendError maps registry errors to http status codes.
func sendError(ctx *fiber.Ctx, err error) error {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, gpio.ErrInvalidPin), errors.Is(err, gpio.ErrInvalidParam):
		status = http.StatusBadRequest
	case errors.Is(err, gpio.ErrDirectionMismatch), errors.Is(err, gpio.ErrClaimFailed), errors.Is(err, gpio.ErrAlreadyClaimed):
		status = http.StatusConflict
	}

	debug.ErrorLog.Printf("web request %s %s: %v", ctx.Method(), ctx.Path(), err)
	ctx.Status(status)
	return ctx.JSON(fiber.Map{"error": err.Error()})
}
