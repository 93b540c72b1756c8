package input

import (
	"fmt"
	"log"
	"runtime"
	"sync"
)

// DefaultQueueSize bounds how many events may wait for the actor.
const DefaultQueueSize = 256

// Actor owns an Injector and applies events to it one at a time from a
// single goroutine pinned to its OS thread. Sessions hand events over with
// Play and never touch the Injector directly.
type Actor struct {
	injector Injector
	logger   *log.Logger
	events   chan Event
	done     chan struct{}
	stopped  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewActor creates an actor. A nil logger uses log.Default().
func NewActor(injector Injector, logger *log.Logger) *Actor {
	return NewActorSize(injector, logger, DefaultQueueSize)
}

// NewActorSize creates an actor with a custom queue size.
func NewActorSize(injector Injector, logger *log.Logger, queueSize int) *Actor {
	if logger == nil {
		logger = log.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Actor{
		injector: injector,
		logger:   logger,
		events:   make(chan Event, queueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it more than once has no effect.
func (a *Actor) Start() {
	a.startOnce.Do(func() {
		go a.run()
	})
}

// Play enqueues an event without blocking. It returns false when the queue
// is full or the actor has stopped; the event is dropped in both cases.
func (a *Actor) Play(ev Event) bool {
	select {
	case <-a.done:
		return false
	default:
	}

	select {
	case a.events <- ev:
		return true
	default:
		a.logger.Printf("input: queue full, dropping %s event", ev.Kind)
		return false
	}
}

// Stop ends the worker after the event in progress and closes the injector.
// Queued events are discarded. Safe to call more than once.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.startOnce.Do(func() {
		close(a.stopped)
		a.injector.Close()
	})
	<-a.stopped
}

func (a *Actor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(a.stopped)
	defer a.injector.Close()

	for {
		select {
		case <-a.done:
			return
		case ev := <-a.events:
			a.apply(ev)
		}
	}
}

// apply dispatches one event. Backend errors and panics are logged and
// swallowed so one bad event never stops the actor.
func (a *Actor) apply(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Printf("input: panic while handling %s event: %v", ev.Kind, r)
		}
	}()

	if err := a.dispatch(ev); err != nil {
		a.logger.Printf("input: %s event failed: %v", ev.Kind, err)
	}
}

func (a *Actor) dispatch(ev Event) error {
	inj := a.injector

	switch ev.Kind {
	case KindDPad:
		switch ev.Direction {
		case DirUp:
			return inj.KeyClick(KeyUp)
		case DirDown:
			return inj.KeyClick(KeyDown)
		case DirLeft:
			return inj.KeyClick(KeyLeft)
		case DirRight:
			return inj.KeyClick(KeyRight)
		case DirEnter:
			return inj.KeyClick(KeySpace)
		case DirExit:
			return inj.KeyClick(KeyEscape)
		}
		return fmt.Errorf("unknown direction %q", ev.Direction)

	case KindText:
		return a.typeText(ev.Text)

	case KindKeyboard:
		return inj.KeyClick(ev.Key)

	case KindMouseMove, KindMouseScroll:
		dx, okX := toPixels(ev.DX)
		dy, okY := toPixels(ev.DY)
		if !okX || !okY {
			return nil
		}
		if ev.Kind == KindMouseMove {
			return inj.MouseMove(dx, dy)
		}
		return inj.MouseScroll(dx, dy)

	case KindMouseDown:
		return inj.MouseDown(ev.Button)
	case KindMouseUp:
		return inj.MouseUp(ev.Button)
	case KindMouseClick:
		return inj.MouseClick(ev.Button)

	case KindAction:
		switch ev.Action {
		case ActionHome:
			return inj.KeyClick(KeyMeta)
		case ActionAltTab:
			if err := inj.KeyDown(KeyAlt); err != nil {
				return err
			}
			tabErr := inj.KeyClick(KeyTab)
			if err := inj.KeyUp(KeyAlt); err != nil {
				return err
			}
			return tabErr
		}
		return fmt.Errorf("unknown action %q", ev.Action)
	}

	return fmt.Errorf("unknown event kind %q", ev.Kind)
}

// typeText types each rune in order; a newline becomes a Return press.
// A rune the backend cannot type is logged and skipped.
func (a *Actor) typeText(text string) error {
	for _, r := range text {
		var err error
		if r == '\n' {
			err = a.injector.KeyClick(KeyReturn)
		} else {
			err = a.injector.TypeRune(r)
		}
		if err != nil {
			a.logger.Printf("input: typing %q failed: %v", r, err)
		}
	}
	return nil
}
