// Package pins connects facets to GPIO lines. Inbound facets with a pin drive an output
// line, outbound facets with a pin report edges of an input line, and loopback facets
// repeat the values of an inbound facet.
//
// Edge events arrive on gpiocdev's goroutine and are queued; Drain hands them to the
// caller's goroutine so publishing stays on the adapter's goroutine.
package pins

import (
	"errors"
	"fmt"
	"strings"

	"github.com/celerway/meem/config"
	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	"github.com/warthog618/go-gpiocdev"
)

const eventQueueSize = 64

var (
	ErrLinearPin = errors.New("pins: linear facets cannot use a gpio line")
	ErrNoChip    = errors.New("pins: facet has a pin but no gpio chip is configured")
	ErrValue     = errors.New("pins: not a binary value")
)

// Line is the part of a gpio line the bank uses.
type Line interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

type chip interface {
	RequestOutput(offset, initial int) (Line, error)
	RequestInput(offset int, onChange func(value int)) (Line, error)
	Close() error
}

type event struct {
	index int
	value string
}

type Bank struct {
	chip      chip
	outputs   map[int]Line
	inputs    map[int]Line
	loopbacks map[int][]int // inbound facet -> outbound facets repeating it
	last      map[int]string
	events    chan event
	logger    *log.Logger
}

// Open requests the lines of every facet with a pin. chipName may be empty when no facet has one.
func Open(chipName string, facets []config.Facet, logger *log.Logger) (*Bank, error) {
	var c chip
	if needsChip(facets) {
		if chipName == "" {
			return nil, ErrNoChip
		}
		gc, err := gpiocdev.NewChip(chipName)
		if err != nil {
			return nil, fmt.Errorf("opening gpio chip %s: %w", chipName, err)
		}
		c = &cdevChip{chip: gc}
	}
	return open(c, facets, logger)
}

func needsChip(facets []config.Facet) bool {
	for _, f := range facets {
		if f.Pin != nil {
			return true
		}
	}
	return false
}

func open(c chip, facets []config.Facet, logger *log.Logger) (*Bank, error) {
	descs, err := config.Descriptors(facets)
	if err != nil {
		return nil, err
	}
	b := &Bank{
		chip:      c,
		outputs:   make(map[int]Line),
		inputs:    make(map[int]Line),
		loopbacks: make(map[int][]int),
		last:      make(map[int]string),
		events:    make(chan event, eventQueueSize),
		logger:    logger,
	}
	for i, f := range facets {
		if f.Loopback != "" {
			src := config.Index(facets, f.Loopback)
			b.loopbacks[src] = append(b.loopbacks[src], i)
		}
		if f.Pin == nil {
			continue
		}
		if descs[i].Kind == meem.Linear {
			b.Close()
			return nil, fmt.Errorf("%w: %s", ErrLinearPin, f.Name)
		}
		if err := b.request(i, *f.Pin, descs[i].Direction); err != nil {
			b.Close()
			return nil, fmt.Errorf("facet %s, pin %d: %w", f.Name, *f.Pin, err)
		}
	}
	return b, nil
}

func (b *Bank) request(index, pin int, dir meem.Direction) error {
	if dir == meem.In {
		line, err := b.chip.RequestOutput(pin, 0)
		if err != nil {
			return err
		}
		b.outputs[index] = line
		return nil
	}
	line, err := b.chip.RequestInput(pin, func(value int) {
		b.queue(event{index: index, value: fmt.Sprint(value)})
	})
	if err != nil {
		return err
	}
	b.inputs[index] = line
	// the current level is reported once the adapter drains
	if v, err := line.Value(); err == nil {
		b.queue(event{index: index, value: fmt.Sprint(v)})
	}
	return nil
}

// Apply handles an inbound facet value: drives its output line, if any, and queues the
// value for its loopback facets. Facets the bank knows nothing about are ignored.
func (b *Bank) Apply(index int, payload string) error {
	if line, ok := b.outputs[index]; ok {
		v, err := ParseValue(payload)
		if err != nil {
			return err
		}
		if err := line.SetValue(v); err != nil {
			return fmt.Errorf("setting line for facet %d: %w", index, err)
		}
		b.logger.Debugf("facet %d set to %d", index, v)
	}
	for _, target := range b.loopbacks[index] {
		b.queue(event{index: target, value: payload})
	}
	return nil
}

// Drain passes every queued value that differs from the last one sent for its facet.
func (b *Bank) Drain(send func(index int, value string) error) {
	for {
		select {
		case e := <-b.events:
			if last, ok := b.last[e.index]; ok && last == e.value {
				continue
			}
			if err := send(e.index, e.value); err != nil {
				b.logger.Warnf("sending facet %d: %s", e.index, err)
				continue
			}
			b.last[e.index] = e.value
		default:
			return
		}
	}
}

// Forget clears the repeat suppression so every facet is reported again, e.g. after a reconnect.
func (b *Bank) Forget() {
	clear(b.last)
	for index, line := range b.inputs {
		if v, err := line.Value(); err == nil {
			b.queue(event{index: index, value: fmt.Sprint(v)})
		}
	}
}

func (b *Bank) queue(e event) {
	select {
	case b.events <- e:
	default:
		b.logger.Warnf("event queue full, dropping value for facet %d", e.index)
	}
}

func (b *Bank) Close() {
	for _, l := range b.outputs {
		_ = l.Close()
	}
	for _, l := range b.inputs {
		_ = l.Close()
	}
	if b.chip != nil {
		_ = b.chip.Close()
	}
}

// ParseValue accepts the usual spellings of a binary value.
func ParseValue(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true", "high":
		return 1, nil
	case "0", "off", "false", "low":
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrValue, s)
}
