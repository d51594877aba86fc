package pins

import (
	"github.com/warthog618/go-gpiocdev"
)

// cdevChip requests lines through the gpio character device.
type cdevChip struct {
	chip *gpiocdev.Chip
}

func (c *cdevChip) RequestOutput(offset, initial int) (Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (c *cdevChip) RequestInput(offset int, onChange func(value int)) (Line, error) {
	l, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventRisingEdge {
				onChange(1)
			} else {
				onChange(0)
			}
		}))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (c *cdevChip) Close() error {
	return c.chip.Close()
}
