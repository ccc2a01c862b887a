// Package liquidhandling executes solved protocols on a pipetting robot.
//
// A Handler sequences the steps of each transfer (tip handling, optional
// mixing, aspirate, dispense) and delegates the motions to a Driver. The
// Simulator driver records every call and tracks well volumes in memory.
package liquidhandling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"graphmix/internal/ctxlog"
	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/protocol"
	"graphmix/pkg/units"
)

var (
	// ErrTransferVolume reports a transfer outside the handler's volume range.
	ErrTransferVolume = errors.New("liquidhandling: transfer volume out of range")
	// ErrNoSource reports a request without a source node.
	ErrNoSource = errors.New("liquidhandling: transfer has no source")
	// ErrNoDestination reports a dispense without a destination node.
	ErrNoDestination = errors.New("liquidhandling: transfer has no destination")
)

var (
	volume   = units.Default().Validator(units.Volume)
	flowRate = units.Default().Validator(units.FlowRate)
)

// Driver performs the physical motions. Implementations must treat every
// call as blocking until the robot has finished.
type Driver interface {
	Setup(ctx context.Context) error
	SetupTransfer(ctx context.Context) error
	PickUpTip(ctx context.Context, at location.Location) error
	DropTip(ctx context.Context) error
	Aspirate(ctx context.Context, vol units.Quantity, at location.Location, m Motion) error
	Dispense(ctx context.Context, vol units.Quantity, at location.Location, m Motion) error
	FinishTransfer(ctx context.Context) error
}

// Motion carries the optional parameters of a single aspirate or dispense.
type Motion struct {
	Rate       *units.Quantity
	AirCushion *units.Quantity
}

// Mix pipettes Volume up and down Rounds times at Location.
type Mix struct {
	Volume   units.Quantity
	Rate     *units.Quantity
	Rounds   int
	Location location.Location
}

// Request holds the settings shared by single and multi transfers.
type Request struct {
	Source       *protocol.Node
	ReuseTip     bool
	AirCushion   *units.Quantity
	AspirateRate *units.Quantity
	DispenseRate *units.Quantity
	AspirateMix  *Mix
}

// SingleTransfer moves Volume from the source to one destination.
type SingleTransfer struct {
	Request
	Volume      units.Quantity
	Destination *protocol.Node
	DispenseMix *Mix
}

// MultiTransfer aspirates once and dispenses DispenseVolume into each
// destination.
type MultiTransfer struct {
	Request
	AspirateVolume units.Quantity
	DispenseVolume units.Quantity
	Destinations   []*protocol.Node
}

// Config tunes a Handler. Zero volumes take the defaults of 200 uL max and
// 20 uL min.
type Config struct {
	Tips              location.Supplier
	MaxTransferVolume units.Quantity
	MinTransferVolume units.Quantity
	AspirateRate      *units.Quantity
	DispenseRate      *units.Quantity
	Logger            *slog.Logger
}

// Handler is a tip-aware transfer sequencer. It is not safe for concurrent
// use; a robot runs one transfer at a time.
type Handler struct {
	driver Driver
	tips   location.Supplier
	max    units.Quantity
	min    units.Quantity

	aspirateRate *units.Quantity
	dispenseRate *units.Quantity
	logger       *slog.Logger

	hasTip bool
	last   *mix.Solution
}

// NewHandler validates cfg and binds it to driver.
func NewHandler(driver Driver, cfg Config) (*Handler, error) {
	if driver == nil {
		return nil, errors.New("liquidhandling: nil driver")
	}
	if cfg.Tips == nil {
		return nil, errors.New("liquidhandling: no tip supplier")
	}
	h := &Handler{
		driver:       driver,
		tips:         cfg.Tips,
		max:          cfg.MaxTransferVolume,
		min:          cfg.MinTransferVolume,
		aspirateRate: cfg.AspirateRate,
		dispenseRate: cfg.DispenseRate,
		logger:       cfg.Logger,
	}
	if h.max.Unit.Symbol == "" {
		h.max = units.MustNew(200, "uL")
	}
	if h.min.Unit.Symbol == "" {
		h.min = units.MustNew(20, "uL")
	}
	for _, q := range []units.Quantity{h.max, h.min} {
		if _, err := volume.Check(q); err != nil {
			return nil, err
		}
	}
	if c, err := h.min.Cmp(h.max); err != nil || c > 0 {
		return nil, fmt.Errorf("liquidhandling: min transfer volume %s above max %s", h.min, h.max)
	}
	for _, r := range []*units.Quantity{h.aspirateRate, h.dispenseRate} {
		if r == nil {
			continue
		}
		if _, err := flowRate.Check(*r); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Handler) log(ctx context.Context) *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return ctxlog.FromContext(ctx)
}

// HasTip reports whether a tip is mounted.
func (h *Handler) HasTip() bool { return h.hasTip }

// Setup prepares the robot before the first transfer.
func (h *Handler) Setup(ctx context.Context) error {
	h.log(ctx).InfoContext(ctx, "setup")
	return h.driver.Setup(ctx)
}

// CheckVolume rejects volumes outside [min, max].
func (h *Handler) CheckVolume(q units.Quantity) error {
	if _, err := volume.Check(q); err != nil {
		return err
	}
	lo, err := q.Cmp(h.min)
	if err != nil {
		return err
	}
	hi, err := q.Cmp(h.max)
	if err != nil {
		return err
	}
	if lo < 0 || hi > 0 {
		return fmt.Errorf("%w: %s not within %s..%s", ErrTransferVolume, q, h.min, h.max)
	}
	return nil
}

// DropTip discards the mounted tip, if any.
func (h *Handler) DropTip(ctx context.Context) error {
	if !h.hasTip {
		return nil
	}
	h.log(ctx).InfoContext(ctx, "drop tip")
	if err := h.driver.DropTip(ctx); err != nil {
		return err
	}
	h.hasTip = false
	h.last = nil
	return nil
}

// PickUpTip mounts the next tip from the supplier.
func (h *Handler) PickUpTip(ctx context.Context) error {
	at, err := h.tips.Next()
	if err != nil {
		return fmt.Errorf("next tip: %w", err)
	}
	h.log(ctx).InfoContext(ctx, "pick up tip", "at", at.Qualified())
	if err := h.driver.PickUpTip(ctx, at); err != nil {
		return err
	}
	h.hasTip = true
	return nil
}

// ChangeTip drops the mounted tip and picks up a fresh one.
func (h *Handler) ChangeTip(ctx context.Context) error {
	if err := h.DropTip(ctx); err != nil {
		return err
	}
	return h.PickUpTip(ctx)
}

// canReuseTip holds when the mounted tip last carried a solution with the
// same solutes as src.
func (h *Handler) canReuseTip(r Request) (bool, error) {
	if !r.ReuseTip || !h.hasTip || h.last == nil {
		return false, nil
	}
	prev, err := h.last.Composition()
	if err != nil {
		return false, err
	}
	next, err := r.Source.Composition()
	if err != nil {
		return false, err
	}
	return slices.Equal(prev.SoluteNames(), next.SoluteNames()), nil
}

func (h *Handler) setupTransfer(ctx context.Context, r Request) error {
	if r.Source == nil {
		return ErrNoSource
	}
	if err := h.driver.SetupTransfer(ctx); err != nil {
		return err
	}
	reuse, err := h.canReuseTip(r)
	if err != nil {
		return err
	}
	if reuse {
		h.log(ctx).DebugContext(ctx, "reuse tip", "source", r.Source.Name())
		return nil
	}
	return h.ChangeTip(ctx)
}

func (h *Handler) mix(ctx context.Context, m *Mix, fallback *units.Quantity) error {
	if m == nil {
		return nil
	}
	rate := m.Rate
	if rate == nil {
		rate = fallback
	}
	h.log(ctx).InfoContext(ctx, "mix", "at", m.Location.Qualified(), "volume", m.Volume.String(), "rounds", m.Rounds)
	for r := 0; r < m.Rounds; r++ {
		if err := h.driver.Aspirate(ctx, m.Volume, m.Location, Motion{Rate: rate}); err != nil {
			return err
		}
		if err := h.driver.Dispense(ctx, m.Volume, m.Location, Motion{Rate: rate}); err != nil {
			return err
		}
	}
	return nil
}

func pick(q, fallback *units.Quantity) *units.Quantity {
	if q != nil {
		return q
	}
	return fallback
}

func (h *Handler) aspirate(ctx context.Context, r Request, vol units.Quantity) error {
	at := r.Source.Location
	h.log(ctx).InfoContext(ctx, "aspirate", "source", r.Source.Name(), "at", at.Qualified(), "volume", vol.String())
	m := Motion{Rate: pick(r.AspirateRate, h.aspirateRate), AirCushion: r.AirCushion}
	if err := h.driver.Aspirate(ctx, vol, at, m); err != nil {
		return err
	}
	h.last = r.Source.Solution
	return nil
}

func (h *Handler) dispense(ctx context.Context, r Request, dst *protocol.Node, vol units.Quantity) error {
	if dst == nil {
		return ErrNoDestination
	}
	at := dst.Location
	h.log(ctx).InfoContext(ctx, "dispense", "destination", dst.Name(), "at", at.Qualified(), "volume", vol.String())
	m := Motion{Rate: pick(r.DispenseRate, h.dispenseRate), AirCushion: r.AirCushion}
	return h.driver.Dispense(ctx, vol, at, m)
}

// Transfer runs one single-destination transfer.
func (h *Handler) Transfer(ctx context.Context, t SingleTransfer) error {
	if err := h.CheckVolume(t.Volume); err != nil {
		return err
	}
	if err := h.setupTransfer(ctx, t.Request); err != nil {
		return err
	}
	if err := h.mix(ctx, t.AspirateMix, pick(t.AspirateRate, h.aspirateRate)); err != nil {
		return err
	}
	if err := h.aspirate(ctx, t.Request, t.Volume); err != nil {
		return err
	}
	if err := h.dispense(ctx, t.Request, t.Destination, t.Volume); err != nil {
		return err
	}
	if err := h.mix(ctx, t.DispenseMix, pick(t.DispenseRate, h.dispenseRate)); err != nil {
		return err
	}
	return h.driver.FinishTransfer(ctx)
}

// MultiTransfer aspirates once and dispenses into each destination in order.
// The aspirate volume must cover every dispense.
func (h *Handler) MultiTransfer(ctx context.Context, t MultiTransfer) error {
	if err := h.CheckVolume(t.AspirateVolume); err != nil {
		return err
	}
	if _, err := volume.Check(t.DispenseVolume); err != nil {
		return err
	}
	need := t.DispenseVolume.Scale(float64(len(t.Destinations)))
	if c, err := need.Cmp(t.AspirateVolume); err != nil {
		return err
	} else if c > 0 {
		return fmt.Errorf("%w: %d x %s exceeds aspirated %s", ErrTransferVolume, len(t.Destinations), t.DispenseVolume, t.AspirateVolume)
	}
	if err := h.setupTransfer(ctx, t.Request); err != nil {
		return err
	}
	if err := h.mix(ctx, t.AspirateMix, pick(t.AspirateRate, h.aspirateRate)); err != nil {
		return err
	}
	if err := h.aspirate(ctx, t.Request, t.AspirateVolume); err != nil {
		return err
	}
	for _, dst := range t.Destinations {
		if err := h.dispense(ctx, t.Request, dst, t.DispenseVolume); err != nil {
			return err
		}
	}
	return h.driver.FinishTransfer(ctx)
}
