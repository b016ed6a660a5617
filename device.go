// Package sbd implements a memory-backed block device: a fixed-size RAM
// store exposed as a sequence of sectors, registered with a block host and
// serviced by draining the host's request queue.
package sbd

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/behrlich/go-sbd/internal/addr"
	"github.com/behrlich/go-sbd/internal/constants"
	"github.com/behrlich/go-sbd/internal/geometry"
	"github.com/behrlich/go-sbd/internal/host"
	"github.com/behrlich/go-sbd/internal/interfaces"
	"github.com/behrlich/go-sbd/internal/logging"
	"github.com/behrlich/go-sbd/internal/queue"
	"github.com/behrlich/go-sbd/internal/store"
)

// Lifecycle step names, used in logs and as Error.Op
const (
	stepValidate = "validate"
	stepToken    = "init_token"
	stepStore    = "alloc_store"
	stepQueue    = "init_queue"
	stepRegister = "register_blkdev"
	stepAddDisk  = "add_disk"
	stepStop     = "stop"
	stepDrain    = "drain"
)

const firstMinor = 0

// Params contains parameters for creating a device
type Params struct {
	SectorSize  uint32 // Logical sector size in bytes (default: 512)
	SectorCount uint64 // Capacity in sectors (default: 1024)

	DeviceName string // Name the major number is registered under
	DiskName   string // Name of the exposed disk, e.g. "sbd0"
	Minors     int    // Minor numbers reserved for the disk (default: 16)

	// RangePolicy decides what happens to chunks past the end of the device
	RangePolicy RangePolicy

	// Host receives the registration. If nil, an in-process host is created.
	Host Host
}

// DefaultParams returns default device parameters
func DefaultParams() Params {
	return Params{
		SectorSize:  constants.DefaultSectorSize,
		SectorCount: constants.DefaultSectorCount,
		DeviceName:  constants.DefaultDeviceName,
		DiskName:    constants.DefaultDiskName,
		Minors:      constants.DefaultMinors,
		RangePolicy: PolicyDrop,
	}
}

// Capacity returns the store size in bytes
func (p Params) Capacity() uint64 {
	return p.SectorCount * uint64(p.SectorSize)
}

func (p Params) validate() error {
	invalid := func(format string, args ...any) error {
		e := NewError(stepValidate, ErrInvalidParameters, fmt.Sprintf(format, args...))
		e.Device = p.DiskName
		return e
	}

	if !addr.ValidSectorSize(p.SectorSize) || p.SectorSize < constants.DefaultSectorSize || p.SectorSize > constants.MaxSectorSize {
		return invalid("sector size %d must be a power of two between %d and %d",
			p.SectorSize, constants.DefaultSectorSize, constants.MaxSectorSize)
	}
	if p.SectorCount == 0 {
		return invalid("sector count must be positive")
	}
	if p.SectorCount > math.MaxInt64/uint64(p.SectorSize) {
		return invalid("%d sectors of %d bytes overflow the address space", p.SectorCount, p.SectorSize)
	}
	if p.DeviceName == "" {
		return invalid("device name is required")
	}
	if p.DiskName == "" || len(p.DiskName) >= constants.MaxDiskNameLen {
		return invalid("disk name %q must be 1 to %d bytes", p.DiskName, constants.MaxDiskNameLen-1)
	}
	if p.Minors < 1 {
		return invalid("minors must be positive, got %d", p.Minors)
	}
	if p.RangePolicy != PolicyDrop && p.RangePolicy != PolicyFail {
		return invalid("unknown range policy %s", p.RangePolicy)
	}
	return nil
}

// Options contains additional options for device creation
type Options struct {
	// Context for cancellation (if nil, uses the context passed to Start).
	// Cancelling it makes in-flight token waits fail; it does not stop the
	// device.
	Context context.Context

	// Logger for drain messages (if nil, the structured default logger)
	Logger Logger

	// Observer for metrics collection (if nil, records into Metrics())
	Observer Observer
}

// DeviceState represents the current state of a device
type DeviceState string

const (
	// DeviceStateCreated indicates a start that has not completed
	DeviceStateCreated DeviceState = "created"
	// DeviceStateRunning indicates the device is serving requests
	DeviceStateRunning DeviceState = "running"
	// DeviceStateStopping indicates teardown began but the store is still
	// held; a later Stop finishes it
	DeviceStateStopping DeviceState = "stopping"
	// DeviceStateStopped indicates the device has been torn down
	DeviceStateStopped DeviceState = "stopped"
)

// Device is a registered memory-backed block device.
//
// Its configuration is fixed once Start returns; accessors need no locking.
type Device struct {
	name        string
	diskName    string
	sectorSize  uint32
	sectorCount uint64
	minors      int
	policy      RangePolicy
	geometry    Geometry
	major       int

	host   Host
	token  *queue.Token
	store  *store.Store
	runner *queue.Runner
	queue  interfaces.Queue
	disk   interfaces.Disk

	ctx    context.Context
	cancel context.CancelFunc
	log    *logging.Logger

	metrics  *Metrics
	observer Observer

	// mu guards the lifecycle flags. Each flag records a resource that has
	// been acquired and not yet released.
	mu         sync.Mutex
	started    bool
	stopping   bool
	stopped    bool
	haveStore  bool
	haveQueue  bool
	registered bool
	haveDisk   bool
}

// Start creates a device with the given parameters and registers it with
// the host. Steps run in order: token, store, queue, major number, disk.
// A failing step releases every step before it, in reverse order, and
// returns an *Error coded ErrAllocationFailure or ErrRegistrationFailure.
//
// Example:
//
//	params := sbd.DefaultParams()
//	dev, err := sbd.Start(context.Background(), params, nil)
//	...
//	defer dev.Stop()
func Start(ctx context.Context, params Params, options *Options) (*Device, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}

	if err := params.validate(); err != nil {
		return nil, err
	}

	log := logging.Default().WithDevice(params.DiskName)

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
	}

	h := params.Host
	if h == nil {
		c := host.NewController()
		c.SetLogger(log)
		h = c
	}

	d := &Device{
		name:        params.DeviceName,
		diskName:    params.DiskName,
		sectorSize:  params.SectorSize,
		sectorCount: params.SectorCount,
		minors:      params.Minors,
		policy:      params.RangePolicy,
		geometry:    geometry.Compute(params.Capacity(), params.SectorSize),
		host:        h,
		log:         log,
		metrics:     metrics,
		observer:    observer,
	}
	d.ctx, d.cancel = context.WithCancel(ctx)

	fail := func(step string, code ErrorCode, err error) (*Device, error) {
		log.StepFailed(step, err)
		e := NewDeviceError(step, d.diskName, code, err)
		e.Major = d.major
		d.Stop()
		return nil, e
	}

	log.StepStart(stepToken)
	d.token = queue.NewToken()
	log.StepDone(stepToken)

	log.StepStart(stepStore)
	st, err := store.New(params.Capacity())
	if err != nil {
		return fail(stepStore, ErrAllocationFailure, err)
	}
	d.store = st
	d.haveStore = true
	log.StepDone(stepStore)

	var runnerLogger Logger = log
	if options.Logger != nil {
		runnerLogger = options.Logger
	}

	log.StepStart(stepQueue)
	d.runner, err = queue.NewRunner(queue.Config{
		Device:     d.diskName,
		Store:      d.store,
		Token:      d.token,
		SectorSize: d.sectorSize,
		Policy:     d.policy,
		Logger:     runnerLogger,
		Observer:   observer,
	})
	if err != nil {
		return fail(stepQueue, ErrAllocationFailure, err)
	}
	q, err := h.InitQueue(d.Drain)
	if err != nil {
		return fail(stepQueue, ErrAllocationFailure, err)
	}
	d.queue = q
	d.haveQueue = true
	q.SetLogicalBlockSize(d.sectorSize)
	log.StepDone(stepQueue)

	log.StepStart(stepRegister)
	major, err := h.RegisterBlkdev(d.name)
	if err != nil {
		return fail(stepRegister, ErrRegistrationFailure, err)
	}
	d.major = major
	d.registered = true
	log = log.WithMajor(major)
	d.log = log
	log.StepDone(stepRegister)

	log.StepStart(stepAddDisk)
	disk, err := h.AddDisk(interfaces.DiskInfo{
		Major:      major,
		FirstMinor: firstMinor,
		Minors:     d.minors,
		Name:       d.diskName,
		Sectors:    d.sectorCount,
		Queue:      q,
		Ops:        interfaces.DiskOps{GetGeo: d.Geometry},
	})
	if err != nil {
		return fail(stepAddDisk, ErrRegistrationFailure, err)
	}
	d.disk = disk
	d.haveDisk = true
	log.StepDone(stepAddDisk)

	d.mu.Lock()
	d.started = true
	d.mu.Unlock()

	log.Info("device started",
		"sectors", d.sectorCount,
		"sector_size", d.sectorSize,
		"policy", d.policy.String(),
		"geometry", d.geometry.String())

	if options.Logger != nil {
		options.Logger.Printf("Device created: %s (major %d) with %d sectors of %d bytes",
			d.diskName, major, d.sectorCount, d.sectorSize)
	}

	return d, nil
}

// Drain is the callback registered with the host. It services every request
// src holds; failed requests complete with an *Error.
func (d *Device) Drain(src RequestSource) {
	if d.runner == nil {
		for req := src.Fetch(); req != nil; req = src.Fetch() {
			src.EndAll(req, NewDeviceError(stepDrain, d.diskName, ErrDeviceStopped, nil))
		}
		return
	}
	d.runner.Drain(d.ctx, &completer{RequestSource: src, device: d.diskName})
}

// completer attaches device context to completion errors
type completer struct {
	RequestSource
	device string
}

func (c *completer) EndCurrent(req *Request, err error) bool {
	return c.RequestSource.EndCurrent(req, c.wrap(req, err))
}

func (c *completer) EndAll(req *Request, err error) {
	c.RequestSource.EndAll(req, c.wrap(req, err))
}

func (c *completer) wrap(req *Request, err error) error {
	if err == nil {
		return nil
	}
	e := WrapError(stepDrain, err)
	e.Device = c.device
	e.Sector = req.Pos()
	return e
}

// Stop tears the device down in reverse registration order: disk, major
// number, queue, store. Steps that never completed are skipped and every
// resource is released once, so Stop is safe after a partial start and on
// repeated calls.
func (d *Device) Stop() error {
	return d.stop(context.Background())
}

func (d *Device) stop(ctx context.Context) error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}

	d.log.StepStart(stepStop)
	d.started = false
	d.stopping = true

	if d.haveDisk {
		d.host.DelDisk(d.disk)
		d.haveDisk = false
	}
	if d.registered {
		d.host.UnregisterBlkdev(d.major, d.name)
		d.registered = false
	}
	if d.haveQueue {
		d.host.CleanupQueue(d.queue)
		d.haveQueue = false
	}

	// Waiters give up; a copy already under the token finishes first
	d.cancel()

	if d.haveStore {
		if err := d.token.Acquire(ctx); err != nil {
			d.log.StepFailed(stepStop, err)
			return NewDeviceError(stepStop, d.diskName, ErrIO, err)
		}
		err := d.store.Free()
		d.token.Release()
		if err != nil {
			d.log.StepFailed(stepStop, err)
			return NewDeviceError(stepStop, d.diskName, ErrIO, err)
		}
		d.haveStore = false
	}

	d.metrics.Stop()
	d.stopping = false
	d.stopped = true
	d.log.StepDone(stepStop)
	return nil
}

// StopAndDelete stops the device and removes it from its host. If ctx ends
// while an in-flight copy holds the store, the store is left allocated and
// a later call finishes the job.
func StopAndDelete(ctx context.Context, device *Device) error {
	if device == nil {
		return NewError(stepStop, ErrInvalidParameters, "nil device")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return device.stop(ctx)
}

// State returns the current state of the device
func (d *Device) State() DeviceState {
	if d == nil {
		return DeviceStateStopped
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.stopped:
		return DeviceStateStopped
	case d.stopping:
		return DeviceStateStopping
	case d.started:
		return DeviceStateRunning
	default:
		return DeviceStateCreated
	}
}

// IsRunning returns true if the device is serving requests
func (d *Device) IsRunning() bool {
	return d.State() == DeviceStateRunning
}

// Name returns the name the major number is registered under
func (d *Device) Name() string { return d.name }

// DiskName returns the name of the exposed disk
func (d *Device) DiskName() string { return d.diskName }

// Major returns the major number assigned by the host
func (d *Device) Major() int { return d.major }

// SectorSize returns the logical sector size in bytes
func (d *Device) SectorSize() uint32 { return d.sectorSize }

// SectorCount returns the capacity in sectors
func (d *Device) SectorCount() uint64 { return d.sectorCount }

// Size returns the capacity in bytes
func (d *Device) Size() uint64 { return d.sectorCount * uint64(d.sectorSize) }

// RangePolicy returns the out-of-range policy
func (d *Device) RangePolicy() RangePolicy { return d.policy }

// Geometry returns the synthetic geometry of the device
func (d *Device) Geometry() Geometry { return d.geometry }

// Queue returns the host queue requests are submitted to
func (d *Device) Queue() interfaces.Queue { return d.queue }

// Submit hands req to the host queue. The request has completed when
// Submit returns unless the host defers delivery.
func (d *Device) Submit(req *Request) {
	d.queue.Submit(req)
}

// TokenStats reports synchronization token usage
type TokenStats struct {
	Holders      int32  `json:"holders"`
	Peak         int32  `json:"peak"`
	Acquisitions uint64 `json:"acquisitions"`
}

// TokenStats returns how the store token has been used. Peak is never
// above 1.
func (d *Device) TokenStats() TokenStats {
	if d.token == nil {
		return TokenStats{}
	}
	return TokenStats{
		Holders:      d.token.Holders(),
		Peak:         d.token.Peak(),
		Acquisitions: d.token.Acquisitions(),
	}
}

// DeviceInfo contains comprehensive information about a device
type DeviceInfo struct {
	Name        string      `json:"name"`
	DiskName    string      `json:"disk_name"`
	Major       int         `json:"major"`
	Minors      int         `json:"minors"`
	State       DeviceState `json:"state"`
	SectorSize  uint32      `json:"sector_size"`
	SectorCount uint64      `json:"sector_count"`
	Size        uint64      `json:"size"`
	Geometry    Geometry    `json:"geometry"`
	RangePolicy string      `json:"range_policy"`
	Running     bool        `json:"running"`
}

// Info returns comprehensive information about the device
func (d *Device) Info() DeviceInfo {
	if d == nil {
		return DeviceInfo{}
	}

	state := d.State()
	return DeviceInfo{
		Name:        d.name,
		DiskName:    d.diskName,
		Major:       d.major,
		Minors:      d.minors,
		State:       state,
		SectorSize:  d.sectorSize,
		SectorCount: d.sectorCount,
		Size:        d.Size(),
		Geometry:    d.geometry,
		RangePolicy: d.policy.String(),
		Running:     state == DeviceStateRunning,
	}
}

// Metrics returns the metrics the default observer records into
func (d *Device) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of device metrics
func (d *Device) MetricsSnapshot() MetricsSnapshot {
	if d == nil || d.metrics == nil {
		return MetricsSnapshot{}
	}
	return d.metrics.Snapshot()
}
