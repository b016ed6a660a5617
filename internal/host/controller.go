// Package host is an in-process block subsystem. It hands out device
// numbers, creates request queues and keeps a table of exposed disks, so a
// device can be registered, exercised and torn down without a kernel.
package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/behrlich/go-sbd/internal/constants"
	"github.com/behrlich/go-sbd/internal/geometry"
	"github.com/behrlich/go-sbd/internal/interfaces"
	"github.com/behrlich/go-sbd/internal/logging"
)

var (
	// ErrBusy is returned when a name is already registered
	ErrBusy = errors.New("name already registered")

	// ErrNoMajor is returned when the dynamic major range is exhausted
	ErrNoMajor = errors.New("no free major number")

	// ErrInvalidDisk is returned for a disk description the host cannot expose
	ErrInvalidDisk = errors.New("invalid disk")

	// ErrInjected is returned by a step armed with FailAt
	ErrInjected = errors.New("injected failure")
)

// Step identifies a registration call for failure injection
type Step int

const (
	StepNone Step = iota
	StepInitQueue
	StepRegisterBlkdev
	StepAddDisk
)

func (s Step) String() string {
	switch s {
	case StepInitQueue:
		return "init_queue"
	case StepRegisterBlkdev:
		return "register_blkdev"
	case StepAddDisk:
		return "add_disk"
	default:
		return "none"
	}
}

// Live counts the resources a controller currently has handed out
type Live struct {
	Queues int
	Majors int
	Disks  int
}

// Controller implements interfaces.Host
type Controller struct {
	mu     sync.Mutex
	majors map[int]string
	names  map[string]int
	queues map[*Queue]struct{}
	disks  map[string]*Disk
	failAt Step
	logger *logging.Logger
}

// NewController returns an empty host
func NewController() *Controller {
	return &Controller{
		majors: make(map[int]string),
		names:  make(map[string]int),
		queues: make(map[*Queue]struct{}),
		disks:  make(map[string]*Disk),
		logger: logging.Default(),
	}
}

// SetLogger replaces the controller's logger
func (c *Controller) SetLogger(l *logging.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

// FailAt makes the next call of step fail with ErrInjected.
// StepNone disarms it.
func (c *Controller) FailAt(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAt = step
}

func (c *Controller) injected(step Step) error {
	if c.failAt != step {
		return nil
	}
	c.failAt = StepNone
	return fmt.Errorf("%s: %w", step, ErrInjected)
}

func (c *Controller) InitQueue(drain interfaces.DrainFunc) (interfaces.Queue, error) {
	if drain == nil {
		return nil, fmt.Errorf("init queue: nil drain function")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.injected(StepInitQueue); err != nil {
		return nil, err
	}

	q := newQueue(drain)
	c.queues[q] = struct{}{}
	c.logger.Debug("queue initialized", "queues", len(c.queues))
	return q, nil
}

func (c *Controller) CleanupQueue(iq interfaces.Queue) {
	q, ok := iq.(*Queue)
	if !ok {
		return
	}

	c.mu.Lock()
	_, live := c.queues[q]
	delete(c.queues, q)
	c.mu.Unlock()

	if live {
		q.kill()
		c.logger.Debug("queue cleaned up")
	}
}

// RegisterBlkdev hands out majors from the top of the dynamic range down
func (c *Controller) RegisterBlkdev(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("register blkdev: empty name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.injected(StepRegisterBlkdev); err != nil {
		return 0, err
	}
	if major, ok := c.names[name]; ok {
		return 0, fmt.Errorf("register blkdev %q (major %d): %w", name, major, ErrBusy)
	}

	for major := constants.DynamicMajorMax; major >= constants.DynamicMajorMin; major-- {
		if _, used := c.majors[major]; used {
			continue
		}
		c.majors[major] = name
		c.names[name] = major
		c.logger.Info("block device registered", "name", name, "major", major)
		return major, nil
	}
	return 0, ErrNoMajor
}

// UnregisterBlkdev ignores a (major, name) pair it did not hand out
func (c *Controller) UnregisterBlkdev(major int, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if registered, ok := c.majors[major]; !ok || registered != name {
		c.logger.Warn("unregister of unknown block device", "name", name, "major", major)
		return
	}
	delete(c.majors, major)
	delete(c.names, name)
	c.logger.Info("block device unregistered", "name", name, "major", major)
}

func (c *Controller) AddDisk(info interfaces.DiskInfo) (interfaces.Disk, error) {
	if info.Name == "" || len(info.Name) >= constants.MaxDiskNameLen {
		return nil, fmt.Errorf("add disk %q: %w: bad name", info.Name, ErrInvalidDisk)
	}
	if info.Queue == nil {
		return nil, fmt.Errorf("add disk %q: %w: no queue", info.Name, ErrInvalidDisk)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.injected(StepAddDisk); err != nil {
		return nil, err
	}
	if registered, ok := c.majors[info.Major]; !ok {
		return nil, fmt.Errorf("add disk %q: %w: major %d not registered", info.Name, ErrInvalidDisk, info.Major)
	} else if _, used := c.disks[info.Name]; used {
		return nil, fmt.Errorf("add disk %q (%s): %w", info.Name, registered, ErrBusy)
	}

	d := &Disk{
		name:       info.Name,
		major:      info.Major,
		firstMinor: info.FirstMinor,
		minors:     info.Minors,
		queue:      info.Queue,
		ops:        info.Ops,
	}
	c.disks[info.Name] = d

	// The disk goes live empty and is sized afterwards
	d.setCapacity(info.Sectors)
	c.logger.Info("disk added", "disk", info.Name, "major", info.Major, "sectors", info.Sectors)
	return d, nil
}

func (c *Controller) DelDisk(id interfaces.Disk) {
	if id == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.disks[id.Name()]
	if !ok || d != id {
		return
	}
	delete(c.disks, d.name)
	d.setCapacity(0)
	c.logger.Info("disk removed", "disk", d.name)
}

// Disk looks up an exposed disk by name
func (c *Controller) Disk(name string) (*Disk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.disks[name]
	return d, ok
}

// Live reports outstanding resources
func (c *Controller) Live() Live {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Live{
		Queues: len(c.queues),
		Majors: len(c.majors),
		Disks:  len(c.disks),
	}
}

// Disk is a disk exposed by the controller
type Disk struct {
	mu         sync.Mutex
	name       string
	major      int
	firstMinor int
	minors     int
	capacity   uint64
	queue      interfaces.Queue
	ops        interfaces.DiskOps
}

func (d *Disk) setCapacity(sectors uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capacity = sectors
}

func (d *Disk) Name() string { return d.name }

func (d *Disk) Major() int { return d.major }

func (d *Disk) FirstMinor() int { return d.firstMinor }

func (d *Disk) Minors() int { return d.minors }

func (d *Disk) Queue() interfaces.Queue { return d.queue }

// Capacity returns the disk size in sectors; 0 once removed
func (d *Disk) Capacity() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capacity
}

// Geometry queries the device for its geometry, as an HDIO_GETGEO would
func (d *Disk) Geometry() (geometry.Geometry, error) {
	if d.ops.GetGeo == nil {
		return geometry.Geometry{}, fmt.Errorf("disk %s: no geometry operation", d.name)
	}
	return d.ops.GetGeo(), nil
}

var (
	_ interfaces.Host = (*Controller)(nil)
	_ interfaces.Disk = (*Disk)(nil)
)
