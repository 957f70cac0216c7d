package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrPrinterNotFound = errors.New("printer not found")
	ErrPrinterExists   = errors.New("printer already registered")
	ErrPrinterBusy     = errors.New("printer is printing")
)

// MaxUpfrontConsumption is the upper bound, in percent, of the consumable a printer
// burns on priming and purging before a job starts.
const MaxUpfrontConsumption = 1.0

// AssignRequest describes the job a printer is asked to take
type AssignRequest struct {
	JobID              int64
	JobLabel           string
	EstimatedDuration  time.Duration
	ConsumableRequired float64
	Start              time.Time
	End                time.Time
	// StartProgress is non-zero when a demoted job resumes where it stopped.
	StartProgress float64
}

// remaining is the consumable still needed to take the job from StartProgress to done
func (r AssignRequest) remaining() float64 {
	return r.ConsumableRequired * (100 - r.StartProgress) / 100
}

// Registry owns the printer catalog. All methods are safe for concurrent use and
// return copies, so callers never alias registry state.
type Registry struct {
	mu       sync.RWMutex
	printers map[int]*models.Printer
	upfront  func() float64
	snapshot *SnapshotStore
	logger   hclog.Logger
}

// Option customizes a Registry
type Option func(*Registry)

// WithUpfront replaces the random upfront consumption draw
func WithUpfront(fn func() float64) Option {
	return func(r *Registry) { r.upfront = fn }
}

// WithSnapshotStore persists printer records on Persist and seeds them on New
func WithSnapshotStore(s *SnapshotStore) Option {
	return func(r *Registry) { r.snapshot = s }
}

// WithLogger sets the registry logger
func WithLogger(l hclog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry holding the given printers. Printers found in the snapshot
// store take precedence over the seed list.
func New(seed []models.Printer, opts ...Option) (*Registry, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	r := &Registry{
		printers: make(map[int]*models.Printer),
		upfront:  func() float64 { return rng.Float64() * MaxUpfrontConsumption },
		logger:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range seed {
		p := seed[i].Clone()
		if err := validate(&p); err != nil {
			return nil, err
		}
		if _, dup := r.printers[p.ID]; dup {
			return nil, fmt.Errorf("printer %d: %w", p.ID, ErrPrinterExists)
		}
		r.printers[p.ID] = &p
	}

	if r.snapshot != nil {
		saved, err := r.snapshot.LoadPrinters()
		if err != nil {
			return nil, fmt.Errorf("failed to load printer snapshot: %w", err)
		}
		for i := range saved {
			p := saved[i]
			// A printer is never printing before recovery re-attaches its job.
			release(&p)
			r.printers[p.ID] = &p
		}
		if len(saved) > 0 {
			r.logger.Info("restored printers from snapshot", "count", len(saved))
		}
	}
	return r, nil
}

func validate(p *models.Printer) error {
	if p.ID <= 0 {
		return fmt.Errorf("printer id must be positive, got %d", p.ID)
	}
	if p.Status == "" {
		p.Status = models.PrinterIdle
	}
	if !models.IsValidPrinterStatus(string(p.Status)) {
		return fmt.Errorf("printer %d: invalid status %q", p.ID, p.Status)
	}
	if p.Status == models.PrinterPrinting {
		return fmt.Errorf("printer %d: cannot register a printer that is already printing", p.ID)
	}
	kind, ok := models.NormalizeConsumableKind(p.ConsumableKind)
	if !ok {
		return fmt.Errorf("printer %d: invalid consumable kind %q", p.ID, p.ConsumableKind)
	}
	p.ConsumableKind = kind
	p.ConsumableLevel = clamp(p.ConsumableLevel)
	if p.Name == "" {
		p.Name = fmt.Sprintf("Printer %d", p.ID)
	}
	return nil
}

// ListAll returns every printer ordered by id
func (r *Registry) ListAll() []models.Printer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(*models.Printer) bool { return true })
}

// ListAvailable returns the idle printers ordered by id
func (r *Registry) ListAvailable() []models.Printer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect((*models.Printer).Available)
}

func (r *Registry) collect(keep func(*models.Printer) bool) []models.Printer {
	out := make([]models.Printer, 0, len(r.printers))
	for _, p := range r.printers {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a printer by id
func (r *Registry) Get(id int) (models.Printer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.printers[id]
	if !ok {
		return models.Printer{}, false
	}
	return p.Clone(), true
}

// Add registers a new printer
func (r *Registry) Add(p models.Printer) (models.Printer, error) {
	p = p.Clone()
	if err := validate(&p); err != nil {
		return models.Printer{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.printers[p.ID]; ok {
		return models.Printer{}, fmt.Errorf("printer %d: %w", p.ID, ErrPrinterExists)
	}
	r.printers[p.ID] = &p
	return p.Clone(), nil
}

// Remove drops a printer from the catalog. A job bound to it is left to the
// scheduler, which requeues it on the next tick.
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.printers[id]; !ok {
		return fmt.Errorf("printer %d: %w", id, ErrPrinterNotFound)
	}
	delete(r.printers, id)
	if r.snapshot != nil {
		if err := r.snapshot.DeletePrinter(id); err != nil {
			r.logger.Error("failed to delete printer snapshot", "printer", id, "error", err)
		}
	}
	return nil
}

// Assign binds a job to an idle printer. It returns false without touching the
// printer when the printer is not idle or its consumable cannot cover the job
// once the upfront consumption is taken out.
func (r *Registry) Assign(id int, req AssignRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok || !p.Available() {
		return false
	}
	upfront := r.upfront()
	if p.ConsumableLevel-upfront < req.remaining() {
		r.logger.Debug("assignment refused", "printer", id, "level", p.ConsumableLevel, "required", req.remaining(), "upfront", upfront)
		return false
	}

	p.ConsumableLevel = clamp(p.ConsumableLevel - upfront)
	bind(p, req, p.ConsumableLevel)
	return true
}

// Reattach binds a recovered job to an idle printer without charging the upfront
// consumption again. The current level becomes the job-start snapshot.
func (r *Registry) Reattach(id int, req AssignRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok || !p.Available() {
		return false
	}
	bind(p, req, p.ConsumableLevel)
	return true
}

func bind(p *models.Printer, req AssignRequest, level float64) {
	start, end := req.Start, req.End
	p.Status = models.PrinterPrinting
	p.CurrentJobID = req.JobID
	p.CurrentJob = req.JobLabel
	p.JobStart = &start
	p.JobEnd = &end
	p.Progress = req.StartProgress
	p.ProgressAtJobStart = req.StartProgress
	p.ConsumableRequired = req.ConsumableRequired
	p.LevelAtJobStart = &level
}

// UpdateProgress records the job progress on a printing printer and charges the
// consumable used so far against the job-start snapshot. It returns false when the
// consumable runs out before the job reaches 100%, or when the printer is gone or
// no longer printing.
func (r *Registry) UpdateProgress(id int, progress float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok || p.Status != models.PrinterPrinting || p.LevelAtJobStart == nil {
		return false
	}
	if progress < p.ProgressAtJobStart {
		progress = p.ProgressAtJobStart
	}
	if progress > 100 {
		progress = 100
	}

	raw := *p.LevelAtJobStart - p.ConsumableRequired*(progress-p.ProgressAtJobStart)/100
	p.ConsumableLevel = clamp(raw)
	p.Progress = progress
	return !(raw <= 0 && progress < 100)
}

// Complete finishes the printer's job, accumulates its runtime and returns it to idle
func (r *Registry) Complete(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok || p.Status != models.PrinterPrinting {
		return false
	}
	if p.LevelAtJobStart != nil {
		p.ConsumableLevel = clamp(*p.LevelAtJobStart - p.ConsumableRequired*(100-p.ProgressAtJobStart)/100)
	}
	if p.JobStart != nil && p.JobEnd != nil && p.JobEnd.After(*p.JobStart) {
		p.Runtime += p.JobEnd.Sub(*p.JobStart)
	}
	p.CompletedCount++
	release(p)
	return true
}

// Release unbinds the given job from the printer without counting it as completed.
// Used when a job is demoted back to the queue.
func (r *Registry) Release(id int, jobID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok || p.Status != models.PrinterPrinting || p.CurrentJobID != jobID {
		return false
	}
	release(p)
	return true
}

func release(p *models.Printer) {
	if p.Status == models.PrinterPrinting {
		p.Status = models.PrinterIdle
	}
	unbind(p)
}

func unbind(p *models.Printer) {
	p.CurrentJobID = 0
	p.CurrentJob = ""
	p.Progress = 0
	p.ProgressAtJobStart = 0
	p.ConsumableRequired = 0
	p.JobStart = nil
	p.JobEnd = nil
	p.LevelAtJobStart = nil
}

// ChangeConsumable swaps the loaded filament kind. It fails while the printer is printing.
func (r *Registry) ChangeConsumable(id int, kind string) bool {
	kind, valid := models.NormalizeConsumableKind(kind)
	if !valid {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok || p.Status == models.PrinterPrinting {
		return false
	}
	if p.ConsumableKind != kind {
		r.logger.Info("consumable kind changed", "printer", id, "from", p.ConsumableKind, "to", kind)
	}
	p.ConsumableKind = kind
	return true
}

// LoadConsumable installs a spool of the given kind and level, e.g. after a refill
func (r *Registry) LoadConsumable(id int, kind string, level float64) error {
	kind, valid := models.NormalizeConsumableKind(kind)
	if !valid {
		return fmt.Errorf("invalid consumable kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok {
		return fmt.Errorf("printer %d: %w", id, ErrPrinterNotFound)
	}
	if p.Status == models.PrinterPrinting {
		return fmt.Errorf("printer %d: %w", id, ErrPrinterBusy)
	}
	p.ConsumableKind = kind
	p.ConsumableLevel = clamp(level)
	return nil
}

// SetStatus moves a printer between operator states. Printing is owned by Assign and
// Complete; a printing printer may only be moved to Paused or Error, which makes the
// scheduler requeue its job.
func (r *Registry) SetStatus(id int, status models.PrinterStatus) error {
	if !models.IsValidPrinterStatus(string(status)) || status == models.PrinterPrinting {
		return fmt.Errorf("invalid printer status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.printers[id]
	if !ok {
		return fmt.Errorf("printer %d: %w", id, ErrPrinterNotFound)
	}
	if p.Status == models.PrinterPrinting {
		if status != models.PrinterPaused && status != models.PrinterError {
			return fmt.Errorf("printer %d: %w", id, ErrPrinterBusy)
		}
		unbind(p)
	}
	p.Status = status
	return nil
}

// Persist writes every printer record to the snapshot store, if one is configured
func (r *Registry) Persist() error {
	if r.snapshot == nil {
		return nil
	}
	// Held across the save so a concurrent Remove cannot be undone by a stale record
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.SavePrinters(r.collect(func(*models.Printer) bool { return true }))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
