// Package registry implements the VM inventory store of §4.J: registration,
// heartbeat, role-based discovery, and a background sweep that demotes
// stale VMs, generalized from the teacher's CleanupStaleAgents routine (see
// SPEC_FULL.md §5).
package registry

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/fleethub/controlplane/internal/apierr"
	"github.com/fleethub/controlplane/internal/dstore"
	"github.com/fleethub/controlplane/internal/eventbus"
	"github.com/fleethub/controlplane/internal/idgen"
	"github.com/fleethub/controlplane/internal/model"
)

// DefaultStaleThreshold is how long a running VM can go without a heartbeat
// before the sweeper marks it stopped.
const DefaultStaleThreshold = 2 * time.Minute

// Store is the RegisteredVM feature store.
type Store struct {
	mp        *dstore.MapStore[string, model.RegisteredVM]
	bus       *eventbus.Bus
	threshold time.Duration
}

// New opens the registry's durable map at path.
func New(path string, bus *eventbus.Bus) (*Store, error) {
	mp, err := dstore.NewMapStore[string, model.RegisteredVM](path, applyDefaults)
	if err != nil {
		return nil, err
	}
	return &Store{mp: mp, bus: bus, threshold: DefaultStaleThreshold}, nil
}

// SetStaleThreshold overrides the staleness window read-time filters use
// (§3/§8: "discover(role) and list({status:running}) exclude a VM whose
// lastSeen is older than the threshold"). Independent of the Sweeper, which
// demotes stale VMs in the background; this is the immediate read-time
// check a heartbeat satisfies without waiting for the next sweep tick.
func (s *Store) SetStaleThreshold(d time.Duration) {
	if d > 0 {
		s.threshold = d
	}
}

func applyDefaults(v model.RegisteredVM) model.RegisteredVM {
	if v.Services == nil {
		v.Services = []string{}
	}
	if v.Metadata == nil {
		v.Metadata = map[string]string{}
	}
	if v.Status == "" {
		v.Status = model.VMRunning
	}
	return v
}

// Flush forces a synchronous write, for graceful shutdown.
func (s *Store) Flush() error { return s.mp.Flush() }

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Name         string
	Role         model.VMRole
	Address      string
	Services     []string
	Metadata     map[string]string
	RegisteredBy string
}

// Register adds a VM to the inventory, or re-registers an existing one under
// a fresh ID if the name/address pair already exists is left to the caller —
// every call mints a new entry, matching the fleet's treat-VMs-as-cattle
// model.
func (s *Store) Register(in RegisterInput) (model.RegisteredVM, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.RegisteredVM{}, apierr.Validationf("name is required")
	}
	if in.Role == "" {
		return model.RegisteredVM{}, apierr.Validationf("role is required")
	}
	now := time.Now().UTC()
	vm := applyDefaults(model.RegisteredVM{
		ID: idgen.New(), Name: in.Name, Role: in.Role, Status: model.VMRunning,
		Address: in.Address, Services: in.Services, Metadata: in.Metadata,
		RegisteredBy: in.RegisteredBy, RegisteredAt: now, LastSeen: now,
	})
	s.mp.Mutate(func(m map[string]model.RegisteredVM) { m[vm.ID] = vm })
	s.publish("vm_registered", vm)
	return vm, nil
}

// Get returns a VM by id.
func (s *Store) Get(id string) (model.RegisteredVM, error) {
	v, ok := s.mp.Get(id)
	if !ok {
		return model.RegisteredVM{}, apierr.NotFoundf("vm %s not found", id)
	}
	return v, nil
}

// ListFilters narrows List.
type ListFilters struct {
	Role   model.VMRole
	Status model.VMStatus
}

// List returns every registered VM matching filters, sorted by name. Plain
// (no status filter) listing is explicit and shows stale VMs as-is; a
// status=running filter additionally excludes VMs whose heartbeat has aged
// past the staleness threshold, per §3's "Discovery and status=running
// filters exclude stale VMs; explicit listing does not."
func (s *Store) List(f ListFilters) []model.RegisteredVM {
	now := time.Now().UTC()
	var out []model.RegisteredVM
	s.mp.View(func(m map[string]model.RegisteredVM) {
		for _, v := range m {
			if f.Role != "" && v.Role != f.Role {
				continue
			}
			if f.Status != "" {
				if v.Status != f.Status {
					continue
				}
				if f.Status == model.VMRunning && v.Stale(now, s.threshold) {
					continue
				}
			}
			out = append(out, v)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Discover returns non-stale running VMs of a role, newest-lastSeen-first —
// the query a new agent uses at boot to find its lieutenant/infra peers
// (SPEC_FULL.md §4).
func (s *Store) Discover(role model.VMRole) []model.RegisteredVM {
	out := s.List(ListFilters{Role: role, Status: model.VMRunning})
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Heartbeat bumps a VM's LastSeen and optionally its status.
func (s *Store) Heartbeat(id string, status model.VMStatus) (model.RegisteredVM, error) {
	var result model.RegisteredVM
	var mutateErr error
	s.mp.Mutate(func(m map[string]model.RegisteredVM) {
		v, ok := m[id]
		if !ok {
			mutateErr = apierr.NotFoundf("vm %s not found", id)
			return
		}
		v.LastSeen = time.Now().UTC()
		if status != "" {
			v.Status = status
		}
		m[id] = v
		result = v
	})
	if mutateErr != nil {
		return model.RegisteredVM{}, mutateErr
	}
	return result, nil
}

// Deregister removes a VM from the inventory entirely.
func (s *Store) Deregister(id string) error {
	found := false
	s.mp.Mutate(func(m map[string]model.RegisteredVM) {
		if _, ok := m[id]; ok {
			delete(m, id)
			found = true
		}
	})
	if !found {
		return apierr.NotFoundf("vm %s not found", id)
	}
	return nil
}

func (s *Store) publish(kind string, v model.RegisteredVM) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.NewEvent(kind, v.Name, string(v.Role), string(v.Status), map[string]any{
		"vmId": v.ID, "status": string(v.Status),
	}))
}

// Sweeper periodically demotes VMs whose heartbeat has gone stale.
type Sweeper struct {
	store     *Store
	threshold time.Duration
	interval  time.Duration
	stop      chan struct{}
}

// NewSweeper builds a Sweeper; call Start to run it.
func NewSweeper(store *Store, threshold, interval time.Duration) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{store: store, threshold: threshold, interval: interval, stop: make(chan struct{})}
}

// Start runs the sweep loop in a goroutine until Stop is called.
func (sw *Sweeper) Start() {
	ticker := time.NewTicker(sw.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sw.sweepOnce()
			case <-sw.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop.
func (sw *Sweeper) Stop() { close(sw.stop) }

func (sw *Sweeper) sweepOnce() {
	now := time.Now().UTC()
	var demoted []string
	sw.store.mp.Mutate(func(m map[string]model.RegisteredVM) {
		for id, v := range m {
			if v.Stale(now, sw.threshold) {
				v.Status = model.VMStopped
				m[id] = v
				demoted = append(demoted, v.Name)
			}
		}
	})
	if len(demoted) > 0 {
		log.Printf("[REGISTRY] swept %d stale vm(s): %s", len(demoted), strings.Join(demoted, ", "))
	}
}
