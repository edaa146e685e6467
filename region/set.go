package region

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/shm"
)

// Set is an ordered collection of mapped regions with one teardown. The
// owner (creator of the backing objects) unlinks them on Close.
type Set struct {
	byName  map[string]*Region
	regions []*Region
	owner   bool
}

// CreateSet creates and maps the backing objects for every spec. Object
// names are prefix + "." + spec name, so concurrent hosts pick distinct
// prefixes (a pid works). The host mapping is always writable: it has to
// build content for regions guests only read.
func CreateSet(prefix string, specs ...Spec) (*Set, error) {
	return buildSet(specs, true, func(sp Spec) (*shm.Object, error) {
		return shm.Create(prefix+"."+sp.Name, int64(sp.Size))
	})
}

// CreateAnonymousSet is CreateSet over memfd objects, for hosts whose
// guests live in the same process.
func CreateAnonymousSet(specs ...Spec) (*Set, error) {
	return buildSet(specs, true, func(sp Spec) (*shm.Object, error) {
		return shm.CreateAnonymous(sp.Name, int64(sp.Size))
	})
}

// OpenSet attaches to regions another process created. Spec sizes of zero
// accept whatever size the object has; non-zero sizes must not exceed it.
// The guest access from each spec decides the mapping protection.
func OpenSet(prefix string, specs ...Spec) (*Set, error) {
	return buildSet(specs, false, func(sp Spec) (*shm.Object, error) {
		return openObject(prefix, sp)
	})
}

// OpenObjects opens the backing objects of a named set in spec order
// without mapping them, for callers that place regions somewhere other
// than host address space (the fixed mapper). Sizes follow OpenSet's
// rules. On error every object opened so far is closed.
func OpenObjects(prefix string, specs ...Spec) ([]*shm.Object, error) {
	objs := make([]*shm.Object, 0, len(specs))
	for _, sp := range specs {
		obj, err := openObject(prefix, sp)
		if err != nil {
			for _, o := range objs {
				o.Close()
			}
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func openObject(prefix string, sp Spec) (*shm.Object, error) {
	obj, err := shm.Open(prefix + "." + sp.Name)
	if err != nil {
		return nil, err
	}
	if sp.Size != 0 && int64(sp.Size) > obj.Size() {
		obj.Close()
		return nil, errors.New(errors.PhaseMap, errors.KindInvalidInput).
			Region(sp.Name).
			Detail("object holds %d bytes, spec wants %d", obj.Size(), sp.Size).
			Build()
	}
	return obj, nil
}

func buildSet(specs []Spec, owner bool, open func(Spec) (*shm.Object, error)) (*Set, error) {
	if len(specs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseMap, "no regions in set")
	}

	s := &Set{byName: make(map[string]*Region, len(specs)), owner: owner}
	for _, sp := range specs {
		if s.byName[sp.Name] != nil {
			s.Close()
			return nil, errors.New(errors.PhaseMap, errors.KindInvalidInput).
				Region(sp.Name).Detail("duplicate region name").Build()
		}

		obj, err := open(sp)
		if err != nil {
			s.Close()
			return nil, err
		}

		// Owners map writable regardless of guest access; openers get
		// the protection the spec grants them.
		prot := shm.ReadWrite
		if !owner && sp.Access == ReadOnly {
			prot = shm.ReadOnly
		}
		buf, err := obj.Map(prot)
		if err != nil {
			obj.Close()
			if owner {
				obj.Unlink()
			}
			s.Close()
			return nil, err
		}

		r := &Region{obj: obj, name: sp.Name, buf: buf, access: sp.Access}
		s.regions = append(s.regions, r)
		s.byName[sp.Name] = r
		Logger().Debug("mapped region",
			zap.String("region", sp.Name),
			zap.Int("size", len(buf)),
			zap.Stringer("access", sp.Access),
			zap.Bool("owner", owner))
	}
	return s, nil
}

// Region looks a region up by name.
func (s *Set) Region(name string) (*Region, error) {
	r := s.byName[name]
	if r == nil {
		return nil, errors.NotFound(errors.PhaseMap, "region", name)
	}
	return r, nil
}

// Regions returns the regions in creation order.
func (s *Set) Regions() []*Region { return s.regions }

// View returns a bounds-checked view over [off, off+length) of a named region.
func (s *Set) View(name string, off, length uint32) (View, error) {
	r, err := s.Region(name)
	if err != nil {
		return View{}, err
	}
	return r.View(off, length)
}

// Close unmaps every region, closes descriptors, and unlinks objects when
// this set owns them. It always sweeps the whole set; errors are logged and
// aggregated, never fatal mid-teardown.
func (s *Set) Close() error {
	var errs error
	for _, r := range s.regions {
		if err := r.release(s.owner); err != nil {
			Logger().Warn("region teardown", zap.String("region", r.name), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	s.regions = nil
	s.byName = nil
	return errs
}
