package piste

import (
	"errors"
	"fmt"
)

var ErrInvalidPisteNumber = errors.New("invalid piste number")
var ErrAlreadyOccupied = errors.New("piste already occupied")
var ErrPisteDisabled = errors.New("piste disabled")
var ErrMatchAlreadyAssigned = errors.New("match or fencer already on another piste")
var ErrPisteBusy = errors.New("piste busy")

type Status string

const (
	StatusFree     Status = "free"
	StatusStaged   Status = "staged"
	StatusOccupied Status = "occupied"
	StatusDisabled Status = "disabled"
)

type Piste struct {
	Number int
	Status Status
	Match  *int
	// Fencers on the piste, kept so the pool can check busy fencers without
	// reaching into the registry.
	Fencers [2]string
}

func (p Piste) Bound() bool {
	return p.Status == StatusStaged || p.Status == StatusOccupied
}

// Pool is the fixed set of pistes of a tournament. Numbers are 1..N.
// Callers serialize access.
type Pool struct {
	pistes []Piste
}

func NewPool(n int) *Pool {
	p := &Pool{pistes: make([]Piste, n)}
	for i := range p.pistes {
		p.pistes[i] = Piste{Number: i + 1, Status: StatusFree}
	}
	return p
}

// Restore rebuilds a pool from persisted pistes.
func Restore(ps []Piste) *Pool {
	p := NewPool(len(ps))
	for _, ps := range ps {
		if ps.Number < 1 || ps.Number > len(p.pistes) {
			continue
		}
		p.pistes[ps.Number-1] = clonePiste(ps)
	}
	return p
}

func (p *Pool) Len() int { return len(p.pistes) }

func (p *Pool) get(number int) (*Piste, error) {
	if number < 1 || number > len(p.pistes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPisteNumber, number)
	}
	return &p.pistes[number-1], nil
}

func (p *Pool) Get(number int) (Piste, error) {
	ps, err := p.get(number)
	if err != nil {
		return Piste{}, err
	}
	return clonePiste(*ps), nil
}

// Assign binds a match to a piste. With stage set the piste is reserved
// (Staged), otherwise it is claimed for fencing (Occupied). Promoting a piste
// already staged for the same match is allowed.
func (p *Pool) Assign(number, matchID int, red, green string, stage bool) (Piste, error) {
	target, err := p.get(number)
	if err != nil {
		return Piste{}, err
	}

	switch target.Status {
	case StatusDisabled:
		return Piste{}, fmt.Errorf("%w: piste %d", ErrPisteDisabled, number)
	case StatusStaged, StatusOccupied:
		if target.Match == nil || *target.Match != matchID {
			return Piste{}, fmt.Errorf("%w: piste %d is %s", ErrAlreadyOccupied, number, target.Status)
		}
		if stage || target.Status == StatusOccupied {
			return Piste{}, fmt.Errorf("%w: match %d already on piste %d", ErrMatchAlreadyAssigned, matchID, number)
		}
	}

	for i := range p.pistes {
		other := &p.pistes[i]
		if other.Number == number || !other.Bound() {
			continue
		}
		if *other.Match == matchID {
			return Piste{}, fmt.Errorf("%w: match %d already on piste %d", ErrMatchAlreadyAssigned, matchID, other.Number)
		}
		for _, f := range other.Fencers {
			if f != "" && (f == red || f == green) {
				return Piste{}, fmt.Errorf("%w: fencer %s on piste %d", ErrMatchAlreadyAssigned, f, other.Number)
			}
		}
	}

	id := matchID
	target.Match = &id
	target.Fencers = [2]string{red, green}
	if stage {
		target.Status = StatusStaged
	} else {
		target.Status = StatusOccupied
	}
	return clonePiste(*target), nil
}

// Release frees a piste. Releasing a free piste is a no-op.
func (p *Pool) Release(number int) (Piste, error) {
	target, err := p.get(number)
	if err != nil {
		return Piste{}, err
	}
	if target.Status == StatusDisabled {
		return clonePiste(*target), nil
	}
	target.Status = StatusFree
	target.Match = nil
	target.Fencers = [2]string{}
	return clonePiste(*target), nil
}

// ToggleDisabled flips a piste between Free and Disabled.
func (p *Pool) ToggleDisabled(number int) (Piste, error) {
	target, err := p.get(number)
	if err != nil {
		return Piste{}, err
	}
	switch target.Status {
	case StatusFree:
		target.Status = StatusDisabled
	case StatusDisabled:
		target.Status = StatusFree
	default:
		return Piste{}, fmt.Errorf("%w: piste %d is %s", ErrPisteBusy, number, target.Status)
	}
	return clonePiste(*target), nil
}

// Snapshot returns all pistes ordered by number.
func (p *Pool) Snapshot() []Piste {
	out := make([]Piste, len(p.pistes))
	for i, ps := range p.pistes {
		out[i] = clonePiste(ps)
	}
	return out
}

// Free lists free piste numbers in ascending order.
func (p *Pool) Free() []int {
	var out []int
	for _, ps := range p.pistes {
		if ps.Status == StatusFree {
			out = append(out, ps.Number)
		}
	}
	return out
}

// BusyFencers maps each fencer on a staged or occupied piste to that piste.
func (p *Pool) BusyFencers() map[string]int {
	out := make(map[string]int)
	for _, ps := range p.pistes {
		if !ps.Bound() {
			continue
		}
		for _, f := range ps.Fencers {
			if f != "" {
				out[f] = ps.Number
			}
		}
	}
	return out
}

func (p *Pool) Clone() *Pool {
	return &Pool{pistes: p.Snapshot()}
}

func clonePiste(ps Piste) Piste {
	c := ps
	if ps.Match != nil {
		v := *ps.Match
		c.Match = &v
	}
	return c
}
