package bitvec

// Pool recycles vector storage for the widths that flow through evaluation
// stacks on every instruction. A Pool is not safe for concurrent use; each
// machine owns one.
type Pool struct {
	free        map[int][][]byte
	outstanding int
}

const (
	maxPooledWidth  = 16
	maxFreePerWidth = 64
)

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{free: make(map[int][][]byte)}
}

// Rent returns a vector of the given width, either a fully known zero or
// fully unknown.
func (p *Pool) Rent(width int, known bool) *Vector {
	var storage []byte
	if list := p.free[width]; len(list) > 0 {
		storage = list[len(list)-1]
		p.free[width] = list[:len(list)-1]
	} else {
		storage = make([]byte, 2*width)
	}

	v := &Vector{
		bits:    storage[:width:width],
		mask:    storage[width:],
		storage: storage,
		pool:    p,
	}
	fill(v.bits, 0)
	if known {
		fill(v.mask, 0xFF)
	} else {
		fill(v.mask, 0)
	}
	p.outstanding++
	return v
}

// RentCopy rents a vector holding a copy of src.
func (p *Pool) RentCopy(src *Vector) *Vector {
	v := p.Rent(src.Width(), false)
	v.CopyFrom(src)
	return v
}

// Return consumes v. Its storage is recycled when it was rented from this
// pool; in every case the handle becomes unusable. Returning nil is a no-op.
func (p *Pool) Return(v *Vector) {
	if v == nil {
		return
	}
	if v.consumed {
		panic("bitvec: vector returned twice")
	}

	if v.pool == p && v.storage != nil {
		p.outstanding--
		width := len(v.bits)
		if width <= maxPooledWidth && len(p.free[width]) < maxFreePerWidth {
			p.free[width] = append(p.free[width], v.storage)
		}
	}

	v.bits = nil
	v.mask = nil
	v.storage = nil
	v.pool = nil
	v.consumed = true
}

// Outstanding reports how many rented vectors have not been returned yet.
func (p *Pool) Outstanding() int {
	return p.outstanding
}
