package vm

import "fmt"

type Rbc_t int

const (
	RED   Rbc_t = iota
	BLACK Rbc_t = iota
)

// child indices; the mirror image of every case uses 1-d.
const (
	left  = 0
	right = 1
)

// Rbh_t is a red-black tree of mappings keyed by first page number.
type Rbh_t struct {
	root *Rbn_t
}

type Rbn_t struct {
	p   *Rbn_t
	kid [2]*Rbn_t
	c   Rbc_t
	vmi Vminfo_t
}

func isblack(n *Rbn_t) bool {
	return n == nil || n.c == BLACK
}

// side returns which child of its parent n is.
func (n *Rbn_t) side() int {
	if n.p.kid[left] == n {
		return left
	}
	return right
}

// _replace puts nn where old hangs in the tree. old's own links are left
// alone.
func (h *Rbh_t) _replace(old, nn *Rbn_t) {
	par := old.p
	if par == nil {
		h.root = nn
	} else {
		par.kid[old.side()] = nn
	}
	if nn != nil {
		nn.p = par
	}
}

// _rotate moves n down in direction d and its other child up.
func (h *Rbh_t) _rotate(n *Rbn_t, d int) {
	up := n.kid[1-d]
	n.kid[1-d] = up.kid[d]
	if up.kid[d] != nil {
		up.kid[d].p = n
	}
	h._replace(n, up)
	up.kid[d] = n
	n.p = up
}

func (h *Rbh_t) _balance(nn *Rbn_t) {
	for par := nn.p; par != nil && par.c == RED; par = nn.p {
		// a red parent is never the root
		gp := par.p
		d := par.side()
		uncle := gp.kid[1-d]
		if !isblack(uncle) {
			uncle.c, par.c, gp.c = BLACK, BLACK, RED
			nn = gp
			continue
		}
		if nn == par.kid[1-d] {
			h._rotate(par, d)
			nn, par = par, nn
		}
		par.c, gp.c = BLACK, RED
		h._rotate(gp, 1-d)
	}
	h.root.c = BLACK
}

// _insert links a new node for vmi. Overlap with an existing node is an
// invariant violation.
func (h *Rbh_t) _insert(vmi *Vminfo_t) *Rbn_t {
	nn := &Rbn_t{vmi: *vmi, c: RED}
	var par *Rbn_t
	d := left
	for n := h.root; n != nil; n = n.kid[d] {
		if vmi.overlaps(&n.vmi) {
			panic(fmt.Sprintf("vma %v overlaps %v", vmi, &n.vmi))
		}
		par = n
		d = left
		if vmi.Pgn > n.vmi.Pgn {
			d = right
		}
	}
	nn.p = par
	if par == nil {
		h.root = nn
	} else {
		par.kid[d] = nn
	}
	h._balance(nn)
	return nn
}

// lookup returns the node whose pages contain pgn.
func (h *Rbh_t) lookup(pgn uintptr) *Rbn_t {
	n := h.root
	for n != nil {
		switch {
		case pgn < n.vmi.Pgn:
			n = n.kid[left]
		case pgn >= n.vmi.end():
			n = n.kid[right]
		default:
			return n
		}
	}
	return nil
}

// ceil returns the lowest node ending above pgn.
func (h *Rbh_t) ceil(pgn uintptr) *Rbn_t {
	var ret *Rbn_t
	for n := h.root; n != nil; {
		if n.vmi.end() > pgn {
			ret = n
			n = n.kid[left]
		} else {
			n = n.kid[right]
		}
	}
	return ret
}

func (h *Rbh_t) _edge(d int) *Rbn_t {
	n := h.root
	for n != nil && n.kid[d] != nil {
		n = n.kid[d]
	}
	return n
}

func (h *Rbh_t) first() *Rbn_t {
	return h._edge(left)
}

func (h *Rbh_t) last() *Rbn_t {
	return h._edge(right)
}

// _step returns the in-order neighbour of n in direction d.
func (n *Rbn_t) _step(d int) *Rbn_t {
	if c := n.kid[d]; c != nil {
		for c.kid[1-d] != nil {
			c = c.kid[1-d]
		}
		return c
	}
	for n.p != nil && n.side() == d {
		n = n.p
	}
	return n.p
}

func (n *Rbn_t) next() *Rbn_t {
	return n._step(right)
}

func (n *Rbn_t) prev() *Rbn_t {
	return n._step(left)
}

// _rembalance restores the black height after a black node was unlinked
// from par, leaving nn (possibly nil) in its place.
func (h *Rbh_t) _rembalance(par, nn *Rbn_t) {
	for nn != h.root && isblack(nn) {
		d := left
		if par.kid[right] == nn {
			d = right
		}
		sib := par.kid[1-d]
		if sib.c == RED {
			sib.c, par.c = BLACK, RED
			h._rotate(par, d)
			sib = par.kid[1-d]
		}
		if isblack(sib.kid[left]) && isblack(sib.kid[right]) {
			sib.c = RED
			nn, par = par, par.p
			continue
		}
		if isblack(sib.kid[1-d]) {
			sib.kid[d].c = BLACK
			sib.c = RED
			h._rotate(sib, 1-d)
			sib = par.kid[1-d]
		}
		sib.c, par.c = par.c, BLACK
		if sib.kid[1-d] != nil {
			sib.kid[1-d].c = BLACK
		}
		h._rotate(par, d)
		nn = h.root
	}
	if nn != nil {
		nn.c = BLACK
	}
}

// remove unlinks nn and returns it. a node with two children is replaced
// by its successor.
func (h *Rbh_t) remove(nn *Rbn_t) *Rbn_t {
	var child, par *Rbn_t
	col := nn.c
	switch {
	case nn.kid[left] == nil:
		child, par = nn.kid[right], nn.p
		h._replace(nn, child)
	case nn.kid[right] == nil:
		child, par = nn.kid[left], nn.p
		h._replace(nn, child)
	default:
		succ := nn.kid[right]
		for succ.kid[left] != nil {
			succ = succ.kid[left]
		}
		col = succ.c
		child = succ.kid[right]
		if succ.p == nn {
			par = succ
		} else {
			par = succ.p
			h._replace(succ, child)
			succ.kid[right] = nn.kid[right]
			succ.kid[right].p = succ
		}
		h._replace(nn, succ)
		succ.kid[left] = nn.kid[left]
		succ.kid[left].p = succ
		succ.c = nn.c
	}
	if col == BLACK {
		h._rembalance(par, child)
	}
	nn.p, nn.kid = nil, [2]*Rbn_t{}
	return nn
}

// _check returns the black height of the subtree rooted at n or an error
// describing the first broken red-black property.
func (h *Rbh_t) _check(n *Rbn_t) (int, error) {
	if n == nil {
		return 1, nil
	}
	var hts [2]int
	for d, c := range n.kid {
		if c == nil {
			hts[d] = 1
			continue
		}
		if c.p != n {
			return 0, fmt.Errorf("bad parent link at %v", &n.vmi)
		}
		if n.c == RED && c.c == RED {
			return 0, fmt.Errorf("red node %v has red child", &n.vmi)
		}
		ht, err := h._check(c)
		if err != nil {
			return 0, err
		}
		hts[d] = ht
	}
	if hts[left] != hts[right] {
		return 0, fmt.Errorf("black height mismatch at %v", &n.vmi)
	}
	if n.c == BLACK {
		return hts[left] + 1, nil
	}
	return hts[left], nil
}
