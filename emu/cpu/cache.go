package cpu

import "math/rand"

// PageSize is the granularity of the decoded-instruction cache.
const PageSize = 4096

// slotsPerPage is one slot per 2-byte offset, so variable-length 2/4-byte
// encodings can share the array.
const slotsPerPage = PageSize / 2

// MaxCachedPages bounds the decoded-page cache; beyond this, the
// lowest-scoring page is evicted.
const MaxCachedPages = 64

type slot struct {
	instr  Instr
	nextPC uint32
	valid  bool
}

type page struct {
	base     uint32
	slots    [slotsPerPage]slot
	hitScore int64
	valid    bool
}

// pageFetcher supplies the raw bytes of one page (plus a 4-byte
// lookahead for boundary-spanning instructions) so the cache can decode
// it without depending on the bus package directly.
type pageFetcher interface {
	FetchPage(base uint32) (buf []byte, ok bool)
}

// PageCache is the CPU's two-level decoded-instruction cache: a
// fast-path "last used page" check, backed by a bounded set of decoded
// pages keyed by page index.
type PageCache struct {
	fetcher pageFetcher
	pages   []*page
	lut     map[uint32]int // page index -> slot in pages

	lastUsedIdx  int
	lastUsedBase uint32
	haveLast     bool

	rng *rand.Rand
}

// NewPageCache builds an empty cache backed by fetcher.
func NewPageCache(fetcher pageFetcher) *PageCache {
	return &PageCache{
		fetcher: fetcher,
		lut:     make(map[uint32]int),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Invalidate drops every cached page, as required whenever RAM or ROM is
// written.
func (c *PageCache) Invalidate() {
	c.pages = nil
	c.lut = make(map[uint32]int)
	c.haveLast = false
}

func pageBaseOf(addr uint32) uint32 { return addr &^ (PageSize - 1) }

// Lookup returns the decoded instruction and its next-PC for addr,
// decoding the containing page on miss.
func (c *PageCache) Lookup(addr uint32) (Instr, uint32, bool) {
	base := pageBaseOf(addr)
	slotIdx := (addr & (PageSize - 1)) / 2

	if c.haveLast && c.lastUsedBase == base {
		p := c.pages[c.lastUsedIdx]
		s := &p.slots[slotIdx]
		if s.valid {
			p.hitScore++
			return s.instr, s.nextPC, true
		}
	}

	idx, ok := c.lut[base]
	var p *page
	if ok {
		p = c.pages[idx]
	} else {
		var fetchErr bool
		p, fetchErr = c.decodePage(base)
		if fetchErr {
			return Instr{}, 0, false
		}
		idx = c.install(p)
	}
	c.lastUsedIdx = idx
	c.lastUsedBase = base
	c.haveLast = true

	s := &p.slots[slotIdx]
	if !s.valid {
		return Instr{}, 0, false
	}
	p.hitScore++
	return s.instr, s.nextPC, true
}

func (c *PageCache) decodePage(base uint32) (*page, bool) {
	buf, ok := c.fetcher.FetchPage(base)
	if !ok {
		return nil, true
	}
	p := &page{base: base, valid: true, hitScore: 1 << 20}
	off := 0
	for off < PageSize {
		in := DecodeAt(buf, off)
		p.slots[off/2] = slot{instr: in, nextPC: base + uint32(off) + uint32(in.Length), valid: true}
		off += int(in.Length)
	}
	return p, false
}

func (c *PageCache) install(p *page) int {
	if len(c.pages) < MaxCachedPages {
		c.pages = append(c.pages, p)
		idx := len(c.pages) - 1
		c.lut[p.base] = idx
		return idx
	}
	// evict the page with the smallest hit_score + rand_bias
	worst := 0
	worstScore := c.pages[0].hitScore + c.rng.Int63n(1024)
	for i := 1; i < len(c.pages); i++ {
		score := c.pages[i].hitScore + c.rng.Int63n(1024)
		if score < worstScore {
			worst = i
			worstScore = score
		}
	}
	delete(c.lut, c.pages[worst].base)
	c.pages[worst] = p
	c.lut[p.base] = worst
	return worst
}

// AgeScores halves every cached page's hit_score, called periodically by
// the driver loop so stale hot pages eventually become evictable again.
func (c *PageCache) AgeScores() {
	for _, p := range c.pages {
		p.hitScore /= 2
	}
}

// Len reports how many pages are currently cached (for tests).
func (c *PageCache) Len() int { return len(c.pages) }
