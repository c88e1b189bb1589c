package holders

import "github.com/ethereum/go-ethereum/common"

// HolderSet keeps unique addresses in the order they were first seen, up to a limit.
type HolderSet struct {
	limit int
	seen  map[common.Address]struct{}
	order []common.Address
}

// NewHolderSet creates a set holding at most limit addresses. A limit of 0 means no limit.
func NewHolderSet(limit int) *HolderSet {
	return &HolderSet{
		limit: limit,
		seen:  make(map[common.Address]struct{}),
	}
}

// Add inserts addr and reports whether it was added.
func (s *HolderSet) Add(addr common.Address) bool {
	if s.Full() {
		return false
	}

	if _, ok := s.seen[addr]; ok {
		return false
	}

	s.seen[addr] = struct{}{}
	s.order = append(s.order, addr)

	return true
}

// Full reports whether the limit has been reached.
func (s *HolderSet) Full() bool {
	return s.limit > 0 && len(s.order) >= s.limit
}

func (s *HolderSet) Len() int {
	return len(s.order)
}

// List returns the addresses in insertion order.
func (s *HolderSet) List() []common.Address {
	return append([]common.Address(nil), s.order...)
}
