package sale

import "fmt"

// AddressSet is an order-unpreserving persistent set of addresses with O(1)
// membership checks via a reverse index. Removal swaps the last element into
// the vacated slot and pops, so enumeration order is not stable across
// removals.
type AddressSet struct {
	store  Storage
	prefix string
}

// NewAddressSet binds a set to the provided storage under the given key
// prefix.
func NewAddressSet(store Storage, prefix string) *AddressSet {
	return &AddressSet{store: store, prefix: prefix}
}

type addrSetPos struct {
	Present bool
	Index   uint64
}

func (s *AddressSet) listKey() []byte {
	return []byte(s.prefix + "/list")
}

func (s *AddressSet) posKey(addr [20]byte) []byte {
	return append([]byte(s.prefix+"/pos/"), addr[:]...)
}

func (s *AddressSet) loadList() ([][20]byte, error) {
	var list [][20]byte
	ok, err := s.store.KVGet(s.listKey(), &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][20]byte{}, nil
	}
	return list, nil
}

func (s *AddressSet) storeList(list [][20]byte) error {
	return s.store.KVPut(s.listKey(), list)
}

// Contains reports whether the address is a member.
func (s *AddressSet) Contains(addr [20]byte) (bool, error) {
	var pos addrSetPos
	ok, err := s.store.KVGet(s.posKey(addr), &pos)
	if err != nil {
		return false, err
	}
	return ok && pos.Present, nil
}

// Add inserts the address. Adding an existing member is a no-op.
func (s *AddressSet) Add(addr [20]byte) error {
	member, err := s.Contains(addr)
	if err != nil {
		return err
	}
	if member {
		return nil
	}
	list, err := s.loadList()
	if err != nil {
		return err
	}
	index := uint64(len(list))
	list = append(list, addr)
	if err := s.storeList(list); err != nil {
		return err
	}
	return s.store.KVPut(s.posKey(addr), &addrSetPos{Present: true, Index: index})
}

// Remove deletes the address by swapping the last member into its slot. Absent
// members are ignored.
func (s *AddressSet) Remove(addr [20]byte) error {
	var pos addrSetPos
	ok, err := s.store.KVGet(s.posKey(addr), &pos)
	if err != nil {
		return err
	}
	if !ok || !pos.Present {
		return nil
	}
	list, err := s.loadList()
	if err != nil {
		return err
	}
	if pos.Index >= uint64(len(list)) {
		return fmt.Errorf("address set %s: corrupt index", s.prefix)
	}
	lastIdx := uint64(len(list) - 1)
	if pos.Index != lastIdx {
		moved := list[lastIdx]
		list[pos.Index] = moved
		if err := s.store.KVPut(s.posKey(moved), &addrSetPos{Present: true, Index: pos.Index}); err != nil {
			return err
		}
	}
	list = list[:lastIdx]
	if err := s.storeList(list); err != nil {
		return err
	}
	return s.store.KVPut(s.posKey(addr), &addrSetPos{Present: false})
}

// Len reports the number of members.
func (s *AddressSet) Len() (uint64, error) {
	list, err := s.loadList()
	if err != nil {
		return 0, err
	}
	return uint64(len(list)), nil
}

// Slice returns the members in the half-open interval [start, end).
func (s *AddressSet) Slice(start, end uint64) ([][20]byte, error) {
	list, err := s.loadList()
	if err != nil {
		return nil, err
	}
	if start > end || end > uint64(len(list)) {
		return nil, ErrInvalidRange
	}
	out := make([][20]byte, end-start)
	copy(out, list[start:end])
	return out, nil
}
