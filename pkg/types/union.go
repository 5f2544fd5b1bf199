package types

import "github.com/hashicorp/go-set/v3"

// Union is an order-preserving set of member types. Members keeps source
// order for display; equality ignores order.
type Union struct {
	Members []Ref
	seen    *set.Set[Ref]
}

func newUnion(members []Ref) *Union {
	u := &Union{seen: set.New[Ref](len(members))}
	for _, m := range members {
		u.add(m)
	}
	return u
}

func (u *Union) add(r Ref) {
	if u.seen.Insert(r) {
		u.Members = append(u.Members, r)
	}
}

// Has reports whether r is a direct member.
func (u *Union) Has(r Ref) bool {
	return u.seen.Contains(r)
}

// SameMembers reports whether both unions hold the same member handles.
func (u *Union) SameMembers(o *Union) bool {
	if u.seen.Size() != o.seen.Size() {
		return false
	}
	for _, m := range o.Members {
		if !u.seen.Contains(m) {
			return false
		}
	}
	return true
}
