package ledger

import "token-ledger/internal/domain"

// Policy decides which principal may mint and which may govern metadata.
// Both roles are fixed at construction and checked independently on every call.
type Policy struct {
	owner domain.Principal
	dao   domain.Principal
}

// NewPolicy creates a policy with the given minting owner and governance principal.
func NewPolicy(owner, dao domain.Principal) Policy {
	return Policy{owner: owner, dao: dao}
}

// IsOwner reports whether caller holds the minting authority.
func (p Policy) IsOwner(caller domain.Principal) bool {
	return caller == p.owner
}

// IsDAO reports whether caller holds the metadata-governance authority.
func (p Policy) IsDAO(caller domain.Principal) bool {
	return caller == p.dao
}

// Owner returns the minting authority.
func (p Policy) Owner() domain.Principal {
	return p.owner
}

// DAO returns the metadata-governance authority.
func (p Policy) DAO() domain.Principal {
	return p.dao
}
